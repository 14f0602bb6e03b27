// Package api defines the wire types of the voiceagent HTTP and WebSocket API.
//
// # API Overview
//
// voiceagent exposes one conversation pipeline over two transports:
//   - WebSocket at /ws: the client sends send_message events and receives a
//     status event on connect, one message_response per completed turn and
//     error events for input that produced no turn
//   - REST mirrors under /api/v1: conversation, voice (audio upload), tts,
//     voices, conversation history and usage
//   - Health endpoints: /health, /healthz, /ready, /version
//
// Prometheus metrics are served on a separate port at /metrics.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
