// Package tlsutil 集中管理 TLS 设置：上游推理与语音服务的 HTTP 客户端、
// Redis 会话记录连接，以及 API 端口的 HTTPS/WSS 监听（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
