package api

import (
	"time"

	"github.com/BaSui01/voiceagent/agent/voice"
	"github.com/BaSui01/voiceagent/llm/speech"
)

// =============================================================================
// WebSocket 事件类型
// =============================================================================

// 客户端与服务端事件类型
const (
	EventSendMessage     = "send_message"
	EventStatus          = "status"
	EventMessageResponse = "message_response"
	EventError           = "error"
)

// ClientMessage 客户端发送的消息
// @Description WebSocket 客户端消息
type ClientMessage struct {
	// 固定为 send_message
	Type string `json:"type" example:"send_message"`
	// 用户输入文本
	Message string `json:"message" example:"hello"`
	// 会话 ID，为空时使用连接默认会话
	SessionID string `json:"session_id,omitempty"`
}

// StatusEvent 连接建立或会话切换时下发
// @Description 服务状态事件
type StatusEvent struct {
	Type      string `json:"type" example:"status"`
	SessionID string `json:"session_id"`
	// 人设名称
	Persona string `json:"persona"`
	// 推理服务是否已配置，未配置时全部走兜底回复
	ReasoningConfigured bool `json:"reasoning_configured"`
	// 语音合成是否已配置
	SynthesisConfigured bool      `json:"synthesis_configured"`
	Message             string    `json:"message,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// SpeechInfo 单轮回复的合成结果
// @Description 语音合成结果
type SpeechInfo struct {
	Success bool `json:"success"`
	// 音频地址，合成失败时为空
	AudioURL string `json:"audio_url,omitempty"`
	// 失败原因
	Error string `json:"error,omitempty"`
	// 提交合成的字符数
	CharCount int `json:"char_count"`
}

// MessageResponse 一轮对话完成后下发
// @Description 对话轮次结果
type MessageResponse struct {
	Type        string     `json:"type" example:"message_response"`
	SessionID   string     `json:"session_id"`
	Seq         int        `json:"seq" example:"1"`
	UserMessage string     `json:"user_message" example:"hello"`
	AIResponse  string     `json:"ai_response"`
	Source      string     `json:"source" example:"reasoning"`
	Speech      SpeechInfo `json:"speech"`
	Timestamp   time.Time  `json:"timestamp"`
	// 用户说了结束语，会话已终止
	Exit bool `json:"exit"`
}

// ErrorEvent 未能产生轮次的失败 (空输入、会话已关闭等)
// @Description 错误事件
type ErrorEvent struct {
	Type      string `json:"type" example:"error"`
	Code      string `json:"code" example:"INPUT_EMPTY"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// NewSpeechInfo 从合成结果构造 SpeechInfo
func NewSpeechInfo(r voice.SynthesisResult) SpeechInfo {
	return SpeechInfo{
		Success:   r.Success,
		AudioURL:  r.AudioURL,
		Error:     r.ErrorDetail,
		CharCount: r.CharCount,
	}
}

// NewMessageResponse 从轮次结果构造下发消息
func NewMessageResponse(r *voice.TurnResult) MessageResponse {
	return MessageResponse{
		Type:        EventMessageResponse,
		SessionID:   r.SessionID,
		Seq:         r.Seq,
		UserMessage: r.UserText,
		AIResponse:  r.AssistantText,
		Source:      string(r.Source),
		Speech:      NewSpeechInfo(r.Synthesis),
		Timestamp:   r.Timestamp,
		Exit:        r.Exit,
	}
}

// =============================================================================
// REST 请求/响应类型
// =============================================================================

// ConversationRequest 文本对话请求
// @Description 对话请求
type ConversationRequest struct {
	Message   string `json:"message" example:"what can you do?" binding:"required"`
	SessionID string `json:"session_id,omitempty"`
}

// TTSRequest 单独的语音合成请求
// @Description 语音合成请求
type TTSRequest struct {
	Text string `json:"text" binding:"required"`
}

// VoicesResponse 可用声音列表
// @Description 声音列表
type VoicesResponse struct {
	Provider string         `json:"provider"`
	Voices   []speech.Voice `json:"voices"`
}

// VoiceTurnResponse 语音输入的识别结果及其轮次。
// 识别结果为空时 Turn 为 nil。
// @Description 语音对话结果
type VoiceTurnResponse struct {
	Transcript string           `json:"transcript"`
	Confidence float64          `json:"confidence,omitempty"`
	Language   string           `json:"language,omitempty"`
	Turn       *MessageResponse `json:"turn,omitempty"`
}

// HistoryResponse 会话内仍保留的轮次
// @Description 会话历史
type HistoryResponse struct {
	SessionID  string       `json:"session_id"`
	Terminated bool         `json:"terminated"`
	Turns      []voice.Turn `json:"turns"`
}

// UsageResponse 进程级合成用量
// @Description 合成用量
type UsageResponse struct {
	Synthesis      voice.Usage `json:"synthesis"`
	ActiveSessions int         `json:"active_sessions"`
}
