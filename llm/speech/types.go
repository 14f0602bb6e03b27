// 软件包 speech 提供统一的 TTS 和 STT 供应商接口.
package speech

import (
	"context"
	"io"
	"time"
)

// ============================================================
// 文字转语音 (TTS)
// ============================================================

// TTSRequest 代表文本转语音请求.
type TTSRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice,omitempty"`
	Format     string `json:"format,omitempty"` // MP3, WAV
	SampleRate int    `json:"sample_rate,omitempty"`
}

// TTSResponse 代表 TTS 请求的结果. 远端托管的音频通过 AudioURL 返回.
type TTSResponse struct {
	Provider       string        `json:"provider"`
	AudioURL       string        `json:"audio_url,omitempty"`
	AudioData      []byte        `json:"-"`
	Format         string        `json:"format"`
	Duration       time.Duration `json:"duration,omitempty"`
	CharCount      int           `json:"char_count,omitempty"`
	RemainingChars int           `json:"remaining_chars,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// TTSProvider 定义了 TTS 提供者接口.
type TTSProvider interface {
	// Synthesize 将文本转换为语音.
	Synthesize(ctx context.Context, req *TTSRequest) (*TTSResponse, error)

	// ListVoices 返回可用声音.
	ListVoices(ctx context.Context) ([]Voice, error)

	// Name 返回提供者名称.
	Name() string
}

// Voice 代表一个可用的声音.
type Voice struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Language    string   `json:"language"`
	Gender      string   `json:"gender,omitempty"`
	Accent      string   `json:"accent,omitempty"`
	Description string   `json:"description,omitempty"`
	Styles      []string `json:"styles,omitempty"`
}

// ============================================================
// 语音转文本 (STT)
// ============================================================

// STTRequest 代表语音转文本请求.
type STTRequest struct {
	Audio       io.Reader `json:"-"`
	AudioURL    string    `json:"audio_url,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Model       string    `json:"model,omitempty"`
	Language    string    `json:"language,omitempty"` // ISO-639-1 code
}

// STTResponse 代表一次识别的最终文本. Text 为空表示静音或无法识别.
type STTResponse struct {
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence,omitempty"`
	Language   string        `json:"language,omitempty"` // 请求指定或服务端检测
	Duration   time.Duration `json:"duration,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// STTProvider 定义了 STT 提供者接口.
type STTProvider interface {
	// Transcribe 将语音转换为文本.
	Transcribe(ctx context.Context, req *STTRequest) (*STTResponse, error)

	// Name 返回提供者名称.
	Name() string

	// SupportedFormats 返回支持的音频格式.
	SupportedFormats() []string
}
