package speech

import "time"

// MurfConfig 配置了 Murf TTS 供应商.
type MurfConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	VoiceID    string        `json:"voice_id,omitempty" yaml:"voice_id,omitempty"`
	Format     string        `json:"format,omitempty" yaml:"format,omitempty"`
	SampleRate int           `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DeepgramConfig 配置了 Deepgram STT 供应商.
type DeepgramConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // nova-2
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultMurfConfig 返回默认 Murf 配置.
func DefaultMurfConfig() MurfConfig {
	return MurfConfig{
		BaseURL:    "https://api.murf.ai",
		VoiceID:    "en-US-terrell",
		Format:     "MP3",
		SampleRate: 24000,
		Timeout:    30 * time.Second,
	}
}

// DefaultDeepgramConfig 返回默认 Deepgram 配置.
func DefaultDeepgramConfig() DeepgramConfig {
	return DeepgramConfig{
		BaseURL: "https://api.deepgram.com",
		Model:   "nova-2",
		Timeout: 120 * time.Second,
	}
}
