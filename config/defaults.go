// =============================================================================
// 📦 voiceagent 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		Agent:         DefaultAgentConfig(),
		Reasoning:     DefaultReasoningConfig(),
		Synthesis:     DefaultSynthesisConfig(),
		Recognition:   DefaultRecognitionConfig(),
		TranscriptLog: DefaultTranscriptLogConfig(),
		Redis:         DefaultRedisConfig(),
		Log:           DefaultLogConfig(),
		Telemetry:     DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		SessionTTL:      30 * time.Minute,
		SweepInterval:   time.Minute,
		MaxUploadBytes:  10 << 20,
	}
}

// DefaultAgentConfig 返回默认对话配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		PersonaName: "Luna",
		HistoryCap:  10,
		ExitTokens:  []string{"goodbye", "bye"},
	}
}

// DefaultReasoningConfig 返回默认推理服务配置
func DefaultReasoningConfig() ReasoningConfig {
	return ReasoningConfig{
		Provider:      "perplexity",
		MaxTokens:     150,
		Temperature:   0.7,
		Timeout:       20 * time.Second,
		MinReplyChars: 1,
	}
}

// DefaultSynthesisConfig 返回默认语音合成配置
func DefaultSynthesisConfig() SynthesisConfig {
	return SynthesisConfig{
		Provider:   "murf",
		BaseURL:    "https://api.murf.ai",
		VoiceID:    "en-US-terrell",
		Format:     "MP3",
		SampleRate: 24000,
		MaxChars:   3000,
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
}

// DefaultRecognitionConfig 返回默认语音识别配置
func DefaultRecognitionConfig() RecognitionConfig {
	return RecognitionConfig{
		Provider: "deepgram",
		BaseURL:  "https://api.deepgram.com",
		Model:    "nova-2",
		Timeout:  30 * time.Second,
	}
}

// DefaultTranscriptLogConfig 返回默认会话记录配置
func DefaultTranscriptLogConfig() TranscriptLogConfig {
	return TranscriptLogConfig{
		Enabled: true,
		Type:    "memory",
		BaseDir: "./data/transcripts",
		Format:  "jsonl",
		TTL:     24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		Password:  "",
		DB:        0,
		PoolSize:  10,
		KeyPrefix: "voiceagent:",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "voiceagent",
		SampleRate:   0.1,
		Insecure:     true,
	}
}
