// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "Luna", cfg.Agent.PersonaName)
	assert.Equal(t, "perplexity", cfg.Reasoning.Provider)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
server:
  http_port: 9000
  session_ttl: 5m
agent:
  persona_name: Nova
  history_cap: 4
  exit_tokens: [bye, quit, exit]
reasoning:
  provider: gemini
  model: gemini-2.0-flash
  timeout: 8s
synthesis:
  voice_id: en-UK-hazel
  sample_rate: 44100
transcript_log:
  type: file
  base_dir: /tmp/logs
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 5*time.Minute, cfg.Server.SessionTTL)
	assert.Equal(t, "Nova", cfg.Agent.PersonaName)
	assert.Equal(t, 4, cfg.Agent.HistoryCap)
	assert.Equal(t, []string{"bye", "quit", "exit"}, cfg.Agent.ExitTokens)
	assert.Equal(t, "gemini", cfg.Reasoning.Provider)
	assert.Equal(t, 8*time.Second, cfg.Reasoning.Timeout)
	assert.Equal(t, "en-UK-hazel", cfg.Synthesis.VoiceID)
	assert.Equal(t, 44100, cfg.Synthesis.SampleRate)
	assert.Equal(t, "file", cfg.TranscriptLog.Type)
	assert.Equal(t, "text", cfg.TranscriptLog.Format)

	// 未在文件中出现的字段保持默认值
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, "MP3", cfg.Synthesis.Format)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "nope.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o644))

	t.Setenv("VOICEAGENT_SERVER_HTTP_PORT", "7000")
	t.Setenv("VOICEAGENT_REASONING_TIMEOUT", "3s")
	t.Setenv("VOICEAGENT_REASONING_TEMPERATURE", "0.2")
	t.Setenv("VOICEAGENT_AGENT_EXIT_TOKENS", "bye, stop ,quit")
	t.Setenv("VOICEAGENT_TELEMETRY_ENABLED", "true")
	t.Setenv("VOICEAGENT_SYNTHESIS_MAX_RETRIES", "1")
	t.Setenv("VOICEAGENT_SYNTHESIS_RETRY_DELAY", "500ms")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.HTTPPort)
	assert.Equal(t, 3*time.Second, cfg.Reasoning.Timeout)
	assert.InDelta(t, 0.2, cfg.Reasoning.Temperature, 1e-9)
	assert.Equal(t, []string{"bye", "stop", "quit"}, cfg.Agent.ExitTokens)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 1, cfg.Synthesis.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Synthesis.RetryDelay)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("VOICEAGENT_SERVER_HTTP_PORT", "not-a-number")
	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_CustomPrefix(t *testing.T) {
	t.Setenv("VA_SYNTHESIS_VOICE_ID", "en-US-natalie")
	cfg, err := NewLoader().WithEnvPrefix("VA").Load()
	require.NoError(t, err)
	assert.Equal(t, "en-US-natalie", cfg.Synthesis.VoiceID)
}

func TestLoader_DotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(
		"VOICEAGENT_AGENT_PERSONA_NAME=Echo\n"+
			"VOICEAGENT_SERVER_HTTP_PORT=6000\n"+
			"MURF_API_KEY=murf-from-dotenv\n"), 0o644))

	// 进程环境优先于 .env
	t.Setenv("VOICEAGENT_SERVER_HTTP_PORT", "6500")

	cfg, err := NewLoader().WithDotEnv(envPath, filepath.Join(dir, "missing.env")).Load()
	require.NoError(t, err)
	assert.Equal(t, "Echo", cfg.Agent.PersonaName)
	assert.Equal(t, 6500, cfg.Server.HTTPPort)
	if _, set := os.LookupEnv("MURF_API_KEY"); !set {
		assert.Equal(t, "murf-from-dotenv", cfg.Synthesis.APIKey)
	}
	_, leaked := os.LookupEnv("VOICEAGENT_AGENT_PERSONA_NAME")
	assert.False(t, leaked, ".env values stay out of the process environment")
}

func TestLoader_LegacyKeys(t *testing.T) {
	t.Setenv("MURF_API_KEY", "murf-legacy")
	t.Setenv("DEEPGRAM_API_KEY", "dg-legacy")
	t.Setenv("PERPLEXITY_API_KEY", "pplx-legacy")
	t.Setenv("GEMINI_API_KEY", "gem-legacy")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "murf-legacy", cfg.Synthesis.APIKey)
	assert.Equal(t, "dg-legacy", cfg.Recognition.APIKey)
	assert.Equal(t, "pplx-legacy", cfg.Reasoning.APIKey, "provider defaults to perplexity")

	t.Setenv("VOICEAGENT_REASONING_PROVIDER", "gemini")
	cfg, err = NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "gem-legacy", cfg.Reasoning.APIKey)

	t.Setenv("VOICEAGENT_SYNTHESIS_API_KEY", "murf-new")
	cfg, err = NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "murf-new", cfg.Synthesis.APIKey, "prefixed variable wins over legacy")
	assert.True(t, cfg.SynthesisConfigured())
}

func TestLoader_Validator(t *testing.T) {
	_, err := NewLoader().WithValidator((*Config).Validate).Load()
	assert.NoError(t, err)

	t.Setenv("VOICEAGENT_AGENT_HISTORY_CAP", "0")
	_, err = NewLoader().WithValidator((*Config).Validate).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history_cap")
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"bad http port", func(c *Config) { c.Server.HTTPPort = 70000 }, "invalid HTTP port"},
		{"same ports", func(c *Config) { c.Server.MetricsPort = c.Server.HTTPPort }, "metrics port must differ"},
		{"metrics disabled", func(c *Config) { c.Server.MetricsPort = 0 }, ""},
		{"tls half set", func(c *Config) { c.Server.TLSCertFile = "cert.pem" }, "must be set together"},
		{"tls pair", func(c *Config) { c.Server.TLSCertFile = "cert.pem"; c.Server.TLSKeyFile = "key.pem" }, ""},
		{"unknown provider", func(c *Config) { c.Reasoning.Provider = "claude" }, "unknown reasoning provider"},
		{"temperature", func(c *Config) { c.Reasoning.Temperature = 3 }, "temperature"},
		{"zero timeout", func(c *Config) { c.Reasoning.Timeout = 0 }, "reasoning.timeout"},
		{"max chars", func(c *Config) { c.Synthesis.MaxChars = 0 }, "max_chars"},
		{"sample rate", func(c *Config) { c.Synthesis.SampleRate = 12345 }, "sample rate"},
		{"negative retries", func(c *Config) { c.Synthesis.MaxRetries = -1 }, "max_retries"},
		{"negative retry delay", func(c *Config) { c.Synthesis.RetryDelay = -time.Second }, "retry_delay"},
		{"retries disabled", func(c *Config) { c.Synthesis.MaxRetries = 0; c.Synthesis.RetryDelay = 0 }, ""},
		{"transcript type", func(c *Config) { c.TranscriptLog.Type = "mongo" }, "transcript_log.type"},
		{"transcript disabled", func(c *Config) { c.TranscriptLog.Enabled = false; c.TranscriptLog.Type = "mongo" }, ""},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_ValidateAggregatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Agent.HistoryCap = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
	assert.Contains(t, err.Error(), "history_cap")
}

func TestParseInto(t *testing.T) {
	var target struct {
		S   string
		I   int
		D   time.Duration
		F   float64
		F32 float32
		B   bool
		L   []string
		M   map[string]string
	}
	v := reflect.ValueOf(&target).Elem()

	require.NoError(t, parseInto(v.FieldByName("S"), "hello"))
	require.NoError(t, parseInto(v.FieldByName("I"), "42"))
	require.NoError(t, parseInto(v.FieldByName("D"), "1m30s"))
	require.NoError(t, parseInto(v.FieldByName("F"), "0.25"))
	require.NoError(t, parseInto(v.FieldByName("F32"), "0.5"))
	require.NoError(t, parseInto(v.FieldByName("B"), "true"))
	require.NoError(t, parseInto(v.FieldByName("L"), " a, b ,,c "))

	assert.Equal(t, "hello", target.S)
	assert.Equal(t, 42, target.I)
	assert.Equal(t, 90*time.Second, target.D)
	assert.InDelta(t, 0.25, target.F, 1e-9)
	assert.InDelta(t, 0.5, target.F32, 1e-9)
	assert.True(t, target.B)
	assert.Equal(t, []string{"a", "b", "c"}, target.L)

	assert.Error(t, parseInto(v.FieldByName("D"), "90"))
	assert.Error(t, parseInto(v.FieldByName("B"), "maybe"))
	assert.Error(t, parseInto(v.FieldByName("M"), "k=v"))
}

func TestLoader_InvalidEnvValueNamesVariable(t *testing.T) {
	t.Setenv("VOICEAGENT_SYNTHESIS_TIMEOUT", "soon")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VOICEAGENT_SYNTHESIS_TIMEOUT")
}
