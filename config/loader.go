// =============================================================================
// 📦 voiceagent 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖 + .env 文件
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithDotEnv(".env").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量（进程环境优先于 .env）
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 voiceagent 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Agent 对话与人设配置
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Reasoning 推理服务配置
	Reasoning ReasoningConfig `yaml:"reasoning" env:"REASONING"`

	// Synthesis 语音合成配置
	Synthesis SynthesisConfig `yaml:"synthesis" env:"SYNTHESIS"`

	// Recognition 语音识别配置
	Recognition RecognitionConfig `yaml:"recognition" env:"RECOGNITION"`

	// TranscriptLog 会话记录配置
	TranscriptLog TranscriptLogConfig `yaml:"transcript_log" env:"TRANSCRIPT_LOG"`

	// Redis 配置（会话记录 redis 后端使用）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口，0 表示不启动
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，需覆盖一次推理加一次合成
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 的限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// CORS 允许的来源，空表示不限制
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 会话空闲过期时间
	SessionTTL time.Duration `yaml:"session_ttl" env:"SESSION_TTL"`
	// 过期会话清理间隔
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	// 语音上传大小上限
	MaxUploadBytes int64 `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
	// 证书与私钥，均设置时 API 端口以 HTTPS/WSS 提供服务
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// AgentConfig 对话配置
type AgentConfig struct {
	// 人设名称，用于问候语与系统提示词
	PersonaName string `yaml:"persona_name" env:"PERSONA_NAME"`
	// 系统提示词，为空时使用内置模板
	SystemPrompt string `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	// 发送给推理服务的历史轮次上限
	HistoryCap int `yaml:"history_cap" env:"HISTORY_CAP"`
	// 结束会话的关键词（整词匹配，不区分大小写）
	ExitTokens []string `yaml:"exit_tokens" env:"EXIT_TOKENS"`
}

// ReasoningConfig 推理服务配置
type ReasoningConfig struct {
	// perplexity | openai | gemini
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 为空时推理未配置，全部走兜底回复
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 为空时使用各 provider 的默认值
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	Model   string `yaml:"model" env:"MODEL"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 单次尝试超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 回复少于该字符数时视为无效
	MinReplyChars int `yaml:"min_reply_chars" env:"MIN_REPLY_CHARS"`
}

// SynthesisConfig 语音合成配置
type SynthesisConfig struct {
	Provider   string        `yaml:"provider" env:"PROVIDER"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	VoiceID    string        `yaml:"voice_id" env:"VOICE_ID"`
	Format     string        `yaml:"format" env:"FORMAT"`
	SampleRate int           `yaml:"sample_rate" env:"SAMPLE_RATE"`
	MaxChars   int           `yaml:"max_chars" env:"MAX_CHARS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 瞬时错误的重试次数，0 不重试
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 首次重试前的等待
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
}

// RecognitionConfig 语音识别配置
type RecognitionConfig struct {
	Provider string        `yaml:"provider" env:"PROVIDER"`
	APIKey   string        `yaml:"api_key" env:"API_KEY"`
	BaseURL  string        `yaml:"base_url" env:"BASE_URL"`
	Model    string        `yaml:"model" env:"MODEL"`
	Language string        `yaml:"language" env:"LANGUAGE"`
	Timeout  time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// TranscriptLogConfig 会话记录配置
type TranscriptLogConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// memory | file | redis
	Type string `yaml:"type" env:"TYPE"`
	// file 后端目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// file 后端格式: jsonl | text
	Format string `yaml:"format" env:"FORMAT"`
	// 每个会话保留的条数，0 表示不限
	MaxEntries int `yaml:"max_entries" env:"MAX_ENTRIES"`
	// redis 后端过期时间
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 是否启用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 不使用 TLS 连接 collector
	Insecure bool `yaml:"insecure" env:"INSECURE"`
}

// legacyKeys 是命令行版本使用的变量名，仅在新变量未设置时生效
var legacyKeys = []struct {
	env   string
	apply func(c *Config, v string)
}{
	{"MURF_API_KEY", func(c *Config, v string) { setIfEmpty(&c.Synthesis.APIKey, v) }},
	{"DEEPGRAM_API_KEY", func(c *Config, v string) { setIfEmpty(&c.Recognition.APIKey, v) }},
	{"PERPLEXITY_API_KEY", func(c *Config, v string) {
		if c.Reasoning.Provider == "perplexity" {
			setIfEmpty(&c.Reasoning.APIKey, v)
		}
	}},
	{"GEMINI_API_KEY", func(c *Config, v string) {
		if c.Reasoning.Provider == "gemini" {
			setIfEmpty(&c.Reasoning.APIKey, v)
		}
	}},
	{"OPENAI_API_KEY", func(c *Config, v string) {
		if c.Reasoning.Provider == "openai" {
			setIfEmpty(&c.Reasoning.APIKey, v)
		}
	}},
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	dotEnv     []string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: "VOICEAGENT"}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithDotEnv 读取 .env 文件作为环境变量的补充。文件不存在时忽略。
// 进程环境变量优先；.env 中的值不会写入进程环境。
func (l *Loader) WithDotEnv(paths ...string) *Loader {
	l.dotEnv = append(l.dotEnv, paths...)
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 依次叠加 默认值 → YAML 文件 → 环境变量 → 旧版变量，然后运行验证器
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	env, err := readDotEnv(l.dotEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to read dotenv: %w", err)
	}
	if err := l.loadFile(cfg); err != nil {
		return nil, err
	}
	if err := env.overlay(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("invalid environment variable %w", err)
	}
	for _, k := range legacyKeys {
		if v := env.get(k.env); v != "" {
			k.apply(cfg, v)
		}
	}

	for _, validate := range l.validators {
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// loadFile 未指定或文件不存在时保留默认值
func (l *Loader) loadFile(cfg *Config) error {
	if l.configPath == "" {
		return nil
	}
	data, err := os.ReadFile(l.configPath)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", l.configPath, err)
	}
	return nil
}

// LoadFromEnv 不读文件，只用默认值与环境变量
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

var (
	reasoningProviders = []string{"perplexity", "openai", "gemini"}
	transcriptTypes    = []string{"memory", "file", "redis"}
	logLevels          = []string{"debug", "info", "warn", "error"}
	sampleRates        = []int{8000, 16000, 22050, 24000, 44100, 48000}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, "metrics port must differ from HTTP port")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "server.tls_cert_file and server.tls_key_file must be set together")
	}

	// 验证对话配置
	if c.Agent.HistoryCap <= 0 {
		errs = append(errs, "agent.history_cap must be positive")
	}

	// 验证推理配置
	if !slices.Contains(reasoningProviders, c.Reasoning.Provider) {
		errs = append(errs, fmt.Sprintf("unknown reasoning provider %q", c.Reasoning.Provider))
	}
	if c.Reasoning.Temperature < 0 || c.Reasoning.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if c.Reasoning.Timeout <= 0 {
		errs = append(errs, "reasoning.timeout must be positive")
	}

	// 验证合成配置
	if c.Synthesis.MaxChars <= 0 {
		errs = append(errs, "synthesis.max_chars must be positive")
	}
	if !slices.Contains(sampleRates, c.Synthesis.SampleRate) {
		errs = append(errs, fmt.Sprintf("unsupported sample rate %d", c.Synthesis.SampleRate))
	}
	if c.Synthesis.Timeout <= 0 {
		errs = append(errs, "synthesis.timeout must be positive")
	}
	if c.Synthesis.MaxRetries < 0 {
		errs = append(errs, "synthesis.max_retries must not be negative")
	}
	if c.Synthesis.RetryDelay < 0 {
		errs = append(errs, "synthesis.retry_delay must not be negative")
	}

	// 验证会话记录配置
	if c.TranscriptLog.Enabled && !slices.Contains(transcriptTypes, c.TranscriptLog.Type) {
		errs = append(errs, fmt.Sprintf("unknown transcript_log.type %q", c.TranscriptLog.Type))
	}

	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReasoningConfigured 报告是否配置了推理服务
func (c *Config) ReasoningConfigured() bool { return c.Reasoning.APIKey != "" }

// SynthesisConfigured 报告是否配置了语音合成
func (c *Config) SynthesisConfigured() bool { return c.Synthesis.APIKey != "" }

// RecognitionConfigured 报告是否配置了语音识别
func (c *Config) RecognitionConfigured() bool { return c.Recognition.APIKey != "" }
