// =============================================================================
// voiceagent 主入口
// =============================================================================
// 语音对话服务入口点，包含 HTTP/WebSocket 服务、命令行对话与运维命令
//
// 使用方法:
//
//	voiceagent serve                       # 启动服务
//	voiceagent serve --config config.yaml  # 指定配置文件
//	voiceagent chat                        # 终端内对话（本地流水线）
//	voiceagent chat --connect ws://localhost:8080/ws
//	voiceagent voices                      # 列出可用音色
//	voiceagent doctor                      # 探测已配置的上游服务
//	voiceagent health                      # 查询运行中服务的健康状态
//	voiceagent version                     # 显示版本信息
// =============================================================================

// @title voiceagent API
// @version 1.0.0
// @description Voice conversation service: reasoning with canned fallback, speech synthesis and recognition.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/voiceagent/api/handlers"
	"github.com/BaSui01/voiceagent/config"
)

// 构建时通过 -ldflags 注入
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// command 一个子命令
type command struct {
	name  string
	usage string
	run   func(args []string) int
}

var commands = []command{
	{"serve", "Start the HTTP and WebSocket server", runServe},
	{"chat", "Talk to the agent from the terminal", runChat},
	{"voices", "List the voices of the synthesis provider", runVoices},
	{"doctor", "Probe the configured reasoning, synthesis and transcript backends", runDoctor},
	{"health", "Query a running server's health", runHealthCheck},
	{"version", "Show version information", func([]string) int { printVersion(os.Stdout); return 0 }},
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage(os.Stdout)
		return
	}
	i := slices.IndexFunc(commands, func(c command) bool { return c.name == name })
	if i < 0 {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage(os.Stderr)
		os.Exit(1)
	}
	os.Exit(commands[i].run(os.Args[2:]))
}

// loadConfig 加载并验证配置。.env 位于工作目录时自动读取。
func loadConfig(configPath string) (*config.Config, error) {
	loader := config.NewLoader().WithDotEnv(".env")
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// parseConfigFlag 解析只带 --config 的子命令参数
func parseConfigFlag(name string, args []string) (*config.Config, bool) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, false
	}
	return cfg, true
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) int {
	cfg, ok := parseConfigFlag("serve", args)
	if !ok {
		return 1
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting voiceagent",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
		zap.String("persona", cfg.Agent.PersonaName),
		zap.String("reasoning_provider", cfg.Reasoning.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Error("Failed to build server", zap.Error(err))
		return 1
	}
	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start server", zap.Error(err))
		return 1
	}

	// 等待关闭信号或服务异常退出
	if err := server.Wait(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("voiceagent stopped")
	return 0
}

// =============================================================================
// 🎙️ voices 命令
// =============================================================================

func runVoices(args []string) int {
	cfg, ok := parseConfigFlag("voices", args)
	if !ok {
		return 1
	}

	tts := newTTSProvider(cfg)
	if tts == nil {
		fmt.Fprintln(os.Stderr, "Speech synthesis is not configured (set VOICEAGENT_SYNTHESIS_API_KEY or MURF_API_KEY)")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Synthesis.Timeout)
	defer cancel()

	voices, err := tts.ListVoices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list voices: %v\n", err)
		return 1
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLANGUAGE\tGENDER")
	for _, v := range voices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Name, v.Language, v.Gender)
	}
	_ = tw.Flush()
	return 0
}

// =============================================================================
// 🏥 health 命令
// =============================================================================

func runHealthCheck(args []string) int {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	_ = fs.Parse(args)

	if err := queryHealth(&http.Client{Timeout: *timeout}, *addr, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	return 0
}

// queryHealth 请求 /health 并逐行打印组件状态
func queryHealth(client *http.Client, addr string, out io.Writer) error {
	resp, err := client.Get(addr + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	var status handlers.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}

	fmt.Fprintln(out, status.Status)
	if status.Sessions != nil {
		fmt.Fprintf(out, "  sessions: %d\n", *status.Sessions)
	}
	for _, name := range slices.Sorted(maps.Keys(status.Components)) {
		fmt.Fprintf(out, "  %s: %s\n", name, status.Components[name])
	}
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "voiceagent %s\n", Version)
	fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
}

func printUsage(out io.Writer) {
	fmt.Fprint(out, "voiceagent - voice conversation agent\n\nUsage:\n  voiceagent <command> [options]\n\nCommands:\n")
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range commands {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.usage)
	}
	fmt.Fprintf(tw, "  help\tShow this help message\n")
	_ = tw.Flush()

	fmt.Fprint(out, `
Options for 'serve', 'chat', 'voices' and 'doctor':
  --config <path>   Path to configuration file (YAML)

Options for 'chat':
  --connect <url>   Talk to a running server over WebSocket instead of a local pipeline
  --session <id>    Session id to use (default: generated)
  --player <cmd>    Audio player command (default: "`+defaultPlayer+`")
  --autoplay        Play replies as they arrive (default: true); /play replays a blocked reply

Examples:
  voiceagent serve --config /etc/voiceagent/config.yaml
  voiceagent chat --player "mpg123 -q"
  voiceagent chat --connect ws://localhost:8080/ws
  voiceagent doctor
  voiceagent health --addr http://localhost:8080
`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// initLogger 按配置构建 zap logger。console 格式用于终端，json 用于采集。
func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	console := cfg.Format == "console"
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Sampling = nil
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if console {
		zc.Development = true
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zc.OutputPaths = []string{"stdout"}
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	zc.DisableCaller = !cfg.EnableCaller
	zc.DisableStacktrace = !cfg.EnableStacktrace

	var opts []zap.Option
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	logger, err := zc.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
