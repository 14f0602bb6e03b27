package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceagent/api/handlers"
	"github.com/BaSui01/voiceagent/config"
	"github.com/BaSui01/voiceagent/internal/metrics"
	"github.com/BaSui01/voiceagent/internal/server"
	"github.com/BaSui01/voiceagent/internal/telemetry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 voiceagent 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 对话流水线
	pipeline *pipeline

	// Handlers
	healthHandler       *handlers.HealthHandler
	conversationHandler *handlers.ConversationHandler
	speechHandler       *handlers.SpeechHandler
	wsHandler           *handlers.WSHandler

	// 指标
	registry         *prometheus.Registry
	metricsCollector *metrics.Collector
	telemetry        *telemetry.Providers

	// 后台任务（会话清理、限流器清理、活跃会话统计）
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
}

// NewServer 按配置装配所有组件，不监听端口
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	// 遥测必须先于流水线初始化，编排器在构造时获取全局 tracer/meter
	tp, err := telemetry.Init(context.Background(), cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		tp = &telemetry.Providers{}
	}
	s.telemetry = tp

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metricsCollector = metrics.NewCollector("voiceagent", s.registry, logger)

	p, err := buildPipeline(cfg, s.metricsCollector, logger)
	if err != nil {
		return nil, err
	}
	s.pipeline = p

	s.initHandlers()
	return s, nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initHandlers() {
	p := s.pipeline

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.SetComponent("reasoning", componentState(p.reasoning != nil, handlers.ComponentFallbackOnly))
	s.healthHandler.SetComponent("synthesis", componentState(p.tts != nil, handlers.ComponentDisabled))
	s.healthHandler.SetComponent("recognition", componentState(p.stt != nil, handlers.ComponentDisabled))
	s.healthHandler.SetSessionCounter(p.registry.Len)
	if p.store != nil {
		s.healthHandler.SetComponent("transcript_log", s.cfg.TranscriptLog.Type)
		s.healthHandler.RegisterCheck(handlers.NewFuncCheck("transcript_log", p.store.Ping))
	}

	s.conversationHandler = handlers.NewConversationHandler(p.registry, p.synthesis, s.logger)
	s.speechHandler = handlers.NewSpeechHandler(p.synthesis, p.stt, p.registry, handlers.SpeechHandlerConfig{
		MaxUploadBytes: s.cfg.Server.MaxUploadBytes,
		Language:       s.cfg.Recognition.Language,
		Recorder:       s.metricsCollector,
	}, s.logger)
	s.wsHandler = handlers.NewWSHandler(p.registry, handlers.WSConfig{
		OriginPatterns:      wsOriginPatterns(s.cfg.Server.CORSAllowedOrigins),
		Persona:             s.cfg.Agent.PersonaName,
		ReasoningConfigured: p.reasoning != nil,
		SynthesisConfigured: p.tts != nil,
		Observer:            s.metricsCollector,
	}, s.logger)

	s.logger.Info("Handlers initialized")
}

func componentState(configured bool, otherwise string) string {
	if configured {
		return handlers.ComponentConfigured
	}
	return otherwise
}

// wsOriginPatterns 把 CORS 来源（含 scheme）转换为 WebSocket 的 host 模式
func wsOriginPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			patterns = append(patterns, o)
			continue
		}
		patterns = append(patterns, u.Host)
	}
	return patterns
}

// =============================================================================
// 🌐 路由与中间件
// =============================================================================

// Handler 构建 API 路由及中间件链。ctx 控制限流器的后台清理。
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 对话
	mux.HandleFunc("POST /api/v1/conversation", s.conversationHandler.HandleConversation)
	mux.HandleFunc("GET /api/v1/conversation/{id}", s.conversationHandler.HandleHistory)
	mux.HandleFunc("DELETE /api/v1/conversation/{id}", s.conversationHandler.HandleClose)
	mux.HandleFunc("GET /api/v1/usage", s.conversationHandler.HandleUsage)

	// 语音
	mux.HandleFunc("POST /api/v1/tts", s.speechHandler.HandleTTS)
	mux.HandleFunc("GET /api/v1/voices", s.speechHandler.HandleVoices)
	mux.HandleFunc("POST /api/v1/voice", s.speechHandler.HandleVoice)

	// 实时对话
	mux.Handle("GET /ws", s.wsHandler)

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.metricsCollector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	return Chain(mux, middlewares...)
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动后台任务、HTTP 服务器与 Metrics 服务器
func (s *Server) Start(ctx context.Context) error {
	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.startBackground(bg)

	s.httpManager = server.NewManager("api", s.Handler(bg),
		server.ConfigFromServer(s.cfg.Server.HTTPPort, s.cfg.Server), s.logger)
	if err := s.httpManager.Start(); err != nil {
		s.stopBackground()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))

	if s.cfg.Server.MetricsPort > 0 {
		if err := s.startMetricsServer(); err != nil {
			_ = s.httpManager.Shutdown(context.Background())
			s.stopBackground()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

func (s *Server) startBackground(ctx context.Context) {
	registry := s.pipeline.registry

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		registry.RunSweeper(ctx, s.cfg.Server.SweepInterval, s.cfg.Server.SessionTTL)
	}()
	go func() {
		defer s.wg.Done()
		interval := s.cfg.Server.SweepInterval
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			s.metricsCollector.SetActiveSessions(registry.Len())
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *Server) stopBackground() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog:          zap.NewStdLog(s.logger),
		EnableOpenMetrics: true,
	}))

	cfg := server.ConfigFromServer(s.cfg.Server.MetricsPort, s.cfg.Server)
	s.metricsManager = server.NewManager("metrics", mux, cfg, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// Addr 返回 API 服务器的实际监听地址
func (s *Server) Addr() string {
	if s.httpManager == nil {
		return ""
	}
	return s.httpManager.Addr()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞到 ctx 结束或任一服务器异常退出，然后优雅关闭
func (s *Server) Wait(ctx context.Context) error {
	var serveErr error
	if s.httpManager != nil {
		serveErr = s.httpManager.Wait(ctx)
	}
	shutdownErr := s.Shutdown(context.WithoutCancel(ctx))
	return errors.Join(serveErr, shutdownErr)
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.shutdownOnce.Do(func() {
		s.logger.Info("Starting graceful shutdown...")

		// 1. 关闭 HTTP 服务器，进行中的轮次在此完成
		if s.httpManager != nil {
			if err := s.httpManager.Shutdown(ctx); err != nil {
				s.logger.Error("HTTP server shutdown error", zap.Error(err))
				errs = append(errs, err)
			}
		}

		// 2. 关闭 Metrics 服务器
		if s.metricsManager != nil {
			if err := s.metricsManager.Shutdown(ctx); err != nil {
				s.logger.Error("Metrics server shutdown error", zap.Error(err))
				errs = append(errs, err)
			}
		}

		// 3. 停止后台任务
		s.stopBackground()

		// 4. 关闭会话记录
		if err := s.pipeline.Close(); err != nil {
			s.logger.Error("Transcript store close error", zap.Error(err))
			errs = append(errs, err)
		}

		// 5. 刷新遥测
		tctx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := s.telemetry.Shutdown(tctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
			errs = append(errs, err)
		}

		s.logger.Info("Graceful shutdown completed")
	})
	return errors.Join(errs...)
}
