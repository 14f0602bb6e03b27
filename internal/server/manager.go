package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceagent/config"
	"github.com/BaSui01/voiceagent/internal/tlsutil"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// Config 服务器配置
type Config struct {
	Addr string

	ReadTimeout time.Duration
	// 需覆盖一次推理加一次合成
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	MaxHeaderBytes int

	// 优雅关闭等待进行中请求的时限
	ShutdownTimeout time.Duration

	// 均非空时启用 TLS
	CertFile string
	KeyFile  string
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    90 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
	}
}

// ConfigFromServer 把应用配置转换为指定端口的服务器配置，零值保留默认
func ConfigFromServer(port int, cfg config.ServerConfig) Config {
	c := DefaultConfig()
	c.Addr = fmt.Sprintf(":%d", port)
	for _, o := range []struct {
		dst *time.Duration
		src time.Duration
	}{
		{&c.ReadTimeout, cfg.ReadTimeout},
		{&c.WriteTimeout, cfg.WriteTimeout},
		{&c.ShutdownTimeout, cfg.ShutdownTimeout},
	} {
		if o.src > 0 {
			*o.dst = o.src
		}
	}
	c.CertFile, c.KeyFile = cfg.TLSCertFile, cfg.TLSKeyFile
	return c
}

func (c Config) tlsEnabled() bool { return c.CertFile != "" && c.KeyFile != "" }

// Manager 管理一个 HTTP 服务器的启动与优雅关闭。
//
// http.Server.Shutdown 不跟踪已被 Hijack 的连接（WebSocket），
// 因此所有请求的 context 派生自 Manager 的基础 context，
// 关闭时在普通请求排空之后取消它，WebSocket 读写循环随之退出。
type Manager struct {
	name   string
	config Config
	server *http.Server
	logger *zap.Logger

	base       context.Context
	cancelBase context.CancelFunc
	errCh      chan error

	active   atomic.Int64
	upgraded atomic.Int64

	mu       sync.RWMutex
	listener net.Listener
	closed   bool
}

// NewManager 创建服务器管理器，name 用于日志区分 (api / metrics)
func NewManager(name string, handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		name:       name,
		config:     cfg,
		logger:     logger.With(zap.String("component", "http_server"), zap.String("server", name)),
		base:       base,
		cancelBase: cancel,
		errCh:      make(chan error, 1),
	}
	m.server = &http.Server{
		Addr:           cfg.Addr,
		Handler:        handler,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return m.base },
		ConnState:      m.trackConn,
	}
	if cfg.tlsEnabled() {
		m.server.TLSConfig = tlsutil.ServerTLSConfig()
	}
	return m
}

// trackConn 统计存活连接；Hijack 后的连接不再有后续状态回调
func (m *Manager) trackConn(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		m.active.Add(1)
	case http.StateClosed:
		m.active.Add(-1)
	case http.StateHijacked:
		m.active.Add(-1)
		m.upgraded.Add(1)
	}
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Start 监听并在后台提供服务（非阻塞）
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("%s server is closed", m.name)
	}
	if m.listener != nil {
		return fmt.Errorf("%s server already started", m.name)
	}

	ln, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = ln
	m.logger.Info("starting HTTP server",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", m.config.tlsEnabled()),
	)

	go m.serve(ln)
	return nil
}

func (m *Manager) serve(ln net.Listener) {
	var err error
	if m.config.tlsEnabled() {
		err = m.server.ServeTLS(ln, m.config.CertFile, m.config.KeyFile)
	} else {
		err = m.server.Serve(ln)
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	m.logger.Error("HTTP server failed", zap.Error(err))
	select {
	case m.errCh <- err:
	default:
	}
}

// Shutdown 先等待普通请求在 ShutdownTimeout 内完成，再取消基础 context
// 以结束仍在线的 WebSocket 连接。重复调用无副作用。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("shutting down HTTP server",
		zap.Int64("open_conns", m.active.Load()),
		zap.Int64("upgraded_conns", m.upgraded.Load()),
	)

	ctx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()
	err := m.server.Shutdown(ctx)
	m.cancelBase()
	m.listener = nil

	if err != nil {
		m.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Wait 阻塞到 ctx 结束或服务器异常退出，然后优雅关闭。
// 异常退出时返回该错误。
func (m *Manager) Wait(ctx context.Context) error {
	var serveErr error
	select {
	case <-ctx.Done():
		m.logger.Info("shutdown requested")
	case serveErr = <-m.errCh:
		m.logger.Error("server exited unexpectedly", zap.Error(serveErr))
	}
	return errors.Join(serveErr, m.Shutdown(context.WithoutCancel(ctx)))
}

// Errors 返回后台 Serve 的异常
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// =============================================================================
// 🔧 辅助方法
// =============================================================================

// Addr 返回实际监听地址；未启动时返回配置地址
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

// IsRunning 是否已启动且未关闭
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listener != nil && !m.closed
}

// Upgraded 返回累计升级为 WebSocket 的连接数
func (m *Manager) Upgraded() int64 {
	return m.upgraded.Load()
}
