package main

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/voiceagent/api/handlers"
	"github.com/BaSui01/voiceagent/internal/metrics"
	"github.com/BaSui01/voiceagent/types"
)

// Middleware 包装一个 http.Handler
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串联，第一个位于最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// =============================================================================
// 响应记录
// =============================================================================

// statusRecorder 记录状态码与响应字节数。
// WebSocket 升级经 Hijack 透传，升级成功记为 101。
type statusRecorder struct {
	http.ResponseWriter
	status   int
	written  int64
	upgraded bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.upgraded {
		return
	}
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.written += int64(n)
	return n, err
}

func (s *statusRecorder) Flush() {
	_ = http.NewResponseController(s.ResponseWriter).Flush()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, brw, err := http.NewResponseController(s.ResponseWriter).Hijack()
	if err == nil {
		s.status = http.StatusSwitchingProtocols
		s.upgraded = true
	}
	return conn, brw, err
}

// =============================================================================
// 恢复与日志
// =============================================================================

// Recovery 将 handler 中的 panic 转为 INTERNAL_ERROR 响应
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("panic recovered",
						zap.Any("panic", v),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
					)
					handlers.WriteErrorMessage(w, http.StatusInternalServerError, types.ErrInternalError, "internal server error", logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger 每个请求一条访问日志。
// 会话路由额外带上 session_id，WebSocket 连接在断开时才记录。
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			fields := make([]zap.Field, 0, 8)
			fields = append(fields,
				zap.String("method", r.Method),
				zap.String("route", normalizePath(r.URL.Path)),
				zap.Int("status", rec.status),
				zap.Int64("bytes", rec.written),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if id, ok := types.RequestID(r.Context()); ok {
				fields = append(fields, zap.String("request_id", id))
			}
			if sid := sessionFromPath(r.URL.Path); sid != "" {
				fields = append(fields, zap.String("session_id", sid))
			}

			switch {
			case rec.status >= http.StatusInternalServerError:
				logger.Warn("request failed", fields...)
			case rec.upgraded:
				logger.Info("websocket closed", fields...)
			default:
				logger.Info("request", fields...)
			}
		})
	}
}

// =============================================================================
// 指标与追踪
// =============================================================================

// MetricsMiddleware 记录请求耗时、状态码与收发字节数
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			collector.RecordHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				rec.status,
				time.Since(start),
				max(r.ContentLength, 0),
				rec.written,
			)
		})
	}
}

// OTelTracing 为每个请求开启 server span，并延续上游传入的 trace。
// handler 内开启的 voice.turn span 是它的子 span。
func OTelTracing() Middleware {
	tracer := otel.Tracer("voiceagent/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			route := normalizePath(r.URL.Path)

			attrs := []attribute.KeyValue{
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRoute(route),
			}
			if sid := sessionFromPath(r.URL.Path); sid != "" {
				attrs = append(attrs, attribute.String("voice.session_id", sid))
			}
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
		})
	}
}

// =============================================================================
// 路由归一化
// =============================================================================

// staticRoutes 原样作为指标标签
var staticRoutes = map[string]struct{}{
	"/health": {}, "/healthz": {}, "/ready": {}, "/version": {}, "/metrics": {}, "/ws": {},
	"/api/v1/conversation": {}, "/api/v1/usage": {},
	"/api/v1/tts": {}, "/api/v1/voices": {}, "/api/v1/voice": {},
}

const conversationPrefix = "/api/v1/conversation/"

// idSegment 匹配 UUID、长十六进制串或纯数字
var idSegment = regexp.MustCompile(`^[0-9a-fA-F]{8,}(-[0-9a-fA-F]{4,}){0,4}$|^[0-9]+$`)

// sessionFromPath 返回会话路由中的会话 id
func sessionFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, conversationPrefix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}

// normalizePath 把动态路径段替换为 ":id"，避免会话 id 成为标签值
//
//	/api/v1/conversation/kitchen-speaker -> /api/v1/conversation/:id
func normalizePath(path string) string {
	if _, ok := staticRoutes[path]; ok {
		return path
	}
	// 会话 id 由客户端指定，格式不可预期
	if sessionFromPath(path) != "" {
		return conversationPrefix + ":id"
	}

	segments := strings.Split(path, "/")
	changed := false
	for i, seg := range segments {
		if seg != "" && idSegment.MatchString(seg) {
			segments[i] = ":id"
			changed = true
		}
	}
	if !changed {
		return path
	}
	return strings.Join(segments, "/")
}

// =============================================================================
// 限流
// =============================================================================

const (
	limiterSweepInterval = time.Minute
	limiterIdleTTL       = 3 * time.Minute
)

// clientLimiters 按客户端 IP 维护令牌桶
type clientLimiters struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

func (c *clientLimiters) allow(ip string, now time.Time) bool {
	c.mu.Lock()
	l, ok := c.clients[ip]
	if !ok {
		l = &clientLimiter{Limiter: rate.NewLimiter(c.rps, c.burst)}
		c.clients[ip] = l
	}
	l.lastSeen = now
	c.mu.Unlock()
	return l.AllowN(now, 1)
}

func (c *clientLimiters) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ip, l := range c.clients {
		if now.Sub(l.lastSeen) > limiterIdleTTL {
			delete(c.clients, ip)
		}
	}
}

// RateLimiter 基于 IP 的请求限流，超限返回 429 RATE_LIMITED。
// ctx 结束后停止清理闲置客户端。
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	limiters := &clientLimiters{rps: rate.Limit(rps), burst: burst, clients: make(map[string]*clientLimiter)}
	go func() {
		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				limiters.sweep(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !limiters.allow(ip, time.Now()) {
				logger.Debug("rate limited", zap.String("ip", ip), zap.String("path", r.URL.Path))
				handlers.WriteErrorMessage(w, http.StatusTooManyRequests, types.ErrRateLimited, "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// CORS 与安全头
// =============================================================================

// corsPolicy 只放行配置中列出的浏览器来源。
// 未配置任何来源时不输出 CORS 头，跨域预检直接拒绝。
type corsPolicy struct {
	origins map[string]struct{}
}

func (p corsPolicy) allowed(origin string) bool {
	_, ok := p.origins[origin]
	return ok
}

func (p corsPolicy) writeHeaders(h http.Header, origin string) {
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	h.Set("Access-Control-Max-Age", "86400")
	h.Add("Vary", "Origin")
}

// CORS 跨域中间件
func CORS(allowedOrigins []string) Middleware {
	policy := corsPolicy{origins: make(map[string]struct{}, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		policy.origins[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			preflight := r.Method == http.MethodOptions

			switch {
			case origin == "":
			case policy.allowed(origin):
				policy.writeHeaders(w.Header(), origin)
			case len(policy.origins) == 0 && preflight:
				w.WriteHeader(http.StatusForbidden)
				return
			}

			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID 透传客户端的 X-Request-ID，缺省时生成 "req-<uuid>"
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = "req-" + uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
		})
	}
}

// securityHeaders 写入每个响应。
// connect-src 放行同源 WebSocket，浏览器页面才能连上 /ws。
var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"X-XSS-Protection", "1; mode=block"},
	{"Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:; media-src 'self' https:"},
}

// SecurityHeaders 添加通用安全响应头
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range securityHeaders {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}
