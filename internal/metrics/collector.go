// Package metrics 暴露 voiceagent 的 Prometheus 指标。
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	sizeBuckets      = prometheus.ExponentialBuckets(100, 10, 8)
	turnBuckets      = []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}
	reasoningBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40}
	synthesisBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30}
)

// Collector 实现 voice.Metrics，并记录 HTTP 层指标
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	turnsTotal   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec

	reasoningRequests *prometheus.CounterVec
	reasoningAttempts prometheus.Histogram
	reasoningDuration *prometheus.HistogramVec

	synthesisRequests   *prometheus.CounterVec
	synthesisCharacters prometheus.Counter
	synthesisDuration   prometheus.Histogram
	recognitionRequests *prometheus.CounterVec

	activeSessions prometheus.Gauge
	wsConnections  prometheus.Gauge
}

// builder 给所有指标加上同一个 namespace
type builder struct {
	f  promauto.Factory
	ns string
}

func (b builder) counters(name, help string, labels ...string) *prometheus.CounterVec {
	return b.f.NewCounterVec(prometheus.CounterOpts{Namespace: b.ns, Name: name, Help: help}, labels)
}

func (b builder) histograms(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return b.f.NewHistogramVec(prometheus.HistogramOpts{Namespace: b.ns, Name: name, Help: help, Buckets: buckets}, labels)
}

func (b builder) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return b.f.NewHistogram(prometheus.HistogramOpts{Namespace: b.ns, Name: name, Help: help, Buckets: buckets})
}

func (b builder) gauge(name, help string) prometheus.Gauge {
	return b.f.NewGauge(prometheus.GaugeOpts{Namespace: b.ns, Name: name, Help: help})
}

// NewCollector 在 reg 上注册全部指标，reg 为 nil 时使用默认 Registry。
// 同一 Registry 上重复创建会 panic。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	b := builder{f: promauto.With(reg), ns: namespace}

	c := &Collector{
		httpRequestsTotal:   b.counters("http_requests_total", "HTTP requests by route and status class", "method", "path", "status"),
		httpRequestDuration: b.histograms("http_request_duration_seconds", "HTTP request duration", prometheus.DefBuckets, "method", "path"),
		httpRequestSize:     b.histograms("http_request_size_bytes", "HTTP request body size", sizeBuckets, "method", "path"),
		httpResponseSize:    b.histograms("http_response_size_bytes", "HTTP response body size", sizeBuckets, "method", "path"),

		turnsTotal:   b.counters("turns_total", "Conversation turns by outcome", "outcome"),
		turnDuration: b.histograms("turn_duration_seconds", "End-to-end turn duration", turnBuckets, "outcome"),

		reasoningRequests: b.counters("reasoning_requests_total", "Reasoning replies by source and status", "source", "status"),
		reasoningAttempts: b.histogram("reasoning_attempts", "Provider attempts per reasoning reply", []float64{0, 1, 2}),
		reasoningDuration: b.histograms("reasoning_duration_seconds", "Reasoning duration, retries included", reasoningBuckets, "status"),

		synthesisRequests:   b.counters("synthesis_requests_total", "Synthesis requests by status", "status"),
		synthesisCharacters: b.f.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "synthesis_characters_total", Help: "Characters submitted for synthesis"}),
		synthesisDuration:   b.histogram("synthesis_duration_seconds", "Synthesis call duration", synthesisBuckets),
		recognitionRequests: b.counters("recognition_requests_total", "Speech recognition requests by status", "status"),

		activeSessions: b.gauge("active_sessions", "Sessions currently registered"),
		wsConnections:  b.gauge("websocket_connections", "Open WebSocket connections"),
	}

	if logger != nil {
		logger.Debug("metrics collector registered", zap.String("namespace", namespace))
	}
	return c
}

// RecordHTTPRequest path 须为归一化后的路由，避免标签基数失控
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

func (c *Collector) RecordTurn(outcome string, duration time.Duration) {
	c.turnsTotal.WithLabelValues(outcome).Inc()
	c.turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordReasoning attempts 为 0 表示没有调用服务商，此时不记耗时
func (c *Collector) RecordReasoning(source, status string, attempts int, duration time.Duration) {
	c.reasoningRequests.WithLabelValues(source, status).Inc()
	c.reasoningAttempts.Observe(float64(attempts))
	if attempts > 0 {
		c.reasoningDuration.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// RecordSynthesis status 为 skipped 时没有网络请求，不计字符与耗时
func (c *Collector) RecordSynthesis(status string, chars int, duration time.Duration) {
	c.synthesisRequests.WithLabelValues(status).Inc()
	if status != "skipped" {
		c.synthesisCharacters.Add(float64(chars))
		c.synthesisDuration.Observe(duration.Seconds())
	}
}

func (c *Collector) RecordRecognition(status string) {
	c.recognitionRequests.WithLabelValues(status).Inc()
}

func (c *Collector) SetActiveSessions(n int) { c.activeSessions.Set(float64(n)) }

func (c *Collector) WebSocketOpened() { c.wsConnections.Inc() }

func (c *Collector) WebSocketClosed() { c.wsConnections.Dec() }

// statusClass 200 → "2xx"；1xx 及非法值归为 unknown
func statusClass(code int) string {
	if code < 200 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
