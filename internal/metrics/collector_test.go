package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceagent/agent/voice"
)

var _ voice.Metrics = (*Collector)(nil)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewCollector("test", reg, zap.NewNop()), reg
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector_RegistersOnGivenRegistry(t *testing.T) {
	c, reg := newTestCollector(t)
	c.RecordTurn("reasoning", time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_turns_total")
	assert.Contains(t, names, "test_turn_duration_seconds")
}

func TestNewCollector_TwiceOnSameRegistryPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector("dup", reg, nil)
	assert.Panics(t, func() { NewCollector("dup", reg, nil) })
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordHTTPRequest("GET", "/health", 200, 10*time.Millisecond, 0, 64)
	c.RecordHTTPRequest("GET", "/health", 204, 10*time.Millisecond, 0, 0)
	c.RecordHTTPRequest("POST", "/api/v1/conversation", 503, time.Second, 128, 64)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("GET", "/health", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/v1/conversation", "5xx")))
}

func TestCollector_VoiceMetrics(t *testing.T) {
	c, _ := newTestCollector(t)

	c.RecordTurn("fallback_no_audio", 2*time.Second)
	c.RecordReasoning("reasoning", "ok", 2, time.Second)
	c.RecordReasoning("fallback", "not_configured", 0, 0)
	c.RecordSynthesis("ok", 42, time.Second)
	c.RecordSynthesis("skipped", 5000, 0)
	c.RecordRecognition("empty")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("fallback_no_audio")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reasoningRequests.WithLabelValues("reasoning", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reasoningRequests.WithLabelValues("fallback", "not_configured")))
	assert.Equal(t, 42.0, testutil.ToFloat64(c.synthesisCharacters), "skipped synthesis costs nothing")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.synthesisRequests.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.recognitionRequests.WithLabelValues("empty")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.reasoningRequests))
}

func TestCollector_Gauges(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SetActiveSessions(3)
	c.WebSocketOpened()
	c.WebSocketOpened()
	c.WebSocketClosed()

	assert.Equal(t, 3.0, testutil.ToFloat64(c.activeSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.wsConnections))
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{500, "5xx"},
		{100, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusClass(tt.code))
	}
}
