package voice

import "time"

// Metrics 接收流水线度量，internal/metrics.Collector 以 Prometheus 实现
type Metrics interface {
	RecordTurn(outcome string, duration time.Duration)
	RecordReasoning(source, status string, attempts int, duration time.Duration)
	RecordSynthesis(status string, chars int, duration time.Duration)
}

// NopMetrics 丢弃所有度量
type NopMetrics struct{}

func (NopMetrics) RecordTurn(string, time.Duration)                   {}
func (NopMetrics) RecordReasoning(string, string, int, time.Duration) {}
func (NopMetrics) RecordSynthesis(string, int, time.Duration)         {}
