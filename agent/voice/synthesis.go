package voice

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/voiceagent/llm"
	"github.com/BaSui01/voiceagent/llm/retry"
	"github.com/BaSui01/voiceagent/llm/speech"
	"go.uber.org/zap"
)

// SynthesisResult.ErrorDetail 的固定取值
const (
	DetailNotConfigured = "synthesis not configured"
	DetailTooLong       = "text too long"
	DetailEmptyText     = "text is empty"
	DetailTimeout       = "synthesis timed out"
)

// DefaultMaxSynthesisChars 单次合成的字符上限
const DefaultMaxSynthesisChars = 3000

// SynthesisResult 回复的合成结果。CharCount 为提交文本的字符数，
// 无论成功与否都会设置；Attempts 为实际发出的请求次数。
type SynthesisResult struct {
	Success     bool          `json:"success"`
	AudioURL    string        `json:"audio_url,omitempty"`
	AudioData   []byte        `json:"-"`
	Format      string        `json:"format,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	ErrorDetail string        `json:"error,omitempty"`
	CharCount   int           `json:"char_count"`
	Attempts    int           `json:"attempts,omitempty"`
}

// SynthesisConfig SynthesisDispatcher 的配置
type SynthesisConfig struct {
	VoiceID    string
	Format     string
	SampleRate int
	MaxChars   int
	// 单次请求超时
	Timeout time.Duration
	// 瞬时错误 (超时、连接失败、429、5xx) 的重试次数，0 不重试
	MaxRetries int
	// 首次重试前的等待，之后逐次翻倍，最多 4 倍，带抖动
	RetryDelay time.Duration
}

// Usage 进程级合成用量。Requests 与 Characters 按实际请求计，含重试。
type Usage struct {
	Requests   int64 `json:"requests"`
	Characters int64 `json:"characters"`
	Failures   int64 `json:"failures"`
}

// SynthesisDispatcher 把回复文本转换为音频。从不返回错误，失败记录在结果中。
// provider 为 nil 表示未配置。
type SynthesisDispatcher struct {
	provider speech.TTSProvider
	retryer  retry.Retryer
	cfg      SynthesisConfig
	metrics  Metrics
	logger   *zap.Logger

	requests   atomic.Int64
	characters atomic.Int64
	failures   atomic.Int64
}

// NewSynthesisDispatcher 创建合成调度器，provider 可为 nil
func NewSynthesisDispatcher(provider speech.TTSProvider, cfg SynthesisConfig, metrics Metrics, logger *zap.Logger) *SynthesisDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxSynthesisChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.MaxRetries = max(cfg.MaxRetries, 0)
	logger = logger.With(zap.String("component", "synthesis"))
	return &SynthesisDispatcher{
		provider: provider,
		retryer: retry.NewBackoffRetryer(&retry.RetryPolicy{
			MaxRetries:   cfg.MaxRetries,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     4 * cfg.RetryDelay,
			Multiplier:   2,
			Jitter:       true,
			Retryable:    llm.IsRetryable,
		}, logger),
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// Configured 是否配置了合成服务
func (d *SynthesisDispatcher) Configured() bool { return d.provider != nil }

// Provider 返回合成服务，未配置时为 nil
func (d *SynthesisDispatcher) Provider() speech.TTSProvider { return d.provider }

// Synthesize 用配置的音色合成 text。超长文本直接拒绝，不发请求，也不分段。
// 瞬时错误按退避策略重试，每次尝试都是完整的单个请求。
func (d *SynthesisDispatcher) Synthesize(ctx context.Context, text string) SynthesisResult {
	res := SynthesisResult{CharCount: utf8.RuneCountInString(text)}

	switch {
	case !d.Configured():
		res.ErrorDetail = DetailNotConfigured
	case res.CharCount == 0:
		res.ErrorDetail = DetailEmptyText
	case res.CharCount > d.cfg.MaxChars:
		res.ErrorDetail = DetailTooLong
	}
	if res.ErrorDetail != "" {
		d.metrics.RecordSynthesis("skipped", res.CharCount, 0)
		return res
	}

	req := &speech.TTSRequest{
		Text:       text,
		Voice:      d.cfg.VoiceID,
		Format:     d.cfg.Format,
		SampleRate: d.cfg.SampleRate,
	}
	start := time.Now()
	resp, err := retry.DoWithResult(ctx, d.retryer, func(ctx context.Context, attempt int) (*speech.TTSResponse, error) {
		res.Attempts = attempt
		d.requests.Add(1)
		d.characters.Add(int64(res.CharCount))

		actx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
		return d.provider.Synthesize(actx, req)
	})
	elapsed := time.Since(start)

	if err != nil {
		d.failures.Add(1)
		res.ErrorDetail = synthesisDetail(err)
		d.logger.Warn("synthesis failed",
			zap.String("provider", d.provider.Name()),
			zap.Int("chars", res.CharCount),
			zap.Int("attempts", res.Attempts),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		d.metrics.RecordSynthesis("error", res.CharCount, elapsed)
		return res
	}

	res.Success = true
	res.AudioURL = resp.AudioURL
	res.AudioData = resp.AudioData
	res.Format = resp.Format
	res.Duration = resp.Duration
	d.metrics.RecordSynthesis("ok", res.CharCount, elapsed)
	return res
}

// Usage 用量计数快照
func (d *SynthesisDispatcher) Usage() Usage {
	return Usage{
		Requests:   d.requests.Load(),
		Characters: d.characters.Load(),
		Failures:   d.failures.Load(),
	}
}

func synthesisDetail(err error) string {
	if llm.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return DetailTimeout
	}
	return err.Error()
}
