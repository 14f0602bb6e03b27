package voice

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/voiceagent/llm"
	"github.com/BaSui01/voiceagent/llm/retry"
	"github.com/BaSui01/voiceagent/types"
	"go.uber.org/zap"
)

// ReplySource 回复来源
type ReplySource string

const (
	SourceReasoning ReplySource = "reasoning"
	SourceFallback  ReplySource = "fallback"
)

// Reply ReasoningDispatcher.Reply 的结果。Err 为使用兜底的原因，仅供参考。
type Reply struct {
	Text     string      `json:"text"`
	Source   ReplySource `json:"source"`
	Intent   string      `json:"intent,omitempty"`
	Attempts int         `json:"attempts"`
	Err      error       `json:"-"`
}

// DefaultSystemPrompt 每个请求附带的人设前言
const DefaultSystemPrompt = "You are %s, a friendly voice assistant. Answer in one to three short, " +
	"natural spoken sentences. Do not use markdown, lists or emojis."

// ReasoningConfig ReasoningDispatcher 的不可变配置
type ReasoningConfig struct {
	SystemPrompt  string
	Model         string
	MaxTokens     int
	Temperature   float32
	Timeout       time.Duration // 单次尝试
	MinReplyChars int
}

// ErrEmptyReply 推理回复过短，不可用
var ErrEmptyReply = types.NewError(types.ErrUpstreamReasoning, "reasoning reply empty or too short")

// ReasoningDispatcher 向推理服务请求回复，任何失败都回落到预设回复。
// provider 为 nil 表示未配置。
type ReasoningDispatcher struct {
	provider llm.Provider
	fallback *FallbackResponder
	retryer  retry.Retryer
	cfg      ReasoningConfig
	metrics  Metrics
	logger   *zap.Logger
}

// NewReasoningDispatcher 组合 provider (可为 nil) 与兜底回复
func NewReasoningDispatcher(provider llm.Provider, fallback *FallbackResponder, cfg ReasoningConfig, metrics Metrics, logger *zap.Logger) *ReasoningDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if fallback == nil {
		fallback = NewFallbackResponder("")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MinReplyChars <= 0 {
		cfg.MinReplyChars = 1
	}
	logger = logger.With(zap.String("component", "reasoning"))
	return &ReasoningDispatcher{
		provider: provider,
		fallback: fallback,
		retryer:  retry.NewBackoffRetryer(retry.SingleImmediateRetry(isTransient), logger),
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Configured 是否配置了推理服务
func (d *ReasoningDispatcher) Configured() bool { return d.provider != nil }

// Fallback 返回推理不可用时使用的兜底回复器
func (d *ReasoningDispatcher) Fallback() *FallbackResponder { return d.fallback }

// Reply 从不失败：服务错误、超时或回复不可用时返回设置了 Err 的兜底回复
func (d *ReasoningDispatcher) Reply(ctx context.Context, history iter.Seq[Turn], userText string) Reply {
	if !d.Configured() {
		text, in := d.fallback.Match(userText, history)
		d.metrics.RecordReasoning(string(SourceFallback), "not_configured", 0, 0)
		return Reply{Text: text, Source: SourceFallback, Intent: in}
	}

	req := d.buildRequest(history, userText)
	start := time.Now()
	attempts := 0
	resp, err := retry.DoWithResult(ctx, d.retryer, func(ctx context.Context, attempt int) (*llm.ChatResponse, error) {
		attempts = attempt
		actx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
		return d.provider.Completion(actx, req)
	})
	elapsed := time.Since(start)

	if err == nil {
		text := strings.TrimSpace(resp.FirstContent())
		if utf8.RuneCountInString(text) >= d.cfg.MinReplyChars {
			d.metrics.RecordReasoning(string(SourceReasoning), "ok", attempts, elapsed)
			return Reply{Text: text, Source: SourceReasoning, Attempts: attempts}
		}
		err = ErrEmptyReply
	}

	status := "error"
	if isTimeout(err) {
		status = "timeout"
	}
	d.logger.Warn("reasoning failed, using fallback",
		zap.String("provider", d.provider.Name()),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
	d.metrics.RecordReasoning(string(SourceFallback), status, attempts, elapsed)

	text, in := d.fallback.Match(userText, history)
	return Reply{
		Text:     text,
		Source:   SourceFallback,
		Intent:   in,
		Attempts: attempts,
		Err:      types.NewError(types.ErrUpstreamReasoning, "reasoning unavailable").WithCause(err),
	}
}

func (d *ReasoningDispatcher) buildRequest(history iter.Seq[Turn], userText string) *llm.ChatRequest {
	msgs := []llm.Message{{Role: llm.RoleSystem, Content: d.systemPrompt()}}
	for t := range history {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.UserText},
			llm.Message{Role: llm.RoleAssistant, Content: t.AssistantText},
		)
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: userText})
	return &llm.ChatRequest{
		Model:       d.cfg.Model,
		Messages:    msgs,
		MaxTokens:   d.cfg.MaxTokens,
		Temperature: d.cfg.Temperature,
	}
}

func (d *ReasoningDispatcher) systemPrompt() string {
	if d.cfg.SystemPrompt != "" {
		return d.cfg.SystemPrompt
	}
	return fmt.Sprintf(DefaultSystemPrompt, d.fallback.Persona())
}

// isTransient 可重试的服务错误，以及先于调用方截止时间触发的单次超时，
// 允许立即重试一次
func isTransient(err error) bool {
	if llm.IsRetryable(err) {
		return true
	}
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func isTimeout(err error) bool {
	return llm.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded)
}
