package voice

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceagent/types"
)

const instrumentationName = "github.com/BaSui01/voiceagent/agent/voice"

// OTel 仪表名
const (
	TurnCounterName  = "voiceagent.turn.total"
	TurnDurationName = "voiceagent.turn.duration"
)

// TurnState 轮次流水线的阶段
type TurnState string

const (
	StateReceived     TurnState = "received"
	StateNormalized   TurnState = "normalized"
	StateReasoning    TurnState = "reasoning"
	StateFallback     TurnState = "fallback"
	StateSynthesizing TurnState = "synthesizing"
	StateComplete     TurnState = "complete"
)

// TurnResult 传输层为一个已完成轮次下发的内容
type TurnResult struct {
	SessionID     string          `json:"session_id"`
	Seq           int             `json:"seq"`
	UserText      string          `json:"user_text"`
	AssistantText string          `json:"assistant_text"`
	Source        ReplySource     `json:"source"`
	Intent        string          `json:"intent,omitempty"`
	Attempts      int             `json:"attempts"`
	Synthesis     SynthesisResult `json:"synthesis"`
	Exit          bool            `json:"exit"`
	Timestamp     time.Time       `json:"timestamp"`
	States        []TurnState     `json:"states"`
}

// TranscriptSink 持久化已完成的轮次。错误只记录日志，不影响轮次。
type TranscriptSink interface {
	AppendTurn(ctx context.Context, sessionID string, turn Turn) error
}

// Orchestrator 为会话执行轮次流水线
type Orchestrator struct {
	reasoning *ReasoningDispatcher
	synthesis *SynthesisDispatcher
	sink      TranscriptSink
	metrics   Metrics
	logger    *zap.Logger
	tracer    trace.Tracer
	turns     metric.Int64Counter
	latency   metric.Float64Histogram
}

// OrchestratorOption Orchestrator 配置项
type OrchestratorOption func(*Orchestrator)

// WithTranscriptSink 每个完成的轮次都追加到 sink
func WithTranscriptSink(sink TranscriptSink) OrchestratorOption {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithMetrics 记录每轮度量
func WithMetrics(m Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator 把各调度器组装为流水线
func NewOrchestrator(reasoning *ReasoningDispatcher, synthesis *SynthesisDispatcher, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		reasoning: reasoning,
		synthesis: synthesis,
		metrics:   NopMetrics{},
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With(zap.String("component", "orchestrator"))

	meter := otel.Meter(instrumentationName)
	counter, err := meter.Int64Counter(TurnCounterName,
		metric.WithDescription("Completed conversation turns"),
		metric.WithUnit("{turn}"))
	if err != nil {
		o.logger.Warn("turn counter unavailable", zap.Error(err))
	} else {
		o.turns = counter
	}
	hist, err := meter.Float64Histogram(TurnDurationName,
		metric.WithDescription("Wall time from received to complete"),
		metric.WithUnit("s"))
	if err != nil {
		o.logger.Warn("turn histogram unavailable", zap.Error(err))
	} else {
		o.latency = hist
	}
	return o
}

// Reasoning 返回推理调度器
func (o *Orchestrator) Reasoning() *ReasoningDispatcher { return o.reasoning }

// Synthesis 返回合成调度器
func (o *Orchestrator) Synthesis() *SynthesisDispatcher { return o.synthesis }

// RunTurn 处理一条发言。空输入返回 ErrEmptyInput 且不创建轮次；
// 已结束的会话返回 ErrSessionClosed。其余上游失败都在内部消化，
// 非 nil 结果总带有助手文本。包含结束词时，轮次完成后结束会话。
func (o *Orchestrator) RunTurn(ctx context.Context, s *Session, raw string) (*TurnResult, error) {
	start := time.Now()
	states := []TurnState{StateReceived}

	text, err := Normalize(raw)
	if err != nil {
		o.metrics.RecordTurn("empty_input", time.Since(start))
		return nil, err
	}
	states = append(states, StateNormalized)

	ctx, span := o.tracer.Start(ctx, "voice.turn",
		trace.WithAttributes(attribute.String("session.id", s.ID())))
	defer span.End()

	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	turn, err := s.AppendUser(text)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		o.metrics.RecordTurn("session_closed", time.Since(start))
		return nil, err
	}
	ctx = types.WithTurnSeq(types.WithSessionID(ctx, s.ID()), turn.Seq)
	span.SetAttributes(attribute.Int("turn.seq", turn.Seq))

	reply := o.reasoning.Reply(ctx, s.HistoryBefore(turn.Seq), text)
	if reply.Source == SourceReasoning {
		states = append(states, StateReasoning)
	} else {
		states = append(states, StateFallback)
	}
	span.SetAttributes(
		attribute.String("reply.source", string(reply.Source)),
		attribute.Int("reply.attempts", reply.Attempts),
	)
	if reply.Err != nil {
		span.RecordError(reply.Err)
	}

	finalized, err := s.AppendAssistant(turn.Seq, reply.Text, reply.Source)
	if err != nil {
		// 只有绕过轮次锁时才会走到这里
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	states = append(states, StateSynthesizing)
	synth := o.synthesis.Synthesize(ctx, finalized.AssistantText)
	if err := s.AttachSynthesis(turn.Seq, synth); err != nil {
		o.logger.Warn("attach synthesis failed", zap.Int("seq", turn.Seq), zap.Error(err))
	}
	span.SetAttributes(
		attribute.Bool("synthesis.success", synth.Success),
		attribute.Int("synthesis.chars", synth.CharCount),
	)
	finalized.Synthesis = &synth

	exit := s.IsExit(text)
	if exit {
		s.Terminate()
	}
	states = append(states, StateComplete)

	if o.sink != nil {
		if err := o.sink.AppendTurn(ctx, s.ID(), finalized); err != nil {
			o.logger.Warn("transcript append failed",
				zap.String("session_id", s.ID()),
				zap.Int("seq", turn.Seq),
				zap.Error(err))
		}
	}

	outcome := string(reply.Source)
	if !synth.Success {
		outcome += "_no_audio"
	}
	elapsed := time.Since(start)
	o.metrics.RecordTurn(outcome, elapsed)
	outcomeAttr := metric.WithAttributes(attribute.String("outcome", outcome))
	if o.turns != nil {
		o.turns.Add(ctx, 1, outcomeAttr)
	}
	if o.latency != nil {
		o.latency.Record(ctx, elapsed.Seconds(), outcomeAttr)
	}
	o.logger.Debug("turn complete",
		zap.String("session_id", s.ID()),
		zap.Int("seq", turn.Seq),
		zap.String("source", string(reply.Source)),
		zap.Bool("audio", synth.Success),
		zap.Bool("exit", exit),
	)

	return &TurnResult{
		SessionID:     s.ID(),
		Seq:           turn.Seq,
		UserText:      text,
		AssistantText: finalized.AssistantText,
		Source:        reply.Source,
		Intent:        reply.Intent,
		Attempts:      reply.Attempts,
		Synthesis:     synth,
		Exit:          exit,
		Timestamp:     turn.Timestamp,
		States:        states,
	}, nil
}
