package voice

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/voiceagent/llm"
	"github.com/BaSui01/voiceagent/llm/speech"
)

// scriptedProvider 每次尝试按脚本返回下一步
type scriptedProvider struct {
	mu       sync.Mutex
	steps    []func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	calls    atomic.Int32
	requests []*llm.ChatRequest
}

func (p *scriptedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	n := int(p.calls.Add(1)) - 1
	p.mu.Lock()
	p.requests = append(p.requests, req)
	step := p.steps[len(p.steps)-1]
	if n < len(p.steps) {
		step = p.steps[n]
	}
	p.mu.Unlock()
	return step(ctx, req)
}

func (p *scriptedProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) lastRequest() *llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func reply(text string) func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: llm.Message{Role: llm.RoleAssistant, Content: text}}}}, nil
	}
}

func fail(err error) func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) { return nil, err }
}

// hang 阻塞直到单次尝试超时
func hang(ctx context.Context, _ *llm.ChatRequest) (*llm.ChatResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// echoProvider 延迟后回复 "re: <最后一条用户消息>"
type echoProvider struct {
	delay time.Duration
}

func (p echoProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	last := req.Messages[len(req.Messages)-1].Content
	return reply("re: " + last)(ctx, req)
}

func (echoProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (echoProvider) Name() string { return "echo" }

// fakeTTS 记录请求并按调用返回音频地址。failFirst 为 0 时 err 每次都返回，
// 否则只有前 failFirst 次返回 err。
type fakeTTS struct {
	mu        sync.Mutex
	texts     []string
	err       error
	failFirst int
}

func (f *fakeTTS) Synthesize(_ context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, req.Text)
	if f.err != nil && (f.failFirst == 0 || len(f.texts) <= f.failFirst) {
		return nil, f.err
	}
	return &speech.TTSResponse{Provider: "fake", AudioURL: "https://audio.test/" + req.Voice, Format: "mp3"}, nil
}

func (f *fakeTTS) ListVoices(context.Context) ([]speech.Voice, error) { return nil, nil }

func (f *fakeTTS) Name() string { return "fake-tts" }

func (f *fakeTTS) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

// memorySink 收集追加的轮次
type memorySink struct {
	mu    sync.Mutex
	turns []Turn
}

func (m *memorySink) AppendTurn(_ context.Context, _ string, t Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return nil
}
