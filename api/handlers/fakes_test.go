package handlers

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/voiceagent/agent/voice"
	"github.com/BaSui01/voiceagent/llm"
	"github.com/BaSui01/voiceagent/llm/speech"
)

// echoProvider 回复 "re: <最后一条用户消息>"
type echoProvider struct{}

func (echoProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	last := req.Messages[len(req.Messages)-1].Content
	return &llm.ChatResponse{Choices: []llm.ChatChoice{{
		Message: llm.Message{Role: llm.RoleAssistant, Content: "re: " + last},
	}}}, nil
}

func (echoProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (echoProvider) Name() string { return "echo" }

// slowProvider 每次调用计数并等待 delay；首次调用时关闭 started
type slowProvider struct {
	delay   time.Duration
	calls   atomic.Int32
	started chan struct{}
	once    sync.Once
}

func newSlowProvider(delay time.Duration) *slowProvider {
	return &slowProvider{delay: delay, started: make(chan struct{})}
}

func (p *slowProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	p.calls.Add(1)
	p.once.Do(func() { close(p.started) })
	time.Sleep(p.delay)
	return echoProvider{}.Completion(ctx, req)
}

func (p *slowProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *slowProvider) Name() string { return "slow" }

// fakeTTS 返回固定音频地址，或 err
type fakeTTS struct {
	err      error
	voices   []speech.Voice
	voiceErr error
}

func (f *fakeTTS) Synthesize(_ context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &speech.TTSResponse{Provider: "fake", AudioURL: "https://audio.test/" + req.Voice + ".mp3", Format: "mp3"}, nil
}

func (f *fakeTTS) ListVoices(context.Context) ([]speech.Voice, error) {
	return f.voices, f.voiceErr
}

func (f *fakeTTS) Name() string { return "fake-tts" }

// fakeSTT 记录收到的音频并返回固定文本
type fakeSTT struct {
	mu          sync.Mutex
	text        string
	err         error
	audio       []byte
	contentType string
}

func (f *fakeSTT) Transcribe(_ context.Context, req *speech.STTRequest) (*speech.STTResponse, error) {
	data, _ := io.ReadAll(req.Audio)
	f.mu.Lock()
	f.audio = data
	f.contentType = req.ContentType
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &speech.STTResponse{Provider: "fake-stt", Text: f.text, Confidence: 0.9, CreatedAt: time.Now()}, nil
}

func (f *fakeSTT) Name() string { return "fake-stt" }

func (f *fakeSTT) SupportedFormats() []string { return []string{"wav"} }

// recordingRecorder 记录识别状态
type recordingRecorder struct {
	mu       sync.Mutex
	statuses []string
}

func (r *recordingRecorder) RecordRecognition(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recordingRecorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}

// countingObserver 统计连接数
type countingObserver struct {
	mu     sync.Mutex
	opened int
	closed int
}

func (o *countingObserver) WebSocketOpened() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened++
}

func (o *countingObserver) WebSocketClosed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
}

func (o *countingObserver) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened, o.closed
}

// newPipeline 组装注册表与合成调度器；provider/tts 为 nil 表示未配置
func newPipeline(provider llm.Provider, tts speech.TTSProvider) (*voice.Registry, *voice.SynthesisDispatcher) {
	reasoning := voice.NewReasoningDispatcher(provider, voice.NewFallbackResponder("Luna"), voice.ReasoningConfig{}, nil, nil)
	synthesis := voice.NewSynthesisDispatcher(tts, voice.SynthesisConfig{VoiceID: "en-US-terrell", MaxChars: 120}, nil, nil)
	orch := voice.NewOrchestrator(reasoning, synthesis)
	return voice.NewRegistry(orch, voice.SessionOptions{}, nil), synthesis
}
