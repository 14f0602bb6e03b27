package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceagent/agent/persistence"
	"github.com/BaSui01/voiceagent/agent/voice"
	"github.com/BaSui01/voiceagent/config"
	"github.com/BaSui01/voiceagent/llm"
	"github.com/BaSui01/voiceagent/llm/providers/gemini"
	"github.com/BaSui01/voiceagent/llm/providers/openaicompat"
	"github.com/BaSui01/voiceagent/llm/speech"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	openAIModel   = "gpt-4o-mini"
)

// pipeline 是 serve 与本地 chat 共用的对话组件
type pipeline struct {
	reasoning llm.Provider
	tts       speech.TTSProvider
	stt       speech.STTProvider
	fallback  *voice.FallbackResponder
	synthesis *voice.SynthesisDispatcher
	registry  *voice.Registry
	store     persistence.TranscriptStore
}

// buildPipeline 按配置装配 推理 → 合成 → 编排 → 会话注册表。
// 未提供 API Key 的上游视为未配置，对应环节降级而不是报错。
func buildPipeline(cfg *config.Config, metrics voice.Metrics, logger *zap.Logger) (*pipeline, error) {
	p := &pipeline{
		reasoning: newReasoningProvider(cfg.Reasoning, logger),
		tts:       newTTSProvider(cfg),
		stt:       newSTTProvider(cfg),
	}

	p.fallback = voice.NewFallbackResponder(cfg.Agent.PersonaName)
	reasoning := voice.NewReasoningDispatcher(p.reasoning, p.fallback, voice.ReasoningConfig{
		SystemPrompt:  cfg.Agent.SystemPrompt,
		Model:         cfg.Reasoning.Model,
		MaxTokens:     cfg.Reasoning.MaxTokens,
		Temperature:   float32(cfg.Reasoning.Temperature),
		Timeout:       cfg.Reasoning.Timeout,
		MinReplyChars: cfg.Reasoning.MinReplyChars,
	}, metrics, logger)

	p.synthesis = voice.NewSynthesisDispatcher(p.tts, voice.SynthesisConfig{
		VoiceID:    cfg.Synthesis.VoiceID,
		Format:     cfg.Synthesis.Format,
		SampleRate: cfg.Synthesis.SampleRate,
		MaxChars:   cfg.Synthesis.MaxChars,
		Timeout:    cfg.Synthesis.Timeout,
		MaxRetries: cfg.Synthesis.MaxRetries,
		RetryDelay: cfg.Synthesis.RetryDelay,
	}, metrics, logger)

	opts := []voice.OrchestratorOption{
		voice.WithMetrics(metrics),
		voice.WithLogger(logger),
	}
	if cfg.TranscriptLog.Enabled {
		store, err := persistence.NewTranscriptStore(transcriptStoreConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("transcript store: %w", err)
		}
		p.store = store
		opts = append(opts, voice.WithTranscriptSink(store))
	}

	orch := voice.NewOrchestrator(reasoning, p.synthesis, opts...)
	p.registry = voice.NewRegistry(orch, voice.SessionOptions{
		HistoryCap: cfg.Agent.HistoryCap,
		ExitTokens: cfg.Agent.ExitTokens,
	}, logger)

	logger.Info("pipeline ready",
		zap.String("persona", reasoning.Fallback().Persona()),
		zap.Bool("reasoning", reasoning.Configured()),
		zap.Bool("synthesis", p.synthesis.Configured()),
		zap.Bool("recognition", p.stt != nil),
		zap.Bool("transcript_log", p.store != nil),
	)
	return p, nil
}

// Close 释放会话记录后端
func (p *pipeline) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}

func newReasoningProvider(cfg config.ReasoningConfig, logger *zap.Logger) llm.Provider {
	if cfg.APIKey == "" {
		return nil
	}
	switch cfg.Provider {
	case "gemini":
		return gemini.NewGeminiProvider(gemini.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}, logger)
	case "openai":
		baseURL, model := cfg.BaseURL, cfg.Model
		if baseURL == "" {
			baseURL = openAIBaseURL
		}
		if model == "" {
			model = openAIModel
		}
		return openaicompat.New(openaicompat.Config{
			ProviderName: "openai",
			APIKey:       cfg.APIKey,
			BaseURL:      baseURL,
			DefaultModel: model,
			Timeout:      cfg.Timeout,
		}, logger)
	default:
		return openaicompat.New(openaicompat.Config{
			ProviderName: "perplexity",
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		}, logger)
	}
}

func newTTSProvider(cfg *config.Config) speech.TTSProvider {
	if !cfg.SynthesisConfigured() {
		return nil
	}
	return speech.NewMurfProvider(speech.MurfConfig{
		APIKey:     cfg.Synthesis.APIKey,
		BaseURL:    cfg.Synthesis.BaseURL,
		VoiceID:    cfg.Synthesis.VoiceID,
		Format:     cfg.Synthesis.Format,
		SampleRate: cfg.Synthesis.SampleRate,
		Timeout:    cfg.Synthesis.Timeout,
	})
}

func newSTTProvider(cfg *config.Config) speech.STTProvider {
	if !cfg.RecognitionConfigured() {
		return nil
	}
	return speech.NewDeepgramProvider(speech.DeepgramConfig{
		APIKey:  cfg.Recognition.APIKey,
		BaseURL: cfg.Recognition.BaseURL,
		Model:   cfg.Recognition.Model,
		Timeout: cfg.Recognition.Timeout,
	})
}

func transcriptStoreConfig(cfg *config.Config) persistence.StoreConfig {
	return persistence.StoreConfig{
		Type:       persistence.StoreType(cfg.TranscriptLog.Type),
		BaseDir:    cfg.TranscriptLog.BaseDir,
		Format:     persistence.FileFormat(cfg.TranscriptLog.Format),
		MaxEntries: cfg.TranscriptLog.MaxEntries,
		Redis: persistence.RedisStoreConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.TranscriptLog.TTL,
			TLS:       cfg.Redis.TLS,
		},
	}
}
