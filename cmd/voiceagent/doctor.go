package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/voiceagent/agent/persistence"
	"github.com/BaSui01/voiceagent/api/handlers"
	"github.com/BaSui01/voiceagent/config"
)

// probeResult 一个上游组件的探测结果
type probeResult struct {
	Component string
	State     string
	Latency   time.Duration
	Detail    string
	Err       error
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	timeout := fs.Duration("timeout", 15*time.Second, "Timeout per probe")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := initLogger(config.LogConfig{Level: "error", Format: "console", OutputPaths: []string{"stderr"}})
	defer func() { _ = logger.Sync() }()

	results := diagnose(context.Background(), cfg, *timeout, logger)
	if !printProbes(os.Stdout, results) {
		return 1
	}
	return 0
}

// diagnose 并发探测各上游。未配置的组件只报告状态，不算失败。
func diagnose(ctx context.Context, cfg *config.Config, timeout time.Duration, logger *zap.Logger) []probeResult {
	probes := []func(context.Context) probeResult{
		func(ctx context.Context) probeResult { return probeReasoning(ctx, cfg, logger) },
		func(ctx context.Context) probeResult { return probeSynthesis(ctx, cfg) },
		func(context.Context) probeResult { return probeRecognition(cfg) },
		func(ctx context.Context) probeResult { return probeTranscriptLog(ctx, cfg) },
	}

	results := make([]probeResult, len(probes))
	var g errgroup.Group
	for i, probe := range probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			start := time.Now()
			results[i] = probe(pctx)
			if results[i].Latency == 0 && results[i].State == handlers.ComponentConfigured {
				results[i].Latency = time.Since(start)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func probeReasoning(ctx context.Context, cfg *config.Config, logger *zap.Logger) probeResult {
	r := probeResult{Component: "reasoning"}
	provider := newReasoningProvider(cfg.Reasoning, logger)
	if provider == nil {
		r.State = handlers.ComponentFallbackOnly
		r.Detail = "no api key, replies come from the fallback responder"
		return r
	}
	r.State = handlers.ComponentConfigured
	status, err := provider.HealthCheck(ctx)
	if status != nil {
		r.Latency = status.Latency
	}
	r.Detail = provider.Name()
	r.Err = err
	return r
}

func probeSynthesis(ctx context.Context, cfg *config.Config) probeResult {
	r := probeResult{Component: "synthesis"}
	tts := newTTSProvider(cfg)
	if tts == nil {
		r.State = handlers.ComponentDisabled
		return r
	}
	r.State = handlers.ComponentConfigured
	voices, err := tts.ListVoices(ctx)
	if err != nil {
		r.Err = err
		return r
	}
	r.Detail = fmt.Sprintf("%s, %d voices", tts.Name(), len(voices))
	return r
}

// probeRecognition 只检查配置：识别接口没有免费的探测请求
func probeRecognition(cfg *config.Config) probeResult {
	r := probeResult{Component: "recognition", State: handlers.ComponentDisabled}
	if stt := newSTTProvider(cfg); stt != nil {
		r.State = handlers.ComponentConfigured
		r.Detail = stt.Name() + " (not probed)"
	}
	return r
}

func probeTranscriptLog(ctx context.Context, cfg *config.Config) probeResult {
	r := probeResult{Component: "transcript_log", State: handlers.ComponentDisabled}
	if !cfg.TranscriptLog.Enabled {
		return r
	}
	r.State = handlers.ComponentConfigured
	r.Detail = cfg.TranscriptLog.Type

	store, err := persistence.NewTranscriptStore(transcriptStoreConfig(cfg))
	if err != nil {
		r.Err = err
		return r
	}
	defer func() { _ = store.Close() }()
	r.Err = store.Ping(ctx)
	return r
}

// printProbes 输出结果表，返回是否全部通过
func printProbes(out io.Writer, results []probeResult) bool {
	ok := true
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMPONENT\tSTATE\tLATENCY\tDETAIL")
	for _, r := range results {
		status, detail := r.State, r.Detail
		if r.Err != nil {
			ok = false
			status = "error"
			detail = r.Err.Error()
		}
		latency := "-"
		if r.Latency > 0 {
			latency = r.Latency.Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Component, status, latency, detail)
	}
	_ = tw.Flush()
	return ok
}
