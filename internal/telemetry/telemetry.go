package telemetry

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceagent/agent/voice"
	"github.com/BaSui01/voiceagent/config"
)

// turnLatencyBuckets 覆盖回退回复（毫秒级）到推理加合成（十秒级）的区间，单位秒
var turnLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30}

// Providers 持有已安装的 SDK provider。
// 遥测关闭时为空壳，ForceFlush 与 Shutdown 均为 no-op。
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Init 按配置创建 OTLP gRPC 导出器并注册为全局 provider。
// cfg.Enabled 为 false 时不建立任何连接，全局 provider 保持 noop。
func Init(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = spans.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	p, err := Install(cfg, spans, sdkmetric.NewPeriodicReader(metrics))
	if err != nil {
		return nil, err
	}

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
	)
	return p, nil
}

// Install 以给定的导出器与 reader 构建 provider 并注册为全局。
// 一个轮次的子 span 跟随父 span 的采样决定，要么整轮保留要么整轮丢弃。
func Install(cfg config.TelemetryConfig, spans sdktrace.SpanExporter, reader sdkmetric.Reader) (*Providers, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(buildVersion()),
	))
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spans),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
		sdkmetric.WithView(turnLatencyView()),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Providers{tp: tp, mp: mp}, nil
}

// turnLatencyView 把轮次耗时直方图的默认桶替换为语音场景的桶
func turnLatencyView() sdkmetric.View {
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: voice.TurnDurationName},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
			Boundaries: turnLatencyBuckets,
		}},
	)
}

// ForceFlush 导出缓冲中的 span 与指标
func (p *Providers) ForceFlush(ctx context.Context) error {
	return p.each(ctx, "flush",
		func(ctx context.Context) error { return p.tp.ForceFlush(ctx) },
		func(ctx context.Context) error { return p.mp.ForceFlush(ctx) },
	)
}

// Shutdown 先关 tracer 再关 meter，二者的错误合并返回
func (p *Providers) Shutdown(ctx context.Context) error {
	return p.each(ctx, "shutdown",
		func(ctx context.Context) error { return p.tp.Shutdown(ctx) },
		func(ctx context.Context) error { return p.mp.Shutdown(ctx) },
	)
}

func (p *Providers) each(ctx context.Context, op string, tracer, meter func(context.Context) error) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := tracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s tracer provider: %w", op, err))
		}
	}
	if p.mp != nil {
		if err := meter(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s meter provider: %w", op, err))
		}
	}
	return errors.Join(errs...)
}

// buildVersion 取主模块版本，本地构建为 "dev"
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
