// Package telemetry 安装 OpenTelemetry 的 TracerProvider 与 MeterProvider。
//
// 启用后 span 与指标经 OTLP gRPC 导出，voice.turn span 及轮次计数、耗时
// 直方图随之上报；关闭时全局 provider 保持 noop，不连接任何外部服务。
package telemetry
