// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP、对话轮次、
推理、语音合成与识别、连接数几个维度。

# 概述

Collector 通过 promauto.With(reg) 注册到调用方提供的 Registry，
测试可使用独立的 prometheus.NewRegistry 互不干扰。Collector 实现了
voice.Metrics，直接注入对话流水线。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 轮次指标：按结果（reasoning、fallback、*_no_audio 等）计数与耗时。
  - 推理指标：按来源与状态计数，尝试次数分布。
  - 合成指标：按状态计数，字符数与耗时（跳过的请求不计字符）。
  - 连接指标：活跃会话数与 WebSocket 连接数 Gauge。
*/
package metrics
