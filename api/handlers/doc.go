// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 voiceagent HTTP 与 WebSocket 接口的请求处理器实现。

# 概述

所有入口共享同一个 voice.Registry：同一会话的轮次串行执行，不同会话并行。
推理失败不会以错误形式返回，回复改由兜底应答产生；合成失败时轮次照常
完成，只是不带音频。

# 核心类型

  - ConversationHandler — 文本对话、会话历史、关闭会话与用量统计
  - SpeechHandler       — 语音合成、声音列表、语音输入 (识别后执行一轮)
  - WSHandler           — WebSocket 双工通道 (status / message_response / error)
  - HealthHandler       — 服务健康检查（/health, /healthz, /ready, /version）
  - Response            — 统一 JSON 响应结构（success + data + error + timestamp + request_id）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制，超限 413 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 会话在轮次进行中被关闭时，结果被丢弃而不下发
*/
package handlers
