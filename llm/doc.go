// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供推理服务（对话生成）的统一接入层。

# 概述

上层的推理调度器只依赖 [Provider] 接口与统一的请求/响应模型，
不感知具体服务商的鉴权方式、协议与错误语义。

# 核心类型

  - [Provider]：推理服务接口，提供 Completion / HealthCheck / Name
  - [ChatRequest] / [ChatResponse]：聊天请求与响应
  - [Message] / [Role]：按时间顺序排列的 (role, text) 对话历史
  - [Error]：带 Retryable 标记的统一错误，调度器据此决定是否立即重试
  - [HealthStatus]：健康检查状态

# 相关子包

- llm/providers：错误映射与 OpenAI 兼容结构；子包 openaicompat、gemini 为具体实现。
- llm/retry：重试策略（默认单次立即重试）。
- llm/speech：语音合成（Murf）与语音识别（Deepgram）。
*/
package llm
