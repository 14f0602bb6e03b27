// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 voiceagent 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 agent、llm、api 等上层模块
提供统一的错误码与上下文传播工具，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - INPUT_EMPTY / SESSION_CLOSED / NO_SUCH_TURN — 会话与输入错误
  - UPSTREAM_REASONING / UPSTREAM_SYNTHESIS — 上游服务错误（均有降级路径）

# 主要能力

  - Context 传播：WithRequestID / WithSessionID / WithTurnSeq
  - 错误工具链：AsError / GetErrorCode / IsRetryable，errors.Is 按错误码匹配
*/
package types
