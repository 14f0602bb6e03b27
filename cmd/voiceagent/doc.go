// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 voiceagent 服务端与终端对话程序入口。

# 概述

cmd/voiceagent 装配完整的语音对话流水线：推理服务（perplexity /
openai / gemini，失败时回退到内置回复）、Murf 语音合成、Deepgram
语音识别以及会话记录后端，并通过 HTTP 与 WebSocket 对外提供服务。

# 核心类型

  - Server       — 主服务器，管理 API、Metrics 双端口、后台任务及优雅关闭
  - pipeline     — serve 与 chat 共用的组件装配结果
  - chatSession  — 终端对话循环，驱动播放协调器
  - Middleware   — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、chat、voices、health、version
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    Metrics、RequestLogger、CORS、RateLimiter（基于 IP）
  - 响应包装器支持 Hijack，WebSocket 升级可穿过整条中间件链
  - chat 可使用本地流水线，或以 --connect 连接运行中的服务
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
