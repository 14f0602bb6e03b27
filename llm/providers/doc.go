// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 providers 是各上游适配共用的底层：错误分类与 OpenAI 兼容线上格式。

具体实现位于子包 openaicompat（Perplexity、OpenAI）与 gemini；
llm/speech 下的 Murf 与 Deepgram 也复用这里的错误映射。

  - MapHTTPError：非 2xx 状态映射为带 Retryable 标记的 llm.Error
  - MapTransportError：无响应的失败（超时、连接重置、取消）
  - ReadErrorMessage：兼容各服务商错误体形状的消息提取
*/
package providers
