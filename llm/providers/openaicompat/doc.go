// Package openaicompat 适配 OpenAI chat completions 格式的推理服务。
// 零值 Config 指向 Perplexity（https://api.perplexity.ai，模型 sonar）；
// 设置 BaseURL 与 DefaultModel 即可接入 OpenAI 或其他兼容服务。
//
//	p := openaicompat.New(openaicompat.Config{APIKey: key}, logger)
//	resp, err := p.Completion(ctx, &llm.ChatRequest{Messages: msgs})
package openaicompat
