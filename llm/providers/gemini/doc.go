// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 gemini 通过 Gemini REST API（generativelanguage.googleapis.com）的
generateContent 接口提供推理服务，使用 x-goog-api-key 请求头认证，
默认模型 gemini-2.0-flash。

Gemini 要求 user / model 轮流出现，相邻的同角色消息会被合并；
提示词被安全策略拦截时返回 llm.ErrForbidden。
*/
package gemini
