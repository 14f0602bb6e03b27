// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package voice 实现语音助手的对话轮次流水线。

# 概述

一次用户发言按固定流程处理：

	received → normalized → (reasoning | fallback) → synthesizing → complete

每条非空发言恰好产生一个带助手文本的已完成 [Turn]。推理失败由
[FallbackResponder] 兜底；合成失败则省略音频，轮次照常完成。

# 核心组件

  - [Normalize]：去除首尾空白，拒绝空输入
  - [Session]：有序轮次、有界历史、结束词检测
  - [ReasoningDispatcher]：单次有界调用，最多立即重试一次
  - [SynthesisDispatcher]：把回复转换为 [SynthesisResult]，瞬时错误退避重试，从不返回错误
  - [Orchestrator]：在会话轮次锁下驱动单个轮次
  - [Registry]：会话 ID 到会话的映射，丢弃轮次中途被关闭的会话的结果
*/
package voice
