// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package playback 驱动客户端侧合成回复的音频播放。

每个到达的轮次拥有一个状态机：

	idle → enabling-audio → playing → played
	               ↘ blocked ──(Retry)──↗
	enabling-audio | playing → errored

音频输出上下文由所有轮次共享，获取操作幂等且串行；
不同轮次的音频下载互不阻塞。
*/
package playback
