// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 persistence 提供会话记录（transcript）的持久化存储。

# 概述

每个完成的对话轮次都会追加到会话记录中。记录仅用于审计与回放，
写入失败不会影响轮次本身。

# 后端

  - memory: 进程内存储，用于开发与测试。
  - file: 每个会话一个 JSONL 文件，或与命令行版本兼容的纯文本日志。
  - redis: 每个会话一个列表，另有按最近活动排序的会话索引。

所有后端都实现 TranscriptStore，可直接作为 voice.TranscriptSink 使用。
*/
package persistence
