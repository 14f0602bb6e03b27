// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package server 管理 voiceagent 的 HTTP 服务器生命周期。

API 服务器与 metrics 服务器各由一个 Manager 承载：Start 非阻塞地
监听端口，Wait 在上下文取消 (通常由 SIGINT/SIGTERM 触发) 或服务器
异常退出时执行优雅关闭，Shutdown 幂等。
*/
package server
