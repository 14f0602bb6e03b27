// Package config 提供 voiceagent 的配置管理功能。
//
// 加载顺序：默认值 → YAML 文件 → 环境变量（VOICEAGENT_ 前缀，
// 未设置时回退到 .env 文件）→ 旧版变量名（MURF_API_KEY 等）。
// 加载后的 Config 是不可变值，在构造时传给各个组件。
package config
