// Package config 提供 AgentBus 的配置管理功能。
//
// 包含服务器、状态存储、总线、执行器、鉴权、日志与遥测配置。
// 支持从 YAML 文件和环境变量加载配置，
// 优先级为默认值 → YAML 文件 → 环境变量。
package config
