// Copyright (c) AgentBus Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentBus 服务端程序入口。

# 概述

cmd/agentbus 是 AgentBus 状态总线的可执行入口，提供 HTTP API 服务、
数据库迁移、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）、Prometheus 指标采集以及 OpenTelemetry 链路追踪。

# 核心类型

  - Server           — 主服务器，管理存储、状态总线、HTTP 服务及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    Metrics、OTelTracing、CORS、RateLimiter（基于 IP）、
    APIKeyAuth（X-API-Key / query 参数）、JWTAuth（Bearer）
  - 状态存储：memory / file / sql / redis / mongo，由配置选择
  - 崩溃恢复：启动时总线从存储加载全部非终态工作流
  - Metrics 端点：主端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 关闭 HTTP → 停止总线 → 关闭存储 → Wait
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
