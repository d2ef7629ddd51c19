// Copyright (c) AgentBus Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentBus HTTP API 的请求处理器实现。

# 概述

handlers 包实现了 AgentBus 所有 HTTP 端点的请求处理逻辑，
包括工作流状态查询、人工审核决定提交、WebSocket 状态订阅、
健康检查以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口，通过 Swagger 注解生成 API 文档。

# 核心类型

  - StateHandler     — 工作流状态点查、待审核列表、审核决定提交
  - WatchHandler     — WebSocket 状态快照订阅（终态后自动关闭）
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready）
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo        — 结构化错误信息，含 code、message、retryable 标记
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码
  - HealthCheck      — 可插拔健康检查接口（Store、Bus 等）

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON 辅助函数
  - 请求验证：DecodeJSONBody（1 MB 限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - WebSocket 推送：WatchHandler.HandleWatch 推送快照帧与结束帧
  - 审计日志：审核决定记录审核人身份（types.Actor）
  - 可扩展健康检查：RegisterCheck 注册自定义 HealthCheck 实现
*/
package handlers
