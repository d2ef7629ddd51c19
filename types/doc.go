// Copyright (c) AgentBus Authors.
// Licensed under the MIT License.

/*
Package types 提供 AgentBus 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 bus、driver、persistence、
api 等上层模块提供统一的类型契约。所有跨包共享的结构体、枚举和错误码
均定义于此，以避免循环依赖。

# 核心类型

  - Step              — 工作流步骤枚举与步进机（StepOrder、Index、IsTerminal）
  - Payload / Value   — 结构化负载，Value 为带类型标签的联合（String/Int/Float/Bool/List/Map）
  - StateRecord       — 工作流状态快照（步骤、负载、待处理动作、审计日志）
  - PendingAction     — 人工审批检查点（动作名、提示负载、截止时间、消费标记）
  - LogEntry / EventKind — 审计日志条目与事件类型（transition/pause/resume/expire）
  - ActionResponse    — 审批人批复（批准与否、修改后负载、备注）
  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 主要能力

  - Context 传播：WithRequestID / WithActor / WithRoles 及对应读取函数
  - 错误工具链：NewError / WithCause / GetErrorCode / IsCode / IsRetryable
  - 快照操作：StateRecord.Clone（深拷贝）、LivePendingAction、LogTail
  - 负载操作：Payload.Clone、Value 构造器与 As* 读取器、JSON 序列化
*/
package types
