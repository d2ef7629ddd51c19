package api

import (
	"time"

	"github.com/BaSui01/agentbus/types"
)

// =============================================================================
// 工作流状态类型
// =============================================================================

// StateResponse 表示一条工作流状态快照。
// @Description 工作流状态快照结构
type StateResponse struct {
	// 工作流实例 ID
	WorkflowID string `json:"workflow_id" example:"ir-2024-0142"`
	// 工作流类型
	WorkflowType string `json:"workflow_type" example:"incident_triage"`
	// 当前步骤
	Step types.Step `json:"step" example:"PAUSED_FOR_REVIEW"`
	// 当前业务负载
	Payload types.Payload `json:"payload,omitempty"`
	// 待人工处理的检查点（仅在暂停时存在）
	PendingAction *PendingActionInfo `json:"pending_action,omitempty"`
	// 追加式事件时间线（点查返回全量，watch 帧仅返回尾部）
	Log []LogEntryInfo `json:"log,omitempty"`
	// 最后一次变更时间
	UpdatedAt time.Time `json:"updated_at"`
	// 是否已到达终态（COMPLETED 或 ERROR）
	Terminal bool `json:"terminal"`
}

// PendingActionInfo 表示一个等待人工决定的检查点。
// @Description 待处理人工检查点结构
type PendingActionInfo struct {
	// 检查点动作名（恢复操作的幂等键）
	ActionName string `json:"action_name" example:"approve_remediation"`
	// 展示给审核人的提示负载
	PromptPayload types.Payload `json:"prompt_payload,omitempty"`
	// 检查点创建时间
	CreatedAt time.Time `json:"created_at"`
	// 审核截止时间（无截止时间则省略）
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// LogEntryInfo 表示时间线中的单条事件。
// @Description 时间线事件结构
type LogEntryInfo struct {
	// 事件 ID
	ID string `json:"id" example:"9f1c2a4e-77b3-4c1d-9a52-0d6f3b8e4a10"`
	// 事件时间
	At time.Time `json:"at"`
	// 事件发生后的步骤
	Step types.Step `json:"step" example:"CALLING_LLM"`
	// 事件种类（transition、pause、resume、expire）
	Event types.EventKind `json:"event" example:"transition"`
	// 事件详情
	Detail string `json:"detail,omitempty" example:"approve_remediation approved"`
}

// =============================================================================
// 人工审核类型
// =============================================================================

// RespondRequest 表示针对待处理检查点提交的人工决定。
// @Description 人工审核决定请求结构
type RespondRequest struct {
	// 目标动作名，必须与当前待处理动作一致
	ActionName string `json:"action_name" binding:"required" example:"approve_remediation"`
	// 审核结论（批准 / 拒绝）
	Approved bool `json:"approved" example:"true"`
	// 审核人修订后的负载（可选，恢复时替换工作流负载）
	EditedPayload types.Payload `json:"edited_payload,omitempty"`
	// 审核备注
	Notes string `json:"notes,omitempty" example:"rollback plan verified"`
}

// PendingListResponse 待审核工作流列表响应。
// @Description 待审核工作流列表结构
type PendingListResponse struct {
	// 处于 PAUSED_FOR_REVIEW 的工作流快照（不含时间线）
	Workflows []StateResponse `json:"workflows"`
	// 总数
	Total int `json:"total" example:"3"`
}

// =============================================================================
// WebSocket 推送类型
// =============================================================================

// WatchEvent 的帧类型。
const (
	// WatchEventSnapshot 状态快照帧
	WatchEventSnapshot = "snapshot"
	// WatchEventClosed 流结束帧（工作流到达终态后发出）
	WatchEventClosed = "closed"
)

// WatchEvent 表示 /watch WebSocket 流中的一帧。
// @Description WebSocket 状态流帧结构
type WatchEvent struct {
	// 帧类型：snapshot 或 closed
	Type string `json:"type" example:"snapshot"`
	// 快照内容（type 为 snapshot 时存在）
	State *StateResponse `json:"state,omitempty"`
}
