package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/BaSui01/agentbus/api"
	"github.com/BaSui01/agentbus/bus"
	"github.com/BaSui01/agentbus/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🗂️ 工作流状态 Handler
// =============================================================================

// StateHandler 工作流状态处理器
type StateHandler struct {
	bus    *bus.Bus
	logger *zap.Logger
}

// NewStateHandler 创建状态处理器
func NewStateHandler(b *bus.Bus, logger *zap.Logger) *StateHandler {
	return &StateHandler{
		bus:    b,
		logger: logger,
	}
}

// HandleGetState 处理工作流状态点查
// @Summary 查询工作流状态
// @Description 按类型与 ID 查询单条工作流状态快照（含完整时间线）
// @Tags 状态
// @Produce json
// @Param type path string true "工作流类型"
// @Param id path string true "工作流实例 ID"
// @Success 200 {object} api.StateResponse "状态快照"
// @Failure 404 {object} Response "工作流不存在"
// @Failure 503 {object} Response "总线未启动或存储不可用"
// @Security ApiKeyAuth
// @Router /api/v1/state/{type}/{id} [get]
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	workflowType, workflowID, ok := extractStateKey(r)
	if !ok {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "workflow type and id are required", h.logger)
		return
	}

	rec, err := h.bus.GetState(r.Context(), workflowID, workflowType)
	if err != nil {
		writeBusError(w, r, err, h.logger)
		return
	}

	WriteSuccess(w, r, stateResponse(rec, fullLog))
}

// HandleListPending 处理待审核工作流列表查询
// @Summary 列出待审核工作流
// @Description 列出处于 PAUSED_FOR_REVIEW 的工作流，可按类型过滤
// @Tags 状态
// @Produce json
// @Param type query string false "工作流类型过滤"
// @Success 200 {object} api.PendingListResponse "待审核列表"
// @Failure 503 {object} Response "总线未启动"
// @Security ApiKeyAuth
// @Router /api/v1/pending [get]
func (h *StateHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	workflowType := r.URL.Query().Get("type")

	records, err := h.bus.ListPending(workflowType)
	if err != nil {
		writeBusError(w, r, err, h.logger)
		return
	}

	resp := api.PendingListResponse{
		Workflows: make([]api.StateResponse, 0, len(records)),
		Total:     len(records),
	}
	for _, rec := range records {
		resp.Workflows = append(resp.Workflows, stateResponse(rec, 0))
	}

	WriteSuccess(w, r, resp)
}

// HandleRespond 处理人工审核决定提交
// @Summary 提交审核决定
// @Description 针对暂停中的工作流提交人工决定并恢复执行
// @Tags 状态
// @Accept json
// @Produce json
// @Param type path string true "工作流类型"
// @Param id path string true "工作流实例 ID"
// @Param request body api.RespondRequest true "审核决定"
// @Success 200 {object} api.StateResponse "恢复后的状态快照"
// @Failure 400 {object} Response "无效请求"
// @Failure 404 {object} Response "工作流或动作不存在"
// @Failure 409 {object} Response "动作已被处理"
// @Security ApiKeyAuth
// @Router /api/v1/state/{type}/{id}/respond [post]
func (h *StateHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	workflowType, workflowID, ok := extractStateKey(r)
	if !ok {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "workflow type and id are required", h.logger)
		return
	}

	// 验证 Content-Type
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	// 解码请求
	var req api.RespondRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.ActionName == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "action_name is required", h.logger)
		return
	}

	rec, err := h.bus.ResumeFromAction(r.Context(), workflowID, workflowType, types.ActionResponse{
		ActionName:    req.ActionName,
		Approved:      req.Approved,
		EditedPayload: req.EditedPayload,
		Notes:         req.Notes,
	})
	if err != nil {
		writeBusError(w, r, err, h.logger)
		return
	}

	// 审计日志：记录审核人身份与决定
	actor, _ := types.Actor(r.Context())
	h.logger.Info("review decision applied",
		zap.String("workflow_id", workflowID),
		zap.String("workflow_type", workflowType),
		zap.String("action", req.ActionName),
		zap.Bool("approved", req.Approved),
		zap.String("actor", actor),
	)

	WriteSuccess(w, r, stateResponse(rec, fullLog))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// extractStateKey 从请求中提取工作流 type 与 id（Go 1.22+ PathValue 优先，回退到路径解析）
func extractStateKey(r *http.Request) (workflowType, workflowID string, ok bool) {
	workflowType = r.PathValue("type")
	workflowID = r.PathValue("id")
	if workflowType != "" && workflowID != "" {
		return workflowType, workflowID, true
	}

	// 回退：从路径手动解析 /api/v1/state/{type}/{id}[/respond|/watch]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 5 || parts[0] != "api" || parts[1] != "v1" || parts[2] != "state" {
		return "", "", false
	}
	if parts[3] == "" || parts[4] == "" {
		return "", "", false
	}
	return parts[3], parts[4], true
}

// writeBusError 将总线错误映射为 API 错误响应
func writeBusError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	var busErr *types.Error
	if errors.As(err, &busErr) {
		WriteError(w, r, busErr, logger)
		return
	}
	WriteError(w, r, types.NewError(types.ErrInternalError, "unexpected error").WithCause(err), logger)
}

// fullLog 表示快照转换携带完整时间线
const fullLog = -1

// stateResponse 将状态记录转换为 API 快照。
// logTail 控制时间线条数：fullLog 全量、0 不携带、n>0 最近 n 条。
func stateResponse(rec *types.StateRecord, logTail int) api.StateResponse {
	resp := api.StateResponse{
		WorkflowID:   rec.WorkflowID,
		WorkflowType: rec.WorkflowType,
		Step:         rec.Step,
		Payload:      rec.Payload,
		UpdatedAt:    rec.UpdatedAt,
		Terminal:     rec.IsTerminal(),
	}

	if act := rec.LivePendingAction(); act != nil {
		resp.PendingAction = &api.PendingActionInfo{
			ActionName:    act.ActionName,
			PromptPayload: act.PromptPayload,
			CreatedAt:     act.CreatedAt,
			ExpiresAt:     act.ExpiresAt,
		}
	}

	entries := rec.Log
	if logTail == 0 {
		entries = nil
	} else if logTail > 0 {
		entries = rec.LogTail(logTail)
	}
	if len(entries) > 0 {
		resp.Log = make([]api.LogEntryInfo, 0, len(entries))
		for _, e := range entries {
			resp.Log = append(resp.Log, api.LogEntryInfo{
				ID:     e.ID,
				At:     e.At,
				Step:   e.Step,
				Event:  e.Event,
				Detail: e.Detail,
			})
		}
	}

	return resp
}
