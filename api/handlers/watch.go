package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/agentbus/api"
	"github.com/BaSui01/agentbus/bus"
	"github.com/BaSui01/agentbus/types"
)

// =============================================================================
// 📡 状态订阅 Handler
// =============================================================================

// watchLogTail WebSocket 快照帧携带的时间线尾部条数
const watchLogTail = 10

// WatchHandler WebSocket 状态订阅处理器
type WatchHandler struct {
	bus            *bus.Bus
	logger         *zap.Logger
	originPatterns []string
}

// NewWatchHandler 创建订阅处理器。originPatterns 透传给 WebSocket
// 握手的同源检查，为空时仅允许同主机连接。
func NewWatchHandler(b *bus.Bus, logger *zap.Logger, originPatterns []string) *WatchHandler {
	return &WatchHandler{
		bus:            b,
		logger:         logger,
		originPatterns: originPatterns,
	}
}

// HandleWatch 处理工作流状态订阅
// @Summary 订阅工作流状态
// @Description 升级为 WebSocket 并推送状态快照帧，工作流到达终态后发送结束帧并关闭
// @Tags 状态
// @Param type path string true "工作流类型"
// @Param id path string true "工作流实例 ID"
// @Success 101 {string} string "协议切换为 WebSocket"
// @Failure 404 {object} Response "工作流不存在"
// @Failure 503 {object} Response "总线未启动"
// @Security ApiKeyAuth
// @Router /api/v1/state/{type}/{id}/watch [get]
func (h *WatchHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed", h.logger)
		return
	}

	workflowType, workflowID, ok := extractStateKey(r)
	if !ok {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "workflow type and id are required", h.logger)
		return
	}

	// 升级前先订阅，不存在的工作流用普通 HTTP 错误应答
	sub, err := h.bus.Subscribe(r.Context(), workflowID, workflowType)
	if err != nil {
		writeBusError(w, r, err, h.logger)
		return
	}
	defer sub.Close()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed",
			zap.String("workflow_id", workflowID),
			zap.String("workflow_type", workflowType),
			zap.Error(err),
		)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	// 订阅端只推不收，CloseRead 负责感知对端关闭
	ctx := conn.CloseRead(r.Context())

	h.logger.Debug("watch stream opened",
		zap.String("workflow_id", workflowID),
		zap.String("workflow_type", workflowType),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case snap, open := <-sub.Snapshots():
			if !open {
				// 终态快照已推送完毕，发结束帧后正常关闭
				h.writeEvent(ctx, conn, api.WatchEvent{Type: api.WatchEventClosed})
				conn.Close(websocket.StatusNormalClosure, "workflow reached terminal step")
				return
			}

			state := stateResponse(snap, watchLogTail)
			ev := api.WatchEvent{Type: api.WatchEventSnapshot, State: &state}
			if err := h.writeEvent(ctx, conn, ev); err != nil {
				h.logger.Debug("watch stream write failed",
					zap.String("workflow_id", workflowID),
					zap.Error(err),
				)
				return
			}
		}
	}
}

func (h *WatchHandler) writeEvent(ctx context.Context, conn *websocket.Conn, ev api.WatchEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
