package handlers

import (
	"errors"
	"net/http"

	"github.com/BaSui01/voiceagent/agent/voice"
	"github.com/BaSui01/voiceagent/api"
	"github.com/BaSui01/voiceagent/types"
	"go.uber.org/zap"
)

// =============================================================================
// 💬 对话接口 Handler
// =============================================================================

// ConversationHandler 文本对话处理器，与 WebSocket 共享同一个会话注册表
type ConversationHandler struct {
	registry  *voice.Registry
	synthesis *voice.SynthesisDispatcher
	logger    *zap.Logger
}

// NewConversationHandler 创建对话处理器
func NewConversationHandler(registry *voice.Registry, synthesis *voice.SynthesisDispatcher, logger *zap.Logger) *ConversationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationHandler{
		registry:  registry,
		synthesis: synthesis,
		logger:    logger.With(zap.String("handler", "conversation")),
	}
}

// HandleConversation 处理一轮文本对话
// @Summary 文本对话
// @Description 提交一句用户输入，返回回复与合成结果。推理失败时使用兜底回复，不会返回错误。
// @Tags 对话
// @Accept json
// @Produce json
// @Param request body api.ConversationRequest true "对话请求"
// @Success 200 {object} api.MessageResponse "轮次结果"
// @Failure 400 {object} Response "空输入或 session_id 不合法"
// @Failure 409 {object} Response "会话已关闭"
// @Router /api/v1/conversation [post]
func (h *ConversationHandler) HandleConversation(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.ConversationRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	res, err := h.registry.Submit(r.Context(), req.SessionID, req.Message)
	if err != nil {
		WriteError(w, ToTypesError(err), h.logger)
		return
	}

	h.logger.Debug("turn delivered",
		zap.String("session_id", res.SessionID),
		zap.Int("seq", res.Seq),
		zap.String("source", string(res.Source)),
	)
	WriteSuccess(w, api.NewMessageResponse(res))
}

// HandleHistory 返回会话仍保留的轮次。已结束的会话在清除前仍可查询，terminated 为 true。
// @Summary 会话历史
// @Tags 对话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} api.HistoryResponse "会话历史"
// @Failure 404 {object} Response "会话不存在"
// @Router /api/v1/conversation/{id} [get]
func (h *ConversationHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, ok := h.registry.Get(id)
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "session not found", h.logger)
		return
	}
	WriteSuccess(w, api.HistoryResponse{
		SessionID:  s.ID(),
		Terminated: s.Terminated(),
		Turns:      s.Turns(),
	})
}

// HandleClose 关闭会话；进行中的轮次完成后被丢弃，之后的轮次返回 409。
// 对已关闭的会话重复调用同样成功。
// @Summary 关闭会话
// @Tags 对话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Response "已关闭"
// @Failure 404 {object} Response "会话不存在"
// @Router /api/v1/conversation/{id} [delete]
func (h *ConversationHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.registry.Get(id); !ok {
		WriteErrorMessage(w, http.StatusNotFound, types.ErrInvalidRequest, "session not found", h.logger)
		return
	}
	if h.registry.Close(id) {
		h.logger.Debug("session closed by client", zap.String("session_id", id))
	}
	WriteSuccess(w, map[string]string{"session_id": id, "status": "closed"})
}

// HandleUsage 返回进程级合成用量与活跃会话数
// @Summary 用量统计
// @Tags 对话
// @Produce json
// @Success 200 {object} api.UsageResponse "用量"
// @Router /api/v1/usage [get]
func (h *ConversationHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, api.UsageResponse{
		Synthesis:      h.synthesis.Usage(),
		ActiveSessions: h.registry.Len(),
	})
}

// turnErrorEvent 把未产生轮次的错误转换为 WebSocket 错误事件
func turnErrorEvent(sessionID string, err error) api.ErrorEvent {
	te := ToTypesError(err)
	msg := te.Message
	if errors.Is(err, voice.ErrSessionClosed) {
		msg = "session has ended, start a new one to continue"
	}
	return api.ErrorEvent{
		Type:      api.EventError,
		Code:      string(te.Code),
		Message:   msg,
		SessionID: sessionID,
	}
}
