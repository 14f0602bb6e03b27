package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceagent/agent/voice"
	"github.com/BaSui01/voiceagent/api"
	"github.com/BaSui01/voiceagent/types"
)

// wsReadLimit 单条客户端消息上限
const wsReadLimit = 64 << 10

// ConnectionObserver 统计 WebSocket 连接数
type ConnectionObserver interface {
	WebSocketOpened()
	WebSocketClosed()
}

type nopConnectionObserver struct{}

func (nopConnectionObserver) WebSocketOpened() {}
func (nopConnectionObserver) WebSocketClosed() {}

// WSConfig WebSocket 处理器配置
type WSConfig struct {
	// 允许的 Origin 模式，空表示只允许同源
	OriginPatterns []string
	// 人设名称，随 status 事件下发
	Persona             string
	ReasoningConfigured bool
	SynthesisConfigured bool
	// 单条消息写超时
	WriteTimeout time.Duration
	Observer     ConnectionObserver
}

// =============================================================================
// 🔌 WebSocket 对话 Handler
// =============================================================================

// WSHandler 双工对话通道。每个连接有一个默认会话；客户端消息可携带
// session_id 使用其他会话。同一连接上的消息按到达顺序逐条处理。
type WSHandler struct {
	registry *voice.Registry
	cfg      WSConfig
	logger   *zap.Logger
}

// NewWSHandler 创建 WebSocket 处理器
func NewWSHandler(registry *voice.Registry, cfg WSConfig, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Observer == nil {
		cfg.Observer = nopConnectionObserver{}
	}
	return &WSHandler{
		registry: registry,
		cfg:      cfg,
		logger:   logger.With(zap.String("handler", "ws")),
	}
}

// wsConn 串行化写操作
type wsConn struct {
	conn    *websocket.Conn
	timeout time.Duration
	mu      sync.Mutex
}

func (c *wsConn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// ServeHTTP 升级连接并运行读循环
// @Summary WebSocket 对话
// @Description 客户端发送 send_message，服务端下发 status / message_response / error
// @Tags 对话
// @Router /ws [get]
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 长连接不受 http.Server 的读写超时约束
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.OriginPatterns,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(wsReadLimit)

	h.cfg.Observer.WebSocketOpened()
	defer h.cfg.Observer.WebSocketClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{conn: conn, timeout: h.cfg.WriteTimeout}
	sessionID := voice.NewSessionID()
	logger := h.logger.With(zap.String("remote", r.RemoteAddr))

	if err := c.writeJSON(ctx, h.status(sessionID, "connected")); err != nil {
		logger.Debug("status write failed", zap.Error(err))
		_ = conn.CloseNow()
		return
	}
	logger.Info("websocket connected", zap.String("session_id", sessionID))

	// 读循环与处理循环分离：断开连接能被及时发现，进行中的轮次照常完成，
	// 排队的消息不再执行
	inbox := make(chan api.ClientMessage, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		dropped := 0
		for msg := range inbox {
			if ctx.Err() != nil {
				dropped++
				continue
			}
			sessionID = h.handleMessage(ctx, c, sessionID, msg, logger)
		}
		if dropped > 0 {
			logger.Debug("dropped queued messages after disconnect", zap.Int("count", dropped))
		}
	}()

	err = h.readLoop(ctx, conn, c, inbox, logger)
	cancel()
	close(inbox)
	<-done

	// 连接断开即结束默认会话；显式 session_id 的会话可能被其他入口共享，交给清理器
	if h.registry.Close(sessionID) {
		logger.Debug("session closed on disconnect", zap.String("session_id", sessionID))
	}

	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		logger.Info("websocket closed by client")
	case err != nil && !errors.Is(err, context.Canceled):
		logger.Warn("websocket read failed", zap.Error(err))
	}
	_ = conn.Close(websocket.StatusNormalClosure, "closing")
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, c *wsConn, inbox chan<- api.ClientMessage, logger *zap.Logger) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			_ = c.writeJSON(ctx, api.ErrorEvent{Type: api.EventError, Code: string(types.ErrInvalidRequest), Message: "text frames only"})
			continue
		}

		var msg api.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != api.EventSendMessage {
			logger.Debug("invalid client message", zap.ByteString("data", data), zap.Error(err))
			_ = c.writeJSON(ctx, api.ErrorEvent{Type: api.EventError, Code: string(types.ErrInvalidRequest), Message: "expected {\"type\":\"send_message\"}"})
			continue
		}

		select {
		case inbox <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleMessage 执行一轮并下发结果，返回连接后续使用的默认会话 ID
func (h *WSHandler) handleMessage(ctx context.Context, c *wsConn, defaultID string, msg api.ClientMessage, logger *zap.Logger) string {
	id := msg.SessionID
	if id == "" {
		id = defaultID
	}

	res, err := h.registry.Submit(ctx, id, msg.Message)
	switch {
	case errors.Is(err, voice.ErrTurnDiscarded):
		logger.Debug("dropping discarded turn", zap.String("session_id", id))
		return defaultID
	case err != nil:
		if werr := c.writeJSON(ctx, turnErrorEvent(id, err)); werr != nil {
			logger.Debug("error event write failed", zap.Error(werr))
		}
		return defaultID
	}

	if werr := c.writeJSON(ctx, api.NewMessageResponse(res)); werr != nil {
		logger.Debug("turn write failed",
			zap.String("session_id", id),
			zap.Int("seq", res.Seq),
			zap.Error(werr))
		return defaultID
	}

	if res.Exit {
		// 结束语之后开启新会话，旧会话留作墓碑
		h.registry.Close(id)
		if id == defaultID {
			defaultID = voice.NewSessionID()
			_ = c.writeJSON(ctx, h.status(defaultID, "session ended, new session started"))
		}
	}
	return defaultID
}

func (h *WSHandler) status(sessionID, message string) api.StatusEvent {
	return api.StatusEvent{
		Type:                api.EventStatus,
		SessionID:           sessionID,
		Persona:             h.cfg.Persona,
		ReasoningConfigured: h.cfg.ReasoningConfigured,
		SynthesisConfigured: h.cfg.SynthesisConfigured,
		Message:             message,
		Timestamp:           time.Now(),
	}
}
