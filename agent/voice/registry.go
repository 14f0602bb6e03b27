package voice

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceagent/types"
)

// ErrTurnDiscarded 轮次进行中会话被关闭：轮次已执行完，但结果不再下发
var ErrTurnDiscarded = types.NewError(types.ErrTransport, "session closed while turn was in flight")

// ErrInvalidSessionID 客户端提供的会话 ID 格式不合法
var ErrInvalidSessionID = types.NewError(types.ErrInvalidRequest, "session_id must match [A-Za-z0-9_-]{1,128}")

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidSessionID 会话 ID 只允许字母、数字、下划线和连字符，最长 128。
// 生成的 UUID 总是合法的。
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Registry 会话 ID 到会话的映射。不同会话的轮次并行执行，
// 同一会话由 Orchestrator 串行化。
//
// 已结束的会话以墓碑形式保留，同一 ID 不会被重新打开；
// 墓碑在结束超过 TTL 后由 Sweep 清除。
type Registry struct {
	orch   *Orchestrator
	opts   SessionOptions
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry 创建注册表，新会话使用 opts
func NewRegistry(orch *Orchestrator, opts SessionOptions, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		orch:     orch,
		opts:     opts,
		logger:   logger.With(zap.String("component", "session_registry")),
		sessions: make(map[string]*Session),
	}
}

// NewSessionID 生成随机 v4 UUID
func NewSessionID() string { return uuid.NewString() }

// Open 返回 id 对应的会话，不存在时创建；id 为空时生成新 ID。
// 已结束的会话原样返回，调用方通过 AppendUser 得到 ErrSessionClosed。
func (r *Registry) Open(id string) (*Session, bool) {
	if id == "" {
		id = NewSessionID()
	}

	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s = NewSession(id, r.opts)
	r.sessions[id] = s
	r.logger.Debug("session opened", zap.String("session_id", id))
	return s, true
}

// Get 查找会话，包括已结束但尚未清除的会话
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close 结束会话。进行中的轮次会执行完，然后被丢弃。
// 返回是否结束了一个活跃会话；未知或已结束的会话返回 false。
func (r *Registry) Close(id string) bool {
	s, ok := r.Get(id)
	if !ok || !s.Terminate() {
		return false
	}
	r.logger.Debug("session closed", zap.String("session_id", id))
	return true
}

// Len 活跃会话数，不含墓碑
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if !s.Terminated() {
			n++
		}
	}
	return n
}

// Submit 在会话 id 上执行一轮，必要时打开会话。轮次运行在脱离 ctx 取消的
// 上下文上，调用方断开不会中断它；若期间会话被关闭，丢弃结果并返回
// ErrTurnDiscarded。以结束词收尾的轮次由自身结束会话，照常返回。
func (r *Registry) Submit(ctx context.Context, id, text string) (*TurnResult, error) {
	if id != "" && !ValidSessionID(id) {
		return nil, ErrInvalidSessionID
	}
	s, _ := r.Open(id)
	res, err := r.orch.RunTurn(context.WithoutCancel(ctx), s, text)
	if err != nil {
		return nil, err
	}
	if !res.Exit && s.Terminated() {
		r.logger.Info("discarding turn of closed session",
			zap.String("session_id", s.ID()),
			zap.Int("seq", res.Seq))
		return nil, ErrTurnDiscarded
	}
	return res, nil
}

// Sweep 结束空闲超过 ttl 的会话，并清除结束超过 ttl 的墓碑。
// 返回本次结束的会话数。
func (r *Registry) Sweep(now time.Time, ttl time.Duration) int {
	var idle, expired []string
	r.mu.RLock()
	for id, s := range r.sessions {
		if closedAt, ok := s.ClosedAt(); ok {
			if now.Sub(closedAt) > ttl {
				expired = append(expired, id)
			}
			continue
		}
		if now.Sub(s.LastActivity()) > ttl {
			idle = append(idle, id)
		}
	}
	r.mu.RUnlock()

	closed := 0
	for _, id := range idle {
		if r.Close(id) {
			closed++
		}
	}

	// 结束状态不可逆，读锁与写锁之间墓碑不会复活
	if len(expired) > 0 {
		r.mu.Lock()
		for _, id := range expired {
			delete(r.sessions, id)
		}
		r.mu.Unlock()
		r.logger.Debug("session tombstones removed", zap.Int("count", len(expired)))
	}
	return closed
}

// RunSweeper 每隔 interval 调用一次 Sweep，直到 ctx 结束
func (r *Registry) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.Sweep(now, ttl); n > 0 {
				r.logger.Info("idle sessions closed", zap.Int("count", n))
			}
		}
	}
}
