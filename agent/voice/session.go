package voice

import (
	"iter"
	"math"
	"sync"
	"time"

	"github.com/BaSui01/voiceagent/types"
)

// 会话状态错误
var (
	ErrSessionClosed = types.NewError(types.ErrSessionClosed, "session is terminated")
	ErrNoSuchTurn    = types.NewError(types.ErrNoSuchTurn, "no such pending turn")
)

// DefaultHistoryCap 默认保留的已完成轮次数
const DefaultHistoryCap = 10

// Turn 一句用户输入及其结果。Finalized 之前 AssistantText 无意义；
// 回复合成之前 Synthesis 为 nil。
type Turn struct {
	Seq           int              `json:"seq"`
	UserText      string           `json:"user_text"`
	AssistantText string           `json:"assistant_text,omitempty"`
	Source        ReplySource      `json:"source,omitempty"`
	Finalized     bool             `json:"finalized"`
	Synthesis     *SynthesisResult `json:"synthesis,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// SessionOptions 会话配置
type SessionOptions struct {
	// 已完成轮次上限，超出时淘汰最早的；<= 0 使用 DefaultHistoryCap
	HistoryCap int
	// 覆盖 DefaultExitTokens
	ExitTokens []string
	// 时钟，默认 time.Now
	Now func() time.Time
}

// Session 一次对话的有序轮次
type Session struct {
	id         string
	historyCap int
	exit       *ExitDetector
	now        func() time.Time

	// turnMu 串行化整轮流水线；mu 保护以下字段
	turnMu sync.Mutex

	mu           sync.RWMutex
	turns        []Turn
	nextSeq      int
	createdAt    time.Time
	lastActivity time.Time
	terminated   bool
	closedAt     time.Time
}

// NewSession 创建空会话
func NewSession(id string, opts SessionOptions) *Session {
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = DefaultHistoryCap
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	now := opts.Now()
	return &Session{
		id:           id,
		historyCap:   opts.HistoryCap,
		exit:         NewExitDetector(opts.ExitTokens),
		now:          opts.Now,
		nextSeq:      1,
		createdAt:    now,
		lastActivity: now,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActivity 最近一次追加的时间
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// AppendUser 以下一个序号开启待完成轮次。会话结束后返回 ErrSessionClosed。
func (s *Session) AppendUser(text string) (Turn, error) {
	if text == "" {
		return Turn{}, ErrEmptyInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated {
		return Turn{}, ErrSessionClosed
	}
	now := s.now()
	t := Turn{Seq: s.nextSeq, UserText: text, Timestamp: now}
	s.nextSeq++
	s.turns = append(s.turns, t)
	s.lastActivity = now
	return t, nil
}

// AppendAssistant 完成轮次 seq。已完成的轮次不可变，
// 对同一 seq 再次调用返回 ErrNoSuchTurn。
func (s *Session) AppendAssistant(seq int, text string, source ReplySource) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(seq)
	if i < 0 || s.turns[i].Finalized {
		return Turn{}, ErrNoSuchTurn
	}
	s.turns[i].AssistantText = text
	s.turns[i].Source = source
	s.turns[i].Finalized = true
	s.lastActivity = s.now()
	t := s.turns[i]
	s.evict()
	return t, nil
}

// AttachSynthesis 记录已完成轮次的合成结果，只能记录一次
func (s *Session) AttachSynthesis(seq int, result SynthesisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(seq)
	if i < 0 || !s.turns[i].Finalized || s.turns[i].Synthesis != nil {
		return ErrNoSuchTurn
	}
	r := result
	s.turns[i].Synthesis = &r
	return nil
}

// History 按时间顺序产出已完成轮次。每次遍历取新快照，可重复遍历。
func (s *Session) History() iter.Seq[Turn] {
	return s.HistoryBefore(math.MaxInt)
}

// HistoryBefore 产出 Seq < seq 的已完成轮次
func (s *Session) HistoryBefore(seq int) iter.Seq[Turn] {
	return func(yield func(Turn) bool) {
		s.mu.RLock()
		snapshot := make([]Turn, 0, len(s.turns))
		for _, t := range s.turns {
			if t.Finalized && t.Seq < seq {
				snapshot = append(snapshot, t)
			}
		}
		s.mu.RUnlock()

		for _, t := range snapshot {
			if !yield(t) {
				return
			}
		}
	}
}

// Turns 返回保留轮次的副本，含待完成轮次
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len 保留的轮次数
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// IsExit 文本是否包含结束词
func (s *Session) IsExit(text string) bool {
	return s.exit.IsExit(text)
}

// Terminate 结束会话，之后不再接受新轮次。返回本次调用是否改变了状态。
func (s *Session) Terminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return false
	}
	s.terminated = true
	s.closedAt = s.now()
	return true
}

func (s *Session) Terminated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminated
}

// ClosedAt 会话结束的时间；未结束时 ok 为 false
func (s *Session) ClosedAt() (t time.Time, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closedAt, s.terminated
}

func (s *Session) indexOf(seq int) int {
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Seq == seq {
			return i
		}
	}
	return -1
}

// evict 淘汰超出 historyCap 的最早已完成轮次。调用方持有 mu。
func (s *Session) evict() {
	finalized := 0
	for _, t := range s.turns {
		if t.Finalized {
			finalized++
		}
	}
	excess := finalized - s.historyCap
	if excess <= 0 {
		return
	}
	kept := s.turns[:0]
	for _, t := range s.turns {
		if excess > 0 && t.Finalized {
			excess--
			continue
		}
		kept = append(kept, t)
	}
	clear(s.turns[len(kept):])
	s.turns = kept
}
