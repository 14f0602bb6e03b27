package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrUnknownTurn 序号对应的轮次从未到达
var ErrUnknownTurn = errors.New("playback: unknown turn")

// ErrDuplicateTurn 同一轮次重复到达
var ErrDuplicateTurn = errors.New("playback: turn already arrived")

// TransitionFunc 观察每次状态变更
type TransitionFunc func(seq int, from, to State)

type track struct {
	mu    sync.Mutex // 串行化同一轮次的播放
	state State
	clip  Clip
	err   error
}

// Coordinator 为每个轮次运行一个播放状态机
type Coordinator struct {
	out     AudioOutput
	fetcher Fetcher
	logger  *zap.Logger
	observe TransitionFunc

	audio   *semaphore.Weighted
	enabled atomic.Bool

	mu     sync.RWMutex
	tracks map[int]*track
	order  []int
}

// Option Coordinator 配置项
type Option func(*Coordinator)

// WithFetcher 播放前下载只带 URL 的片段
func WithFetcher(f Fetcher) Option {
	return func(c *Coordinator) { c.fetcher = f }
}

// WithObserver 每次状态变更时调用 fn
func WithObserver(fn TransitionFunc) Option {
	return func(c *Coordinator) { c.observe = fn }
}

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator 创建通过 out 播放的协调器
func NewCoordinator(out AudioOutput, opts ...Option) *Coordinator {
	c := &Coordinator{
		out:    out,
		logger: zap.NewNop(),
		audio:  semaphore.NewWeighted(1),
		tracks: make(map[int]*track),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "playback"))
	return c
}

// Arrive 登记轮次音频，初始状态为 idle
func (c *Coordinator) Arrive(clip Clip) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tracks[clip.Seq]; ok {
		return ErrDuplicateTurn
	}
	c.tracks[clip.Seq] = &track{state: StateIdle, clip: clip}
	c.order = append(c.order, clip.Seq)
	return nil
}

// Play 把轮次 seq 从 idle 推进到停留状态 (played、blocked 或 errored)。
// 下载先于申请音频上下文，并发轮次的下载互不等待。
func (c *Coordinator) Play(ctx context.Context, seq int) (State, error) {
	t, err := c.track(seq)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateIdle {
		return t.state, ErrInvalidTransition{Seq: seq, From: t.state, To: StateEnablingAudio}
	}
	if err := c.prefetch(ctx, t); err != nil {
		// errored 只能从 enabling-audio 或 playing 进入
		c.transition(seq, t, StateEnablingAudio)
		return c.fail(seq, t, err), err
	}

	c.transition(seq, t, StateEnablingAudio)
	if err := c.ensureAudio(ctx); err != nil {
		if errors.Is(err, ErrAutoplayBlocked) {
			c.transition(seq, t, StateBlocked)
			return StateBlocked, nil
		}
		return c.fail(seq, t, err), err
	}
	return c.play(ctx, seq, t)
}

// Retry 对 blocked 轮次的手动播放，直接进入 playing；用户操作本身即授予音频上下文。
func (c *Coordinator) Retry(ctx context.Context, seq int) (State, error) {
	t, err := c.track(seq)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateBlocked {
		return t.state, ErrInvalidTransition{Seq: seq, From: t.state, To: StatePlaying}
	}
	c.enabled.Store(true)
	return c.play(ctx, seq, t)
}

// State 返回轮次 seq 的当前状态
func (c *Coordinator) State(seq int) (State, bool) {
	t, err := c.track(seq)
	if err != nil {
		return "", false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, true
}

// Err 返回 errored 轮次记录的错误
func (c *Coordinator) Err(seq int) error {
	t, err := c.track(seq)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// LastBlocked 返回最近一个等待手动播放的轮次
func (c *Coordinator) LastBlocked() (int, bool) {
	c.mu.RLock()
	order := append([]int(nil), c.order...)
	c.mu.RUnlock()
	for i := len(order) - 1; i >= 0; i-- {
		if s, _ := c.State(order[i]); s == StateBlocked {
			return order[i], true
		}
	}
	return 0, false
}

// AudioEnabled 是否已获取共享输出上下文
func (c *Coordinator) AudioEnabled() bool { return c.enabled.Load() }

func (c *Coordinator) track(seq int) (*track, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tracks[seq]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTurn, seq)
	}
	return t, nil
}

func (c *Coordinator) prefetch(ctx context.Context, t *track) error {
	if len(t.clip.Data) > 0 || t.clip.URL == "" || c.fetcher == nil {
		return nil
	}
	data, err := c.fetcher.Fetch(ctx, t.clip.URL)
	if err != nil {
		return err
	}
	t.clip.Data = data
	return nil
}

// ensureAudio 只获取一次共享上下文，等待者按到达顺序放行
func (c *Coordinator) ensureAudio(ctx context.Context) error {
	if c.enabled.Load() {
		return nil
	}
	if err := c.audio.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.audio.Release(1)
	if c.enabled.Load() {
		return nil
	}
	if err := c.out.Enable(ctx); err != nil {
		return err
	}
	c.enabled.Store(true)
	c.logger.Debug("audio output enabled")
	return nil
}

func (c *Coordinator) play(ctx context.Context, seq int, t *track) (State, error) {
	c.transition(seq, t, StatePlaying)
	if err := c.out.Play(ctx, t.clip); err != nil {
		return c.fail(seq, t, err), err
	}
	c.transition(seq, t, StatePlayed)
	return StatePlayed, nil
}

func (c *Coordinator) fail(seq int, t *track, err error) State {
	t.err = err
	c.logger.Warn("playback failed", zap.Int("seq", seq), zap.String("state", string(t.state)), zap.Error(err))
	c.transition(seq, t, StateErrored)
	return StateErrored
}

// transition 把 t 切换到 next，调用方持有 t.mu
func (c *Coordinator) transition(seq int, t *track, next State) {
	if !CanTransition(t.state, next) {
		panic(ErrInvalidTransition{Seq: seq, From: t.state, To: next})
	}
	from := t.state
	t.state = next
	if c.observe != nil {
		c.observe(seq, from, next)
	}
}
