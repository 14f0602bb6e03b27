package playback

import (
	"fmt"
	"slices"
)

// State 单个轮次的播放状态
type State string

const (
	StateIdle          State = "idle"
	StateEnablingAudio State = "enabling-audio"
	StatePlaying       State = "playing"
	StatePlayed        State = "played"
	StateBlocked       State = "blocked"
	StateErrored       State = "errored"
)

// validTransitions 定义合法的播放状态转换
var validTransitions = map[State][]State{
	StateIdle:          {StateEnablingAudio},
	StateEnablingAudio: {StatePlaying, StateBlocked, StateErrored},
	StatePlaying:       {StatePlayed, StateErrored},
	StateBlocked:       {StatePlaying}, // 仅手动重试
	StatePlayed:        nil,
	StateErrored:       nil,
}

// CanTransition 检查 from → to 是否合法
func CanTransition(from, to State) bool {
	return slices.Contains(validTransitions[from], to)
}

// Terminal s 是否为终态
func (s State) Terminal() bool {
	allowed, ok := validTransitions[s]
	return ok && len(allowed) == 0
}

// ErrInvalidTransition 事件不适用于轮次当前状态
type ErrInvalidTransition struct {
	Seq  int
	From State
	To   State
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("turn %d: invalid playback transition: %s -> %s", e.Seq, e.From, e.To)
}
