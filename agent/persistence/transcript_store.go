package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/voiceagent/agent/voice"
)

// Entry is one completed turn as written to the transcript.
type Entry struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Seq            int       `json:"seq"`
	UserText       string    `json:"user_text"`
	AssistantText  string    `json:"assistant_text"`
	Source         string    `json:"source"`
	AudioURL       string    `json:"audio_url,omitempty"`
	AudioOK        bool      `json:"audio_ok"`
	SynthesisError string    `json:"synthesis_error,omitempty"`
	CharCount      int       `json:"char_count"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewEntry flattens a finalized turn.
func NewEntry(sessionID string, turn voice.Turn) Entry {
	e := Entry{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		Seq:           turn.Seq,
		UserText:      turn.UserText,
		AssistantText: turn.AssistantText,
		Source:        string(turn.Source),
		Timestamp:     turn.Timestamp,
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if s := turn.Synthesis; s != nil {
		e.AudioURL = s.AudioURL
		e.AudioOK = s.Success
		e.SynthesisError = s.ErrorDetail
		e.CharCount = s.CharCount
	}
	return e
}

// TranscriptStore persists completed turns per session. It satisfies
// voice.TranscriptSink.
type TranscriptStore interface {
	Store

	// AppendTurn appends a finalized turn to the session's transcript.
	AppendTurn(ctx context.Context, sessionID string, turn voice.Turn) error

	// ListTurns returns up to limit most recent entries, oldest first.
	// limit <= 0 returns all of them.
	ListTurns(ctx context.Context, sessionID string, limit int) ([]Entry, error)

	// Sessions returns the ids of sessions with a transcript.
	Sessions(ctx context.Context) ([]string, error)

	// DeleteSession removes a session's transcript.
	DeleteSession(ctx context.Context, sessionID string) error
}

var _ voice.TranscriptSink = (TranscriptStore)(nil)

func validateTurn(sessionID string, turn voice.Turn) error {
	if sessionID == "" || !turn.Finalized {
		return ErrInvalidInput
	}
	return nil
}

func tail[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
