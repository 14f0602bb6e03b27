package persistence

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/BaSui01/voiceagent/agent/voice"
)

// MemoryTranscriptStore 进程内会话记录，重启即丢失。用于开发、测试与未配置持久化的部署。
type MemoryTranscriptStore struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
	closed   bool
	limit    int
}

func NewMemoryTranscriptStore(config StoreConfig) *MemoryTranscriptStore {
	return &MemoryTranscriptStore{
		sessions: make(map[string][]Entry),
		limit:    config.MaxEntries,
	}
}

func (s *MemoryTranscriptStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryTranscriptStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkOpen()
}

// checkOpen 调用方须持有锁
func (s *MemoryTranscriptStore) checkOpen() error {
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryTranscriptStore) AppendTurn(_ context.Context, sessionID string, turn voice.Turn) error {
	if err := validateTurn(sessionID, turn); err != nil {
		return err
	}
	entry := NewEntry(sessionID, turn)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	entries := append(s.sessions[sessionID], entry)
	if s.limit > 0 && len(entries) > s.limit {
		// 拷贝一份，避免底层数组无限增长
		entries = slices.Clone(entries[len(entries)-s.limit:])
	}
	s.sessions[sessionID] = entries
	return nil
}

func (s *MemoryTranscriptStore) ListTurns(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	entries, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return tail(entries, limit), nil
}

func (s *MemoryTranscriptStore) Sessions(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(s.sessions)), nil
}

func (s *MemoryTranscriptStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}
