package persistence

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/voiceagent/agent/voice"
)

const textLogName = "conversation_log.txt"

// FileTranscriptStore appends transcripts to files under BaseDir. Suitable
// for single-node deployments and the command-line client.
type FileTranscriptStore struct {
	baseDir string
	format  FileFormat
	mu      sync.Mutex
	closed  bool
}

// NewFileTranscriptStore creates the directory if needed.
func NewFileTranscriptStore(config StoreConfig) (*FileTranscriptStore, error) {
	format := config.Format
	if format == "" {
		format = FormatJSONL
	}
	if format != FormatJSONL && format != FormatText {
		return nil, fmt.Errorf("unsupported transcript file format: %s", format)
	}
	if err := os.MkdirAll(config.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}
	return &FileTranscriptStore{baseDir: config.BaseDir, format: format}, nil
}

func (s *FileTranscriptStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *FileTranscriptStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.baseDir)
	return err
}

func (s *FileTranscriptStore) AppendTurn(ctx context.Context, sessionID string, turn voice.Turn) error {
	if err := validateTurn(sessionID, turn); err != nil {
		return err
	}
	if !voice.ValidSessionID(sessionID) {
		return fmt.Errorf("%w: session id %q", ErrInvalidInput, sessionID)
	}
	e := NewEntry(sessionID, turn)

	var data []byte
	path := s.sessionPath(sessionID)
	if s.format == FormatText {
		path = filepath.Join(s.baseDir, textLogName)
		ts := e.Timestamp.Format("2006-01-02 15:04:05")
		data = fmt.Appendf(nil, "[%s] User: %s\n[%s] Agent: %s\n", ts, e.UserText, ts, e.AssistantText)
	} else {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry: %w", err)
		}
		data = append(line, '\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (s *FileTranscriptStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if s.format == FormatText {
		return nil, errors.New("text transcripts cannot be listed")
	}
	if !voice.ValidSessionID(sessionID) {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	f, err := os.Open(s.sessionPath(sessionID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("corrupt transcript %s: %w", sessionID, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return tail(entries, limit), nil
}

func (s *FileTranscriptStore) Sessions(ctx context.Context) ([]string, error) {
	if s.format == FormatText {
		return nil, nil
	}
	matches, err := filepath.Glob(filepath.Join(s.baseDir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(filepath.Base(m), ".jsonl"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileTranscriptStore) DeleteSession(ctx context.Context, sessionID string) error {
	if s.format == FormatText || !voice.ValidSessionID(sessionID) {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.sessionPath(sessionID))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

func (s *FileTranscriptStore) sessionPath(sessionID string) string {
	return filepath.Join(s.baseDir, sessionID+".jsonl")
}
