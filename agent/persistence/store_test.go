package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/voiceagent/agent/voice"
)

func turnAt(seq int) voice.Turn {
	return voice.Turn{
		Seq:           seq,
		UserText:      fmt.Sprintf("question %d", seq),
		AssistantText: fmt.Sprintf("answer %d", seq),
		Source:        voice.SourceFallback,
		Finalized:     true,
		Synthesis:     &voice.SynthesisResult{Success: true, AudioURL: "https://audio.test/x", CharCount: 8},
		Timestamp:     time.Date(2026, 5, 1, 10, 0, seq, 0, time.UTC),
	}
}

// runStoreContract exercises the behavior every backend shares.
func runStoreContract(t *testing.T, store TranscriptStore) {
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})

	t.Run("AppendAndList", func(t *testing.T) {
		for seq := 1; seq <= 3; seq++ {
			require.NoError(t, store.AppendTurn(ctx, "sess-a", turnAt(seq)))
		}
		entries, err := store.ListTurns(ctx, "sess-a", 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		for i, e := range entries {
			assert.Equal(t, i+1, e.Seq)
			assert.Equal(t, "sess-a", e.SessionID)
			assert.NotEmpty(t, e.ID)
			assert.True(t, e.AudioOK)
			assert.Equal(t, 8, e.CharCount)
		}

		last, err := store.ListTurns(ctx, "sess-a", 2)
		require.NoError(t, err)
		require.Len(t, last, 2)
		assert.Equal(t, 2, last[0].Seq)
		assert.Equal(t, 3, last[1].Seq)
	})

	t.Run("RejectsPendingTurn", func(t *testing.T) {
		pending := turnAt(9)
		pending.Finalized = false
		assert.ErrorIs(t, store.AppendTurn(ctx, "sess-a", pending), ErrInvalidInput)
		assert.ErrorIs(t, store.AppendTurn(ctx, "", turnAt(9)), ErrInvalidInput)
	})

	t.Run("SessionsAndDelete", func(t *testing.T) {
		require.NoError(t, store.AppendTurn(ctx, "sess-b", turnAt(1)))
		ids, err := store.Sessions(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"sess-a", "sess-b"}, ids)

		require.NoError(t, store.DeleteSession(ctx, "sess-b"))
		assert.ErrorIs(t, store.DeleteSession(ctx, "sess-b"), ErrNotFound)
		_, err = store.ListTurns(ctx, "sess-b", 0)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryTranscriptStore(t *testing.T) {
	store := NewMemoryTranscriptStore(DefaultStoreConfig())
	defer store.Close()
	runStoreContract(t, store)

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Ping(context.Background()), ErrStoreClosed)
	assert.ErrorIs(t, store.AppendTurn(context.Background(), "s", turnAt(1)), ErrStoreClosed)
}

func TestMemoryTranscriptStore_MaxEntries(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.MaxEntries = 2
	store := NewMemoryTranscriptStore(cfg)
	for seq := 1; seq <= 5; seq++ {
		require.NoError(t, store.AppendTurn(context.Background(), "s", turnAt(seq)))
	}
	entries, err := store.ListTurns(context.Background(), "s", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 4, entries[0].Seq)
}

func TestFileTranscriptStore(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.Type = StoreTypeFile
	cfg.BaseDir = t.TempDir()
	store, err := NewTranscriptStore(cfg)
	require.NoError(t, err)
	defer store.Close()

	runStoreContract(t, store)

	data, err := os.ReadFile(filepath.Join(cfg.BaseDir, "sess-a.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestFileTranscriptStore_RejectsUnsafeSessionID(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.BaseDir = t.TempDir()
	store, err := NewFileTranscriptStore(cfg)
	require.NoError(t, err)

	err = store.AppendTurn(context.Background(), "../escape", turnAt(1))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = os.Stat(filepath.Join(filepath.Dir(cfg.BaseDir), "escape.jsonl"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileTranscriptStore_TextFormat(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.BaseDir = t.TempDir()
	cfg.Format = FormatText
	store, err := NewFileTranscriptStore(cfg)
	require.NoError(t, err)

	require.NoError(t, store.AppendTurn(context.Background(), "s1", turnAt(1)))
	data, err := os.ReadFile(filepath.Join(cfg.BaseDir, textLogName))
	require.NoError(t, err)
	assert.Equal(t,
		"[2026-05-01 10:00:01] User: question 1\n[2026-05-01 10:00:01] Agent: answer 1\n",
		string(data))

	_, err = store.ListTurns(context.Background(), "s1", 0)
	assert.Error(t, err)
}

func TestFileTranscriptStore_BadFormat(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.BaseDir = t.TempDir()
	cfg.Format = "xml"
	_, err := NewFileTranscriptStore(cfg)
	assert.Error(t, err)
}

func setupTestRedis(t *testing.T, cfg StoreConfig) (*miniredis.Miniredis, *RedisTranscriptStore) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg.Type = StoreTypeRedis
	cfg.Redis.Addr = mr.Addr()
	store, err := NewRedisTranscriptStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return mr, store
}

func TestRedisTranscriptStore(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.Redis.TTL = 0
	mr, store := setupTestRedis(t, cfg)
	runStoreContract(t, store)

	assert.True(t, mr.Exists("voiceagent:transcript:session:sess-a"))
	members, err := mr.ZMembers("voiceagent:transcript:sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"sess-a"}, members)
}

func TestRedisTranscriptStore_TTLAndTrim(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.MaxEntries = 2
	cfg.Redis.TTL = time.Minute
	mr, store := setupTestRedis(t, cfg)
	ctx := context.Background()

	for seq := 1; seq <= 4; seq++ {
		require.NoError(t, store.AppendTurn(ctx, "s", turnAt(seq)))
	}
	entries, err := store.ListTurns(ctx, "s", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 3, entries[0].Seq)

	mr.FastForward(2 * time.Minute)
	ids, err := store.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "expired transcripts leave the index")
	_, err = store.ListTurns(ctx, "s", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisTranscriptStore_ConnectFailure(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.Redis.Addr = "127.0.0.1:1"
	_, err := NewRedisTranscriptStore(cfg)
	assert.Error(t, err)
}

func TestRedisTranscriptStore_WithClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := DefaultStoreConfig()
	cfg.Redis.KeyPrefix = "test:"
	store := NewRedisTranscriptStoreWithClient(client, cfg)
	defer store.Close()

	require.NoError(t, store.AppendTurn(context.Background(), "x", turnAt(1)))
	assert.True(t, mr.Exists("test:transcript:session:x"))
}

func TestNewTranscriptStore_Unsupported(t *testing.T) {
	_, err := NewTranscriptStore(StoreConfig{Type: "mongo"})
	assert.Error(t, err)
}

func TestNewEntry_WithoutSynthesis(t *testing.T) {
	turn := turnAt(1)
	turn.Synthesis = nil
	e := NewEntry("s", turn)
	assert.False(t, e.AudioOK)
	assert.Equal(t, "fallback", e.Source)
}
