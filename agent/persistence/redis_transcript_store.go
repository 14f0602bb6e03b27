package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/voiceagent/agent/voice"
	"github.com/BaSui01/voiceagent/internal/tlsutil"
)

// RedisTranscriptStore keeps one Redis list per session plus a sorted set of
// session ids scored by last append. Suitable for multi-instance deployments.
type RedisTranscriptStore struct {
	client    *redis.Client
	keyPrefix string
	config    StoreConfig
}

// NewRedisTranscriptStore connects and pings Redis.
func NewRedisTranscriptStore(config StoreConfig) (*RedisTranscriptStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:      config.Redis.Addr,
		Password:  config.Redis.Password,
		DB:        config.Redis.DB,
		PoolSize:  config.Redis.PoolSize,
		TLSConfig: tlsutil.RedisTLSConfig(config.Redis.TLS),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisTranscriptStoreWithClient(client, config), nil
}

// NewRedisTranscriptStoreWithClient wraps an existing client.
func NewRedisTranscriptStoreWithClient(client *redis.Client, config StoreConfig) *RedisTranscriptStore {
	keyPrefix := config.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "voiceagent:"
	}
	return &RedisTranscriptStore{
		client:    client,
		keyPrefix: keyPrefix + "transcript:",
		config:    config,
	}
}

func (s *RedisTranscriptStore) Close() error {
	return s.client.Close()
}

func (s *RedisTranscriptStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// sessionKey returns the Redis key of a session's entry list
func (s *RedisTranscriptStore) sessionKey(sessionID string) string {
	return s.keyPrefix + "session:" + sessionID
}

// indexKey returns the Redis key of the session index
func (s *RedisTranscriptStore) indexKey() string {
	return s.keyPrefix + "sessions"
}

func (s *RedisTranscriptStore) AppendTurn(ctx context.Context, sessionID string, turn voice.Turn) error {
	if err := validateTurn(sessionID, turn); err != nil {
		return err
	}
	e := NewEntry(sessionID, turn)
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	key := s.sessionKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if n := s.config.MaxEntries; n > 0 {
		pipe.LTrim(ctx, key, int64(-n), -1)
	}
	if ttl := s.config.Redis.TTL; ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(e.Timestamp.UnixNano()),
		Member: sessionID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisTranscriptStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	raw, err := s.client.LRange(ctx, s.sessionKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("corrupt transcript entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Sessions returns session ids, least recently active first. Ids whose list
// has expired are pruned from the index on the way.
func (s *RedisTranscriptStore) Sessions(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}

	pipe := s.client.Pipeline()
	exists := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		exists[i] = pipe.Exists(ctx, s.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	live := ids[:0]
	var stale []any
	for i, id := range ids {
		if exists[i].Val() > 0 {
			live = append(live, id)
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		s.client.ZRem(ctx, s.indexKey(), stale...)
	}
	return live, nil
}

func (s *RedisTranscriptStore) DeleteSession(ctx context.Context, sessionID string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}
