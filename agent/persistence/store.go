package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("transcript not found")
	ErrStoreClosed  = errors.New("transcript store is closed")
	ErrInvalidInput = errors.New("only finalized turns with a session id can be recorded")
)

// StoreType 会话记录后端
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
)

// FileFormat file 后端的落盘格式
type FileFormat string

const (
	// FormatJSONL 每个会话一个文件，每行一条 JSON
	FormatJSONL FileFormat = "jsonl"
	// FormatText 所有会话追加到同一个 "[time] Speaker: message" 文本日志
	FormatText FileFormat = "text"
)

// StoreConfig 由 config.TranscriptLogConfig 映射而来
type StoreConfig struct {
	Type    StoreType
	BaseDir string
	Format  FileFormat
	// MaxEntries 每个会话保留的条数（memory 与 redis），0 不限
	MaxEntries int
	Redis      RedisStoreConfig
}

// RedisStoreConfig redis 后端连接参数
type RedisStoreConfig struct {
	Addr      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
	// TTL 自会话最后一次写入起算，0 为永不过期
	TTL time.Duration
	TLS bool
}

// DefaultStoreConfig 进程内存储；redis 参数指向本机
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/transcripts",
		Format:  FormatJSONL,
		Redis: RedisStoreConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "voiceagent:",
			TTL:       24 * time.Hour,
		},
	}
}

// Store 所有后端共有的生命周期方法
type Store interface {
	Close() error
	// Ping 检查后端可用，用于 /ready 与 doctor
	Ping(ctx context.Context) error
}

// NewTranscriptStore 按 Type 创建后端，空值视为 memory
func NewTranscriptStore(config StoreConfig) (TranscriptStore, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryTranscriptStore(config), nil
	case StoreTypeFile:
		return NewFileTranscriptStore(config)
	case StoreTypeRedis:
		return NewRedisTranscriptStore(config)
	}
	return nil, fmt.Errorf("unsupported transcript store type %q", config.Type)
}
