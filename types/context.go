package types

import "context"

// contextKey context 值的键类型
type contextKey string

const (
	keyRequestID contextKey = "request_id"
	keySessionID contextKey = "session_id"
	keyTurnSeq   contextKey = "turn_seq"
)

// WithRequestID 把请求 ID 写入 context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

// RequestID 从 context 读取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRequestID).(string)
	return v, ok && v != ""
}

// WithSessionID 把会话 ID 写入 context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, keySessionID, sessionID)
}

// SessionID 从 context 读取会话 ID
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keySessionID).(string)
	return v, ok && v != ""
}

// WithTurnSeq 写入当前处理轮次的序号
func WithTurnSeq(ctx context.Context, seq int) context.Context {
	return context.WithValue(ctx, keyTurnSeq, seq)
}

// TurnSeq 从 context 读取轮次序号
func TurnSeq(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(keyTurnSeq).(int)
	return v, ok
}
