// Package retry 为上游调用提供重试。推理调用使用 SingleImmediateRetry：
// 仅对瞬时错误立即再试一次，不做退避等待。
package retry

import (
	"context"
	"time"
)

// RetryPolicy 重试策略。InitialDelay 为 0 表示立即重试。
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Multiplier 指数退避倍数，小于 1 按 1 处理
	Multiplier float64
	// Jitter 在计算出的延迟上加 ±25% 抖动
	Jitter bool
	// Retryable 为 nil 时任何错误都重试
	Retryable func(err error) bool
	// OnRetry 在每次重试前调用，attempt 为即将开始的尝试序号
	OnRetry func(attempt int, err error, delay time.Duration)
}

// SingleImmediateRetry 最多一次、无等待的重试
func SingleImmediateRetry(retryable func(error) bool) *RetryPolicy {
	return &RetryPolicy{MaxRetries: 1, Multiplier: 1, Retryable: retryable}
}

// Retryer 执行 fn，失败时按策略重试。attempt 从 1 开始。
type Retryer interface {
	Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error
}

// DoWithResult 同 Retryer.Do，并带回成功那次调用的返回值。失败时返回零值。
func DoWithResult[T any](ctx context.Context, r Retryer, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context, attempt int) (err error) {
		out, err = fn(ctx, attempt)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
