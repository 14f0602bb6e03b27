package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

const jitterFraction = 0.25

type backoffRetryer struct {
	policy RetryPolicy
	logger *zap.Logger
}

// NewBackoffRetryer 按策略构造重试器。policy 为 nil 时重试一次。
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) Retryer {
	p := RetryPolicy{MaxRetries: 1}
	if policy != nil {
		p = *policy
	}
	p.MaxRetries = max(p.MaxRetries, 0)
	p.InitialDelay = max(p.InitialDelay, 0)
	p.MaxDelay = max(p.MaxDelay, p.InitialDelay)
	p.Multiplier = max(p.Multiplier, 1)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &backoffRetryer{policy: p, logger: logger.Named("retry")}
}

func (r *backoffRetryer) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := r.policy.MaxRetries + 1

	err := fn(ctx, 1)
	for attempt := 2; err != nil && attempt <= attempts; attempt++ {
		if !r.retryable(err) {
			r.logger.Debug("error not retryable", zap.Error(err))
			return err
		}

		delay := r.delay(attempt - 1)
		r.logger.Debug("retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if r.policy.OnRetry != nil {
			r.policy.OnRetry(attempt, err, delay)
		}
		if werr := wait(ctx, delay); werr != nil {
			return fmt.Errorf("retry cancelled: %w", werr)
		}

		if err = fn(ctx, attempt); err == nil {
			r.logger.Debug("retry succeeded", zap.Int("attempt", attempt))
		}
	}

	if err != nil && attempts > 1 && r.retryable(err) {
		r.logger.Warn("retries exhausted", zap.Int("attempts", attempts), zap.Error(err))
	}
	return err
}

// wait 睡眠 d；d 为 0 时只检查 ctx
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// delay 第 n 次重试前的等待：InitialDelay * Multiplier^(n-1)，不超过 MaxDelay
func (r *backoffRetryer) delay(n int) time.Duration {
	base := float64(r.policy.InitialDelay)
	if base == 0 {
		return 0
	}
	d := min(base*math.Pow(r.policy.Multiplier, float64(n-1)), float64(r.policy.MaxDelay))
	if r.policy.Jitter {
		d += (rand.Float64()*2 - 1) * jitterFraction * d
	}
	return time.Duration(max(d, base))
}

func (r *backoffRetryer) retryable(err error) bool {
	return r.policy.Retryable == nil || r.policy.Retryable(err)
}
