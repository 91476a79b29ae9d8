package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/stamp-next/internal/logger"
	"github.com/stamp-next/internal/metrics"
)

const defaultRetryBackoff = 20 * time.Millisecond

// RetryPolicy 会员卡事务并发冲突重试策略
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy 默认重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Backoff: defaultRetryBackoff}
}

// run 执行 fn，遇到 ErrConcurrencyConflict 时按抖动退避重试，超过次数后原样返回冲突错误
func (p RetryPolicy) run(ctx context.Context, operation string, m *metrics.Collector, fn func() error) error {
	backoff := p.Backoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) || attempt >= p.MaxRetries {
			return err
		}
		m.RecordConflictRetry(operation)
		wait := backoff*time.Duration(attempt+1) + rand.N(backoff)
		logger.Debugw("membership_conflict_retry",
			"operation", operation,
			"attempt", attempt+1,
			"wait_ms", wait.Milliseconds(),
			"error", err,
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
