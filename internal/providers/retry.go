package providers

import (
	"context"
	"time"

	"github.com/cloudsync/cloudsync/internal/logger"
	"go.uber.org/zap"
)

// RetryPolicy implements §4.5's shared retry behavior: up to 3
// attempts, exponential backoff starting at 1s and doubling.
//
// Grounded on internal/drivers/retry.go, trimmed to the fixed
// base-1s-doubling schedule §4.5 specifies (no jitter option, since
// the spec names an exact schedule rather than a tunable one).
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Logger       *zap.Logger
}

// DefaultRetryPolicy returns the §4.5 policy: 3 attempts, 1s initial
// delay doubling each attempt.
func DefaultRetryPolicy(log *zap.Logger) *RetryPolicy {
	if log == nil {
		log = logger.Nop()
	}
	return &RetryPolicy{MaxAttempts: 3, InitialDelay: 1 * time.Second, Logger: log}
}

// Execute runs fn, retrying while Retryable(err) and attempts remain.
func (p *RetryPolicy) Execute(ctx context.Context, provider string, fn func() error) error {
	var lastErr error
	delay := p.InitialDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) || attempt == p.MaxAttempts {
			break
		}

		p.Logger.Debug("retrying after transient error",
			logger.Provider(provider), logger.Attempt(attempt), zap.Error(err), zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}

	return lastErr
}
