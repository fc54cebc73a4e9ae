package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_SucceedsAfterTransientFailures(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Logger: nopLoggerForTest()}
	attempts := 0
	err := p.Execute(context.Background(), "s3", func() error {
		attempts++
		if attempts < 3 {
			return &ConnectivityError{Provider: "s3"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryPolicy_GivesUpAfterMaxAttempts(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 2, InitialDelay: time.Millisecond, Logger: nopLoggerForTest()}
	attempts := 0
	err := p.Execute(context.Background(), "s3", func() error {
		attempts++
		return &ConnectivityError{Provider: "s3"}
	})
	require.Error(t, err)
	require.Equal(t, 2, attempts)
}

func TestRetryPolicy_DoesNotRetryNonRetryable(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Logger: nopLoggerForTest()}
	attempts := 0
	err := p.Execute(context.Background(), "s3", func() error {
		attempts++
		return &AuthError{Provider: "s3"}
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestRetryPolicy_RespectsCancellation(t *testing.T) {
	p := &RetryPolicy{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, Logger: nopLoggerForTest()}
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := p.Execute(ctx, "s3", func() error {
		attempts++
		return &ConnectivityError{Provider: "s3"}
	})
	require.Error(t, err)
}
