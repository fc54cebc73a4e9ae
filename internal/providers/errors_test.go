package providers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&ConnectivityError{Provider: "s3"}))
	assert.True(t, Retryable(&RateLimitedError{Provider: "s3"}))
	assert.True(t, Retryable(&WireError{Provider: "s3", StatusCode: 500}))
	assert.True(t, Retryable(&WireError{Provider: "s3", StatusCode: 301}))
	assert.True(t, Retryable(&WireError{Provider: "s3", StatusCode: 307}))
	assert.False(t, Retryable(&WireError{Provider: "s3", StatusCode: 403}))
	assert.False(t, Retryable(&NotFoundError{Provider: "s3"}))
	assert.False(t, Retryable(&AuthError{Provider: "s3"}))
	assert.False(t, Retryable(fmt.Errorf("plain error")))
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, (&ConfigurationError{Provider: "s3", Cause: fmt.Errorf("x")}).Error(), "configuration error")
	assert.Contains(t, (&AuthError{Provider: "azure", Cause: fmt.Errorf("x")}).Error(), "authentication failed")
	assert.Contains(t, (&NotFoundError{Provider: "gcs", Name: "a.md"}).Error(), "a.md")
	assert.Contains(t, (&CancelledError{Provider: "s3"}).Error(), "cancelled")
	assert.Contains(t, (&MergeError{Name: "a.md", Cause: fmt.Errorf("binary")}).Error(), "a.md")
}
