package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("401 unauthorized"), ErrAuth},
		{errors.New("invalid api key provided"), ErrAuth},
		{errors.New("429 too many requests"), ErrRateLimited},
		{errors.New("rate limit exceeded, retry later"), ErrRateLimited},
		{errors.New("400 invalid request: model not found"), ErrInvalidRequest},
		{errors.New("prompt exceeds maximum context length"), ErrInvalidRequest},
		{errors.New("json: cannot unmarshal number"), ErrUnparseable},
		{errors.New("connection reset by peer"), ErrUnavailable},
		{errors.New("something entirely new"), ErrUnavailable},
	}

	for _, tt := range tests {
		got := Classify(tt.err)
		assert.Equal(t, tt.want, got.Kind, "err=%q", tt.err)
	}
}

func TestClassify_PreservesClassifiedErrors(t *testing.T) {
	orig := NewError(ErrRateLimited, "slow down")
	wrapped := fmt.Errorf("request failed: %w", orig)

	got := Classify(wrapped)
	assert.Equal(t, ErrRateLimited, got.Kind)
	assert.Equal(t, "slow down", got.Message)
}

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, NewError(ErrRateLimited, "").Retryable())
	assert.True(t, NewError(ErrUnavailable, "").Retryable())
	assert.False(t, NewError(ErrAuth, "").Retryable())
	assert.False(t, NewError(ErrInvalidRequest, "").Retryable())
	assert.False(t, NewError(ErrUnparseable, "").Retryable())
}

func TestParseModelString(t *testing.T) {
	p, m := ParseModelString("anthropic/claude-sonnet-4-20250514")
	assert.Equal(t, "anthropic", p)
	assert.Equal(t, "claude-sonnet-4-20250514", m)

	p, m = ParseModelString("gpt-4o")
	assert.Empty(t, p)
	assert.Equal(t, "gpt-4o", m)
}
