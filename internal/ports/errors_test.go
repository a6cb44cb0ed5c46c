package ports

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestLLMError tests message formatting, unwrapping and retry
// classification of LLMError.
func TestLLMError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := NewLLMError("llama3", "Generate", ErrModelNotFound)

		assert.Equal(t, "LLM error: model=llama3, operation=Generate, err=model not found", err.Error())
		assert.True(t, errors.Is(err, ErrModelNotFound))
		assert.False(t, err.IsRetryable())
	})

	t.Run("with retry after", func(t *testing.T) {
		d := 2 * time.Second
		err := &LLMError{Model: "gpt-4o", Operation: "Generate", Err: ErrRateLimited, RetryAfter: &d}

		assert.Equal(t, "LLM error: model=gpt-4o, operation=Generate, err=rate limited, retry_after=2s", err.Error())
		assert.True(t, err.IsRetryable())
	})

	t.Run("wrapped retryable cause", func(t *testing.T) {
		err := NewLLMError("m", "Generate", fmt.Errorf("dial: %w", ErrServiceUnavailable))
		assert.True(t, err.IsRetryable())

		timeout := NewLLMError("m", "Generate", ErrTimeout)
		assert.True(t, timeout.IsRetryable())

		invalid := NewLLMError("m", "Generate", ErrInvalidResponse)
		assert.False(t, invalid.IsRetryable())
	})
}
