package utils

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 3, Delay: time.Millisecond, Logger: zerolog.Nop()}

	calls := 0
	err := r.Do("flaky", func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	r := &RetryConfig{MaxAttempts: 2, Delay: time.Millisecond, Logger: zerolog.Nop()}

	calls := 0
	err := r.Do("doomed", func() error {
		calls++
		return fmt.Errorf("permanent")
	})

	assert.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestLinkSetAdd(t *testing.T) {
	s := NewLinkSet()

	assert.True(t, s.Add("https://example.cl/1"))
	assert.False(t, s.Add("https://example.cl/1"))
	assert.True(t, s.Add("https://example.cl/2"))
	assert.True(t, s.Contains("https://example.cl/1"))
	assert.False(t, s.Contains("https://example.cl/3"))
	assert.Equal(t, 2, s.Size())
}
