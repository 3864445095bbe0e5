package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"windows-mcp-server/internal/config"
)

func newTestLimiter(maxRequests, windowSecs int) (*RateLimiter, *time.Time) {
	limiter := NewRateLimiter(config.SecurityConfig{
		RateLimitRequests: maxRequests,
		RateLimitWindow:   windowSecs,
	}, testLogger())

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return current }
	return limiter, &current
}

func TestRateLimiterAdmitsUpToLimit(t *testing.T) {
	limiter, _ := newTestLimiter(3, 60)

	assert.True(t, limiter.IsAllowed("client"))
	assert.True(t, limiter.IsAllowed("client"))
	assert.True(t, limiter.IsAllowed("client"))
	assert.False(t, limiter.IsAllowed("client"))
	assert.Equal(t, 0, limiter.GetRemaining("client"))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	limiter, current := newTestLimiter(2, 60)

	assert.True(t, limiter.IsAllowed("client"))
	*current = current.Add(30 * time.Second)
	assert.True(t, limiter.IsAllowed("client"))
	assert.False(t, limiter.IsAllowed("client"))

	// First request falls out of the window; one slot frees up.
	*current = current.Add(31 * time.Second)
	assert.True(t, limiter.IsAllowed("client"))
	assert.False(t, limiter.IsAllowed("client"))
}

func TestRateLimiterRejectionNotRecorded(t *testing.T) {
	limiter, current := newTestLimiter(1, 60)

	assert.True(t, limiter.IsAllowed("client"))

	// Hammering while limited must not extend the penalty.
	for i := 0; i < 5; i++ {
		assert.False(t, limiter.IsAllowed("client"))
	}

	*current = current.Add(61 * time.Second)
	assert.True(t, limiter.IsAllowed("client"))
}

func TestRateLimiterClientIsolation(t *testing.T) {
	limiter, _ := newTestLimiter(1, 60)

	assert.True(t, limiter.IsAllowed("a"))
	assert.False(t, limiter.IsAllowed("a"))
	assert.True(t, limiter.IsAllowed("b"))
	assert.Equal(t, 0, limiter.GetRemaining("a"))
	assert.Equal(t, 0, limiter.GetRemaining("b"))
}

func TestRateLimiterGetResetTime(t *testing.T) {
	limiter, current := newTestLimiter(5, 60)

	assert.Equal(t, time.Duration(0), limiter.GetResetTime("client"))

	assert.True(t, limiter.IsAllowed("client"))
	assert.Equal(t, 60*time.Second, limiter.GetResetTime("client"))

	*current = current.Add(45 * time.Second)
	assert.Equal(t, 15*time.Second, limiter.GetResetTime("client"))

	*current = current.Add(20 * time.Second)
	assert.Equal(t, time.Duration(0), limiter.GetResetTime("client"))
}

func TestRateLimiterReset(t *testing.T) {
	limiter, _ := newTestLimiter(1, 60)

	assert.True(t, limiter.IsAllowed("client"))
	assert.False(t, limiter.IsAllowed("client"))

	limiter.Reset("client")
	assert.True(t, limiter.IsAllowed("client"))

	// Resetting an unknown client is a no-op, not a panic.
	limiter.Reset("never-seen")
}

func TestRateLimiterResetAll(t *testing.T) {
	limiter, _ := newTestLimiter(1, 60)

	assert.True(t, limiter.IsAllowed("a"))
	assert.True(t, limiter.IsAllowed("b"))
	assert.False(t, limiter.IsAllowed("a"))
	assert.False(t, limiter.IsAllowed("b"))

	limiter.ResetAll()
	assert.True(t, limiter.IsAllowed("a"))
	assert.True(t, limiter.IsAllowed("b"))
}
