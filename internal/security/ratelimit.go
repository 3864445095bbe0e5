package security

import (
	"log/slog"
	"sync"
	"time"

	"windows-mcp-server/internal/config"
)

// bucket holds the request timestamps for one client inside the trailing
// window. Each bucket has its own lock so contention between distinct
// clients never blocks either.
type bucket struct {
	mu       sync.Mutex
	requests []time.Time
}

// RateLimiter is a sliding-window admission controller keyed by client
// identity. Buckets are created lazily on first request and never
// destroyed; cardinality is bounded by the number of clients.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	logger  *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewRateLimiter builds a limiter from security settings.
func NewRateLimiter(cfg config.SecurityConfig, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		maxRequests: cfg.RateLimitRequests,
		window:      time.Duration(cfg.RateLimitWindow) * time.Second,
		buckets:     make(map[string]*bucket),
		logger:      logger,
		now:         time.Now,
	}
}

func (r *RateLimiter) bucketFor(clientID string) *bucket {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buckets[clientID]
	if !ok {
		b = &bucket{}
		r.buckets[clientID] = b
	}
	return b
}

// IsAllowed prunes expired timestamps, then admits and records the
// request unless the bucket is full. A rejected request is not recorded.
func (r *RateLimiter) IsAllowed(clientID string) bool {
	now := r.now()
	b := r.bucketFor(clientID)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(now.Add(-r.window))

	if len(b.requests) >= r.maxRequests {
		r.logger.Warn("rate limit exceeded", "client_id", clientID, "requests", len(b.requests))
		return false
	}

	b.requests = append(b.requests, now)
	return true
}

// GetRemaining returns how many requests the client may still make in
// the current window.
func (r *RateLimiter) GetRemaining(clientID string) int {
	now := r.now()
	b := r.bucketFor(clientID)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(now.Add(-r.window))

	remaining := r.maxRequests - len(b.requests)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetResetTime returns how long until the oldest retained timestamp
// falls out of the window; zero if the bucket is empty.
func (r *RateLimiter) GetResetTime(clientID string) time.Duration {
	now := r.now()
	b := r.bucketFor(clientID)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.prune(now.Add(-r.window))

	if len(b.requests) == 0 {
		return 0
	}

	reset := b.requests[0].Add(r.window).Sub(now)
	if reset < 0 {
		return 0
	}
	return reset
}

// Reset empties one client's bucket.
func (r *RateLimiter) Reset(clientID string) {
	b := r.bucketFor(clientID)
	b.mu.Lock()
	b.requests = nil
	b.mu.Unlock()
	r.logger.Info("rate limit reset", "client_id", clientID)
}

// ResetAll empties every bucket.
func (r *RateLimiter) ResetAll() {
	r.mu.Lock()
	clients := make([]string, 0, len(r.buckets))
	for clientID := range r.buckets {
		clients = append(clients, clientID)
	}
	r.mu.Unlock()

	for _, clientID := range clients {
		r.Reset(clientID)
	}
	r.logger.Info("all rate limits reset")
}

// prune drops timestamps at or before the cutoff. Timestamps are
// appended in order, so the slice stays sorted.
func (b *bucket) prune(cutoff time.Time) {
	kept := b.requests[:0]
	for _, ts := range b.requests {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.requests = kept
}
