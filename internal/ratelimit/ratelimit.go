package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one attempt.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts attempts per key in a sliding window. Only admitted attempts
// are recorded, so a blocked client is released once its oldest admitted
// attempt leaves the window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
