package search

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates outgoing search requests
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewIntervalLimiter lets the first request through immediately and spaces
// every later one at least interval after the previous.
func NewIntervalLimiter(interval time.Duration) Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}
