package utils

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle keeps at least Interval between the end of one request and the
// start of the next, whatever the outcome of the previous request. It is a
// fixed pause, not a back-off. A Throttle is not safe for concurrent use.
type Throttle struct {
	Interval time.Duration
	limiter  *rate.Limiter
}

// NewThrottle creates a Throttle. A non-positive interval never waits.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{
		Interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Wait blocks until the next request may start.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// Done marks the end of a request. The next Wait returns no earlier than
// Interval from now.
func (t *Throttle) Done() {
	if t.Interval <= 0 {
		return
	}
	// re-anchor on a fresh limiter whose only token is spent now
	t.limiter = rate.NewLimiter(rate.Every(t.Interval), 1)
	t.limiter.Allow()
}
