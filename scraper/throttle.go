package scraper

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// throttle spaces pages so that delay elapses between the end of one
// fetch and the start of the next. Token accrual is frozen while a fetch
// is in flight, so a slow page does not earn the next one a free start.
type throttle struct {
	limiter *rate.Limiter
	limit   rate.Limit
}

func newThrottle(delay time.Duration) *throttle {
	if delay <= 0 {
		return &throttle{}
	}
	limit := rate.Every(delay)
	return &throttle{limiter: rate.NewLimiter(limit, 1), limit: limit}
}

// Wait blocks until the next page may start. The first call returns at
// once.
func (t *throttle) Wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	t.limiter.SetLimit(0)
	return nil
}

// Done marks the end of a fetch; the delay runs from here.
func (t *throttle) Done() {
	if t.limiter == nil {
		return
	}
	t.limiter.SetLimit(t.limit)
}
