package external

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxThrottleDelay caps how far apart range calls can be pushed.
const maxThrottleDelay = 5 * time.Second

// Throttle spaces successive upstream calls. Every backoff the fetcher
// actually serves is recorded here, and the spacing only ever grows:
// once the API has pushed back there is no reason to speed up again
// within the same process.
type Throttle struct {
	mu      sync.Mutex
	delay   time.Duration
	limiter *rate.Limiter
}

func NewThrottle() *Throttle {
	return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
}

// Wait blocks until the next call is allowed to go out.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}

// RecordBackoff widens the spacing to match a backoff the fetcher just
// served, clamped at maxThrottleDelay. Smaller values are ignored.
func (t *Throttle) RecordBackoff(d time.Duration) {
	if d > maxThrottleDelay {
		d = maxThrottleDelay
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if d <= t.delay {
		return
	}
	t.delay = d
	t.limiter.SetLimit(rate.Every(d))
	fmt.Printf("[FETCH] Throttle raised to %s between range calls\n", d)
}

// CurrentDelay reports the spacing currently enforced between calls.
func (t *Throttle) CurrentDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}
