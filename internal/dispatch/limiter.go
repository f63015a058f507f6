package dispatch

import "context"

// Limiter is a counting permit pool bounding simultaneous in-flight provider
// calls process-wide. Blocking on Acquire is the sole backpressure mechanism
// protecting the external provider.
type Limiter struct {
	permits chan struct{}
}

// NewLimiter creates a limiter with n permits.
func NewLimiter(n int) *Limiter {
	return &Limiter{permits: make(chan struct{}, n)}
}

// Acquire blocks until a permit is available or the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit. It never blocks.
func (l *Limiter) Release() {
	select {
	case <-l.permits:
	default:
		// Release without a matching Acquire is a programming error;
		// dropping it keeps the pool size correct.
	}
}

// InFlight returns the number of permits currently held.
func (l *Limiter) InFlight() int {
	return len(l.permits)
}
