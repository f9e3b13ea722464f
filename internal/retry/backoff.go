package retry

import (
	"context"
	"time"
)

// Backoff retries an operation with exponentially growing delays. It is used
// only for opening local resources at startup; outbound calls to external
// services are single-attempt throughout.
type Backoff struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
}

// Do runs the operation up to Attempts times, sleeping between attempts and
// honoring context cancellation. The last error is returned when every
// attempt fails.
func (b Backoff) Do(ctx context.Context, operation func() error) error {
	var lastErr error

	delay := b.InitialDelay
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		if attempt == b.Attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * b.Factor)
		if delay > b.MaxDelay {
			delay = b.MaxDelay
		}
	}

	return lastErr
}
