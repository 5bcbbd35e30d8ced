package remote

import (
	"context"
	"time"
)

// RetryPolicy is the escalating delay schedule for destination resolution.
// The number of attempts equals len(Delays).
type RetryPolicy struct {
	Delays []time.Duration
}

// DefaultRetryPolicy makes three attempts, waiting 11s, 22s and 44s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delays: []time.Duration{11 * time.Second, 22 * time.Second, 44 * time.Second}}
}

// Attempts returns the number of attempts, never fewer than one.
func (p RetryPolicy) Attempts() int {
	if len(p.Delays) == 0 {
		return 1
	}
	return len(p.Delays)
}

// Backoff returns the wait after a failed attempt (0-based). Rate-limited
// attempts wait the base delay scaled by the attempt number. The client never
// waits after the final attempt, even when it was rate limited.
func (p RetryPolicy) Backoff(attempt int, rateLimited bool) time.Duration {
	if attempt < 0 || attempt >= len(p.Delays) {
		return 0
	}
	d := p.Delays[attempt]
	if rateLimited {
		d *= time.Duration(attempt + 1)
	}
	return d
}

// sleeper waits for d or until ctx is done.
type sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
