package scenarios

import (
	"context"
	"math/rand"
	"time"
)

// Jitter adds random jitter to a duration.
// jitterFraction is between 0.0 (no jitter) and 1.0 (up to 100% jitter)
func Jitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}

	// Random value between [0, jitterFraction]
	jitter := rand.Float64() * jitterFraction

	// Apply jitter: duration * (1 ± jitter)
	multiplier := 1.0 + (jitter * 2.0) - jitterFraction
	return time.Duration(float64(duration) * multiplier)
}

// raceDelay sleeps for a fully jittered mean delay, so that the parent
// sometimes prints before a freshly launched child and sometimes after.
// It is scheduling noise, never synchronization.
func raceDelay(ctx context.Context, mean time.Duration) error {
	if mean <= 0 {
		return nil
	}

	timer := time.NewTimer(Jitter(mean, 1.0))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
