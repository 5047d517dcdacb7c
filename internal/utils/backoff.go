package utils

import (
	"context"
	"math/rand"
	"time"
)

// Backoff retries with exponential delay plus up to base/2 of jitter.
type Backoff struct {
	base     time.Duration
	attempts int
}

func NewBackoff(base time.Duration, attempts int) Backoff {
	if attempts < 1 {
		attempts = 1
	}
	return Backoff{base: base, attempts: attempts}
}

// Do calls fn until it succeeds, attempts run out or ctx is done. It returns the
// last error from fn, or ctx's error when cancelled while waiting.
func (b Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	var err error
	for i := 0; i < b.attempts; i++ {
		if err = fn(i); err == nil {
			return nil
		}
		if i == b.attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Delay(i)):
		}
	}
	return err
}

func (b Backoff) Delay(attempt int) time.Duration {
	d := time.Duration(1<<attempt) * b.base
	if half := int64(b.base / 2); half > 0 {
		d += time.Duration(rand.Int63n(half))
	}
	return d
}
