package llm

import (
	"context"
	"time"
)

// RetryPolicy is a bounded retry with exponential backoff, attachable to
// any external-call site (model requests, search, mail delivery).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy retries twice after the initial attempt with delays
// of 2s and 4s.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}

// Do invokes fn until it succeeds, the attempt budget is exhausted, or the
// context is done. The last error is returned on failure. A zero policy
// invokes fn exactly once.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	delay := p.BaseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
