package verify

import (
	"context"
	"time"
)

// Outcome classifies one attempt of a retried operation.
type Outcome int

const (
	// OutcomeSuccess ends the retry loop with a usable result.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable failures are retried while attempts remain.
	OutcomeRetryable
	// OutcomeTerminal failures are final; retrying cannot help.
	OutcomeTerminal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "terminal"
	}
}

// RetryPolicy bounds retries of a flaky operation with exponential backoff.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries three times starting at 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

// Backoff returns the delay before retry n (1-based).
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// Attempt is the typed result of a retried operation.
type Attempt[T any] struct {
	Value    T
	Outcome  Outcome
	Err      error
	Attempts int
}

// Retry runs fn until it succeeds, fails terminally, or the policy is
// exhausted. The last attempt's value and error are returned. A cancelled
// context stops the loop between attempts.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, Outcome, error)) Attempt[T] {
	var last Attempt[T]
	for n := 0; n <= max(p.MaxRetries, 0); n++ {
		if n > 0 {
			if err := sleep(ctx, p.Backoff(n)); err != nil {
				last.Err = err
				return last
			}
		}
		v, out, err := fn(ctx)
		last = Attempt[T]{Value: v, Outcome: out, Err: err, Attempts: n + 1}
		if out != OutcomeRetryable {
			return last
		}
	}
	return last
}

func sleep(ctx context.Context, d time.Duration) error {
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
