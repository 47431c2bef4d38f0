// Package retry runs idempotent operations with bounded exponential backoff
// and jitter. Non-idempotent calls (model completions that lead to persisted
// turns) must not go through here.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop.
type Policy struct {
	Attempts uint
	Initial  time.Duration
	Max      time.Duration
}

// DefaultPolicy is used for store reads and retrieval calls.
var DefaultPolicy = Policy{Attempts: 3, Initial: 100 * time.Millisecond, Max: 2 * time.Second}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted, or ctx is done.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	if p.Attempts == 0 {
		p.Attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	b.RandomizationFactor = 0.5

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.Attempts),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return res, perm.Err
		}
	}
	return res, err
}
