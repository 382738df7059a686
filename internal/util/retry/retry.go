// Package retry retries idempotent relay calls that failed transiently.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"healthrelay/internal/domain"
)

// Policy bounds the retries of one call.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// DefaultPolicy retries up to four times, starting at 250ms.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxRetries:      4,
	}
}

// Do runs fn until it succeeds, fails with a non-transient error, the
// retries are exhausted or ctx ends. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)
	return backoff.Retry(func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if domain.KindOf(err) != domain.KindTransient {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
