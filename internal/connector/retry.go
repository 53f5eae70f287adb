package connector

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
)

// RetryPolicy is the exponential backoff applied to outbound platform calls.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int // retries after the first attempt
}

// DefaultRetryPolicy returns 500ms doubling up to 8s, three retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second, MaxRetries: 3}
}

// hintedBackOff honours a server Retry-After hint when it is longer than the
// computed exponential delay.
type hintedBackOff struct {
	*backoff.ExponentialBackOff
	hint time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.ExponentialBackOff.NextBackOff()
	if next != backoff.Stop && b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}

// Retry runs op until it succeeds, returns a non-transient error, the retry
// budget is spent, or ctx ends. Typed errors from op are returned unchanged.
func Retry[T any](ctx context.Context, p RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.2
	b := &hintedBackOff{ExponentialBackOff: eb}

	logger := zerolog.Ctx(ctx)
	v, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		var ae *APIError
		if errors.As(err, &ae) && ae.RetryAfter > 0 {
			b.hint = ae.RetryAfter
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug().Err(err).Dur("retry_in", next).Msg("transient platform error, retrying")
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return v, err
}
