package client

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryOptions controls DialRetry.
type RetryOptions struct {
	// MaxElapsed stops retrying once this much time has passed. Zero retries
	// until ctx ends.
	MaxElapsed time.Duration
	// OnRetry is called before each wait with the failure and the delay.
	OnRetry func(err error, next time.Duration)
}

// DialRetry dials addr until a snapshot arrives. Connect and socket failures
// are retried with exponential backoff. A malformed snapshot is returned
// immediately since the server would send the same one again.
func DialRetry(ctx context.Context, addr string, ro RetryOptions, opts ...Option) (*Client, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(ro.MaxElapsed),
	}
	if ro.OnRetry != nil {
		retryOpts = append(retryOpts, backoff.WithNotify(ro.OnRetry))
	}

	return backoff.Retry(ctx, func() (*Client, error) {
		c, err := Dial(ctx, addr, opts...)
		if err != nil && !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return c, err
	}, retryOpts...)
}

func retryable(err error) bool {
	return errors.Is(err, ErrConnect) || errors.Is(err, ErrSocketIO)
}
