package db

import (
	"context"
	"errors"
	"time"

	"github.com/sdrshn-nmbr/cleancity/internal/storage"
)

// RetryPolicy bounds how often a failed write is attempted again. Delays
// double from BaseDelay up to MaxDelay.
type RetryPolicy struct {
	MaxAttempts uint32
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// NoRetry attempts every operation exactly once.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts == 0 {
		return ErrInvalidRetryPolicy
	}
	if p.BaseDelay <= 0 {
		return ErrInvalidRetryPolicy
	}
	if p.MaxDelay < p.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

func (p RetryPolicy) delay(attempt uint32) time.Duration {
	d := p.BaseDelay
	for i := uint32(1); i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

// do runs fn until it succeeds, returns a permanent error, or the policy
// is exhausted.
func (p RetryPolicy) do(ctx context.Context, fn func() error) error {
	var errs []error
	for attempt := uint32(1); ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		errs = append(errs, err)
		if attempt >= p.MaxAttempts {
			return errors.Join(append([]error{ErrRetriesExhausted}, errs...)...)
		}
		if err := sleepWithContext(ctx, p.delay(attempt)); err != nil {
			return errors.Join(append(errs, err)...)
		}
	}
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, storage.ErrKeyNotFound),
		errors.Is(err, storage.ErrStorageClosed),
		errors.Is(err, storage.ErrInvalidTxn),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
