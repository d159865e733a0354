package client

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

type RetryPolicy struct {
	MaxAttempts      uint32
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	Jitter           time.Duration
	RetryStatusCodes []int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      4,
		BaseDelay:        50 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		Jitter:           25 * time.Millisecond,
		RetryStatusCodes: []int{429, 500, 502, 503, 504},
	}
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts == 0 {
		return ErrInvalidArgument
	}
	if p.BaseDelay <= 0 {
		return ErrInvalidArgument
	}
	if p.MaxDelay < p.BaseDelay {
		return ErrInvalidArgument
	}
	if len(p.RetryStatusCodes) == 0 {
		return ErrInvalidArgument
	}
	if p.Jitter < 0 {
		return ErrInvalidArgument
	}
	for _, code := range p.RetryStatusCodes {
		if code < 100 || code > 599 {
			return errors.New("invalid status code")
		}
	}
	return nil
}

type retrier struct {
	policy RetryPolicy
	status map[int]struct{}
	rngMu  sync.Mutex
	rng    *rand.Rand
}

func newRetrier(policy RetryPolicy) *retrier {
	status := make(map[int]struct{}, len(policy.RetryStatusCodes))
	for _, code := range policy.RetryStatusCodes {
		status[code] = struct{}{}
	}
	return &retrier{
		policy: policy,
		status: status,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// run calls attempt until it succeeds or the error is not retryable.
// Requests that are not idempotent are retried only on 503 or 429,
// which the server sends after undoing its change.
func (r *retrier) run(ctx context.Context, idempotent bool, attempt func() error) error {
	var lastErr error
	for n := uint32(1); ; n++ {
		err := attempt()
		if err == nil {
			return nil
		}
		lastErr = err
		if !r.shouldRetry(err, idempotent) {
			return err
		}
		if n >= r.policy.MaxAttempts {
			return errors.Join(ErrRetryExhausted, lastErr)
		}
		if err := sleepWithContext(ctx, r.nextDelay(n)); err != nil {
			return err
		}
	}
}

func (r *retrier) shouldRetry(err error, idempotent bool) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrOutOfRange),
		errors.Is(err, ErrCustomerNotFound),
		errors.Is(err, ErrUnsupported),
		errors.Is(err, ErrRequestFailed),
		errors.Is(err, ErrResponseTooLarge):
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if _, ok := r.status[httpErr.StatusCode]; !ok {
			return false
		}
		// The server rolls back before answering 503 and never applies
		// a throttled request.
		return idempotent ||
			httpErr.StatusCode == http.StatusServiceUnavailable ||
			httpErr.StatusCode == http.StatusTooManyRequests
	}
	return idempotent
}

func (r *retrier) nextDelay(attempt uint32) time.Duration {
	delay := r.policy.BaseDelay * (1 << (attempt - 1))
	if delay > r.policy.MaxDelay || delay <= 0 {
		delay = r.policy.MaxDelay
	}
	if r.policy.Jitter > 0 {
		delay += r.randomJitter(r.policy.Jitter)
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

func (r *retrier) randomJitter(maxJitter time.Duration) time.Duration {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	jitter := time.Duration(r.rng.Int63n(int64(maxJitter)))
	return jitter - maxJitter/2
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
