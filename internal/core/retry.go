package core

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is an exponential backoff schedule for external calls.
type RetryPolicy struct {
	Attempts   int           // total attempts, including the first
	Initial    time.Duration // wait after the first failure
	Max        time.Duration // cap on any single wait
	Multiplier float64

	// newTimer builds the wait timer of one Retry call. Tests replace it.
	newTimer func() backoff.Timer
}

// DefaultRetryPolicy is used for table extraction: 3 attempts, 1s then 2s.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:   3,
	Initial:    time.Second,
	Max:        5 * time.Second,
	Multiplier: 2,
}

// exponential returns a fresh, jitter-free backoff for the policy.
func (p RetryPolicy) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.Multiplier = max(p.Multiplier, 1)
	b.MaxInterval = p.Max
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	b := p.exponential()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Retryable reports whether err is worth another attempt: quality failures and
// external service errors are, cancellation and everything else are not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return IsQualityError(err) || IsExternal(err)
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempts are used up. fn receives the 1-based attempt number and the error
// of the previous attempt. Returns the number of attempts made and the last
// error.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int, prior error) error) (int, error) {
	var schedule backoff.BackOff = &backoff.StopBackOff{}
	if p.Attempts > 1 {
		schedule = backoff.WithMaxRetries(p.exponential(), uint64(p.Attempts-1))
	}
	b := backoff.WithContext(schedule, ctx)

	var timer backoff.Timer
	if p.newTimer != nil {
		timer = p.newTimer()
	}

	var (
		attempt int
		last    error
	)
	op := func() error {
		attempt++
		err := fn(ctx, attempt, last)
		if err == nil {
			return nil
		}
		last = err
		if ctx.Err() != nil || !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	// A cancelled wait surfaces as ctx.Err(); the caller wants the error of
	// the last attempt instead.
	if err := backoff.RetryNotifyWithTimer(op, b, nil, timer); err != nil {
		return attempt, last
	}
	return attempt, nil
}
