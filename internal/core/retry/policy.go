// Package retry holds the bounded retry policy shared by the watchdog and
// the chat bridge's event stream reconnects.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/neilberkman/groupsum/internal/core/clock"
)

// ErrExhausted is returned by Do once every attempt has failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy bounds how many times an operation is attempted and how long to
// wait before each retry. Attempts are numbered from 1.
type Policy struct {
	MaxAttempts int
	Delay       func(attempt int) time.Duration
}

// Constant waits d before every retry.
func Constant(max int, d time.Duration) Policy {
	return Policy{MaxAttempts: max, Delay: func(int) time.Duration { return d }}
}

// Exponential doubles from base up to ceiling.
func Exponential(max int, base, ceiling time.Duration) Policy {
	return Policy{MaxAttempts: max, Delay: func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= ceiling {
				return ceiling
			}
		}
		return d
	}}
}

// Allow reports whether attempt number n may run. A zero MaxAttempts
// means unbounded.
func (p Policy) Allow(n int) bool {
	return p.MaxAttempts <= 0 || n <= p.MaxAttempts
}

// Wait returns the delay before attempt n.
func (p Policy) Wait(n int) time.Duration {
	if p.Delay == nil || n <= 1 {
		return 0
	}
	return p.Delay(n - 1)
}

// Do runs fn until it succeeds, the policy is exhausted or ctx ends. The
// last error is joined with ErrExhausted when attempts run out.
func (p Policy) Do(ctx context.Context, c clock.Clock, fn func(ctx context.Context, attempt int) error) error {
	var last error
	for n := 1; p.Allow(n); n++ {
		if err := clock.Sleep(ctx, c, p.Wait(n)); err != nil {
			return err
		}
		if last = fn(ctx, n); last == nil {
			return nil
		}
	}
	return errors.Join(ErrExhausted, last)
}
