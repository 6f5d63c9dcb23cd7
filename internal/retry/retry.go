// Package retry wraps adapter calls with exponential backoff.
//
// The wrapper retries only failures the faults package classifies as
// retryable (rate limits and transient unavailability); everything else
// propagates unchanged after the first attempt. Retrying is transparent to
// callers: a call that succeeds on the third attempt returns exactly what an
// immediately-successful call would.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds the retry loop.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Default: 3
	MaxAttempts int

	// InitialBackoff is the wait before the first retry. Doubles on each
	// subsequent retry. Default: 500ms
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff growth. Default: 8s
	MaxBackoff time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (p *Policy) ApplyDefaults() {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff == 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = 8 * time.Second
	}
}

// retryableFunc reports whether an error should be retried. Split out so the
// package does not hard-code the faults import in Do's signature.
type retryableFunc func(error) bool

// Do runs fn, retrying per the policy while isRetryable returns true.
// Cancellation of ctx aborts the wait between attempts.
func Do(ctx context.Context, p Policy, op string, isRetryable retryableFunc, fn func(context.Context) error) error {
	p.ApplyDefaults()

	backoff := p.InitialBackoff
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", op, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, p.MaxAttempts, err)
}
