// Package retry wraps single remote operations with exponential-backoff
// retry for transient failures.
package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// Policy describes how a remote call is retried. The zero value is not
// useful; construct with NewPolicy or fill the fields explicitly.
type Policy struct {
	// MaxAttempts is the total number of invocations, initial attempt
	// included. Values below 1 behave as 1.
	MaxAttempts int

	// InitialDelay is the wait before the first retry; each further
	// wait is the previous one times Multiplier.
	InitialDelay time.Duration
	Multiplier   float64

	// Retryable decides whether a failure is worth another attempt.
	// A nil filter falls back to DefaultRetryable. Content conflicts
	// (duplicate, exists) are classified outcome values, not errors,
	// so they never reach this filter.
	Retryable func(error) bool

	Logger *slog.Logger
}

// NewPolicy returns a policy with the given bounds and the default
// transport-level retry filter.
func NewPolicy(maxAttempts int, initialDelay time.Duration, multiplier float64) *Policy {
	return &Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		Multiplier:   multiplier,
	}
}

// Do executes op, retrying qualifying failures with delays
// d, d*m, d*m², … until MaxAttempts invocations have been made. The
// last failure is returned unchanged. Waits end early when ctx is
// cancelled; the wait never blocks unrelated operations.
func (p *Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	retryable := p.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if p.Logger != nil {
			p.Logger.Warn("retrying after failure", "error", err, "wait", wait)
		}
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	return backoff.RetryNotify(wrapped, bo, notify)
}

// DefaultRetryable treats transport-layer conditions as transient:
// network errors, timeouts, connection resets, truncated responses.
func DefaultRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
