// Package apperr classifies errors by taxonomy, not by underlying type, per
// the core's error-handling design: transient I/O, bad input, contract
// violations, invariant breaches, and fatal startup failures. Every
// component wraps errors crossing its boundary with one of these kinds so
// workers can decide whether to retry, log-and-continue, or escalate.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Kind is one of the five error taxonomies of spec.md §7.
type Kind string

const (
	Transient         Kind = "transient"          // cache miss, db timeout, HTTP 5xx — retry with jittered backoff
	BadInput          Kind = "bad_input"           // invalid OHLC, negative volume, SL=0 — reject, no retry
	ContractViolation Kind = "contract_violation"  // broker/EA breaks its contract — alarm, count toward circuit breaker
	InvariantBreach   Kind = "invariant_breach"    // two active signals for one key, negative balance — ERROR log, abort iteration
	Fatal             Kind = "fatal"               // persistence unreachable at startup — process exits non-zero
)

// Error wraps an underlying cause with its taxonomy and a reason code the
// decision log can key off.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified error.
func New(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Wrap classifies err with the given kind and reason, returning nil for a
// nil err.
func Wrap(kind Kind, reason string, err error) error {
	if err == nil {
		return nil
	}
	return New(kind, reason, err)
}

// KindOf extracts the Kind of err, defaulting to Transient for unclassified
// errors so callers always have a taxonomy to branch on.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Transient
}

// Retryable reports whether the worker loop should retry this error inline
// (bounded, jittered) before escalating to the decision log.
func Retryable(err error) bool {
	return KindOf(err) == Transient
}

// MaxAttempts is spec.md §7's bound on inline retries for a transient error
// before the worker gives up and escalates to the decision log.
const MaxAttempts = 3

const baseBackoff = 100 * time.Millisecond

// Retry runs fn up to MaxAttempts times. A non-Transient error (per
// Retryable) returns immediately without consuming further attempts — only
// I/O-shaped failures are worth re-trying inline. Between attempts it sleeps
// an exponentially growing, jittered backoff so a cluster of workers hitting
// the same dependency doesn't retry in lockstep. The final attempt's error is
// returned unwrapped so the caller can still classify and escalate it.
func Retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !Retryable(err) || attempt == MaxAttempts {
			return err
		}
		delay := baseBackoff * time.Duration(1<<uint(attempt-1))
		delay += time.Duration(rand.Int63n(int64(delay)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
