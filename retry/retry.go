// Package retry drives transaction submission against flaky chain nodes. A
// failed attempt is classified by an ordered rule chain: retryable failures
// re-submit with adjusted gas after a backoff, fatal ones surface
// immediately, and unknown ones are never retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/jpillora/backoff"
)

// Defaults applied by Policy.Submit when the corresponding field is zero.
const (
	DefaultMaxAttempts = 5

	defaultMinBackoff    = 100 * time.Millisecond
	defaultMaxBackoff    = 5 * time.Second
	defaultBackoffFactor = 2
)

// DefaultGasLimitCeiling is the hard cap on the per-transaction gas
// allowance after upward adjustments.
const DefaultGasLimitCeiling = 10_000_000_000

var (
	// ErrRetryExhausted reports that every permitted attempt failed with a
	// retryable error. It wraps the last attempt's error.
	ErrRetryExhausted = errors.New("transaction submission retries exhausted")

	// ErrFatalSubmission reports a failure a rule classified as not worth
	// retrying.
	ErrFatalSubmission = errors.New("fatal transaction submission error")

	// ErrGasLimitExceeded reports that an upward gas adjustment crossed
	// the policy's ceiling, so resubmitting would never be accepted at an
	// acceptable cost.
	ErrGasLimitExceeded = errors.New("adjusted gas limit exceeds ceiling")
)

// Verdict is a rule's opinion about a submission error.
type Verdict int

const (
	// NoOpinion defers to the next rule in the chain.
	NoOpinion Verdict = iota
	// Retryable re-submits after applying the rule's adjustment.
	Retryable
	// Fatal stops immediately; more attempts cannot succeed.
	Fatal
)

func (v Verdict) String() string {
	switch v {
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return "no opinion"
	}
}

// CallOptions are the per-attempt gas tunables of a submission.
type CallOptions struct {
	// GasPrice in wei. Nil lets the node price the transaction.
	GasPrice *big.Int
	// GasLimit is the gas allowance for the transaction.
	GasLimit uint64
}

// Call places a single submission attempt with the given options.
type Call func(ctx context.Context, opts CallOptions) error

// Adjustment mutates the options for the next attempt.
type Adjustment func(*CallOptions)

// Rule classifies one submission error. Rules are consulted in order; the
// first verdict that is not NoOpinion wins.
type Rule interface {
	Evaluate(err error) (Verdict, Adjustment)
}

// Policy bundles the rule chain with the retry budget and backoff curve.
// The zero value retries nothing it does not recognize, makes
// DefaultMaxAttempts attempts and backs off from 100ms with jitter.
type Policy struct {
	Rules []Rule

	// MaxAttempts is the total number of submission attempts, the first
	// one included.
	MaxAttempts uint32

	// GasLimitCeiling caps CallOptions.GasLimit after adjustments. Zero
	// means no ceiling.
	GasLimitCeiling uint64

	MinBackoff    time.Duration
	MaxBackoff    time.Duration
	BackoffFactor float64
}

// Submit runs call until it succeeds, a rule declares the failure fatal, an
// adjustment crosses the gas ceiling, the attempt budget runs out, or ctx is
// done. Errors without a matching rule are terminal on the spot: an unknown
// failure is never silently retried.
func (p Policy) Submit(ctx context.Context, opts CallOptions, call Call) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	b := &backoff.Backoff{
		Min:    p.MinBackoff,
		Max:    p.MaxBackoff,
		Factor: p.BackoffFactor,
		Jitter: true,
	}
	if b.Min == 0 {
		b.Min = defaultMinBackoff
	}
	if b.Max == 0 {
		b.Max = defaultMaxBackoff
	}
	if b.Factor == 0 {
		b.Factor = defaultBackoffFactor
	}

	var lastErr error
	for attempt := uint32(1); attempt <= maxAttempts; attempt++ {
		lastErr = call(ctx, opts)
		if lastErr == nil {
			return nil
		}

		verdict, adjust := p.evaluate(lastErr)
		switch verdict {
		case Fatal:
			return fmt.Errorf("%w: %w", ErrFatalSubmission, lastErr)
		case NoOpinion:
			return fmt.Errorf("submit transaction: %w", lastErr)
		}

		if adjust != nil {
			adjust(&opts)
		}
		if attempt == maxAttempts {
			break
		}
		if p.GasLimitCeiling > 0 && opts.GasLimit > p.GasLimitCeiling {
			return fmt.Errorf("%w: %d > %d", ErrGasLimitExceeded, opts.GasLimit, p.GasLimitCeiling)
		}

		wait := b.Duration()
		slog.Warn("🔄 [Retry] Transaction submission failed, retrying",
			"attempt", attempt, "max_attempts", maxAttempts, "wait", wait, "err", lastErr)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: exhausted %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}

func (p Policy) evaluate(err error) (Verdict, Adjustment) {
	for _, rule := range p.Rules {
		if verdict, adjust := rule.Evaluate(err); verdict != NoOpinion {
			return verdict, adjust
		}
	}
	return NoOpinion, nil
}
