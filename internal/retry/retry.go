// Package retry implements the engine's retry policies: None, FixedDelay,
// and Exponential-with-jitter, grounded in mbflow's executor/retry.go
// (policy shape, per-node config extraction) but using math/rand/v2 for
// jitter instead of mbflow's UnixNano-modulo hack, and implementing the
// spec's exact jitter formula: next delay multiplied by a uniform random
// value in [1-jitter, 1+jitter], rather than an ad hoc percentage bump.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/flowcore/flowcore/internal/errs"
)

// Policy decides how many attempts to make and how long to wait between
// them. Implementations must be safe for concurrent use by value (no
// shared mutable state besides the fields themselves).
type Policy interface {
	// MaxAttempts returns the total number of attempts, including the
	// first. A policy with MaxAttempts()==1 never retries.
	MaxAttempts() int
	// DelayFor returns the delay to wait before the given retry attempt
	// (attempt is 1 for the first retry, i.e. the delay before the 2nd
	// call overall).
	DelayFor(attempt int) time.Duration
}

// NonePolicy never retries.
type NonePolicy struct{}

func (NonePolicy) MaxAttempts() int                 { return 1 }
func (NonePolicy) DelayFor(attempt int) time.Duration { return 0 }

// FixedDelay retries up to MaxAttempts times, waiting Delay between each.
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts_ int
}

func (f FixedDelay) MaxAttempts() int                 { return f.MaxAttempts_ }
func (f FixedDelay) DelayFor(attempt int) time.Duration { return f.Delay }

// Exponential retries with delay = min(Cap, Base*Factor^(attempt-1)),
// perturbed by Jitter (a value in [0,1], multiplying the delay by a
// uniform random draw in [1-Jitter, 1+Jitter]).
type Exponential struct {
	Base        time.Duration
	Factor      float64
	Cap         time.Duration
	MaxAttempts_ int
	Jitter      float64
}

func (e Exponential) MaxAttempts() int { return e.MaxAttempts_ }

func (e Exponential) DelayFor(attempt int) time.Duration {
	factor := e.Factor
	if factor <= 0 {
		factor = 2
	}
	base := float64(e.Base) * math.Pow(factor, float64(attempt-1))
	if e.Cap > 0 && base > float64(e.Cap) {
		base = float64(e.Cap)
	}
	if base < 0 {
		base = 0
	}
	if e.Jitter <= 0 {
		return time.Duration(base)
	}
	j := e.Jitter
	if j > 1 {
		j = 1
	}
	// uniform in [1-j, 1+j]
	spread := rand.Float64()*2*j + (1 - j)
	return time.Duration(base * spread)
}

// Sequence walks a Policy's delays attempt by attempt.
type Sequence struct {
	policy  Policy
	attempt int
}

// NewSequence returns an iterator over policy's retry delays.
func NewSequence(policy Policy) *Sequence {
	return &Sequence{policy: policy}
}

// Next returns the next delay and whether a retry attempt remains.
func (s *Sequence) Next() (time.Duration, bool) {
	s.attempt++
	if s.attempt >= s.policy.MaxAttempts() {
		return 0, false
	}
	return s.policy.DelayFor(s.attempt), true
}

// circuitOpenRecheckInterval is how long Execute waits before asking a
// tripped breaker again. It is deliberately short and independent of the
// bound Policy: a CircuitOpen short-circuits the policy's own backoff
// rather than being subject to it.
const circuitOpenRecheckInterval = 50 * time.Millisecond

// Executor runs a function under a Policy, retrying retryable failures
// (per errs.IsRetryable) and giving up immediately on anything else.
type Executor struct {
	Policy Policy
}

// NewExecutor builds an Executor bound to policy. A nil policy behaves as
// NonePolicy.
func NewExecutor(policy Policy) *Executor {
	if policy == nil {
		policy = NonePolicy{}
	}
	return &Executor{Policy: policy}
}

// Execute invokes fn, retrying per the bound policy. Non-retryable errors
// are returned immediately with an "attempts" context frame recording how
// many calls were made. Exhausted retries return the last error with the
// same frame.
//
// Two kinds get special handling rather than falling into the generic
// retryable branch: CircuitOpen short-circuits the policy entirely and
// retries on a fixed recheck interval without consuming one of
// MaxAttempts, since the breaker's own cooldown (not the retry policy)
// decides when the next real attempt is allowed. RateLimited consumes an
// attempt as usual but waits at least its advertised "retry_after" field,
// lengthening the policy's delay rather than shortening it.
func (x *Executor) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	max := x.Policy.MaxAttempts()
	if max < 1 {
		max = 1
	}
	var lastErr error
	attempt := 1
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = annotateAttempt(err, attempt)

		if kind, ok := errs.KindOf(err); ok && kind == errs.KindCircuitOpen {
			select {
			case <-ctx.Done():
				return annotateAttempts(lastErr, attempt)
			case <-time.After(circuitOpenRecheckInterval):
				continue
			}
		}

		if !errs.IsRetryable(err) {
			return annotateAttempts(lastErr, attempt)
		}
		if attempt >= max {
			return annotateAttempts(lastErr, attempt)
		}

		delay := retryDelay(err, x.Policy.DelayFor(attempt))
		select {
		case <-ctx.Done():
			return annotateAttempts(lastErr, attempt)
		case <-time.After(delay):
		}
		attempt++
	}
}

// retryDelay returns policyDelay, lengthened to err's advertised
// retry-after when err is RateLimited and that field exceeds it.
func retryDelay(err error, policyDelay time.Duration) time.Duration {
	fe, ok := err.(*errs.Error)
	if !ok || fe.Kind != errs.KindRateLimited {
		return policyDelay
	}
	raw, ok := fe.Field("retry_after")
	if !ok {
		return policyDelay
	}
	retryAfter, ok := raw.(time.Duration)
	if !ok || retryAfter <= policyDelay {
		return policyDelay
	}
	return retryAfter
}

func annotateAttempt(err error, attempt int) error {
	if fe, ok := err.(*errs.Error); ok {
		return fe.WithContext("attempt", attempt)
	}
	return err
}

func annotateAttempts(err error, attempts int) error {
	if fe, ok := err.(*errs.Error); ok {
		return fe.WithContext("attempts", attempts)
	}
	return err
}
