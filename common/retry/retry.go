package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrExhausted is returned once a transient failure survives every allowed
// attempt. It wraps the last underlying failure.
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy controls exponential backoff behavior for one class of operation.
type Policy struct {
	MaxRetries int           // additional attempts after the first
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // backoff ceiling
}

// DefaultPolicy mirrors the scraper's historical defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// Validate reports a permanent configuration error for an unusable policy.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("retry policy: max retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("retry policy: base delay must be > 0, got %s", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("retry policy: max delay %s is below base delay %s", p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// delay computes the backoff before retry number attempt (0-based), capped
// at MaxDelay, plus a random jitter in [0, 10%] of the computed delay.
func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if tenth := int64(d / 10); tenth > 0 {
		d += time.Duration(rand.Int63n(tenth))
	}
	return d
}

// Stats counts retry outcomes per run. The pipeline is single-threaded, so
// plain counters are fine.
type Stats struct {
	Attempts        int64
	FirstTrySuccess int64
	RetriedSuccess  int64
	Exhausted       int64
}

// Merge folds another counter set into s.
func (s *Stats) Merge(other Stats) {
	s.Attempts += other.Attempts
	s.FirstTrySuccess += other.FirstTrySuccess
	s.RetriedSuccess += other.RetriedSuccess
	s.Exhausted += other.Exhausted
}

// SuccessRate is the fraction of attempts that did not end in exhaustion,
// in percent. Zero attempts yields zero.
func (s Stats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Attempts-s.Exhausted) / float64(s.Attempts) * 100
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable. Unmarked errors are treated as
// permanent and propagate without retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) was marked
// retryable via Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Do executes fn with exponential backoff and jitter under the given
// policy. Transient failures are retried up to policy.MaxRetries additional
// times; permanent failures propagate immediately. The wait between
// attempts blocks, which is deliberate: the scraper runs one browsing
// session and must not hammer the remote while it is struggling. A
// cancelled context aborts the wait.
func Do[T any](ctx context.Context, name string, policy Policy, stats *Stats, fn func() (T, error)) (T, error) {
	var zero T
	if err := policy.Validate(); err != nil {
		return zero, err
	}

	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		stats.Attempts++

		result, err := fn()
		if err == nil {
			if attempt == 0 {
				stats.FirstTrySuccess++
			} else {
				stats.RetriedSuccess++
			}
			return result, nil
		}
		if !IsTransient(err) {
			return zero, err
		}
		lastErr = err

		if attempt == policy.MaxRetries {
			break
		}

		wait := policy.delay(attempt)
		log.Warn().
			Str("operation", name).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Err(err).
			Msg("Transient failure, backing off")

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}

	stats.Exhausted++
	return zero, fmt.Errorf("%s failed after %d attempts: %w: %w", name, policy.MaxRetries+1, ErrExhausted, lastErr)
}

// Run is Do for operations with no result value.
func Run(ctx context.Context, name string, policy Policy, stats *Stats, fn func() error) error {
	_, err := Do(ctx, name, policy, stats, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
