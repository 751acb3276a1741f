// Package retry provides retry logic with exponential backoff for
// traversal-library operations — chiefly base-adapter calls to an
// underlying source that fail with errors.CodeSourceUnavailable.
package retry

import (
	"context"
	stderr "errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/arbortree/arbor/pkg/errors"
)

// Config defines retry behavior configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	Multiplier float64

	// Jitter adds randomness to the delay to avoid a thundering herd of
	// coalesced single-flight waiters all retrying in lockstep.
	Jitter bool

	// RetryableCodes lists error codes that should trigger a retry beyond
	// an error's own Retryable flag.
	RetryableCodes []errors.Code

	// OnRetry is called before each retry attempt.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig returns a sensible default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
		RetryableCodes: []errors.Code{errors.CodeSourceUnavailable},
	}
}

// Retryer executes functions with retry logic.
type Retryer struct {
	config Config
}

// New creates a new Retryer, filling in defaults for zero-value fields.
func New(config Config) *Retryer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	return &Retryer{config: config}
}

// Do executes fn with retry logic using a background context.
func (r *Retryer) Do(fn func() error) error {
	return r.DoWithContext(context.Background(), func(ctx context.Context) error {
		return fn()
	})
}

// DoWithContext executes fn with retry logic, honoring ctx cancellation.
func (r *Retryer) DoWithContext(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return errors.Wrap(errors.CodeCancelled, "retry", "do", ctx.Err())
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.shouldRetry(err, attempt) {
			return err
		}

		if attempt < r.config.MaxAttempts {
			delay := r.calculateDelay(attempt)
			if r.config.OnRetry != nil {
				r.config.OnRetry(attempt, err, delay)
			}
			select {
			case <-ctx.Done():
				return errors.Wrap(errors.CodeCancelled, "retry", "do", ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
}

// shouldRetry determines whether err should trigger another attempt.
func (r *Retryer) shouldRetry(err error, attempt int) bool {
	if attempt >= r.config.MaxAttempts {
		return false
	}

	var libErr *errors.Error
	if stderr.As(err, &libErr) {
		if libErr.Retryable {
			return true
		}
		for _, code := range r.config.RetryableCodes {
			if libErr.Code == code {
				return true
			}
		}
	}
	return false
}

// calculateDelay computes the exponential backoff delay for attempt, with
// optional jitter.
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay) * math.Pow(r.config.Multiplier, float64(attempt-1))
	if delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.Jitter {
		jitter := delay * 0.2 * (rand.Float64()*2 - 1)
		delay += jitter
	}
	return time.Duration(delay)
}

// Stats tracks aggregate retry statistics for an adapter instance.
type Stats struct {
	TotalAttempts   int
	SuccessfulRetry int
	FailedRetry     int
	TotalDelay      time.Duration
	MaxAttemptsUsed int
}

// StatsCollector accumulates Stats across many Retryer invocations.
type StatsCollector struct {
	stats Stats
}

// NewStatsCollector creates an empty StatsCollector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{}
}

// RecordAttempt records the outcome of a single retried operation.
func (sc *StatsCollector) RecordAttempt(attempts int, success bool, delay time.Duration) {
	sc.stats.TotalAttempts++
	if success {
		sc.stats.SuccessfulRetry++
	} else {
		sc.stats.FailedRetry++
	}
	sc.stats.TotalDelay += delay
	if attempts > sc.stats.MaxAttemptsUsed {
		sc.stats.MaxAttemptsUsed = attempts
	}
}

// GetStats returns the accumulated statistics.
func (sc *StatsCollector) GetStats() Stats {
	return sc.stats
}

// Reset clears accumulated statistics.
func (sc *StatsCollector) Reset() {
	sc.stats = Stats{}
}
