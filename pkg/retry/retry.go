// Package retry implements the bounded exponential-backoff executor used for
// every call to the reporting API.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gaextract_retries_total",
		Help: "Total number of retry attempts by error reason",
	}, []string{"reason"})

	retryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gaextract_retry_backoff_seconds",
		Help:    "Backoff duration before a retry",
		Buckets: []float64{1, 2, 4, 8, 16, 32},
	})

	retryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gaextract_retry_exhausted_total",
		Help: "Total number of calls that exhausted all attempts",
	})

	fatalErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gaextract_fatal_errors_total",
		Help: "Total number of non-retryable errors by reason",
	}, []string{"reason"})
)

// DefaultMaxAttempts is the number of attempts made before giving up.
const DefaultMaxAttempts = 5

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Executor runs an operation with bounded exponential backoff.
type Executor struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// Classify decides whether a failure is retryable.
	Classify Classifier

	// Sleep waits between attempts.
	Sleep Sleeper

	// Jitter returns a value in [0, 1) added to each backoff, in seconds.
	Jitter func() float64

	logger zerolog.Logger
}

// NewExecutor returns an executor with the default attempt cap, classifier,
// timer sleep and random jitter.
func NewExecutor(logger zerolog.Logger) *Executor {
	return &Executor{
		MaxAttempts: DefaultMaxAttempts,
		Classify:    ClassifyReason,
		Sleep:       Sleep,
		Jitter:      rand.Float64,
		logger:      logger,
	}
}

// Backoff returns the delay taken after the failed attempt with zero-based index n:
// 2^n seconds plus jitter.
func (e *Executor) Backoff(n int) time.Duration {
	jitter := 0.0
	if e.Jitter != nil {
		jitter = e.Jitter()
	}
	seconds := math.Pow(2, float64(n)) + jitter
	return time.Duration(seconds * float64(time.Second))
}

func (e *Executor) withDefaults() Executor {
	ex := *e
	if ex.MaxAttempts <= 0 {
		ex.MaxAttempts = DefaultMaxAttempts
	}
	if ex.Classify == nil {
		ex.Classify = ClassifyReason
	}
	if ex.Sleep == nil {
		ex.Sleep = Sleep
	}
	if ex.Jitter == nil {
		ex.Jitter = rand.Float64
	}
	return ex
}

// Do runs op until it succeeds, fails with a fatal reason, or the attempt cap
// is reached. The three outcomes map to a nil error, a *FatalError, and an
// error wrapping ErrRetryExhausted.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	ex := e.withDefaults()
	var zero T
	var lastErr error
	var lastReason string

	for n := 0; n < ex.MaxAttempts; n++ {
		result, err := op(ctx)
		if err == nil {
			if n > 0 {
				ex.logger.Info().
					Int("attempt", n+1).
					Msg("Request succeeded after retry")
			}
			return result, nil
		}

		if ctx.Err() != nil {
			return zero, fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		}

		reason, retryable := ex.Classify(err)
		if !retryable {
			fatalErrorsTotal.WithLabelValues(reason).Inc()
			ex.logger.Error().
				Err(err).
				Str("reason", reason).
				Int("attempt", n+1).
				Msg("Non-retryable error, aborting")
			return zero, &FatalError{Reason: reason, Err: err}
		}

		lastErr = err
		lastReason = reason

		// No wait after the final attempt
		if n+1 >= ex.MaxAttempts {
			break
		}

		delay := ex.Backoff(n)
		retriesTotal.WithLabelValues(reason).Inc()
		retryBackoffSeconds.Observe(delay.Seconds())

		ex.logger.Warn().
			Err(err).
			Str("reason", reason).
			Int("attempt", n+1).
			Dur("backoff", delay).
			Msg("Retryable error from API, backing off")

		if err := ex.Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	retryExhaustedTotal.Inc()
	ex.logger.Error().
		Err(lastErr).
		Str("reason", lastReason).
		Int("max_attempts", ex.MaxAttempts).
		Msg("Retry attempts exhausted, the request never succeeded")

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, ex.MaxAttempts, lastErr)
}
