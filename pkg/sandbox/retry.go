package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig bounds how often a provisioning failure is retried.
type RetryConfig struct {
	Attempts int
	Base     time.Duration
	Logger   zerolog.Logger
}

// RetryRunner wraps a Runner and retries infrastructure failures with
// exponential backoff. Terminal classifications pass through untouched:
// only ErrInfrastructure is retryable.
type RetryRunner struct {
	inner    Runner
	attempts int
	base     time.Duration
	logger   zerolog.Logger
	sleep    func(time.Duration)
}

// NewRetryRunner constructs the retrying wrapper.
func NewRetryRunner(inner Runner, cfg RetryConfig) *RetryRunner {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Base <= 0 {
		cfg.Base = 200 * time.Millisecond
	}

	return &RetryRunner{
		inner:    inner,
		attempts: cfg.Attempts,
		base:     cfg.Base,
		logger:   cfg.Logger.With().Str("component", "sandbox_retry").Logger(),
		sleep:    time.Sleep,
	}
}

// Run executes the inner runner, retrying provisioning failures up to the
// configured bound before surfacing ErrInfrastructure to the caller.
func (r *RetryRunner) Run(ctx context.Context, req Request) (Outcome, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			retryAttempts.Inc()
			backoff := r.base << (attempt - 1)
			r.logger.Warn().
				Err(lastErr).
				Uint("submission_id", req.SubmissionID).
				Dur("backoff", backoff).
				Msg("retrying sandbox provisioning")
			r.sleep(backoff)
		}

		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}

		outcome, err := r.inner.Run(ctx, req)
		if err == nil || !errors.Is(err, ErrInfrastructure) {
			return outcome, err
		}
		lastErr = err
	}

	return Outcome{}, lastErr
}
