package schedule

import (
	"context"
	"time"

	"github.com/itgyani/blogpulse/ai/generation"
	"github.com/itgyani/blogpulse/errors"
	"github.com/itgyani/blogpulse/logger"
)

// RetryPolicy controls how one due occurrence is retried.
// MaxRetries counts re-attempts after the first call, so a job makes at
// most MaxRetries+1 gateway calls.
type RetryPolicy struct {
	MaxRetries     int
	Base           time.Duration // delay before the first retry
	Max            time.Duration // cap on any single delay
	AttemptTimeout time.Duration // deadline for each gateway call
}

// DefaultRetryPolicy retries three times after 30s, 60s and 120s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		Base:           30 * time.Second,
		Max:            10 * time.Minute,
		AttemptTimeout: 60 * time.Second,
	}
}

// Backoff returns the delay before retry number retry (1-based): Base doubled
// per prior retry, capped at Max.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := p.Base
	for i := 1; i < retry; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && d > p.Max {
		return p.Max
	}
	return d
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// generateWithRetry runs the gateway until success, a terminal error, or
// retry exhaustion. It returns the number of gateway calls made.
func (s *Scheduler) generateWithRetry(ctx context.Context, job *GenerationJob, req generation.Request) (*generation.Result, int, error) {
	policy := s.retryPolicy()
	log := logger.LoggerFromContext(ctx)

	for attempt := 1; ; attempt++ {
		if err := s.store.RecordAttempt(ctx, job.ID, attempt); err != nil {
			log.Warnw("Failed to record attempt", logger.FieldAttempt, attempt, logger.FieldError, err)
		}

		result, err := s.callGateway(ctx, req, policy.AttemptTimeout)
		if err == nil {
			return result, attempt, nil
		}

		retryable := errors.IsRetryable(err)
		if !retryable || attempt > policy.MaxRetries {
			log.Warnw("Generation gave up",
				logger.FieldAttempts, attempt,
				logger.FieldRetryable, retryable,
				logger.FieldError, err)
			return nil, attempt, err
		}

		delay := policy.Backoff(attempt)
		log.Infow("Generation attempt failed, retrying",
			logger.FieldAttempt, attempt,
			logger.FieldBackoff, delay,
			logger.FieldError, err)

		if err := s.sleep(ctx, delay); err != nil {
			return nil, attempt, errors.Wrapf(err, "retry wait interrupted after attempt %d", attempt)
		}
	}
}

// callGateway makes one attempt under its own deadline. Overrunning the
// deadline is reported as a retryable timeout; cancellation of ctx is not.
func (s *Scheduler) callGateway(ctx context.Context, req generation.Request, timeout time.Duration) (*generation.Result, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := s.gateway.Generate(attemptCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.NewTimeoutError("generation attempt exceeded %s", timeout)
		}
		return nil, err
	}
	if result == nil {
		return nil, errors.NewTerminalGenerationError(errors.New("gateway returned no result"))
	}
	return result, nil
}
