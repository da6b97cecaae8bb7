package textgen

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"anomaly-dashboard/internal/metrics"
)

// WithRetry retries failed calls up to maxRetries more times with exponential
// backoff. Context errors and non-temporary server answers are not retried.
func WithRetry(gen Generator, maxRetries int, logger *slog.Logger) Generator {
	return GeneratorFunc(func(ctx context.Context, prompt string, maxLength int) (string, error) {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 200 * time.Millisecond
		policy.MaxInterval = 5 * time.Second

		attempt := 0
		return backoff.Retry(ctx, func() (string, error) {
			attempt++
			text, err := gen.Generate(ctx, prompt, maxLength)
			if err == nil {
				return text, nil
			}
			if !retryable(ctx, err) {
				return "", backoff.Permanent(err)
			}
			logger.Warn("text generation attempt failed",
				"attempt", attempt,
				"error", err,
			)
			return "", err
		},
			backoff.WithBackOff(policy),
			backoff.WithMaxTries(uint(maxRetries+1)),
		)
	})
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return true
}

// RateLimited spaces calls to at most rps per second.
func RateLimited(gen Generator, rps float64) Generator {
	limiter := rate.NewLimiter(rate.Limit(rps), 1)
	return GeneratorFunc(func(ctx context.Context, prompt string, maxLength int) (string, error) {
		if err := limiter.Wait(ctx); err != nil {
			return "", err
		}
		return gen.Generate(ctx, prompt, maxLength)
	})
}

// Instrumented records call counts and latency per provider.
func Instrumented(gen Generator, provider string) Generator {
	return GeneratorFunc(func(ctx context.Context, prompt string, maxLength int) (string, error) {
		start := time.Now()
		text, err := gen.Generate(ctx, prompt, maxLength)
		metrics.TextGenRequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

		status := metrics.StatusSuccess
		switch {
		case errors.Is(err, context.Canceled):
			status = metrics.StatusCancelled
		case err != nil:
			status = metrics.StatusError
		}
		metrics.TextGenRequestsTotal.WithLabelValues(provider, status).Inc()
		return text, err
	})
}
