package ci

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
)

// RetryConfig configures retry behavior for GitHub API calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	// Default: 3
	MaxRetries int

	// InitialBackoff is the initial backoff duration.
	// Default: 1 second
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	// Default: 30 seconds
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	// Default: 2
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration for GitHub API calls.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ApplyDefaults sets default values for unset fields.
func (c *RetryConfig) ApplyDefaults() {
	defaults := DefaultRetryConfig()

	if c.MaxRetries == 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaults.InitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaults.MaxBackoff
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = defaults.BackoffMultiplier
	}
}

// retryOperation retries a GitHub API operation with exponential backoff.
// Rate limits and transient errors are retried; everything else returns
// immediately. The backoff sleep aborts when the context is cancelled.
func retryOperation(ctx context.Context, config *RetryConfig, logger *zap.Logger, operation func() (*github.Response, error)) (*github.Response, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	var lastResp *github.Response
	backoff := config.InitialBackoff
	startTime := time.Now()

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		resp, err := operation()
		if err == nil {
			if attempt > 0 {
				logger.Info("GitHub API operation recovered after retries",
					zap.Int("attempts", attempt),
					zap.Duration("total_time", time.Since(startTime)),
				)
			}
			return resp, nil
		}

		lastErr = err
		lastResp = resp

		if !isRetryableError(err, resp) {
			logger.Debug("GitHub API error is not retryable",
				zap.Error(err),
				zap.Int("status_code", statusCode(resp)),
			)
			return resp, err
		}

		if attempt == config.MaxRetries {
			break
		}

		wait := backoff
		if retryAfter := rateLimitRetryAfter(err); retryAfter > wait {
			wait = retryAfter
		}
		if wait > config.MaxBackoff {
			wait = config.MaxBackoff
		}

		logger.Warn("GitHub API operation failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastResp, ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
	}

	logger.Warn("GitHub API operation exhausted retries",
		zap.Error(lastErr),
		zap.Int("attempts", config.MaxRetries+1),
	)
	return lastResp, lastErr
}

// isRetryableError reports whether a GitHub API error is worth retrying.
func isRetryableError(err error, resp *github.Response) bool {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	if resp != nil && resp.StatusCode >= 500 {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// rateLimitRetryAfter extracts the wait the API asked for, if any.
func rateLimitRetryAfter(err error) time.Duration {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return time.Until(rateErr.Rate.Reset.Time)
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		return *abuseErr.RetryAfter
	}
	return 0
}

func statusCode(resp *github.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
