package providers

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// HTTPError is a non-200 response from a provider API.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration // parsed Retry-After header, 0 if absent
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

// Retryable reports whether the response indicates pressure that clears on
// its own: rate limiting or an overloaded backend. Other failures (auth,
// bad request, timeouts) are surfaced to the caller immediately; the poll
// loop moves on rather than stalling a cycle on repeats.
func (e *HTTPError) Retryable() bool {
	return e.Status == 429 || e.Status == 529
}

// ParseRetryAfter parses a Retry-After header value in seconds.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// RetryConfig controls RetryDo.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryConfig returns the standard provider retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Second}
}

// RetryDo runs fn, retrying only rate-limit responses. The server's
// Retry-After wins over exponential backoff when present.
func RetryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.BaseDelay * time.Duration(1<<(attempt-1))
			if he, ok := lastErr.(*HTTPError); ok && he.RetryAfter > 0 {
				delay = he.RetryAfter
			}
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		he, ok := err.(*HTTPError)
		if !ok || !he.Retryable() {
			return zero, err
		}
	}
	return zero, lastErr
}
