package modelprovider

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrRetryExhausted is joined with the last error once the first attempt
// and all MaxRetries retries have failed.
var ErrRetryExhausted = errors.New("modelprovider: retry attempts exhausted")

// retryAfterRegex and tryAgainRegex extract a server-suggested delay
// from "Retry-After: N" / "Try again in N seconds" vendor error text.
var (
	retryAfterRegex = regexp.MustCompile(`Retry-After:\s*(\d+)`)
	tryAgainRegex   = regexp.MustCompile(`[Tt]ry again in (\d+) seconds?`)
)

// RetryPolicy decides retry eligibility for provider calls; the runtime
// decides this, not the provider.
type RetryPolicy struct {
	MaxRetries int
}

// DefaultRetryPolicy allows 3 retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3}
}

// IsRetryable classifies timeouts, connection errors, and HTTP
// 429/500/503 as retryable, detected via the error text a provider
// surfaces since this package does not depend on any one HTTP client's
// error type.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, code := range []string{"429", "500", "502", "503"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	lower := strings.ToLower(msg)
	for _, sub := range []string{"rate limit", "connection reset", "connection refused", "timeout", "temporarily unavailable"} {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// retryAfter extracts a server-suggested delay from err's text, capped
// at 30 seconds.
func retryAfter(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	msg := err.Error()
	if m := retryAfterRegex.FindStringSubmatch(msg); len(m) > 1 {
		if secs, convErr := strconv.Atoi(m[1]); convErr == nil {
			return capDelay(time.Duration(secs) * time.Second), true
		}
	}
	if m := tryAgainRegex.FindStringSubmatch(msg); len(m) > 1 {
		if secs, convErr := strconv.Atoi(m[1]); convErr == nil {
			return capDelay(time.Duration(secs) * time.Second), true
		}
	}
	return 0, false
}

func capDelay(d time.Duration) time.Duration {
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

// Backoff returns the delay before attempt N (0-indexed):
// min(2^attempt + uniform(0,1), 60) seconds.
func Backoff(attempt int) time.Duration {
	secs := math.Pow(2, float64(attempt)) + rand.Float64()
	if secs > 60 {
		secs = 60
	}
	return time.Duration(secs * float64(time.Second))
}

// Call runs fn with retry per policy: retryable errors are retried with
// Backoff delay (or the server's Retry-After text when present), up to
// MaxRetries retries after the first attempt. A non-retryable error is
// returned as-is; an exhausted one is returned joined with
// ErrRetryExhausted.
func (p RetryPolicy) Call(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(attempt - 1)
			if d, ok := retryAfter(lastErr); ok {
				delay = d
			}
			log.Warn().Str("provider_call", name).Int("attempt", attempt).Dur("delay", delay).Err(lastErr).Msg("retrying provider call")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
	}
	log.Error().Str("provider_call", name).Int("max_retries", p.MaxRetries).Err(lastErr).Msg("provider call failed after all retries")
	return errors.Join(ErrRetryExhausted, lastErr)
}
