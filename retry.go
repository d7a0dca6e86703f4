package apiclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oinconquistado/omni-sub002/internal/backoff"
)

// RetryPolicy decides whether a failed attempt should be retried and how
// long to wait first. limit is the per-request retry budget after config
// merging.
type RetryPolicy interface {
	ShouldRetry(resp *http.Response, err error, attempt, limit int) (time.Duration, bool)
}

// BackoffStrategy names the delay curve used between retries.
type BackoffStrategy int

const (
	// ExponentialJitter grows the delay exponentially and adds uniform
	// jitter. This is the default curve.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter follows the AWS decorrelated jitter curve for
	// smoother tail latencies.
	DecorrelatedJitter
)

// DefaultRetryPolicy retries transient failures (network errors, 429, 5xx)
// with configurable backoff, honoring Retry-After when the server sends one.
type DefaultRetryPolicy struct {
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	strategy          backoff.Strategy
}

// NewDefaultRetryPolicy builds a policy with the exponential jitter curve.
func NewDefaultRetryPolicy(initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) *DefaultRetryPolicy {
	return NewDefaultRetryPolicyWithStrategy(initialBackoff, maxBackoff, multiplier, jitter, ExponentialJitter)
}

// NewDefaultRetryPolicyWithStrategy builds a policy with an explicit backoff
// curve.
func NewDefaultRetryPolicyWithStrategy(initialBackoff, maxBackoff time.Duration, multiplier, jitter float64, strategy BackoffStrategy) *DefaultRetryPolicy {
	policy := &DefaultRetryPolicy{
		initialBackoff:    initialBackoff,
		maxBackoff:        maxBackoff,
		backoffMultiplier: multiplier,
		jitter:            jitter,
	}
	switch strategy {
	case DecorrelatedJitter:
		policy.strategy = backoff.DecorrelatedJitterStrategy{}
	default:
		policy.strategy = backoff.ExponentialJitterStrategy{}
	}
	return policy
}

// ShouldRetry implements RetryPolicy.
func (p *DefaultRetryPolicy) ShouldRetry(resp *http.Response, err error, attempt, limit int) (time.Duration, bool) {
	if attempt >= limit {
		return 0, false
	}

	shouldRetry := false
	var delay time.Duration

	if err != nil {
		if !IsTransient(err) {
			return 0, false
		}
		shouldRetry = true
	} else if resp != nil {
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			shouldRetry = true
			delay = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
	}

	if !shouldRetry {
		return 0, false
	}

	if delay == 0 {
		delay = p.strategy.Calculate(attempt, p.initialBackoff, p.maxBackoff, p.backoffMultiplier, p.jitter)
	}

	return delay, true
}

// isIdempotent gates automatic retries: only these methods are retried
// without an explicit per-request opt-in.
func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// parseRetryAfter parses a Retry-After header in either delay-seconds or
// HTTP-date form, capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds > 0 {
			delay := time.Duration(seconds) * time.Second
			if delay > time.Hour {
				delay = time.Hour
			}
			return delay
		}
		return 0
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
