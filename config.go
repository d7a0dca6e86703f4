package apiclient

import "time"

// Config holds the client-level defaults applied to every request unless a
// RequestConfig overrides them.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Headers    map[string]string
	Cache      CacheConfig
}

func (c Config) clone() Config {
	clone := c
	if c.Headers != nil {
		clone.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			clone.Headers[k] = v
		}
	}
	clone.Cache = c.Cache.clone()
	return clone
}

// CacheConfig selects the cache strategy and freshness rules for a request
// or for the client as a whole.
type CacheConfig struct {
	Strategy CacheStrategy
	// TTL bounds how long a written entry stays servable.
	TTL time.Duration
	// MaxAge further restricts reads: entries stored longer ago than MaxAge
	// are treated as stale even when their TTL has not elapsed.
	MaxAge time.Duration
	// Tags index the written entry for group invalidation.
	Tags []string
	// InvalidateOnError drops the cached entry instead of serving it when a
	// network-first request fails.
	InvalidateOnError bool
	// Disabled turns caching off for the request regardless of strategy.
	Disabled bool
}

func (c CacheConfig) clone() CacheConfig {
	clone := c
	if c.Tags != nil {
		clone.Tags = append([]string(nil), c.Tags...)
	}
	return clone
}

// RequestConfig carries per-call overrides. Zero values fall through to the
// client defaults; request-level values win. Cancellation comes from the
// context passed to the call, not from configuration.
type RequestConfig struct {
	BaseURL string
	Timeout time.Duration
	// Retries overrides the retry budget. A non-nil value is an explicit
	// caller decision, which is what permits retrying non-idempotent
	// methods.
	Retries    *int
	RetryDelay time.Duration
	Headers    map[string]string
	Cache      *CacheConfig
	// CacheTTL overrides the TTL of the selected cache configuration.
	CacheTTL time.Duration
}

// resolvedConfig is the merge of client defaults and a RequestConfig,
// computed once per call.
type resolvedConfig struct {
	baseURL         string
	timeout         time.Duration
	retries         int
	retriesExplicit bool
	retryDelay      time.Duration
	headers         map[string]string
	cache           CacheConfig
}

func (c Config) merge(rc *RequestConfig) resolvedConfig {
	merged := resolvedConfig{
		baseURL:    c.BaseURL,
		timeout:    c.Timeout,
		retries:    c.Retries,
		retryDelay: c.RetryDelay,
		cache:      c.Cache.clone(),
	}

	merged.headers = make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		merged.headers[k] = v
	}

	if rc == nil {
		return merged
	}

	if rc.BaseURL != "" {
		merged.baseURL = rc.BaseURL
	}
	if rc.Timeout > 0 {
		merged.timeout = rc.Timeout
	}
	if rc.Retries != nil {
		merged.retries = *rc.Retries
		merged.retriesExplicit = true
	}
	if rc.RetryDelay > 0 {
		merged.retryDelay = rc.RetryDelay
	}
	for k, v := range rc.Headers {
		merged.headers[k] = v
	}
	if rc.Cache != nil {
		merged.cache = rc.Cache.clone()
	}
	if rc.CacheTTL > 0 {
		merged.cache.TTL = rc.CacheTTL
	}

	return merged
}

// Retries is a convenience for building the explicit retry override in a
// RequestConfig literal.
func Retries(n int) *int {
	return &n
}
