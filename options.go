package apiclient

import (
	"fmt"
	"net/http"
	"time"
)

// Option configures a Client at construction.
type Option func(*Client)

// WithBaseURL sets the base URL joined with request paths.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.config.BaseURL = baseURL
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.config.Timeout = d
	}
}

// WithMaxRetries sets the default retry budget.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.config.Retries = n
	}
}

// WithRetryDelay forces a constant delay between retries instead of the
// policy's backoff curve.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.config.RetryDelay = d
	}
}

// WithHeader adds a default header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.config.Headers == nil {
			c.config.Headers = make(map[string]string)
		}
		c.config.Headers[key] = value
	}
}

// WithRetryPolicy sets a custom retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = policy
	}
}

// WithBackoffStrategy selects the backoff curve of the default retry policy.
func WithBackoffStrategy(strategy BackoffStrategy) Option {
	return func(c *Client) {
		c.retryPolicy = NewDefaultRetryPolicyWithStrategy(100*time.Millisecond, 10*time.Second, 2.0, 0.1, strategy)
	}
}

// WithCache enables caching with the default in-memory store and TTL.
func WithCache(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = NewInMemoryCache()
		c.config.Cache.TTL = ttl
	}
}

// WithCustomCache sets a custom cache store.
func WithCustomCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.config.Cache.TTL = ttl
	}
}

// WithCacheStrategy sets the default cache strategy.
func WithCacheStrategy(strategy CacheStrategy) Option {
	return func(c *Client) {
		c.config.Cache.Strategy = strategy
	}
}

// WithCacheKeyFunc sets a custom cache key function.
func WithCacheKeyFunc(fn CacheKeyFunc) Option {
	return func(c *Client) {
		c.cacheKeyFunc = fn
	}
}

// WithCircuitBreaker sets the circuit breaker configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithoutCircuitBreaker disables the circuit breaker.
func WithoutCircuitBreaker() Option {
	return func(c *Client) {
		c.circuitBreaker = nil
	}
}

// WithRateLimiter bounds the client-side request rate.
func WithRateLimiter(perSecond float64, burst int) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiter(perSecond, burst)
	}
}

// WithDeduplication coalesces identical in-flight GET requests.
func WithDeduplication() Option {
	return func(c *Client) {
		c.deduplication = NewDeduplicationTracker()
	}
}

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithMetricsLogCapacity bounds the in-memory request metrics log.
func WithMetricsLogCapacity(capacity int) Option {
	return func(c *Client) {
		c.log = newRequestLog(capacity)
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables debug logging with the default zerolog logger when none
// is set.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		if c.logger == nil {
			c.logger = NewZerologLogger(nil)
		}
	}
}

// WithDebugConfig sets a custom debug configuration. A nil config is
// ignored.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		if config != nil {
			c.debug = config
		}
	}
}

// WithRequestIDGenerator sets a custom request id generator.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		c.requestIDGen = gen
	}
}

// WithClock overrides the time source used for timestamps and TTL checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// ValidateConfiguration validates the client configuration and returns an
// aggregated error if invalid.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateCacheConfig()...)
	problems = append(problems, c.validateCircuitBreakerConfig()...)
	problems = append(problems, c.validateDebugConfig()...)
	problems = append(problems, c.validateHTTPClientConfig()...)

	if len(problems) > 0 {
		return NewAPIError(CodeValidationError, "configuration validation failed").
			WithCause(fmt.Errorf("validation errors: %v", problems))
	}

	return nil
}

func (c *Client) validateRetryConfig() []string {
	var problems []string

	if c.config.Retries < 0 {
		problems = append(problems, "retries must be non-negative")
	}
	if c.config.Retries > 100 {
		problems = append(problems, "retries > 100 may cause excessive resource usage")
	}
	if c.config.Timeout < 0 {
		problems = append(problems, "timeout must be non-negative")
	}
	if c.config.Timeout > 10*time.Minute {
		problems = append(problems, "timeout > 10m may cause requests to hang for too long")
	}
	if c.config.RetryDelay < 0 {
		problems = append(problems, "retryDelay must be non-negative")
	}
	if c.retryPolicy == nil {
		problems = append(problems, "retry policy cannot be nil")
	}

	return problems
}

func (c *Client) validateCacheConfig() []string {
	var problems []string

	if !c.config.Cache.Strategy.valid() {
		problems = append(problems, fmt.Sprintf("unknown cache strategy %q", c.config.Cache.Strategy))
	}
	if c.cache != nil && c.config.Cache.TTL <= 0 {
		problems = append(problems, "cache TTL must be positive when a cache store is configured")
	}
	if c.cache != nil && c.config.Cache.TTL > 24*time.Hour {
		problems = append(problems, "cache TTL > 24h may cause stale data issues")
	}
	if c.config.Cache.MaxAge < 0 {
		problems = append(problems, "cache maxAge must be non-negative")
	}
	if c.cacheKeyFunc == nil {
		problems = append(problems, "cache key function cannot be nil")
	}

	return problems
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var problems []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			problems = append(problems, "circuitBreaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			problems = append(problems, "circuitBreaker RecoveryTimeout must be positive")
		}
		if c.circuitBreaker.config.SuccessThreshold <= 0 {
			problems = append(problems, "circuitBreaker SuccessThreshold must be positive")
		}
	}

	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug != nil && c.debug.Enabled && c.logger == nil {
		problems = append(problems, "logger must be set when debug is enabled")
	}
	if c.requestIDGen == nil {
		problems = append(problems, "request id generator cannot be nil")
	}

	return problems
}

func (c *Client) validateHTTPClientConfig() []string {
	var problems []string

	if c.httpClient == nil {
		problems = append(problems, "HTTP client cannot be nil")
	}

	return problems
}
