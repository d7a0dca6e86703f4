package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Client executes API requests, layering the cache strategy engine, retry
// policy, circuit breaker, rate limiting, de-duplication and metrics around
// the standard net/http Client. A single instance is safe for concurrent
// use; it owns its cache store and metrics log for its lifetime.
type Client struct {
	mu     sync.RWMutex
	config Config

	httpClient     *http.Client
	retryPolicy    RetryPolicy
	cache          Cache
	cacheKeyFunc   CacheKeyFunc
	circuitBreaker *CircuitBreaker
	rateLimiter    *RateLimiter
	deduplication  *DeduplicationTracker
	metrics        *MetricsCollector
	log            *requestLog
	logger         Logger
	debug          *DebugConfig
	requestIDGen   func() string
	now            func() time.Time

	validationError error
}

// New constructs a Client from the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		config: Config{
			Timeout:    30 * time.Second,
			Retries:    3,
			RetryDelay: 0,
			Cache: CacheConfig{
				Strategy: CacheFirst,
				TTL:      5 * time.Minute,
			},
		},
		httpClient:     &http.Client{},
		retryPolicy:    NewDefaultRetryPolicy(100*time.Millisecond, 10*time.Second, 2.0, 0.1),
		cache:          nil,
		cacheKeyFunc:   DefaultCacheKey,
		circuitBreaker: NewCircuitBreaker(CircuitBreakerConfig{}),
		rateLimiter:    nil,
		deduplication:  nil,
		metrics:        nil,
		log:            newRequestLog(DefaultMetricsLogCapacity),
		logger:         nil,
		debug:          DefaultDebugConfig(),
		requestIDGen:   defaultRequestID,
		now:            time.Now,
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Config returns a snapshot of the client-level defaults.
func (c *Client) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.clone()
}

// UpdateConfig mutates the client-level defaults under lock. In-flight
// requests keep the configuration they resolved at start.
func (c *Client) UpdateConfig(update func(*Config)) {
	if update == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg := c.config.clone()
	update(&cfg)
	c.config = cfg
}

// Metrics returns a copy of the bounded request metrics log in completion
// order.
func (c *Client) Metrics() []RequestMetrics {
	return c.log.snapshot()
}

// ClearMetrics empties the request metrics log.
func (c *Client) ClearMetrics() {
	c.log.clear()
}

// InvalidateTag removes every cached entry stored with the given tag.
func (c *Client) InvalidateTag(tag string) {
	if c.cache != nil {
		c.cache.InvalidateTag(tag)
	}
}

// ClearCache drops all cached entries.
func (c *Client) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

func (c *Client) resolve(rc *RequestConfig) resolvedConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.merge(rc)
}

// exchange is the raw outcome of a request: either a network response or a
// rebuilt cached one.
type exchange struct {
	status     int
	header     http.Header
	body       []byte
	cached     bool
	retryCount int
}

// do runs the full request lifecycle and returns the raw outcome plus the
// response meta. Failures come back as *APIError, never as a panic or a
// plain error.
func (c *Client) do(ctx context.Context, method, rawURL string, body any, rc *RequestConfig) (*exchange, *APIError, *ResponseMeta) {
	merged := c.resolve(rc)
	requestID := c.requestIDGen()
	start := c.now()
	fullURL := joinURL(merged.baseURL, rawURL)
	endpoint := endpointLabel(fullURL)

	c.metrics.RecordRequestStart(method, endpoint)

	finalize := func(res *exchange, apiErr *APIError) (*exchange, *APIError, *ResponseMeta) {
		end := c.now()
		duration := end.Sub(start)

		status := 0
		retryCount := 0
		cached := false
		if res != nil {
			status = res.status
			retryCount = res.retryCount
			cached = res.cached
		}
		if apiErr != nil && apiErr.Status > 0 {
			status = apiErr.Status
		}

		meta := &ResponseMeta{
			RequestID:  requestID,
			Timestamp:  end,
			Duration:   duration,
			Cached:     cached,
			RetryCount: retryCount,
		}

		entry := RequestMetrics{
			RequestID:  requestID,
			Method:     method,
			URL:        fullURL,
			StartTime:  start,
			EndTime:    end,
			Duration:   duration,
			Status:     status,
			Success:    apiErr == nil,
			Cached:     cached,
			RetryCount: retryCount,
		}
		if apiErr != nil {
			entry.Error = apiErr.Code
			c.metrics.RecordError(apiErr.Code, method, endpoint)
		}
		c.log.append(entry)

		c.metrics.RecordRequestEnd(method, endpoint)
		c.metrics.RecordRequest(method, endpoint, status, duration)
		return res, apiErr, meta
	}

	if c.validationError != nil {
		apiErr := NewAPIError(CodeValidationError, "client configuration is invalid").
			WithCause(c.validationError).WithRequestID(requestID)
		return finalize(nil, apiErr)
	}

	payload, apiErr := encodeBody(body)
	if apiErr != nil {
		return finalize(nil, apiErr.WithRequestID(requestID))
	}

	if c.debugEnabled(c.debug.LogRequests) {
		c.logger.Debug("starting request", "requestID", requestID, "method", method, "url", fullURL)
	}

	cacheCfg := merged.cache
	strategy := cacheCfg.Strategy
	plan := planForStrategy(strategy)
	cacheUsable := c.cache != nil && !cacheCfg.Disabled && cacheableMethod(method)
	key := c.cacheKeyFunc(method, fullURL, payload)

	if plan.requireCached && !cacheUsable {
		apiErr := NewAPIError(CodeCacheMiss, "no cached response available").WithRequestID(requestID)
		return finalize(nil, apiErr)
	}

	if cacheUsable && plan.readBefore {
		if entry, found := c.cache.Get(key); found && entryFresh(entry, cacheCfg.MaxAge, c.now()) {
			if c.debugEnabled(c.debug.LogCache) {
				c.logger.Debug("cache hit", "requestID", requestID, "cacheKey", key, "strategy", string(strategy))
			}
			c.metrics.RecordCacheHit(method, endpoint, strategy)
			return finalize(&exchange{
				status: entry.StatusCode,
				header: entry.Header,
				body:   entry.Body,
				cached: true,
			}, nil)
		}

		c.metrics.RecordCacheMiss(method, endpoint, strategy)
		if c.debugEnabled(c.debug.LogCache) {
			c.logger.Debug("cache miss", "requestID", requestID, "cacheKey", key, "strategy", string(strategy))
		}

		if plan.requireCached {
			apiErr := NewAPIError(CodeCacheMiss, "no cached response available").WithRequestID(requestID)
			return finalize(nil, apiErr)
		}
	}

	var res *exchange
	if c.deduplication != nil && method == http.MethodGet {
		call, owner := c.deduplication.join(key)
		if !owner {
			shared, sharedErr, ok := call.wait(ctx)
			if !ok {
				cancelErr := NewAPIError(CodeCancelled, "request cancelled").
					WithCause(ctx.Err()).WithRequestID(requestID)
				return finalize(nil, cancelErr)
			}
			c.metrics.RecordCoalescedRequest(method, endpoint)
			return finalize(shared, sharedErr)
		}
		res, apiErr = c.network(ctx, method, fullURL, endpoint, payload, merged, requestID, plan, cacheCfg, key)
		c.deduplication.complete(key, res, apiErr)
	} else {
		res, apiErr = c.network(ctx, method, fullURL, endpoint, payload, merged, requestID, plan, cacheCfg, key)
	}

	if apiErr != nil {
		apiErr = apiErr.WithRequestID(requestID)
	}

	if apiErr != nil && cacheUsable && plan.fallbackAfter && apiErr.Code != CodeCancelled {
		if cacheCfg.InvalidateOnError {
			c.cache.Delete(key)
		} else if entry, found := c.cache.Get(key); found && entryFresh(entry, cacheCfg.MaxAge, c.now()) {
			if c.debugEnabled(c.debug.LogCache) {
				c.logger.Debug("serving cache fallback", "requestID", requestID, "cacheKey", key, "error", apiErr.Code)
			}
			c.metrics.RecordCacheFallback(method, endpoint)
			return finalize(&exchange{
				status: entry.StatusCode,
				header: entry.Header,
				body:   entry.Body,
				cached: true,
			}, nil)
		}
	}

	return finalize(res, apiErr)
}

// network performs the HTTP exchange with the retry policy applied. A
// successful response is written to the cache per the resolved plan.
func (c *Client) network(ctx context.Context, method, fullURL, endpoint string, payload []byte, merged resolvedConfig, requestID string, plan cachePlan, cacheCfg CacheConfig, key string) (*exchange, *APIError) {
	cacheUsable := c.cache != nil && !cacheCfg.Disabled && cacheableMethod(method)

	for attempt := 0; ; attempt++ {
		if c.rateLimiter != nil && !c.rateLimiter.Allow() {
			c.metrics.RecordRateLimited(method, endpoint)
			return nil, NewAPIError(CodeRateLimited, "client-side rate limit exceeded")
		}

		if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
			if c.debugEnabled(c.debug.LogCircuit) {
				c.logger.Warn("circuit breaker open", "requestID", requestID, "endpoint", endpoint)
			}
			return nil, NewAPIError(CodeCircuitOpen, "circuit breaker is open")
		}

		if attempt > 0 {
			if c.debugEnabled(c.debug.LogRetries) {
				c.logger.Info("retry attempt", "requestID", requestID, "attempt", attempt, "maxRetries", merged.retries, "endpoint", endpoint)
			}
			c.metrics.RecordRetry(method, endpoint, attempt)
		}

		resp, apiErr := c.attempt(ctx, method, fullURL, payload, merged, requestID)

		var httpResp *http.Response
		var policyErr error
		if apiErr != nil {
			c.recordBreaker(false)
			if apiErr.Code == CodeCancelled {
				return nil, apiErr
			}
			policyErr = apiErr
		} else {
			httpResp = resp
			if resp.StatusCode >= 500 {
				c.recordBreaker(false)
			} else {
				c.recordBreaker(true)
			}

			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				body, readErr := io.ReadAll(resp.Body)
				_ = resp.Body.Close()
				if readErr != nil {
					c.recordBreaker(false)
					apiErr = NewAPIError(CodeNetworkError, "reading response body failed").WithCause(readErr)
					policyErr = apiErr
					httpResp = nil
				} else {
					result := &exchange{
						status:     resp.StatusCode,
						header:     resp.Header.Clone(),
						body:       body,
						retryCount: attempt,
					}

					if cacheUsable && plan.writeAfter && ctx.Err() == nil {
						if ttl, storable := ttlForResponse(resp.Header, cacheCfg.TTL); storable {
							c.cache.Set(key, &CacheEntry{
								Body:       body,
								StatusCode: resp.StatusCode,
								Header:     resp.Header.Clone(),
								Tags:       cacheCfg.Tags,
							}, ttl)

							if mem, ok := c.cache.(*InMemoryCache); ok {
								c.metrics.RecordCacheSize("default", mem.Len())
							}
							if c.debugEnabled(c.debug.LogCache) {
								c.logger.Debug("response cached", "requestID", requestID, "cacheKey", key, "ttl", ttl)
							}
						}
					}

					return result, nil
				}
			} else {
				body, _ := io.ReadAll(resp.Body)
				_ = resp.Body.Close()
				apiErr = apiErrorFromResponse(resp.StatusCode, body)
			}
		}

		if !isIdempotent(method) && !merged.retriesExplicit {
			return nil, apiErr
		}

		delay, shouldRetry := c.retryPolicy.ShouldRetry(httpResp, policyErr, attempt, merged.retries)
		if !shouldRetry {
			return nil, apiErr
		}
		if merged.retryDelay > 0 {
			delay = merged.retryDelay
		}

		if c.debugEnabled(c.debug.LogRetries) {
			c.logger.Info("scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "endpoint", endpoint)
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, NewAPIError(CodeTimeout, "request deadline exceeded").WithCause(ctx.Err())
			}
			return nil, NewAPIError(CodeCancelled, "request cancelled").WithCause(ctx.Err())
		case <-time.After(delay):
		}
	}
}

// attempt performs a single HTTP exchange with the per-attempt timeout
// applied. Cancellation and timeout are classified here; the caller decides
// about retries.
func (c *Client) attempt(ctx context.Context, method, fullURL string, payload []byte, merged resolvedConfig, requestID string) (*http.Response, *APIError) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if merged.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, merged.timeout)
	}

	var bodyReader io.Reader
	if len(payload) > 0 {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, fullURL, bodyReader)
	if err != nil {
		cancel()
		return nil, NewAPIError(CodeValidationError, "building request failed").WithCause(err)
	}

	for k, v := range merged.headers {
		req.Header.Set(k, v)
	}
	if len(payload) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req) //nolint:bodyclose // closed by the caller after reading
	if err != nil {
		cancel()
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			return nil, NewAPIError(CodeCancelled, "request cancelled").WithCause(err)
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
			return nil, NewAPIError(CodeTimeout, "request timed out").WithCause(err)
		default:
			return nil, NewAPIError(CodeNetworkError, "network request failed").WithCause(err)
		}
	}

	// The cancel func is tied to the attempt context; the response body has
	// already been fully delivered once the caller reads it, so releasing
	// after the read in network() is handled by the deferred timer firing.
	// Wrap the body so closing it releases the context.
	resp.Body = &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func (c *Client) recordBreaker(success bool) {
	if c.circuitBreaker == nil {
		return
	}
	if success {
		c.circuitBreaker.RecordSuccess()
	} else {
		c.circuitBreaker.RecordFailure()
	}
	c.metrics.RecordCircuitBreakerState("default", c.circuitBreaker.State())
}

func (c *Client) debugEnabled(flag bool) bool {
	return c.debug != nil && c.debug.Enabled && flag && c.logger != nil
}

// encodeBody marshals the request body. []byte and json.RawMessage pass
// through untouched.
func encodeBody(body any) ([]byte, *APIError) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, NewAPIError(CodeValidationError, "encoding request body failed").WithCause(err)
		}
		return payload, nil
	}
}

// apiErrorFromResponse converts a non-2xx response into an APIError, lifting
// message and details from a server error envelope when one is present.
func apiErrorFromResponse(status int, body []byte) *APIError {
	apiErr := NewAPIError(CodeForStatus(status), http.StatusText(status)).WithStatus(status)

	var shell struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &shell); err == nil && shell.Error != nil {
		if shell.Error.Message != "" {
			apiErr.Message = shell.Error.Message
		}
		apiErr.UserMessage = shell.Error.UserMessage
		apiErr.Details = shell.Error.Details
		apiErr.Field = shell.Error.Field
	}

	return apiErr
}

// endpointLabel reduces a URL to host+path for metric labels.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return u.Host + path
}
