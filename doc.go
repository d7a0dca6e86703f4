// Package apiclient provides a typed HTTP API client with pluggable cache
// strategies and composable reliability primitives:
//
//   - Tagged success/error response envelopes (Response[T], APIError)
//   - Cache strategies per request: cache-first, network-first, cache-only,
//     network-only, with TTL, max-age and tag-based invalidation
//   - Retries with exponential backoff + jitter, honoring Retry-After
//   - Circuit breaker (open / half-open / closed states)
//   - Client-side rate limiting (token bucket)
//   - Request de-duplication (merges concurrent identical in-flight GETs)
//   - A bounded per-request metrics log plus Prometheus metrics
//
// Design goals:
//   - Failures never escape as panics or raw errors: every call returns a
//     stable envelope discriminated by Success
//   - Small surface area: functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via pluggable cache store, retry policy and logger
//
// Typical usage:
//
//	client := apiclient.New(
//	    apiclient.WithBaseURL("https://api.example.com"),
//	    apiclient.WithCache(5*time.Minute),
//	    apiclient.WithMaxRetries(3),
//	    apiclient.WithDeduplication(),
//	)
//	resp := apiclient.Get[User](ctx, client, apiclient.UserPath("42"), nil)
//	if resp.Success {
//	    fmt.Println(resp.Data.Name)
//	}
//
// Only GET and HEAD participate in caching, and only idempotent methods are
// retried automatically; mutating requests opt in by setting Retries in
// their RequestConfig. The library avoids opinionated logging: provide a
// Logger and enable debug flags selectively for insight without noise.
package apiclient
