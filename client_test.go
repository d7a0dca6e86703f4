package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestNewDefaults(t *testing.T) {
	client := New()

	if client == nil {
		t.Fatal("New() returned nil")
	}
	if !client.IsValid() {
		t.Fatalf("Expected valid default configuration, got %v", client.ValidationError())
	}

	cfg := client.Config()
	if cfg.Retries != 3 {
		t.Errorf("Expected retries=3, got %d", cfg.Retries)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Expected timeout=30s, got %v", cfg.Timeout)
	}
	if cfg.Cache.Strategy != CacheFirst {
		t.Errorf("Expected cache-first default strategy, got %s", cfg.Cache.Strategy)
	}
}

func TestRequestDecodesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			t.Errorf("Expected GET method, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":"42","name":"Ana"}`)); err != nil {
			t.Fatalf("Failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := New()
	resp := Get[testUser](context.Background(), client, server.URL+"/users/42", nil)

	if !resp.Success {
		t.Fatalf("Expected success, got %v", resp.Error)
	}
	if resp.Data.ID != "42" || resp.Data.Name != "Ana" {
		t.Errorf("Unexpected payload: %+v", resp.Data)
	}
	if resp.Error != nil {
		t.Error("Expected nil error on success envelope")
	}
	if resp.Meta == nil || resp.Meta.RequestID == "" {
		t.Error("Expected meta with a request id")
	}
}

func TestRequestLiftsServerEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := `{"success":true,"data":[{"id":"1","name":"Ana"}],"meta":{"pagination":{"page":2,"limit":10,"total":25,"totalPages":3,"hasNext":true,"hasPrev":true}}}`
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("Failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := New()
	resp := Get[[]testUser](context.Background(), client, server.URL+EndpointUsers, nil)

	if !resp.Success {
		t.Fatalf("Expected success, got %v", resp.Error)
	}
	if len(*resp.Data) != 1 || (*resp.Data)[0].Name != "Ana" {
		t.Errorf("Unexpected payload: %+v", resp.Data)
	}
	if resp.Meta == nil || resp.Meta.Pagination == nil {
		t.Fatal("Expected pagination meta to be lifted from the server envelope")
	}
	if resp.Meta.Pagination.TotalPages != 3 || !resp.Meta.Pagination.HasNext {
		t.Errorf("Unexpected pagination: %+v", resp.Meta.Pagination)
	}
}

func TestNonOKStatusBecomesErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		body := `{"success":false,"error":{"code":"VALIDATION_ERROR","message":"invalid email","field":"email"}}`
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("Failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := New()
	resp := Post[testUser](context.Background(), client, server.URL+EndpointUsers, map[string]string{"email": "nope"}, nil)

	if resp.Success {
		t.Fatal("Expected error envelope")
	}
	if resp.Data != nil {
		t.Error("Expected nil data on error envelope")
	}
	if resp.Error.Code != "HTTP_422" {
		t.Errorf("Expected HTTP_422, got %s", resp.Error.Code)
	}
	if resp.Error.Status != 422 {
		t.Errorf("Expected status 422, got %d", resp.Error.Status)
	}
	if resp.Error.Message != "invalid email" {
		t.Errorf("Expected server message to be lifted, got %q", resp.Error.Message)
	}
	if resp.Error.Field != "email" {
		t.Errorf("Expected field to be lifted, got %q", resp.Error.Field)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&callCount, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":"42","name":"Ana"}`)); err != nil {
			t.Fatalf("Failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := New(WithMaxRetries(3), WithRetryDelay(time.Millisecond), WithoutCircuitBreaker())
	resp := Get[testUser](context.Background(), client, server.URL, nil)

	if !resp.Success {
		t.Fatalf("Expected success after retries, got %v", resp.Error)
	}
	if got := atomic.LoadInt32(&callCount); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
	if resp.Meta.RetryCount != 2 {
		t.Errorf("Expected retryCount=2, got %d", resp.Meta.RetryCount)
	}

	entries := client.Metrics()
	if len(entries) != 1 {
		t.Fatalf("Expected one metrics entry per call, got %d", len(entries))
	}
	if entries[0].RetryCount != 2 || !entries[0].Success {
		t.Errorf("Unexpected metrics entry: %+v", entries[0])
	}
}

func TestRetriesExhaustedReturnsError(t *testing.T) {
	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callCount, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(WithMaxRetries(2), WithRetryDelay(time.Millisecond), WithoutCircuitBreaker())
	resp := Get[testUser](context.Background(), client, server.URL, nil)

	if resp.Success {
		t.Fatal("Expected error envelope after exhausting retries")
	}
	if resp.Error.Code != "HTTP_500" {
		t.Errorf("Expected HTTP_500, got %s", resp.Error.Code)
	}
	if got := atomic.LoadInt32(&callCount); got != 3 {
		t.Errorf("Expected 3 attempts (1 + 2 retries), got %d", got)
	}
}

func TestNonIdempotentMethodsNeedExplicitRetries(t *testing.T) {
	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callCount, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(WithMaxRetries(3), WithRetryDelay(time.Millisecond), WithoutCircuitBreaker())

	resp := Post[testUser](context.Background(), client, server.URL, map[string]string{"name": "Ana"}, nil)
	if resp.Success {
		t.Fatal("Expected error envelope")
	}
	if got := atomic.LoadInt32(&callCount); got != 1 {
		t.Errorf("Expected POST not to be retried by default, got %d attempts", got)
	}

	atomic.StoreInt32(&callCount, 0)
	resp = Post[testUser](context.Background(), client, server.URL, map[string]string{"name": "Ana"},
		&RequestConfig{Retries: Retries(2)})
	if resp.Success {
		t.Fatal("Expected error envelope")
	}
	if got := atomic.LoadInt32(&callCount); got != 3 {
		t.Errorf("Expected explicit opt-in to retry POST, got %d attempts", got)
	}
}

func TestCacheFirstServesFromCache(t *testing.T) {
	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callCount, 1)
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":"42","name":"Ana"}`)); err != nil {
			t.Fatalf("Failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := New(WithCache(time.Minute))

	first := Get[testUser](context.Background(), client, server.URL+"/users/42", nil)
	if !first.Success {
		t.Fatalf("Expected success, got %v", first.Error)
	}
	if first.Meta.Cached {
		t.Error("Expected first response to come from the network")
	}

	second := Get[testUser](context.Background(), client, server.URL+"/users/42", nil)
	if !second.Success {
		t.Fatalf("Expected success, got %v", second.Error)
	}
	if !second.Meta.Cached {
		t.Error("Expected second response to come from the cache")
	}
	if got := atomic.LoadInt32(&callCount); got != 1 {
		t.Errorf("Expected a single network call, got %d", got)
	}
	if second.Data.ID != first.Data.ID || second.Data.Name != first.Data.Name {
		t.Error("Expected cached payload to match the original")
	}
}

func TestCacheOnlyMissNeverHitsNetwork(t *testing.T) {
	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callCount, 1)
	}))
	defer server.Close()

	client := New(WithCache(time.Minute))
	resp := Get[testUser](context.Background(), client, server.URL+"/users/42",
		&RequestConfig{Cache: &CacheConfig{Strategy: CacheOnly}})

	if resp.Success {
		t.Fatal("Expected cache miss envelope")
	}
	if resp.Error.Code != CodeCacheMiss {
		t.Errorf("Expected CACHE_MISS, got %s", resp.Error.Code)
	}
	if got := atomic.LoadInt32(&callCount); got != 0 {
		t.Errorf("Expected zero network calls, got %d", got)
	}
}

func TestNetworkOnlySkipsCacheRead(t *testing.T) {
	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callCount, 1)
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":"42","name":"Ana"}`)); err != nil {
			t.Fatalf("Failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := New(WithCache(time.Minute), WithCacheStrategy(NetworkOnly))

	for i := 0; i < 2; i++ {
		if resp := Get[testUser](context.Background(), client, server.URL+"/users/42", nil); !resp.Success {
			t.Fatalf("Expected success, got %v", resp.Error)
		}
	}
	if got := atomic.LoadInt32(&callCount); got != 2 {
		t.Errorf("Expected network-only to hit the network every time, got %d calls", got)
	}

	// The write path still populates the cache for other strategies.
	resp := Get[testUser](context.Background(), client, server.URL+"/users/42",
		&RequestConfig{Cache: &CacheConfig{Strategy: CacheOnly}})
	if !resp.Success {
		t.Fatalf("Expected cache-only hit after network-only writes, got %v", resp.Error)
	}
	if got := atomic.LoadInt32(&callCount); got != 2 {
		t.Errorf("Expected no extra network call, got %d", got)
	}
}

func TestNetworkFirstFallsBackToCache(t *testing.T) {
	var callCount int32
	var failing int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callCount, 1)
		if atomic.LoadInt32(&failing) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":"42","name":"Ana"}`)); err != nil {
			t.Fatalf("Failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := New(WithCache(time.Minute), WithCacheStrategy(NetworkFirst),
		WithMaxRetries(0), WithoutCircuitBreaker())

	first := Get[testUser](context.Background(), client, server.URL+"/users/42", nil)
	if !first.Success {
		t.Fatalf("Expected success, got %v", first.Error)
	}

	atomic.StoreInt32(&failing, 1)

	second := Get[testUser](context.Background(), client, server.URL+"/users/42", nil)
	if !second.Success {
		t.Fatalf("Expected cache fallback, got %v", second.Error)
	}
	if !second.Meta.Cached {
		t.Error("Expected fallback response to be marked cached")
	}
	if second.Data.Name != "Ana" {
		t.Errorf("Unexpected fallback payload: %+v", second.Data)
	}
	if got := atomic.LoadInt32(&callCount); got != 2 {
		t.Errorf("Expected 2 network calls, got %d", got)
	}
}

func TestNetworkFirstInvalidateOnError(t *testing.T) {
	var failing int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&failing) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":"42","name":"Ana"}`)); err != nil {
			t.Fatalf("Failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := New(WithCache(time.Minute), WithMaxRetries(0), WithoutCircuitBreaker())
	cfg := &RequestConfig{Cache: &CacheConfig{Strategy: NetworkFirst, TTL: time.Minute, InvalidateOnError: true}}

	if resp := Get[testUser](context.Background(), client, server.URL+"/users/42", cfg); !resp.Success {
		t.Fatalf("Expected success, got %v", resp.Error)
	}

	atomic.StoreInt32(&failing, 1)

	resp := Get[testUser](context.Background(), client, server.URL+"/users/42", cfg)
	if resp.Success {
		t.Fatal("Expected the network error to surface when invalidateOnError is set")
	}
	if resp.Error.Code != "HTTP_500" {
		t.Errorf("Expected HTTP_500, got %s", resp.Error.Code)
	}

	// The entry was dropped, so cache-only now misses.
	miss := Get[testUser](context.Background(), client, server.URL+"/users/42",
		&RequestConfig{Cache: &CacheConfig{Strategy: CacheOnly}})
	if miss.Success || miss.Error.Code != CodeCacheMiss {
		t.Error("Expected the cached entry to have been invalidated")
	}
}

func TestCancelledRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithCache(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	resp := Get[testUser](ctx, client, server.URL+"/users/42", nil)
	if resp.Success {
		t.Fatal("Expected cancellation envelope")
	}
	if resp.Error.Code != CodeCancelled {
		t.Errorf("Expected CANCELLED, got %s", resp.Error.Code)
	}
	if resp.Meta.RetryCount != 0 {
		t.Errorf("Expected no retries after cancellation, got %d", resp.Meta.RetryCount)
	}

	// Cancellation must not populate the cache.
	miss := Get[testUser](context.Background(), client, server.URL+"/users/42",
		&RequestConfig{Cache: &CacheConfig{Strategy: CacheOnly}})
	if miss.Success || miss.Error.Code != CodeCacheMiss {
		t.Error("Expected no cache write after cancellation")
	}
}

func TestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithTimeout(20*time.Millisecond), WithMaxRetries(0), WithoutCircuitBreaker())
	resp := Get[testUser](context.Background(), client, server.URL, nil)

	if resp.Success {
		t.Fatal("Expected timeout envelope")
	}
	if resp.Error.Code != CodeTimeout {
		t.Errorf("Expected TIMEOUT, got %s", resp.Error.Code)
	}
}

func TestDeduplicationCoalescesConcurrentGets(t *testing.T) {
	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callCount, 1)
		time.Sleep(100 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":"42","name":"Ana"}`)); err != nil {
			t.Fatalf("Failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := New(WithDeduplication())

	const concurrency = 5
	var wg sync.WaitGroup
	results := make([]Response[testUser], concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Get[testUser](context.Background(), client, server.URL+"/users/42", nil)
		}(i)
	}
	wg.Wait()

	for i, resp := range results {
		if !resp.Success {
			t.Fatalf("Request %d failed: %v", i, resp.Error)
		}
		if resp.Data.Name != "Ana" {
			t.Errorf("Request %d got unexpected payload: %+v", i, resp.Data)
		}
	}
	if got := atomic.LoadInt32(&callCount); got != 1 {
		t.Errorf("Expected a single upstream call, got %d", got)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithRequestIDGenerator(func() string { return "fixed-id" }))
	resp := Get[testUser](context.Background(), client, server.URL, nil)

	if !resp.Success {
		t.Fatalf("Expected success, got %v", resp.Error)
	}
	if resp.Meta.RequestID != "fixed-id" {
		t.Errorf("Expected fixed-id in meta, got %s", resp.Meta.RequestID)
	}
	if gotHeader != "fixed-id" {
		t.Errorf("Expected X-Request-ID header, got %q", gotHeader)
	}
}

func TestDefaultHeadersAndOverrides(t *testing.T) {
	var auth, accept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		accept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(WithHeader("Authorization", "Bearer default"), WithHeader("Accept", "application/json"))
	resp := Get[testUser](context.Background(), client, server.URL,
		&RequestConfig{Headers: map[string]string{"Authorization": "Bearer override"}})

	if !resp.Success {
		t.Fatalf("Expected success, got %v", resp.Error)
	}
	if auth != "Bearer override" {
		t.Errorf("Expected request-level header to win, got %q", auth)
	}
	if accept != "application/json" {
		t.Errorf("Expected default header to be sent, got %q", accept)
	}
}

func TestConfigSnapshotAndUpdate(t *testing.T) {
	client := New(WithBaseURL("http://old.example"))

	cfg := client.Config()
	if cfg.BaseURL != "http://old.example" {
		t.Errorf("Unexpected base URL: %s", cfg.BaseURL)
	}

	// Mutating the snapshot must not touch the client.
	cfg.BaseURL = "http://mutated.example"
	if client.Config().BaseURL != "http://old.example" {
		t.Error("Expected Config() to return an isolated copy")
	}

	client.UpdateConfig(func(c *Config) {
		c.BaseURL = "http://new.example"
		c.Retries = 7
	})

	updated := client.Config()
	if updated.BaseURL != "http://new.example" || updated.Retries != 7 {
		t.Errorf("Expected updated config, got %+v", updated)
	}
}

func TestMetricsLogLifecycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New()

	for i := 0; i < 3; i++ {
		Get[json.RawMessage](context.Background(), client, server.URL, nil)
	}

	entries := client.Metrics()
	if len(entries) != 3 {
		t.Fatalf("Expected 3 metrics entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.RequestID == "" || e.Method != "GET" || !e.Success {
			t.Errorf("Unexpected metrics entry: %+v", e)
		}
		if e.EndTime.Before(e.StartTime) {
			t.Error("Expected EndTime >= StartTime")
		}
	}

	client.ClearMetrics()
	if len(client.Metrics()) != 0 {
		t.Error("Expected empty metrics log after ClearMetrics")
	}
}

func TestInvalidConfigurationSurfacesAsEnvelope(t *testing.T) {
	client := New(WithMaxRetries(-1))

	if client.IsValid() {
		t.Fatal("Expected invalid configuration")
	}

	resp := client.Do(context.Background(), http.MethodGet, "http://unused.example", nil, nil)
	if resp.Success {
		t.Fatal("Expected error envelope from invalid client")
	}
	if resp.Error.Code != CodeValidationError {
		t.Errorf("Expected VALIDATION_ERROR, got %s", resp.Error.Code)
	}
}

func TestInvalidateTagDropsGroupedEntries(t *testing.T) {
	var callCount int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&callCount, 1)
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write([]byte(`{"id":"42","name":"Ana"}`)); err != nil {
			t.Fatalf("Failed to write response: %v", err)
		}
	}))
	defer server.Close()

	client := New(WithCache(time.Minute))
	cfg := &RequestConfig{Cache: &CacheConfig{Strategy: CacheFirst, TTL: time.Minute, Tags: []string{"users"}}}

	Get[testUser](context.Background(), client, server.URL+"/users/42", cfg)
	Get[testUser](context.Background(), client, server.URL+"/users/42", cfg)
	if got := atomic.LoadInt32(&callCount); got != 1 {
		t.Fatalf("Expected cached second read, got %d calls", got)
	}

	client.InvalidateTag("users")

	Get[testUser](context.Background(), client, server.URL+"/users/42", cfg)
	if got := atomic.LoadInt32(&callCount); got != 2 {
		t.Errorf("Expected network call after tag invalidation, got %d", got)
	}
}
