package apiclient

import (
	"context"
	"sync"
	"time"
)

// inflightCall is a network exchange shared between coalesced callers.
type inflightCall struct {
	mu      sync.Mutex
	result  *exchange
	apiErr  *APIError
	done    chan struct{}
	waiters int
}

// DeduplicationTracker coalesces identical in-flight requests so only one
// goroutine performs the network exchange; the rest wait for its result.
type DeduplicationTracker struct {
	mu    sync.Mutex
	calls map[string]*inflightCall
}

// NewDeduplicationTracker returns an empty in-memory tracker.
func NewDeduplicationTracker() *DeduplicationTracker {
	return &DeduplicationTracker{
		calls: make(map[string]*inflightCall),
	}
}

// join returns the in-flight call for key, creating it when absent. The
// second return value is true for the owner, who must call complete.
func (dt *DeduplicationTracker) join(key string) (*inflightCall, bool) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if call, exists := dt.calls[key]; exists {
		call.mu.Lock()
		call.waiters++
		call.mu.Unlock()
		return call, false
	}

	call := &inflightCall{
		done:    make(chan struct{}),
		waiters: 1,
	}
	dt.calls[key] = call
	return call, true
}

// complete publishes the owner's result and releases waiters. The entry
// lingers briefly so stragglers that joined during completion still resolve.
func (dt *DeduplicationTracker) complete(key string, result *exchange, apiErr *APIError) {
	dt.mu.Lock()
	call, exists := dt.calls[key]
	dt.mu.Unlock()

	if !exists {
		return
	}

	call.mu.Lock()
	call.result = result
	call.apiErr = apiErr
	close(call.done)
	call.mu.Unlock()

	time.AfterFunc(100*time.Millisecond, func() {
		dt.mu.Lock()
		delete(dt.calls, key)
		dt.mu.Unlock()
	})
}

// wait blocks until the owning request completes or ctx cancels.
func (call *inflightCall) wait(ctx context.Context) (*exchange, *APIError, bool) {
	select {
	case <-call.done:
		call.mu.Lock()
		result := call.result
		apiErr := call.apiErr
		call.mu.Unlock()
		return result, apiErr, true
	case <-ctx.Done():
		return nil, nil, false
	}
}
