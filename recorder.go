package apiclient

import (
	"sync"
	"time"
)

// DefaultMetricsLogCapacity bounds the in-memory request log unless
// overridden with WithMetricsLogCapacity.
const DefaultMetricsLogCapacity = 1024

// RequestMetrics is the record of one executed request. Retried attempts
// fold into RetryCount rather than producing separate entries.
type RequestMetrics struct {
	RequestID  string        `json:"requestId"`
	Method     string        `json:"method"`
	URL        string        `json:"url"`
	StartTime  time.Time     `json:"startTime"`
	EndTime    time.Time     `json:"endTime"`
	Duration   time.Duration `json:"duration"`
	Status     int           `json:"status,omitempty"`
	Success    bool          `json:"success"`
	Cached     bool          `json:"cached"`
	RetryCount int           `json:"retryCount"`
	Error      string        `json:"error,omitempty"`
}

// requestLog is an append-only bounded log of request metrics. Entries are
// appended in completion order; the oldest are evicted past capacity.
type requestLog struct {
	mu       sync.Mutex
	capacity int
	entries  []RequestMetrics
}

func newRequestLog(capacity int) *requestLog {
	if capacity <= 0 {
		capacity = DefaultMetricsLogCapacity
	}
	return &requestLog{capacity: capacity}
}

func (l *requestLog) append(m RequestMetrics) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, m)
	if overflow := len(l.entries) - l.capacity; overflow > 0 {
		l.entries = append(l.entries[:0], l.entries[overflow:]...)
	}
}

func (l *requestLog) snapshot() []RequestMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]RequestMetrics, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *requestLog) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
}
