package apiclient

import "time"

// PaginationMeta describes the position of a page inside a collection.
type PaginationMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPaginationMeta derives the full pagination block from page, limit and
// total. TotalPages is ceil(total/limit); a non-positive limit yields zero
// pages.
func NewPaginationMeta(page, limit, total int) *PaginationMeta {
	meta := &PaginationMeta{
		Page:  page,
		Limit: limit,
		Total: total,
	}
	if limit > 0 {
		meta.TotalPages = (total + limit - 1) / limit
	}
	meta.HasNext = page*limit < total
	meta.HasPrev = page > 1
	return meta
}

// ResponseMeta carries per-response observability data alongside the payload.
type ResponseMeta struct {
	RequestID  string          `json:"requestId,omitempty"`
	Timestamp  time.Time       `json:"timestamp,omitempty"`
	Duration   time.Duration   `json:"duration,omitempty"`
	Cached     bool            `json:"cached,omitempty"`
	RetryCount int             `json:"retryCount,omitempty"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
}

// Response is the tagged success/error envelope returned by every client
// call. Exactly one of Data and Error is populated, discriminated by
// Success.
type Response[T any] struct {
	Success bool          `json:"success"`
	Data    *T            `json:"data,omitempty"`
	Error   *APIError     `json:"error,omitempty"`
	Meta    *ResponseMeta `json:"meta,omitempty"`
}

// Ok builds a success envelope around data.
func Ok[T any](data T, meta *ResponseMeta) Response[T] {
	return Response[T]{Success: true, Data: &data, Meta: meta}
}

// Fail builds an error envelope.
func Fail[T any](apiErr *APIError, meta *ResponseMeta) Response[T] {
	return Response[T]{Success: false, Error: apiErr, Meta: meta}
}

// Paginated builds a success envelope around a page of items with the
// pagination block filled in.
func Paginated[T any](items []T, page, limit, total int, meta *ResponseMeta) Response[[]T] {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Pagination = NewPaginationMeta(page, limit, total)
	return Ok(items, meta)
}

// Err returns the envelope's error, or nil for success responses. The
// explicit nil avoids handing callers a non-nil error interface wrapping a
// nil *APIError.
func (r Response[T]) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// Value unwraps the envelope into (data, error) for callers that prefer the
// conventional Go shape.
func (r Response[T]) Value() (T, error) {
	if r.Success && r.Data != nil {
		return *r.Data, nil
	}
	var zero T
	if r.Error != nil {
		return zero, r.Error
	}
	return zero, nil
}
