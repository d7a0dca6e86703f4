package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
)

// Request executes method against url and decodes the payload into T. All
// failures, network errors included, come back as an error envelope; the
// function never returns a Go error.
func Request[T any](ctx context.Context, c *Client, method, url string, body any, cfg *RequestConfig) Response[T] {
	res, apiErr, meta := c.do(ctx, method, url, body, cfg)
	if apiErr != nil {
		return Fail[T](apiErr, meta)
	}
	return decodePayload[T](res, meta)
}

// Get issues a GET for T.
func Get[T any](ctx context.Context, c *Client, url string, cfg *RequestConfig) Response[T] {
	return Request[T](ctx, c, http.MethodGet, url, nil, cfg)
}

// Post issues a POST carrying body, decoding the result into T.
func Post[T any](ctx context.Context, c *Client, url string, body any, cfg *RequestConfig) Response[T] {
	return Request[T](ctx, c, http.MethodPost, url, body, cfg)
}

// Put issues a PUT carrying body, decoding the result into T.
func Put[T any](ctx context.Context, c *Client, url string, body any, cfg *RequestConfig) Response[T] {
	return Request[T](ctx, c, http.MethodPut, url, body, cfg)
}

// Patch issues a PATCH carrying body, decoding the result into T.
func Patch[T any](ctx context.Context, c *Client, url string, body any, cfg *RequestConfig) Response[T] {
	return Request[T](ctx, c, http.MethodPatch, url, body, cfg)
}

// Delete issues a DELETE, decoding the result into T.
func Delete[T any](ctx context.Context, c *Client, url string, cfg *RequestConfig) Response[T] {
	return Request[T](ctx, c, http.MethodDelete, url, nil, cfg)
}

// Do is the untyped variant of Request, leaving the payload raw.
func (c *Client) Do(ctx context.Context, method, url string, body any, cfg *RequestConfig) Response[json.RawMessage] {
	return Request[json.RawMessage](ctx, c, method, url, body, cfg)
}

// decodePayload turns a raw exchange into a typed envelope. When the server
// already speaks the envelope shape (a JSON object with a boolean "success"
// discriminant) its data, error and pagination blocks are lifted; otherwise
// the whole body is decoded as T.
func decodePayload[T any](res *exchange, meta *ResponseMeta) Response[T] {
	if res == nil || len(res.body) == 0 {
		var zero T
		return Ok(zero, meta)
	}

	var shell struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *APIError       `json:"error"`
		Meta    *struct {
			Pagination *PaginationMeta `json:"pagination"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(res.body, &shell); err == nil && shell.Success != nil {
		if !*shell.Success {
			apiErr := shell.Error
			if apiErr == nil {
				apiErr = NewAPIError(CodeForStatus(res.status), "request failed").WithStatus(res.status)
			}
			if meta != nil && apiErr.RequestID == "" {
				apiErr = apiErr.WithRequestID(meta.RequestID)
			}
			return Fail[T](apiErr, meta)
		}

		if shell.Meta != nil && shell.Meta.Pagination != nil && meta != nil {
			meta.Pagination = shell.Meta.Pagination
		}

		if len(shell.Data) == 0 || string(shell.Data) == "null" {
			var zero T
			return Ok(zero, meta)
		}
		return decodeInto[T](shell.Data, meta)
	}

	return decodeInto[T](res.body, meta)
}

func decodeInto[T any](raw []byte, meta *ResponseMeta) Response[T] {
	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		apiErr := NewAPIError(CodeDecodeError, "decoding response payload failed").WithCause(err)
		if meta != nil {
			apiErr = apiErr.WithRequestID(meta.RequestID)
		}
		return Fail[T](apiErr, meta)
	}
	return Ok(data, meta)
}
