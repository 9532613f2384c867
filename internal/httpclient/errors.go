package httpclient

import (
	"errors"
	"fmt"
)

// APIError is the closed set of failures returned by Client. The concrete
// variants are *NetworkError, *HTTPStatusError and *TimeoutError.
type APIError interface {
	error
	API() string
	URL() string
	Method() string
	Code() int
	Body() string
	apiError()
}

type requestInfo struct {
	api    string
	url    string
	method string
}

func (r requestInfo) API() string    { return r.api }
func (r requestInfo) URL() string    { return r.url }
func (r requestInfo) Method() string { return r.method }
func (requestInfo) apiError()        {}

// NetworkError is a transport failure: no HTTP response was received.
type NetworkError struct {
	requestInfo
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %s %s: network error: %v", e.api, e.method, e.url, e.Err)
}
func (e *NetworkError) Unwrap() error { return e.Err }
func (e *NetworkError) Code() int     { return 0 }
func (e *NetworkError) Body() string  { return "" }

// HTTPStatusError is a response with a status code >= 400.
type HTTPStatusError struct {
	requestInfo
	StatusCode int
	RespBody   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: %s %s: status %d: %s", e.api, e.method, e.url, e.StatusCode, e.RespBody)
}
func (e *HTTPStatusError) Code() int    { return e.StatusCode }
func (e *HTTPStatusError) Body() string { return e.RespBody }

// TimeoutError means the request deadline elapsed before a response arrived.
type TimeoutError struct {
	requestInfo
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s %s: timed out: %v", e.api, e.method, e.url, e.Err)
}
func (e *TimeoutError) Unwrap() error { return e.Err }
func (e *TimeoutError) Code() int     { return 0 }
func (e *TimeoutError) Body() string  { return "" }

// AsAPIError extracts the APIError from err's chain.
func AsAPIError(err error) (APIError, bool) {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not an HTTPStatusError.
func StatusCode(err error) int {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool { return StatusCode(err) == 404 }

// Retryable reports whether err is worth retrying: network failures and timeouts, never status errors.
func Retryable(err error) bool {
	var netErr *NetworkError
	var timeoutErr *TimeoutError
	return errors.As(err, &netErr) || errors.As(err, &timeoutErr)
}
