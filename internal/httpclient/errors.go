package httpclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRangeIgnored is returned when a server answers a partial range
	// request with the whole resource.
	ErrRangeIgnored = errors.New("http: server ignored range request")
	// ErrNotFound is wrapped by HTTPStatusError for 404 responses.
	ErrNotFound = errors.New("http: resource not found")
	// ErrForbidden is wrapped by HTTPStatusError for 403 responses.
	ErrForbidden = errors.New("http: access forbidden")
)

// NetworkError is a connectivity, DNS or timeout failure: no HTTP response
// was received.
type NetworkError struct {
	Op  string // "HEAD", "GET"
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is a response with a non-success status code.
type HTTPStatusError struct {
	Op         string
	URL        string
	StatusCode int
	Status     string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %s", e.Op, e.URL, e.Status)
}

// Unwrap maps well-known status codes onto sentinel errors.
func (e *HTTPStatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden:
		return ErrForbidden
	default:
		return nil
	}
}

func statusError(op, url string, resp *http.Response) *HTTPStatusError {
	status := resp.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return &HTTPStatusError{Op: op, URL: url, StatusCode: resp.StatusCode, Status: status}
}
