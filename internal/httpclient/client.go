package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/config"
)

// DefaultUserAgent is the User-Agent header sent with requests.
const DefaultUserAgent = config.DefaultUserAgent

// Options configures the HTTP client.
type Options struct {
	// UserAgent is sent with every request. Default: DefaultUserAgent.
	UserAgent string

	// Timeout bounds a whole request including the body. Zero leaves it to
	// the transport.
	Timeout time.Duration

	// RequestsPerSecond enables throttling when positive.
	RequestsPerSecond int

	// Burst is the token bucket size used with RequestsPerSecond.
	Burst int

	// MaxIdleConnsPerHost sets the maximum idle connections per host.
	// Default: 16
	MaxIdleConnsPerHost int

	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper

	// Logger receives debug output. Default: no-op.
	Logger config.Logger
}

// FileInfo contains metadata about a remote file.
type FileInfo struct {
	// Size is the declared content length, or -1 when unknown.
	Size int64
	// AcceptsRanges is false only when the server says "Accept-Ranges: none".
	AcceptsRanges bool
	ContentType   string
}

// Response is an open response body with its declared length.
type Response struct {
	Body          io.ReadCloser
	StatusCode    int
	ContentLength int64
}

// Client performs the metadata, range and full GET requests of a download.
type Client struct {
	client    *http.Client
	userAgent string
}

// New creates a client with the given options.
func New(opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 16
	}
	if opts.Logger == nil {
		opts.Logger = config.NopLogger()
	}

	transport := opts.Transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.MaxIdleConnsPerHost = opts.MaxIdleConnsPerHost
		// Raw bytes are required for range requests to line up.
		base.DisableCompression = true
		transport = base
	}
	if opts.RequestsPerSecond > 0 {
		transport = newThrottle(opts.RequestsPerSecond, opts.Burst, opts.Logger, transport)
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
	}
}

// Do sends req with the client's User-Agent. Transport failures are returned
// as *NetworkError; the status code is not checked.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: req.Method, URL: req.URL.String(), Err: err}
	}
	return resp, nil
}

// Head performs a metadata-only request.
func (c *Client) Head(ctx context.Context, url string) (*FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(http.MethodHead, url, resp)
	}

	return &FileInfo{
		Size:          resp.ContentLength,
		AcceptsRanges: !strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "none"),
		ContentType:   resp.Header.Get("Content-Type"),
	}, nil
}

// GetRange requests bytes [start, end] (inclusive). A 206 response is
// accepted; a 200 response is accepted only when the range covers the
// whole resource, otherwise ErrRangeIgnored is returned.
func (c *Client) GetRange(ctx context.Context, url string, start, end int64) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		if start != 0 || (resp.ContentLength >= 0 && resp.ContentLength != end-start+1) {
			resp.Body.Close()
			return nil, fmt.Errorf("GET %s bytes=%d-%d: %w", url, start, end, ErrRangeIgnored)
		}
	default:
		resp.Body.Close()
		return nil, statusError(http.MethodGet, url, resp)
	}

	return &Response{Body: resp.Body, StatusCode: resp.StatusCode, ContentLength: resp.ContentLength}, nil
}

// Get performs a plain GET of the whole resource.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, statusError(http.MethodGet, url, resp)
	}

	return &Response{Body: resp.Body, StatusCode: resp.StatusCode, ContentLength: resp.ContentLength}, nil
}
