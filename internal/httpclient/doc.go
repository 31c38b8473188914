// Package httpclient is the HTTP transport used by release resolution and
// segmented downloads.
//
// It issues three kinds of requests: a metadata-only HEAD to learn the
// content length, byte-range GETs for individual segments, and plain GETs.
// Failures are typed: *NetworkError when no response arrived and
// *HTTPStatusError for a non-success status. An optional token bucket
// (golang.org/x/time/rate) throttles every outbound request.
package httpclient
