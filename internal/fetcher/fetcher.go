// Package fetcher defines the page-fetch contract shared by the static and
// headless list-page fetchers.
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Request describes a single page fetch.
type Request struct {
	URL     string
	Headers http.Header
	Cookies []*http.Cookie
}

// Response is the fetched page.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Cookies    []*http.Cookie
	Duration   time.Duration
}

// Fetcher retrieves one page.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// CookieHeader renders cookies as a single Cookie request header value.
func CookieHeader(cookies []*http.Cookie) string {
	req := &http.Request{Header: http.Header{}}
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return req.Header.Get("Cookie")
}

// ResponseCookies parses Set-Cookie headers.
func ResponseCookies(h http.Header) []*http.Cookie {
	if len(h) == 0 {
		return nil
	}
	return (&http.Response{Header: h}).Cookies()
}
