package httputil

import (
	"net/http"
	"time"
)

// NewClient creates an HTTP client with the given timeout and shared transport
// settings, so mirror node polling and webhook delivery reuse connections
// instead of re-dialing the same hosts.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
