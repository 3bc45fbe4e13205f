// Package ratelimit provides HTTP rate limiting middleware backed by
// httprate: a global ceiling across all clients plus a per-IP limit.
package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/MeridianProtocol/server/internal/metrics"
)

// Config holds rate limiting configuration.
type Config struct {
	// Global rate limiting (across all clients)
	GlobalEnabled bool
	GlobalLimit   int           // requests per window
	GlobalWindow  time.Duration // time window

	// Per-IP rate limiting
	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	// Metrics collector (optional)
	Metrics *metrics.Metrics
}

// DefaultConfig returns limits generous enough for legitimate clients while
// stopping obvious spam.
func DefaultConfig() Config {
	return Config{
		GlobalEnabled: true,
		GlobalLimit:   1000,
		GlobalWindow:  time.Minute,

		PerIPEnabled: true,
		PerIPLimit:   120,
		PerIPWindow:  time.Minute,
	}
}

// rateLimitResponse is the JSON body for 429 responses.
type rateLimitResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// limitHandler builds the rejection handler shared by both limiters.
func limitHandler(limitType, message string, windowSeconds int, m *metrics.Metrics) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if m != nil {
			m.ObserveRateLimit(limitType)
		}

		response := rateLimitResponse{
			Error:             "rate_limit_exceeded",
			Message:           message,
			RetryAfterSeconds: windowSeconds,
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", fmt.Sprintf("%d", windowSeconds))
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(response)
	}
}

// GlobalLimiter creates a global rate limiter middleware.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.GlobalEnabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithLimitHandler(
			limitHandler(
				"global",
				"Service is at capacity. Please try again later.",
				int(cfg.GlobalWindow.Seconds()),
				cfg.Metrics,
			),
		),
	)
}

// IPLimiter creates a per-IP rate limiter middleware.
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerIPEnabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(
			limitHandler(
				"per_ip",
				"Rate limit exceeded. Please try again later.",
				int(cfg.PerIPWindow.Seconds()),
				cfg.Metrics,
			),
		),
	)
}

// FromConfig converts the application config into limiter settings.
func FromConfig(global bool, globalLimit int, globalWindow time.Duration, perIP bool, perIPLimit int, perIPWindow time.Duration, m *metrics.Metrics) Config {
	cfg := DefaultConfig()
	cfg.GlobalEnabled = global
	if globalLimit > 0 {
		cfg.GlobalLimit = globalLimit
	}
	if globalWindow > 0 {
		cfg.GlobalWindow = globalWindow
	}
	cfg.PerIPEnabled = perIP
	if perIPLimit > 0 {
		cfg.PerIPLimit = perIPLimit
	}
	if perIPWindow > 0 {
		cfg.PerIPWindow = perIPWindow
	}
	cfg.Metrics = m
	return cfg
}
