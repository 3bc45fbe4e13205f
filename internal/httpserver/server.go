// Package httpserver exposes the instant withdrawal API over HTTP.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MeridianProtocol/server/internal/config"
	"github.com/MeridianProtocol/server/internal/journal"
	"github.com/MeridianProtocol/server/internal/logger"
	"github.com/MeridianProtocol/server/internal/metrics"
	"github.com/MeridianProtocol/server/internal/ratelimit"
	"github.com/MeridianProtocol/server/internal/settlement"
)

var serverStartTime = time.Now()

// SettlementEngine is the settlement surface the handlers need.
type SettlementEngine interface {
	ProcessInstantWithdrawal(ctx context.Context, req settlement.Request) (*settlement.Result, error)
	MaxInstantWithdrawable(ctx context.Context) (*settlement.MaxQuote, error)
}

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg      *config.Config
	engine   SettlementEngine
	rates    settlement.RateSource
	balances settlement.BalanceSource
	journal  journal.Repository
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New builds the HTTP server with the configured router.
func New(cfg *config.Config, engine SettlementEngine, rates settlement.RateSource, balances settlement.BalanceSource, journalRepo journal.Repository, metricsCollector *metrics.Metrics, appLogger zerolog.Logger) *Server {
	router := chi.NewRouter()

	h := handlers{
		cfg:      cfg,
		engine:   engine,
		rates:    rates,
		balances: balances,
		journal:  journalRepo,
		metrics:  metricsCollector,
		logger:   appLogger,
	}

	s := &Server{
		handlers: h,
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	configureRouter(router, h)
	return s
}

// configureRouter attaches routes and the middleware stack.
func configureRouter(router chi.Router, h handlers) {
	cfg := h.cfg

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	router.Use(securityHeadersMiddleware)

	// Logging middleware goes before RequestID so the request logger picks
	// up the ID from context.
	router.Use(logger.Middleware(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	rateLimitCfg := ratelimit.FromConfig(
		cfg.RateLimit.GlobalEnabled,
		cfg.RateLimit.GlobalLimit,
		cfg.RateLimit.GlobalWindow.Duration,
		cfg.RateLimit.PerIPEnabled,
		cfg.RateLimit.PerIPLimit,
		cfg.RateLimit.PerIPWindow.Duration,
		h.metrics,
	)
	router.Use(ratelimit.GlobalLimiter(rateLimitCfg))
	router.Use(ratelimit.IPLimiter(rateLimitCfg))

	prefix := cfg.Server.RoutePrefix

	// Lightweight endpoints: health and metrics.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/meridian-health", h.health)
		r.With(adminMetricsAuth(cfg.Server.AdminMetricsAPIKey)).Handle(prefix+"/metrics", promhttp.Handler())
	})

	// Read endpoints hit the mirror node once; keep them on a short leash.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Get(prefix+"/rates/v1/latest", h.latestRate)
		r.Get(prefix+"/withdraw/v1/instant/max", h.maxInstantWithdrawal)
		r.Get(prefix+"/withdraw/v1/history", h.withdrawalHistory)
		r.Get(prefix+"/accounts/v1/{accountID}/balance", h.accountBalance)
	})

	// Settlement blocks on transfer verification and the outbound payout;
	// its budget covers the full verification backoff schedule.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(120 * time.Second))
		r.Post(prefix+"/withdraw/v1/instant", h.instantWithdrawal)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
