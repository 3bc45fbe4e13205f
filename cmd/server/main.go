package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MeridianProtocol/server/internal/audit"
	"github.com/MeridianProtocol/server/internal/circuitbreaker"
	"github.com/MeridianProtocol/server/internal/config"
	"github.com/MeridianProtocol/server/internal/hedera"
	"github.com/MeridianProtocol/server/internal/httpserver"
	"github.com/MeridianProtocol/server/internal/journal"
	"github.com/MeridianProtocol/server/internal/lifecycle"
	"github.com/MeridianProtocol/server/internal/logger"
	"github.com/MeridianProtocol/server/internal/metrics"
	"github.com/MeridianProtocol/server/internal/money"
	"github.com/MeridianProtocol/server/internal/monitoring"
	"github.com/MeridianProtocol/server/internal/notify"
	"github.com/MeridianProtocol/server/internal/oracle"
	"github.com/MeridianProtocol/server/internal/settlement"
	"github.com/MeridianProtocol/server/internal/verify"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := flag.String("config", defaultConfigPath(), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("config.load_failed")
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "meridian-server",
		Environment: cfg.Logging.Environment,
	})

	if err := run(cfg, appLogger); err != nil {
		appLogger.Fatal().Err(err).Msg("server.exit")
	}
}

func defaultConfigPath() string {
	if path := os.Getenv("MERIDIAN_CONFIG"); path != "" {
		return path
	}
	return ""
}

func run(cfg *config.Config, appLogger zerolog.Logger) error {
	resources := lifecycle.NewManager()
	defer resources.Close()

	metricsCollector := metrics.New(prometheus.DefaultRegisterer)
	breakers := circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker)

	mirror := hedera.NewMirrorClient(cfg.Hedera.MirrorBaseURL, cfg.Hedera.MirrorTimeout.Duration,
		hedera.WithBreaker(breakers),
		hedera.WithMetrics(metricsCollector))

	ledger, err := hedera.NewLedgerClient(cfg.Hedera,
		hedera.WithLedgerBreaker(breakers),
		hedera.WithLedgerMetrics(metricsCollector))
	if err != nil {
		return fmt.Errorf("init ledger client: %w", err)
	}
	resources.Register("ledger-client", ledger)

	rates := oracle.NewClient(mirror, cfg.Oracle.TopicID)
	verifier := verify.New(mirror, cfg.Verification, metricsCollector)

	journalRepo, err := journal.NewRepository(cfg.Journal)
	if err != nil {
		return fmt.Errorf("init settlement journal: %w", err)
	}
	resources.Register("settlement-journal", journalRepo)

	engine := settlement.New(cfg, rates, mirror, verifier, ledger).
		WithJournal(journalRepo).
		WithMetrics(metricsCollector)

	if cfg.Protocol.AuditTopicID != "" {
		engine = engine.WithAuditor(audit.New(ledger, cfg.Protocol.AuditTopicID, cfg.Protocol.AuditTimeout.Duration))
	} else {
		appLogger.Warn().Msg("audit.topic_not_configured")
	}

	notifier := notify.NewClient(cfg.Notifications,
		assetFromToken(cfg.Protocol.SourceToken),
		assetFromToken(cfg.Protocol.DestinationToken),
		notify.WithLogger(appLogger),
		notify.WithBreaker(breakers),
		notify.WithMetrics(metricsCollector))
	if notifier != nil {
		engine = engine.WithNotifier(notifier)
		resources.RegisterFunc("notifier", func() error {
			notifier.Wait()
			return nil
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := monitoring.NewLiquidityMonitor(cfg, mirror, metricsCollector)
	monitor.Start(ctx)
	resources.RegisterFunc("liquidity-monitor", func() error {
		monitor.Stop()
		return nil
	})

	srv := httpserver.New(cfg, engine, rates, mirror, journalRepo, metricsCollector, appLogger)

	errCh := make(chan error, 1)
	go func() {
		appLogger.Info().
			Str("address", cfg.Server.Address).
			Str("network", cfg.Hedera.Network).
			Str("pair", cfg.Protocol.SourceToken.Code+"/"+cfg.Protocol.DestinationToken.Code).
			Msg("server.listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		appLogger.Info().Msg("server.shutdown_requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
	}
	return nil
}

func assetFromToken(tc config.TokenConfig) money.Asset {
	return money.Asset{Code: tc.Code, Decimals: tc.Decimals, TokenID: tc.TokenID}
}
