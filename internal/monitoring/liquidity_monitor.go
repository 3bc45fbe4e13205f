// Package monitoring watches the liquidity wallet and alerts when its
// destination token balance drops below the configured floor.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MeridianProtocol/server/internal/config"
	"github.com/MeridianProtocol/server/internal/httputil"
	"github.com/MeridianProtocol/server/internal/logger"
	"github.com/MeridianProtocol/server/internal/metrics"
	"github.com/MeridianProtocol/server/internal/money"
)

// BalanceSource reads token balances from the ledger's read API.
type BalanceSource interface {
	TokenBalance(ctx context.Context, accountID, tokenID string) (int64, error)
}

// LiquidityMonitor periodically checks the liquidity wallet balance, keeps
// the balance gauge current, and posts a webhook alert when the balance
// falls below the threshold.
type LiquidityMonitor struct {
	cfg        *config.Config
	balances   BalanceSource
	httpClient *http.Client
	metrics    *metrics.Metrics

	thresholdTiny int64

	mu          sync.Mutex
	lastAlertAt time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// BalanceAlert is the webhook payload for a low liquidity balance.
type BalanceAlert struct {
	Wallet    string    `json:"wallet"`
	Token     string    `json:"token"`
	Balance   string    `json:"balance"`
	Threshold string    `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLiquidityMonitor creates a monitor for the configured liquidity wallet.
func NewLiquidityMonitor(cfg *config.Config, balances BalanceSource, m *metrics.Metrics) *LiquidityMonitor {
	timeout := cfg.Monitoring.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	thresholdTiny, err := money.ToTinyUnits(cfg.Monitoring.LowBalanceThreshold, cfg.Protocol.DestinationToken.Decimals)
	if err != nil {
		thresholdTiny = 0
	}

	return &LiquidityMonitor{
		cfg:           cfg,
		balances:      balances,
		httpClient:    httputil.NewClient(timeout),
		metrics:       m,
		thresholdTiny: thresholdTiny,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the monitoring loop. With no check interval configured the
// monitor stays off.
func (m *LiquidityMonitor) Start(ctx context.Context) {
	if m.cfg.Monitoring.CheckInterval.Duration <= 0 {
		log.Info().Msg("liquidity_monitor.disabled")
		return
	}

	log.Info().
		Str("wallet", logger.TruncateAddress(m.cfg.Protocol.LiquidityAccount)).
		Dur("check_interval", m.cfg.Monitoring.CheckInterval.Duration).
		Str("threshold", m.cfg.Monitoring.LowBalanceThreshold).
		Msg("liquidity_monitor.started")

	m.wg.Add(1)
	go m.monitorLoop(ctx)
}

// Stop gracefully stops the monitoring loop.
func (m *LiquidityMonitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	log.Info().Msg("liquidity_monitor.stopped")
}

func (m *LiquidityMonitor) monitorLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Monitoring.CheckInterval.Duration)
	defer ticker.Stop()

	m.checkBalance(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkBalance(ctx)
		}
	}
}

// checkBalance reads the wallet balance, updates the gauge, and alerts when
// the balance is below threshold.
func (m *LiquidityMonitor) checkBalance(ctx context.Context) {
	wallet := m.cfg.Protocol.LiquidityAccount
	token := m.cfg.Protocol.DestinationToken

	balance, err := m.balances.TokenBalance(ctx, wallet, token.TokenID)
	if err != nil {
		log.Error().
			Err(err).
			Str("wallet", logger.TruncateAddress(wallet)).
			Msg("liquidity_monitor.fetch_error")
		return
	}

	if m.metrics != nil {
		m.metrics.LiquidityBalance.Set(float64(balance))
	}

	log.Debug().
		Str("wallet", logger.TruncateAddress(wallet)).
		Str("balance", money.FromTinyUnits(balance, token.Decimals)).
		Msg("liquidity_monitor.balance_checked")

	if m.thresholdTiny > 0 && balance < m.thresholdTiny {
		if m.shouldAlert() {
			m.sendAlert(ctx, balance)
		}
	} else {
		m.clearAlert()
	}
}

// shouldAlert throttles alerts to one per cooldown period.
func (m *LiquidityMonitor) shouldAlert() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cooldown := m.cfg.Monitoring.AlertCooldown.Duration
	if cooldown <= 0 {
		cooldown = 24 * time.Hour
	}
	if !m.lastAlertAt.IsZero() && time.Since(m.lastAlertAt) < cooldown {
		return false
	}
	m.lastAlertAt = time.Now()
	return true
}

func (m *LiquidityMonitor) clearAlert() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAlertAt = time.Time{}
}

// sendAlert posts the low balance alert webhook.
func (m *LiquidityMonitor) sendAlert(ctx context.Context, balance int64) {
	if m.cfg.Monitoring.LowBalanceAlertURL == "" {
		return
	}

	wallet := m.cfg.Protocol.LiquidityAccount
	token := m.cfg.Protocol.DestinationToken

	body, err := json.Marshal(BalanceAlert{
		Wallet:    wallet,
		Token:     token.Code,
		Balance:   money.FromTinyUnits(balance, token.Decimals),
		Threshold: m.cfg.Monitoring.LowBalanceThreshold,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		log.Error().Err(err).Msg("liquidity_monitor.marshal_error")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Monitoring.LowBalanceAlertURL, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("liquidity_monitor.request_error")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range m.cfg.Monitoring.Headers {
		req.Header.Set(k, v)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		log.Error().
			Err(err).
			Str("wallet", logger.TruncateAddress(wallet)).
			Msg("liquidity_monitor.alert_error")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("wallet", logger.TruncateAddress(wallet)).
			Msg("liquidity_monitor.alert_rejected")
		return
	}

	log.Warn().
		Str("wallet", logger.TruncateAddress(wallet)).
		Str("balance", money.FromTinyUnits(balance, token.Decimals)).
		Msg("liquidity_monitor.low_balance_alert_sent")
}
