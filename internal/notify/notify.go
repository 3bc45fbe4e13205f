// Package notify delivers settlement events to a configured webhook. Delivery
// is fire-and-forget with retries: a dead endpoint slows nothing down and
// fails no settlement.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MeridianProtocol/server/internal/circuitbreaker"
	"github.com/MeridianProtocol/server/internal/config"
	"github.com/MeridianProtocol/server/internal/httputil"
	"github.com/MeridianProtocol/server/internal/journal"
	"github.com/MeridianProtocol/server/internal/metrics"
	"github.com/MeridianProtocol/server/internal/money"
	"github.com/MeridianProtocol/server/internal/retry"
)

const eventWithdrawalSettled = "withdrawal.settled"

// Event is the webhook payload for one settled withdrawal. EventID is the
// inbound transaction ID, stable across redeliveries, so receivers can
// deduplicate.
type Event struct {
	Type              string `json:"type"`
	EventID           string `json:"eventId"`
	UserAccountID     string `json:"userAccountId"`
	SourceToken       string `json:"sourceToken"`
	AmountSource      string `json:"amountSource"`
	DestToken         string `json:"destToken"`
	AmountDestination string `json:"amountDestination"`
	Fee               string `json:"fee"`
	Rate              string `json:"rate"`
	InboundTxID       string `json:"inboundTxId"`
	OutboundTxID      string `json:"outboundTxId"`
	SettledAt         string `json:"settledAt"`
}

// Client posts settlement events with exponential backoff retries.
type Client struct {
	cfg        config.NotificationsConfig
	srcAsset   money.Asset
	dstAsset   money.Asset
	policy     retry.Policy
	httpClient *http.Client
	logger     zerolog.Logger
	breaker    *circuitbreaker.Manager
	metrics    *metrics.Metrics
	wg         sync.WaitGroup
}

// Option customizes the notify client.
type Option func(*Client)

// WithLogger sets the logger for delivery outcomes.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBreaker routes deliveries through the circuit breaker manager.
func WithBreaker(breaker *circuitbreaker.Manager) Option {
	return func(c *Client) {
		c.breaker = breaker
	}
}

// WithMetrics records webhook delivery observations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds a notify client. Returns nil when no webhook URL is
// configured; the engine treats a nil Notifier as disabled.
func NewClient(cfg config.NotificationsConfig, src, dst money.Asset, opts ...Option) *Client {
	if cfg.WithdrawalURL == "" {
		return nil
	}

	timeout := cfg.Timeout.Duration
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	policy := retry.Policy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval.Duration,
		MaxInterval:     cfg.Retry.MaxInterval.Duration,
		Multiplier:      cfg.Retry.Multiplier,
	}
	if !cfg.Retry.Enabled {
		policy.MaxAttempts = 1
	}

	c := &Client{
		cfg:        cfg,
		srcAsset:   src,
		dstAsset:   dst,
		policy:     policy,
		httpClient: httputil.NewClient(timeout),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SettlementCompleted dispatches the event asynchronously. The caller's
// context is not used for delivery; the request that triggered the event
// finishes long before the last retry would.
func (c *Client) SettlementCompleted(ctx context.Context, s journal.Settlement) {
	if c == nil {
		return
	}

	event := Event{
		Type:              eventWithdrawalSettled,
		EventID:           s.InboundTxID,
		UserAccountID:     s.UserAccountID,
		SourceToken:       s.SourceToken,
		AmountSource:      money.FromTinyUnits(s.SourceTiny, c.srcAsset.Decimals),
		DestToken:         s.DestToken,
		AmountDestination: money.FromTinyUnits(s.NetTiny, c.dstAsset.Decimals),
		Fee:               money.FromTinyUnits(s.FeeTiny, c.dstAsset.Decimals),
		Rate:              s.Rate,
		InboundTxID:       s.InboundTxID,
		OutboundTxID:      s.OutboundTxID,
		SettledAt:         s.SettledAt.UTC().Format(time.RFC3339),
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.deliver(event)
	}()
}

// Wait blocks until in-flight deliveries finish, for graceful shutdown.
func (c *Client) Wait() {
	if c == nil {
		return
	}
	c.wg.Wait()
}

func (c *Client) deliver(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		c.logger.Error().Err(err).Msg("notify.serialize_failed")
		return
	}

	start := time.Now()
	attempts := 0
	err = c.policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return c.send(ctx, payload)
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	if c.metrics != nil {
		c.metrics.ObserveWebhook(eventWithdrawalSettled, status, time.Since(start), attempts)
	}

	if err != nil {
		c.logger.Error().
			Err(err).
			Str("event_id", event.EventID).
			Int("attempts", attempts).
			Msg("notify.delivery_failed")
		return
	}
	c.logger.Info().
		Str("event_id", event.EventID).
		Int("attempts", attempts).
		Msg("notify.delivered")
}

func (c *Client) send(ctx context.Context, payload []byte) error {
	_, err := c.breaker.Execute(circuitbreaker.ServiceWebhook, func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WithdrawalURL, bytes.NewReader(payload))
		if err != nil {
			return nil, retry.Permanent{Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range c.cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("post webhook: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil, nil
		case resp.StatusCode == http.StatusRequestTimeout ||
			resp.StatusCode == http.StatusTooManyRequests ||
			resp.StatusCode >= 500:
			return nil, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		default:
			return nil, retry.Permanent{Err: fmt.Errorf("webhook returned status %d", resp.StatusCode)}
		}
	})
	return err
}
