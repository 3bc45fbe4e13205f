package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the Meridian settlement server.
type Metrics struct {
	// Settlement metrics
	SettlementsTotal        *prometheus.CounterVec
	SettlementsSuccessTotal prometheus.Counter
	SettlementsFailedTotal  *prometheus.CounterVec
	SettlementAmountTotal   *prometheus.CounterVec
	SettlementDuration      prometheus.Histogram

	// Transfer verification metrics
	VerificationAttempts prometheus.Histogram
	VerificationDuration prometheus.Histogram

	// Mirror node API metrics
	MirrorCallsTotal   *prometheus.CounterVec
	MirrorCallDuration *prometheus.HistogramVec
	MirrorErrorsTotal  *prometheus.CounterVec

	// Ledger write metrics
	LedgerSubmitsTotal   *prometheus.CounterVec
	LedgerSubmitDuration *prometheus.HistogramVec

	// Webhook metrics
	WebhooksTotal       *prometheus.CounterVec
	WebhookRetriesTotal *prometheus.CounterVec
	WebhookDuration     prometheus.Histogram

	// Liquidity metrics
	LiquidityBalance prometheus.Gauge

	// Rate limiting metrics
	RateLimitHitsTotal *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		SettlementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_settlements_total",
				Help: "Total number of instant withdrawal settlement attempts",
			},
			[]string{"token"},
		),
		SettlementsSuccessTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "meridian_settlements_success_total",
				Help: "Total number of successful instant withdrawal settlements",
			},
		),
		SettlementsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_settlements_failed_total",
				Help: "Total number of failed instant withdrawal settlements",
			},
			[]string{"reason"},
		),
		SettlementAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_settlement_amount_total",
				Help: "Total settled amount in destination tiny units",
			},
			[]string{"token", "leg"}, // leg: gross | fee | net
		),
		SettlementDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meridian_settlement_duration_seconds",
				Help:    "End-to-end instant withdrawal pipeline duration",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		VerificationAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meridian_verification_attempts",
				Help:    "Mirror node polls needed to observe the inbound transfer",
				Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
			},
		),
		VerificationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meridian_verification_duration_seconds",
				Help:    "Time spent confirming the inbound transfer",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		MirrorCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_mirror_calls_total",
				Help: "Total number of mirror node REST calls",
			},
			[]string{"endpoint"},
		),
		MirrorCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meridian_mirror_call_duration_seconds",
				Help:    "Duration of mirror node REST calls",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"endpoint"},
		),
		MirrorErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_mirror_errors_total",
				Help: "Total number of failed mirror node REST calls",
			},
			[]string{"endpoint"},
		),
		LedgerSubmitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_ledger_submits_total",
				Help: "Total number of transactions submitted to the Hedera network",
			},
			[]string{"type", "status"}, // type: token_transfer | topic_message
		),
		LedgerSubmitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meridian_ledger_submit_duration_seconds",
				Help:    "Time from submission to receipt for Hedera transactions",
				Buckets: []float64{0.5, 1, 2, 3, 5, 10, 20},
			},
			[]string{"type"},
		),
		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_webhooks_total",
				Help: "Total number of notification webhook deliveries",
			},
			[]string{"event", "status"},
		),
		WebhookRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_webhook_retries_total",
				Help: "Total number of webhook delivery retries",
			},
			[]string{"event"},
		),
		WebhookDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meridian_webhook_duration_seconds",
				Help:    "Webhook delivery duration including retries",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 5, 30, 300},
			},
		),
		LiquidityBalance: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "meridian_liquidity_balance_tiny",
				Help: "Last observed liquidity wallet balance in destination tiny units",
			},
		),
		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meridian_rate_limit_hits_total",
				Help: "Total number of requests rejected by rate limiting",
			},
			[]string{"limit_type"},
		),
	}
}

// ObserveRateLimit records one rejected request.
func (m *Metrics) ObserveRateLimit(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitHitsTotal.WithLabelValues(limitType).Inc()
}

// ObserveSettlement records one settlement attempt outcome.
// reason is empty on success.
func (m *Metrics) ObserveSettlement(token string, duration time.Duration, reason string) {
	if m == nil {
		return
	}
	m.SettlementsTotal.WithLabelValues(token).Inc()
	m.SettlementDuration.Observe(duration.Seconds())
	if reason == "" {
		m.SettlementsSuccessTotal.Inc()
	} else {
		m.SettlementsFailedTotal.WithLabelValues(reason).Inc()
	}
}

// ObserveSettledAmounts records the gross/fee/net legs of a completed settlement.
func (m *Metrics) ObserveSettledAmounts(token string, gross, fee, net int64) {
	if m == nil {
		return
	}
	m.SettlementAmountTotal.WithLabelValues(token, "gross").Add(float64(gross))
	m.SettlementAmountTotal.WithLabelValues(token, "fee").Add(float64(fee))
	m.SettlementAmountTotal.WithLabelValues(token, "net").Add(float64(net))
}

// ObserveMirrorCall records one mirror node REST request.
func (m *Metrics) ObserveMirrorCall(endpoint string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.MirrorCallsTotal.WithLabelValues(endpoint).Inc()
	m.MirrorCallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	if err != nil {
		m.MirrorErrorsTotal.WithLabelValues(endpoint).Inc()
	}
}

// ObserveVerification records the outcome of one inbound transfer verification.
func (m *Metrics) ObserveVerification(attempts int, duration time.Duration) {
	if m == nil {
		return
	}
	m.VerificationAttempts.Observe(float64(attempts))
	m.VerificationDuration.Observe(duration.Seconds())
}

// ObserveLedgerSubmit records one Hedera transaction submission.
func (m *Metrics) ObserveLedgerSubmit(txType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LedgerSubmitsTotal.WithLabelValues(txType, status).Inc()
	m.LedgerSubmitDuration.WithLabelValues(txType).Observe(duration.Seconds())
}

// ObserveWebhook records one webhook delivery outcome.
func (m *Metrics) ObserveWebhook(event, status string, duration time.Duration, attempts int) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(event, status).Inc()
	m.WebhookDuration.Observe(duration.Seconds())
	if attempts > 1 {
		m.WebhookRetriesTotal.WithLabelValues(event).Add(float64(attempts - 1))
	}
}
