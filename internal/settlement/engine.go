// Package settlement orchestrates instant withdrawals: a verified inbound
// deposit of the source token is exchanged, at the oracle rate, for an
// immediate payout of the destination token from the liquidity wallet.
package settlement

import (
	"context"
	"math/big"
	"time"

	"github.com/MeridianProtocol/server/internal/audit"
	"github.com/MeridianProtocol/server/internal/config"
	apperrors "github.com/MeridianProtocol/server/internal/errors"
	"github.com/MeridianProtocol/server/internal/hedera"
	"github.com/MeridianProtocol/server/internal/journal"
	"github.com/MeridianProtocol/server/internal/logger"
	"github.com/MeridianProtocol/server/internal/metrics"
	"github.com/MeridianProtocol/server/internal/money"
	"github.com/MeridianProtocol/server/internal/oracle"
	"github.com/MeridianProtocol/server/internal/verify"
)

// RateSource resolves the current exchange rate.
type RateSource interface {
	CurrentRate(ctx context.Context) (oracle.Record, error)
}

// BalanceSource reads token balances from the ledger's read API.
type BalanceSource interface {
	TokenBalance(ctx context.Context, accountID, tokenID string) (int64, error)
}

// TransferVerifier confirms the claimed inbound deposit.
type TransferVerifier interface {
	Verify(ctx context.Context, p verify.Params) (*verify.Result, error)
}

// Payer executes the outbound payout on the ledger.
type Payer interface {
	TransferToken(ctx context.Context, tokenID, fromAccount, toAccount string, amountTiny int64) (hedera.TransferResult, error)
}

// AuditPublisher records the settlement on the audit topic, best effort.
type AuditPublisher interface {
	Publish(ctx context.Context, entry audit.Entry) (string, bool)
}

// Notifier announces a completed settlement to configured webhooks.
type Notifier interface {
	SettlementCompleted(ctx context.Context, s journal.Settlement)
}

// Request is a parsed, pre-validated instant withdrawal request.
type Request struct {
	UserAccountID string
	AmountTiny    int64      // deposit amount in source tiny units
	Rate          money.Rate // rate the client was quoted
	RateSequence  int64      // oracle sequence number the quote came from
}

// Result is a completed settlement.
type Result struct {
	Quote              money.Quote
	Rate               money.Rate
	RateSequence       int64
	InboundTxID        string
	OutboundTxID       string
	AuditTxID          string
	AuditRecorded      bool
	WalletBalanceAfter int64 // destination tiny units, post-payout estimate
	SettledAt          time.Time
}

// MaxQuote reports the largest instant withdrawal currently serviceable.
type MaxQuote struct {
	MaxSourceTiny int64
	AvailableTiny int64 // liquidity wallet balance, destination tiny units
	Rate          money.Rate
	RateSequence  int64
}

// Engine runs the settlement pipeline. All collaborators are injected; the
// engine owns only the per-wallet serialization and the debit bookkeeping
// that papers over mirror replication lag.
type Engine struct {
	cfg      config.ProtocolConfig
	minTiny  int64
	maxTiny  int64
	lookback time.Duration

	rates    RateSource
	balances BalanceSource
	verifier TransferVerifier
	payer    Payer
	auditor  AuditPublisher
	journal  journal.Repository
	notifier Notifier
	metrics  *metrics.Metrics

	locks  *walletLocks
	debits *recentDebits
	now    func() time.Time
}

// New assembles an engine. Auditor, journal, notifier, and metrics may be
// nil; the corresponding step is skipped.
func New(cfg *config.Config, rates RateSource, balances BalanceSource, verifier TransferVerifier, payer Payer) *Engine {
	return &Engine{
		cfg:      cfg.Protocol,
		minTiny:  cfg.MinWithdrawalTiny(),
		maxTiny:  cfg.MaxWithdrawalTiny(),
		lookback: cfg.Verification.LookbackWindow.Duration,
		rates:    rates,
		balances: balances,
		verifier: verifier,
		payer:    payer,
		locks:    newWalletLocks(),
		debits:   newRecentDebits(),
		now:      time.Now,
	}
}

// WithAuditor attaches the audit topic publisher.
func (e *Engine) WithAuditor(a AuditPublisher) *Engine {
	e.auditor = a
	return e
}

// WithJournal attaches the settlement journal.
func (e *Engine) WithJournal(j journal.Repository) *Engine {
	e.journal = j
	return e
}

// WithNotifier attaches the webhook notifier.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// WithMetrics attaches settlement metrics.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

// ProcessInstantWithdrawal runs one settlement end to end. Failures before
// the outbound transfer leave the ledger untouched apart from the user's own
// deposit; failures after it do not exist, because the payout is atomic and
// everything past it is best effort.
func (e *Engine) ProcessInstantWithdrawal(ctx context.Context, req Request) (*Result, error) {
	log := logger.FromContext(ctx)
	start := e.now()

	res, serr := e.settle(ctx, req)
	if e.metrics != nil {
		reason := ""
		if serr != nil {
			reason = string(serr.Code)
		}
		e.metrics.ObserveSettlement(e.cfg.SourceToken.Code, time.Since(start), reason)
	}
	if serr != nil {
		log.Warn().
			Str("account", logger.TruncateAddress(req.UserAccountID)).
			Int64("amount_tiny", req.AmountTiny).
			Str("code", string(serr.Code)).
			Msg("settlement.refused")
		return nil, serr
	}

	if e.metrics != nil {
		e.metrics.ObserveSettledAmounts(e.cfg.DestinationToken.Code, res.Quote.Gross, res.Quote.Fee, res.Quote.Net)
	}
	log.Info().
		Str("account", logger.TruncateAddress(req.UserAccountID)).
		Str("inbound_tx", logger.TruncateAddress(res.InboundTxID)).
		Str("outbound_tx", logger.TruncateAddress(res.OutboundTxID)).
		Int64("net_tiny", res.Quote.Net).
		Msg("settlement.completed")

	e.recordAftermath(ctx, req, res)
	return res, nil
}

// settle is the fallible part of the pipeline, up to and including the
// outbound payout.
func (e *Engine) settle(ctx context.Context, req Request) (*Result, *Error) {
	if req.AmountTiny <= 0 {
		return nil, newError(apperrors.ErrCodeInvalidAmount, "amount must be positive")
	}
	if req.AmountTiny < e.minTiny || req.AmountTiny > e.maxTiny {
		return nil, newError(apperrors.ErrCodeAmountOutOfBounds, "amount outside withdrawal bounds").
			withDetail("min", money.FromTinyUnits(e.minTiny, e.cfg.SourceToken.Decimals)).
			withDetail("max", money.FromTinyUnits(e.maxTiny, e.cfg.SourceToken.Decimals))
	}
	if req.Rate <= 0 {
		return nil, newError(apperrors.ErrCodeInvalidRate, "rate must be positive")
	}

	// The rate the client saw must still be the rate of record, on both
	// value and sequence. The same numeric rate can recur across
	// publications, so a matching value with a stale sequence is still a
	// stale quote. No tolerance band: a publisher tick between quote and
	// submit means the client re-quotes.
	record, err := e.rates.CurrentRate(ctx)
	if err != nil {
		return nil, newError(apperrors.ErrCodeOracleUnavailable, "exchange rate unavailable")
	}
	if !record.Rate.Equal(req.Rate) || record.Sequence != req.RateSequence {
		return nil, newError(apperrors.ErrCodeRateConflict, "submitted rate is no longer current").
			withDetail("currentRate", record.Rate.Decimal()).
			withDetail("currentSequence", record.Sequence).
			withDetail("submittedRate", req.Rate.Decimal()).
			withDetail("submittedSequence", req.RateSequence)
	}

	quote, err := money.ComputeQuote(
		req.AmountTiny,
		e.cfg.SourceToken.Decimals,
		e.cfg.DestinationToken.Decimals,
		record.Rate,
		e.cfg.FeeBasisPoints,
	)
	if err != nil {
		return nil, newError(apperrors.ErrCodeInternalError, "quote computation failed")
	}

	// Fail fast before the expensive verification wait when liquidity
	// obviously cannot cover the payout.
	available, err := e.liquidityBalance(ctx)
	if err != nil {
		return nil, newError(apperrors.ErrCodeMirrorUnavailable, "liquidity balance unavailable")
	}
	if available < quote.Net {
		return nil, e.insufficientLiquidity(available, quote.Net)
	}

	inbound, err := e.verifier.Verify(ctx, verify.Params{
		From:       req.UserAccountID,
		To:         e.cfg.CollectionAccount,
		TokenID:    e.cfg.SourceToken.TokenID,
		AmountTiny: req.AmountTiny,
		Since:      e.now().Add(-e.lookback),
	})
	if err != nil {
		return nil, newError(apperrors.ErrCodeMirrorUnavailable, "inbound transfer lookup failed")
	}
	if inbound == nil {
		return nil, newError(apperrors.ErrCodeTransferNotVerified, "inbound transfer not observed on ledger").
			withDetail("expectedAmount", money.FromTinyUnits(req.AmountTiny, e.cfg.SourceToken.Decimals)).
			withDetail("expectedToken", e.cfg.SourceToken.Code).
			withDetail("expectedSender", req.UserAccountID).
			withDetail("expectedRecipient", e.cfg.CollectionAccount)
	}

	// Balance check and payout happen under the wallet lock so concurrent
	// settlements cannot both spend the same liquidity.
	lock := e.locks.forWallet(e.cfg.LiquidityAccount)
	lock.Lock()
	defer lock.Unlock()

	available, err = e.liquidityBalance(ctx)
	if err != nil {
		return nil, newError(apperrors.ErrCodeMirrorUnavailable, "liquidity balance unavailable")
	}
	if available < quote.Net {
		return nil, e.insufficientLiquidity(available, quote.Net)
	}

	transfer, err := e.payer.TransferToken(ctx,
		e.cfg.DestinationToken.TokenID,
		e.cfg.LiquidityAccount,
		req.UserAccountID,
		quote.Net,
	)
	if err != nil {
		return nil, newError(apperrors.ErrCodeInternalError, "outbound transfer failed")
	}
	e.debits.add(e.cfg.LiquidityAccount, quote.Net, e.now())

	return &Result{
		Quote:              quote,
		Rate:               record.Rate,
		RateSequence:       record.Sequence,
		InboundTxID:        inbound.TransactionID,
		OutboundTxID:       transfer.TransactionID,
		WalletBalanceAfter: available - quote.Net,
		SettledAt:          e.now(),
	}, nil
}

// recordAftermath runs the best-effort tail of the pipeline: audit topic,
// journal, webhooks. Funds already moved; nothing here may undo or fail the
// settlement.
func (e *Engine) recordAftermath(ctx context.Context, req Request, res *Result) {
	log := logger.FromContext(ctx)

	if e.auditor != nil {
		entry := audit.Entry{
			Event:         "instant_withdrawal_settled",
			UserAccountID: req.UserAccountID,
			SourceToken:   e.cfg.SourceToken.Code,
			AmountSource:  money.FromTinyUnits(req.AmountTiny, e.cfg.SourceToken.Decimals),
			DestToken:     e.cfg.DestinationToken.Code,
			AmountGross:   money.FromTinyUnits(res.Quote.Gross, e.cfg.DestinationToken.Decimals),
			Fee:           money.FromTinyUnits(res.Quote.Fee, e.cfg.DestinationToken.Decimals),
			AmountNet:     money.FromTinyUnits(res.Quote.Net, e.cfg.DestinationToken.Decimals),
			Rate:          res.Rate.Decimal(),
			RateSequence:  res.RateSequence,
			InboundTxID:   res.InboundTxID,
			OutboundTxID:  res.OutboundTxID,
			SettledAt:     res.SettledAt.UTC().Format(time.RFC3339),
		}
		res.AuditTxID, res.AuditRecorded = e.auditor.Publish(ctx, entry)
	}

	record := journal.Settlement{
		InboundTxID:   res.InboundTxID,
		OutboundTxID:  res.OutboundTxID,
		AuditTxID:     res.AuditTxID,
		UserAccountID: req.UserAccountID,
		SourceToken:   e.cfg.SourceToken.Code,
		SourceTiny:    req.AmountTiny,
		DestToken:     e.cfg.DestinationToken.Code,
		GrossTiny:     res.Quote.Gross,
		FeeTiny:       res.Quote.Fee,
		NetTiny:       res.Quote.Net,
		Rate:          res.Rate.Decimal(),
		RateSequence:  res.RateSequence,
		SettledAt:     res.SettledAt,
	}
	if e.journal != nil {
		if err := e.journal.Record(ctx, record); err != nil {
			log.Error().Err(err).
				Str("inbound_tx", logger.TruncateAddress(res.InboundTxID)).
				Msg("settlement.journal_write_failed")
		}
	}
	if e.notifier != nil {
		e.notifier.SettlementCompleted(ctx, record)
	}
}

// MaxInstantWithdrawable reports the largest deposit the engine could settle
// right now, bounded by liquidity and the configured maximum.
func (e *Engine) MaxInstantWithdrawable(ctx context.Context) (*MaxQuote, error) {
	record, err := e.rates.CurrentRate(ctx)
	if err != nil {
		return nil, newError(apperrors.ErrCodeOracleUnavailable, "exchange rate unavailable")
	}
	available, err := e.liquidityBalance(ctx)
	if err != nil {
		return nil, newError(apperrors.ErrCodeMirrorUnavailable, "liquidity balance unavailable")
	}

	maxSrc := e.invertNet(available, record.Rate)
	if maxSrc > e.maxTiny {
		maxSrc = e.maxTiny
	}
	if maxSrc < 0 {
		maxSrc = 0
	}
	return &MaxQuote{
		MaxSourceTiny: maxSrc,
		AvailableTiny: available,
		Rate:          record.Rate,
		RateSequence:  record.Sequence,
	}, nil
}

// invertNet finds the largest source amount whose net payout fits in the
// available balance. The closed-form estimate can overshoot by a tiny unit
// because of rounding, so it is walked down against the real quote.
func (e *Engine) invertNet(available int64, rate money.Rate) int64 {
	if available <= 0 || rate <= 0 {
		return 0
	}

	// src ≈ available * 10000 / (10000 - feeBps) * RateScale / rate / 10^(dstDec - srcDec)
	shift := int64(1)
	for d := e.cfg.SourceToken.Decimals; d < e.cfg.DestinationToken.Decimals; d++ {
		shift *= 10
	}
	num := new(big.Int).SetInt64(available)
	num.Mul(num, big.NewInt(10_000))
	num.Mul(num, big.NewInt(money.RateScale))
	den := new(big.Int).SetInt64(10_000 - e.cfg.FeeBasisPoints)
	den.Mul(den, big.NewInt(int64(rate)))
	den.Mul(den, big.NewInt(shift))
	est := new(big.Int).Quo(num, den)
	if !est.IsInt64() {
		return e.maxTiny
	}

	src := est.Int64()
	for src > 0 {
		q, err := money.ComputeQuote(src, e.cfg.SourceToken.Decimals, e.cfg.DestinationToken.Decimals, rate, e.cfg.FeeBasisPoints)
		if err == nil && q.Net <= available {
			break
		}
		src--
	}
	return src
}

// liquidityBalance reads the payout wallet balance and subtracts payouts the
// mirror node may not reflect yet.
func (e *Engine) liquidityBalance(ctx context.Context) (int64, error) {
	balance, err := e.balances.TokenBalance(ctx, e.cfg.LiquidityAccount, e.cfg.DestinationToken.TokenID)
	if err != nil {
		return 0, err
	}
	return balance - e.debits.outstanding(e.cfg.LiquidityAccount, e.now()), nil
}

func (e *Engine) insufficientLiquidity(available, need int64) *Error {
	if available < 0 {
		available = 0
	}
	return newError(apperrors.ErrCodeInsufficientLiquidity, "liquidity wallet cannot cover payout").
		withDetail("available", money.FromTinyUnits(available, e.cfg.DestinationToken.Decimals)).
		withDetail("required", money.FromTinyUnits(need, e.cfg.DestinationToken.Decimals))
}
