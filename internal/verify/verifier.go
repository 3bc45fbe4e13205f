// Package verify confirms that a claimed inbound token transfer actually
// landed on the ledger before any value is paid out. The mirror node lags
// consensus, so verification is a bounded polling loop, not a single lookup.
package verify

import (
	"context"
	"errors"
	"time"

	"github.com/MeridianProtocol/server/internal/config"
	"github.com/MeridianProtocol/server/internal/hedera"
	"github.com/MeridianProtocol/server/internal/logger"
	"github.com/MeridianProtocol/server/internal/metrics"
	"github.com/MeridianProtocol/server/internal/retry"
)

// TransactionSource is the slice of the mirror client the verifier needs.
type TransactionSource interface {
	TransactionsSince(ctx context.Context, accountID string, since time.Time, limit int) ([]hedera.Transaction, error)
}

// Params describes the transfer the caller claims to have made.
type Params struct {
	From       string // sending account
	To         string // receiving account (the collection wallet)
	TokenID    string
	AmountTiny int64
	Since      time.Time // earliest consensus time the transfer could carry
}

// Result reports a confirmed transfer.
type Result struct {
	TransactionID      string
	ConsensusTimestamp string
	Attempts           int
}

// Verifier polls the mirror node for a transfer matching the claim. Matching
// is strict: the same transaction must debit the sender and credit the
// receiver by exactly the claimed amount of the claimed token.
type Verifier struct {
	mirror  TransactionSource
	policy  retry.Policy
	skew    time.Duration
	metrics *metrics.Metrics
}

// New builds a verifier from the verification config.
func New(mirror TransactionSource, cfg config.VerificationConfig, m *metrics.Metrics) *Verifier {
	return &Verifier{
		mirror: mirror,
		policy: retry.Policy{
			MaxAttempts:     cfg.MaxAttempts,
			InitialInterval: cfg.InitialBackoff.Duration,
			MaxInterval:     cfg.MaxBackoff.Duration,
			Multiplier:      2.0,
		},
		skew:    cfg.ClockSkewBuffer.Duration,
		metrics: m,
	}
}

// WithSleep replaces the backoff sleep, for tests.
func (v *Verifier) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Verifier {
	v.policy.Sleep = sleep
	return v
}

// errNotYetVisible drives the retry loop: the transfer was not in the mirror
// response, which is expected while replication catches up.
var errNotYetVisible = errors.New("verify: transfer not yet visible")

// Verify polls until the claimed transfer appears or attempts run out.
// Exhaustion is a verdict, not a failure: it returns (nil, nil), meaning the
// transfer could not be confirmed. Only infrastructure errors, like a
// permanently failing mirror node or a cancelled context, surface as errors.
func (v *Verifier) Verify(ctx context.Context, p Params) (*Result, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	// Widen the window backwards so a client clock slightly ahead of
	// consensus time cannot push a real transfer outside the query range.
	since := p.Since.Add(-v.skew)

	attempts := 0
	notVisible := false
	var found *Result

	err := v.policy.Do(ctx, func(ctx context.Context) error {
		attempts++
		notVisible = false
		txs, err := v.mirror.TransactionsSince(ctx, p.To, since, 100)
		if err != nil {
			if errors.Is(err, hedera.ErrNotFound) {
				return retry.Permanent{Err: err}
			}
			return err
		}

		for i := range txs {
			if matches(&txs[i], p) {
				found = &Result{
					TransactionID:      txs[i].TransactionID,
					ConsensusTimestamp: txs[i].ConsensusTimestamp,
					Attempts:           attempts,
				}
				return nil
			}
		}
		notVisible = true
		return errNotYetVisible
	})

	if v.metrics != nil {
		v.metrics.ObserveVerification(attempts, time.Since(start))
	}

	if err == nil {
		log.Info().
			Str("transaction_id", logger.TruncateAddress(found.TransactionID)).
			Int("attempts", attempts).
			Msg("verify.transfer_confirmed")
		return found, nil
	}

	// Exhaustion on a not-yet-visible last attempt is the unverified
	// verdict. Anything else is an infrastructure failure.
	if errors.Is(err, retry.ErrExhausted) && notVisible {
		log.Warn().
			Str("from", logger.TruncateAddress(p.From)).
			Int64("amount_tiny", p.AmountTiny).
			Int("attempts", attempts).
			Msg("verify.transfer_not_found")
		return nil, nil
	}
	return nil, err
}

// matches reports whether tx carries both legs of the claimed transfer: the
// exact debit from the sender and the exact credit to the receiver, in the
// same transaction.
func matches(tx *hedera.Transaction, p Params) bool {
	if tx.Result != "" && tx.Result != "SUCCESS" {
		return false
	}
	var debit, credit bool
	for _, tr := range tx.TokenTransfers {
		if tr.TokenID != p.TokenID {
			continue
		}
		if tr.Account == p.From && tr.Amount == -p.AmountTiny {
			debit = true
		}
		if tr.Account == p.To && tr.Amount == p.AmountTiny {
			credit = true
		}
	}
	return debit && credit
}
