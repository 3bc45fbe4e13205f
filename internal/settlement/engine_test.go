package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MeridianProtocol/server/internal/audit"
	"github.com/MeridianProtocol/server/internal/config"
	apperrors "github.com/MeridianProtocol/server/internal/errors"
	"github.com/MeridianProtocol/server/internal/hedera"
	"github.com/MeridianProtocol/server/internal/journal"
	"github.com/MeridianProtocol/server/internal/money"
	"github.com/MeridianProtocol/server/internal/oracle"
	"github.com/MeridianProtocol/server/internal/verify"
)

type stubRates struct {
	rec oracle.Record
	err error
}

func (s *stubRates) CurrentRate(ctx context.Context) (oracle.Record, error) {
	return s.rec, s.err
}

type stubBalances struct {
	balance int64
	err     error
	calls   int
}

func (s *stubBalances) TokenBalance(ctx context.Context, accountID, tokenID string) (int64, error) {
	s.calls++
	return s.balance, s.err
}

type stubVerifier struct {
	res   *verify.Result
	err   error
	calls int
	last  verify.Params
}

func (s *stubVerifier) Verify(ctx context.Context, p verify.Params) (*verify.Result, error) {
	s.calls++
	s.last = p
	return s.res, s.err
}

type stubPayer struct {
	err   error
	calls int
	last  struct {
		tokenID, from, to string
		amount            int64
	}
}

func (s *stubPayer) TransferToken(ctx context.Context, tokenID, fromAccount, toAccount string, amountTiny int64) (hedera.TransferResult, error) {
	s.calls++
	s.last.tokenID = tokenID
	s.last.from = fromAccount
	s.last.to = toAccount
	s.last.amount = amountTiny
	if s.err != nil {
		return hedera.TransferResult{}, s.err
	}
	return hedera.TransferResult{TransactionID: "0.0.400-1756700020-000000002", Status: "SUCCESS"}, nil
}

type stubAuditor struct {
	ok    bool
	calls int
	last  audit.Entry
}

func (s *stubAuditor) Publish(ctx context.Context, entry audit.Entry) (string, bool) {
	s.calls++
	s.last = entry
	if !s.ok {
		return "", false
	}
	return "0.0.400-1756700300-000000007", true
}

type stubNotifier struct {
	calls int
	last  journal.Settlement
}

func (s *stubNotifier) SettlementCompleted(ctx context.Context, set journal.Settlement) {
	s.calls++
	s.last = set
}

func testProtocolConfig() *config.Config {
	return &config.Config{
		Protocol: config.ProtocolConfig{
			SourceToken:       config.TokenConfig{Code: "MUSD", TokenID: "0.0.5005", Decimals: 6},
			DestinationToken:  config.TokenConfig{Code: "USDC", TokenID: "0.0.6006", Decimals: 6},
			CollectionAccount: "0.0.2002",
			LiquidityAccount:  "0.0.3003",
			FeeBasisPoints:    100,
			MinWithdrawal:     "1",
			MaxWithdrawal:     "10000",
			AuditTopicID:      "0.0.8008",
		},
		Verification: config.VerificationConfig{
			MaxAttempts:     5,
			InitialBackoff:  config.Duration{Duration: 500 * time.Millisecond},
			MaxBackoff:      config.Duration{Duration: 8 * time.Second},
			LookbackWindow:  config.Duration{Duration: 10 * time.Minute},
			ClockSkewBuffer: config.Duration{Duration: 60 * time.Second},
		},
	}
}

func mustRate(t *testing.T, s string) money.Rate {
	t.Helper()
	r, err := money.ParseRate(s)
	if err != nil {
		t.Fatalf("ParseRate(%q) error = %v", s, err)
	}
	return r
}

func confirmedInbound() *verify.Result {
	return &verify.Result{
		TransactionID:      "0.0.1001-1756700010-000000001",
		ConsensusTimestamp: "1756700011.000000000",
		Attempts:           2,
	}
}

type engineFixture struct {
	engine   *Engine
	rates    *stubRates
	balances *stubBalances
	verifier *stubVerifier
	payer    *stubPayer
	auditor  *stubAuditor
	journal  *journal.MemoryRepository
	notifier *stubNotifier
}

func newFixture(t *testing.T) *engineFixture {
	f := &engineFixture{
		rates:    &stubRates{rec: oracle.Record{Rate: mustRate(t, "1.01"), Sequence: 17}},
		balances: &stubBalances{balance: 500_000_000}, // 500 USDC
		verifier: &stubVerifier{res: confirmedInbound()},
		payer:    &stubPayer{},
		auditor:  &stubAuditor{ok: true},
		journal:  journal.NewMemoryRepository(),
		notifier: &stubNotifier{},
	}
	f.engine = New(testProtocolConfig(), f.rates, f.balances, f.verifier, f.payer).
		WithAuditor(f.auditor).
		WithJournal(f.journal).
		WithNotifier(f.notifier)
	return f
}

func withdrawalRequest(t *testing.T) Request {
	return Request{
		UserAccountID: "0.0.1001",
		AmountTiny:    100_500_000, // 100.5 MUSD
		Rate:          mustRate(t, "1.01"),
		RateSequence:  17,
	}
}

func settlementError(t *testing.T, err error) *Error {
	t.Helper()
	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("error %v is not a settlement error", err)
	}
	return serr
}

func TestProcessInstantWithdrawalSettles(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.ProcessInstantWithdrawal(context.Background(), withdrawalRequest(t))
	if err != nil {
		t.Fatalf("ProcessInstantWithdrawal() error = %v", err)
	}

	// 100.5 MUSD at 1.01 with a 100 bps fee.
	if res.Quote.Gross != 101_505_000 {
		t.Errorf("gross = %d, want 101505000", res.Quote.Gross)
	}
	if res.Quote.Fee != 1_015_050 {
		t.Errorf("fee = %d, want 1015050", res.Quote.Fee)
	}
	if res.Quote.Net != 100_489_950 {
		t.Errorf("net = %d, want 100489950", res.Quote.Net)
	}
	if res.Quote.Net != res.Quote.Gross-res.Quote.Fee {
		t.Error("net != gross - fee")
	}

	if f.payer.calls != 1 {
		t.Fatalf("payer called %d times, want 1", f.payer.calls)
	}
	if f.payer.last.tokenID != "0.0.6006" {
		t.Errorf("payout token = %s, want 0.0.6006", f.payer.last.tokenID)
	}
	if f.payer.last.from != "0.0.3003" || f.payer.last.to != "0.0.1001" {
		t.Errorf("payout route = %s -> %s", f.payer.last.from, f.payer.last.to)
	}
	if f.payer.last.amount != res.Quote.Net {
		t.Errorf("payout amount = %d, want net %d", f.payer.last.amount, res.Quote.Net)
	}

	if f.verifier.last.From != "0.0.1001" || f.verifier.last.To != "0.0.2002" {
		t.Errorf("verify route = %s -> %s", f.verifier.last.From, f.verifier.last.To)
	}
	if f.verifier.last.AmountTiny != 100_500_000 {
		t.Errorf("verify amount = %d", f.verifier.last.AmountTiny)
	}

	if !res.AuditRecorded || res.AuditTxID == "" {
		t.Error("audit entry not recorded")
	}
	if f.auditor.last.AmountNet != "100.489950" {
		t.Errorf("audit net = %s, want 100.489950", f.auditor.last.AmountNet)
	}

	stored, err := f.journal.GetByInboundTx(context.Background(), res.InboundTxID)
	if err != nil {
		t.Fatalf("journal lookup error = %v", err)
	}
	if stored.NetTiny != res.Quote.Net {
		t.Errorf("journal net = %d, want %d", stored.NetTiny, res.Quote.Net)
	}
	if f.notifier.calls != 1 {
		t.Errorf("notifier called %d times, want 1", f.notifier.calls)
	}
}

func TestProcessInstantWithdrawalRateConflict(t *testing.T) {
	f := newFixture(t)
	req := withdrawalRequest(t)
	req.Rate = mustRate(t, "1.00")

	_, err := f.engine.ProcessInstantWithdrawal(context.Background(), req)
	serr := settlementError(t, err)
	if serr.Code != apperrors.ErrCodeRateConflict {
		t.Fatalf("code = %s, want rate_conflict", serr.Code)
	}
	if serr.Details["currentRate"] != "1.01000000" {
		t.Errorf("currentRate detail = %v", serr.Details["currentRate"])
	}
	if f.verifier.calls != 0 {
		t.Errorf("verifier called %d times, want 0", f.verifier.calls)
	}
	if f.payer.calls != 0 {
		t.Errorf("payer called %d times, want 0", f.payer.calls)
	}
}

func TestProcessInstantWithdrawalStaleSequence(t *testing.T) {
	f := newFixture(t)
	f.rates.rec = oracle.Record{Rate: mustRate(t, "1.01"), Sequence: 999}

	// Same numeric rate, quoted from an older publication. The value alone
	// does not make the quote current.
	req := withdrawalRequest(t)
	req.RateSequence = 123

	_, err := f.engine.ProcessInstantWithdrawal(context.Background(), req)
	serr := settlementError(t, err)
	if serr.Code != apperrors.ErrCodeRateConflict {
		t.Fatalf("code = %s, want rate_conflict", serr.Code)
	}
	if serr.Details["currentSequence"] != int64(999) {
		t.Errorf("currentSequence detail = %v, want 999", serr.Details["currentSequence"])
	}
	if serr.Details["submittedSequence"] != int64(123) {
		t.Errorf("submittedSequence detail = %v, want 123", serr.Details["submittedSequence"])
	}
	if f.verifier.calls != 0 {
		t.Errorf("verifier called %d times, want 0", f.verifier.calls)
	}
	if f.payer.calls != 0 {
		t.Errorf("payer called %d times, want 0", f.payer.calls)
	}
}

func TestProcessInstantWithdrawalOracleDown(t *testing.T) {
	f := newFixture(t)
	f.rates.err = oracle.ErrUnavailable

	_, err := f.engine.ProcessInstantWithdrawal(context.Background(), withdrawalRequest(t))
	serr := settlementError(t, err)
	if serr.Code != apperrors.ErrCodeOracleUnavailable {
		t.Fatalf("code = %s, want oracle_unavailable", serr.Code)
	}
	if f.payer.calls != 0 {
		t.Errorf("payer called %d times, want 0", f.payer.calls)
	}
}

func TestProcessInstantWithdrawalAmountBounds(t *testing.T) {
	tests := []struct {
		name       string
		amountTiny int64
		wantCode   apperrors.ErrorCode
	}{
		{"zero", 0, apperrors.ErrCodeInvalidAmount},
		{"negative", -100, apperrors.ErrCodeInvalidAmount},
		{"below minimum", 500_000, apperrors.ErrCodeAmountOutOfBounds},
		{"above maximum", 10_000_000_001, apperrors.ErrCodeAmountOutOfBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := withdrawalRequest(t)
			req.AmountTiny = tt.amountTiny

			_, err := f.engine.ProcessInstantWithdrawal(context.Background(), req)
			serr := settlementError(t, err)
			if serr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", serr.Code, tt.wantCode)
			}
		})
	}
}

func TestProcessInstantWithdrawalLiquidityGate(t *testing.T) {
	f := newFixture(t)
	f.balances.balance = 50_000_000 // 50 USDC, well under the ~100.49 needed

	_, err := f.engine.ProcessInstantWithdrawal(context.Background(), withdrawalRequest(t))
	serr := settlementError(t, err)
	if serr.Code != apperrors.ErrCodeInsufficientLiquidity {
		t.Fatalf("code = %s, want insufficient_liquidity", serr.Code)
	}
	if serr.Details["available"] != "50.000000" {
		t.Errorf("available detail = %v", serr.Details["available"])
	}
	if f.verifier.calls != 0 {
		t.Errorf("verifier called %d times before liquidity gate, want 0", f.verifier.calls)
	}
	if f.payer.calls != 0 {
		t.Errorf("payer called %d times, want 0", f.payer.calls)
	}
}

func TestProcessInstantWithdrawalUnverifiedTransfer(t *testing.T) {
	f := newFixture(t)
	f.verifier.res = nil

	_, err := f.engine.ProcessInstantWithdrawal(context.Background(), withdrawalRequest(t))
	serr := settlementError(t, err)
	if serr.Code != apperrors.ErrCodeTransferNotVerified {
		t.Fatalf("code = %s, want transfer_not_verified", serr.Code)
	}
	if serr.Details["expectedRecipient"] != "0.0.2002" {
		t.Errorf("expectedRecipient detail = %v, want 0.0.2002", serr.Details["expectedRecipient"])
	}
	if serr.Details["expectedSender"] != "0.0.1001" {
		t.Errorf("expectedSender detail = %v, want 0.0.1001", serr.Details["expectedSender"])
	}
	if serr.Details["expectedAmount"] != "100.500000" {
		t.Errorf("expectedAmount detail = %v, want 100.500000", serr.Details["expectedAmount"])
	}
	if f.payer.calls != 0 {
		t.Errorf("payer called %d times after failed verification, want 0", f.payer.calls)
	}
	if f.auditor.calls != 0 {
		t.Errorf("auditor called %d times, want 0", f.auditor.calls)
	}
}

func TestProcessInstantWithdrawalMirrorDownDuringVerify(t *testing.T) {
	f := newFixture(t)
	f.verifier.res = nil
	f.verifier.err = hedera.ErrMirrorUnavailable

	_, err := f.engine.ProcessInstantWithdrawal(context.Background(), withdrawalRequest(t))
	serr := settlementError(t, err)
	if serr.Code != apperrors.ErrCodeMirrorUnavailable {
		t.Fatalf("code = %s, want mirror_unavailable", serr.Code)
	}
}

func TestProcessInstantWithdrawalOutboundFailure(t *testing.T) {
	f := newFixture(t)
	f.payer.err = errors.New("receipt status INSUFFICIENT_TOKEN_BALANCE")

	_, err := f.engine.ProcessInstantWithdrawal(context.Background(), withdrawalRequest(t))
	serr := settlementError(t, err)
	if serr.Code != apperrors.ErrCodeInternalError {
		t.Fatalf("code = %s, want internal_error", serr.Code)
	}
	if f.auditor.calls != 0 {
		t.Errorf("auditor called %d times after failed payout, want 0", f.auditor.calls)
	}
	if f.notifier.calls != 0 {
		t.Errorf("notifier called %d times after failed payout, want 0", f.notifier.calls)
	}
}

func TestProcessInstantWithdrawalAuditFailureDoesNotFailSettlement(t *testing.T) {
	f := newFixture(t)
	f.auditor.ok = false

	res, err := f.engine.ProcessInstantWithdrawal(context.Background(), withdrawalRequest(t))
	if err != nil {
		t.Fatalf("ProcessInstantWithdrawal() error = %v", err)
	}
	if res.AuditRecorded {
		t.Error("AuditRecorded = true, want false")
	}
	if res.AuditTxID != "" {
		t.Errorf("AuditTxID = %q, want empty", res.AuditTxID)
	}

	stored, err := f.journal.GetByInboundTx(context.Background(), res.InboundTxID)
	if err != nil {
		t.Fatalf("journal lookup error = %v", err)
	}
	if stored.AuditTxID != "" {
		t.Errorf("journal audit tx = %q, want empty", stored.AuditTxID)
	}
}

func TestRecentDebitsReduceEffectiveLiquidity(t *testing.T) {
	f := newFixture(t)
	// Enough for one payout of ~100.49 USDC, not two, and the stub keeps
	// reporting the same balance the way a lagging mirror would.
	f.balances.balance = 150_000_000

	if _, err := f.engine.ProcessInstantWithdrawal(context.Background(), withdrawalRequest(t)); err != nil {
		t.Fatalf("first withdrawal error = %v", err)
	}

	_, err := f.engine.ProcessInstantWithdrawal(context.Background(), withdrawalRequest(t))
	serr := settlementError(t, err)
	if serr.Code != apperrors.ErrCodeInsufficientLiquidity {
		t.Fatalf("second withdrawal code = %s, want insufficient_liquidity", serr.Code)
	}
	if f.payer.calls != 1 {
		t.Errorf("payer called %d times, want 1", f.payer.calls)
	}
}

func TestMaxInstantWithdrawable(t *testing.T) {
	f := newFixture(t)
	f.balances.balance = 1_000_000_000 // 1000 USDC

	got, err := f.engine.MaxInstantWithdrawable(context.Background())
	if err != nil {
		t.Fatalf("MaxInstantWithdrawable() error = %v", err)
	}
	if got.MaxSourceTiny <= 0 {
		t.Fatalf("max = %d, want positive", got.MaxSourceTiny)
	}

	cfg := testProtocolConfig().Protocol
	q, err := money.ComputeQuote(got.MaxSourceTiny, cfg.SourceToken.Decimals, cfg.DestinationToken.Decimals, got.Rate, cfg.FeeBasisPoints)
	if err != nil {
		t.Fatalf("ComputeQuote() error = %v", err)
	}
	if q.Net > f.balances.balance {
		t.Errorf("net at max (%d) exceeds available %d", q.Net, f.balances.balance)
	}

	q2, err := money.ComputeQuote(got.MaxSourceTiny+1, cfg.SourceToken.Decimals, cfg.DestinationToken.Decimals, got.Rate, cfg.FeeBasisPoints)
	if err != nil {
		t.Fatalf("ComputeQuote() error = %v", err)
	}
	if q2.Net <= f.balances.balance {
		t.Errorf("max is not tight: net at max+1 (%d) still fits in %d", q2.Net, f.balances.balance)
	}
}

func TestMaxInstantWithdrawableCappedByConfig(t *testing.T) {
	f := newFixture(t)
	f.balances.balance = 100_000_000_000 // 100k USDC, far above the 10k MUSD cap

	got, err := f.engine.MaxInstantWithdrawable(context.Background())
	if err != nil {
		t.Fatalf("MaxInstantWithdrawable() error = %v", err)
	}
	if got.MaxSourceTiny != 10_000_000_000 {
		t.Errorf("max = %d, want configured cap 10000000000", got.MaxSourceTiny)
	}
}
