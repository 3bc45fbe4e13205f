package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MeridianProtocol/server/internal/config"
	apierrors "github.com/MeridianProtocol/server/internal/errors"
	"github.com/MeridianProtocol/server/internal/journal"
	"github.com/MeridianProtocol/server/internal/logger"
	"github.com/MeridianProtocol/server/internal/money"
	"github.com/MeridianProtocol/server/internal/settlement"
	"github.com/MeridianProtocol/server/pkg/responders"
)

// WithdrawRequest is the instant withdrawal request body. Amount and rate are
// decimal strings; the user signs off on exact numbers, not floats. The
// sequence number pins the rate to the oracle publication it was quoted
// from.
type WithdrawRequest struct {
	UserAccountID  string `json:"userAccountId"`
	Amount         string `json:"amount"`
	Rate           string `json:"rate"`
	SequenceNumber int64  `json:"sequenceNumber"`
}

// WithdrawResponse reports one settled withdrawal.
type WithdrawResponse struct {
	Status        string `json:"status"`
	UserAccountID string `json:"userAccountId"`
	SourceToken   string `json:"sourceToken"`
	AmountSource  string `json:"amountSource"`
	DestToken     string `json:"destToken"`
	AmountGross   string `json:"amountGross"`
	Fee           string `json:"fee"`
	AmountNet     string `json:"amountNet"`
	Rate          string `json:"rate"`
	RateSequence  int64  `json:"rateSequence"`
	InboundTxID   string `json:"inboundTxId"`
	OutboundTxID  string `json:"outboundTxId"`
	AuditTxID     string `json:"auditTxId,omitempty"`
	AuditRecorded bool   `json:"auditRecorded"`
	SettledAt     string `json:"settledAt"`
}

// instantWithdrawal settles a deposit-backed withdrawal.
// POST /withdraw/v1/instant
func (h *handlers) instantWithdrawal(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req WithdrawRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		log.Warn().Err(err).Msg("withdraw.instant.invalid_body")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "Invalid request body")
		return
	}

	if req.UserAccountID == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "userAccountId field is required")
		return
	}
	if req.Amount == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "amount field is required")
		return
	}
	if req.Rate == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "rate field is required")
		return
	}
	if req.SequenceNumber <= 0 {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "sequenceNumber field is required")
		return
	}
	if !config.IsEntityID(req.UserAccountID) {
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeInvalidAccount,
			"userAccountId must be a ledger entity ID", "userAccountId", req.UserAccountID)
		return
	}

	srcToken := h.cfg.Protocol.SourceToken
	amountTiny, err := money.ToTinyUnits(req.Amount, srcToken.Decimals)
	if err != nil || amountTiny <= 0 {
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeInvalidAmount,
			"amount must be a positive decimal", "amount", req.Amount)
		return
	}
	rate, err := money.ParseRate(req.Rate)
	if err != nil {
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeInvalidRate,
			"rate must be a positive decimal", "rate", req.Rate)
		return
	}

	res, err := h.engine.ProcessInstantWithdrawal(r.Context(), settlement.Request{
		UserAccountID: req.UserAccountID,
		AmountTiny:    amountTiny,
		Rate:          rate,
		RateSequence:  req.SequenceNumber,
	})
	if err != nil {
		writeSettlementError(w, err)
		return
	}

	dstToken := h.cfg.Protocol.DestinationToken
	responders.JSON(w, http.StatusOK, WithdrawResponse{
		Status:        "settled",
		UserAccountID: req.UserAccountID,
		SourceToken:   srcToken.Code,
		AmountSource:  money.FromTinyUnits(amountTiny, srcToken.Decimals),
		DestToken:     dstToken.Code,
		AmountGross:   money.FromTinyUnits(res.Quote.Gross, dstToken.Decimals),
		Fee:           money.FromTinyUnits(res.Quote.Fee, dstToken.Decimals),
		AmountNet:     money.FromTinyUnits(res.Quote.Net, dstToken.Decimals),
		Rate:          res.Rate.Decimal(),
		RateSequence:  res.RateSequence,
		InboundTxID:   res.InboundTxID,
		OutboundTxID:  res.OutboundTxID,
		AuditTxID:     res.AuditTxID,
		AuditRecorded: res.AuditRecorded,
		SettledAt:     res.SettledAt.UTC().Format(time.RFC3339),
	})
}

// maxInstantWithdrawal reports the largest serviceable withdrawal.
// GET /withdraw/v1/instant/max
func (h *handlers) maxInstantWithdrawal(w http.ResponseWriter, r *http.Request) {
	quote, err := h.engine.MaxInstantWithdrawable(r.Context())
	if err != nil {
		writeSettlementError(w, err)
		return
	}

	responders.JSON(w, http.StatusOK, map[string]any{
		"maxAmount":   money.FromTinyUnits(quote.MaxSourceTiny, h.cfg.Protocol.SourceToken.Decimals),
		"sourceToken": h.cfg.Protocol.SourceToken.Code,
		"available":   money.FromTinyUnits(quote.AvailableTiny, h.cfg.Protocol.DestinationToken.Decimals),
		"destToken":   h.cfg.Protocol.DestinationToken.Code,
		"rate":        quote.Rate.Decimal(),
		"sequence":    quote.RateSequence,
	})
}

// withdrawalHistory lists an account's settled withdrawals, newest first.
// GET /withdraw/v1/history?account=0.0.x&limit=N
func (h *handlers) withdrawalHistory(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMissingField, "account query parameter is required")
		return
	}
	if !config.IsEntityID(account) {
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeInvalidAccount,
			"account must be a ledger entity ID", "account", account)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeInvalidField,
				"limit must be an integer between 1 and 500", "limit", raw)
			return
		}
		limit = parsed
	}

	settlements, err := h.journal.ListByAccount(r.Context(), account, limit)
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("withdraw.history.query_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "History lookup failed")
		return
	}

	items := make([]WithdrawResponse, 0, len(settlements))
	for _, s := range settlements {
		items = append(items, historyItem(h.cfg, s))
	}
	responders.JSON(w, http.StatusOK, map[string]any{
		"account":     account,
		"withdrawals": items,
	})
}

func historyItem(cfg *config.Config, s journal.Settlement) WithdrawResponse {
	src := cfg.Protocol.SourceToken
	dst := cfg.Protocol.DestinationToken
	return WithdrawResponse{
		Status:        "settled",
		UserAccountID: s.UserAccountID,
		SourceToken:   s.SourceToken,
		AmountSource:  money.FromTinyUnits(s.SourceTiny, src.Decimals),
		DestToken:     s.DestToken,
		AmountGross:   money.FromTinyUnits(s.GrossTiny, dst.Decimals),
		Fee:           money.FromTinyUnits(s.FeeTiny, dst.Decimals),
		AmountNet:     money.FromTinyUnits(s.NetTiny, dst.Decimals),
		Rate:          s.Rate,
		RateSequence:  s.RateSequence,
		InboundTxID:   s.InboundTxID,
		OutboundTxID:  s.OutboundTxID,
		AuditTxID:     s.AuditTxID,
		AuditRecorded: s.AuditTxID != "",
		SettledAt:     s.SettledAt.UTC().Format(time.RFC3339),
	}
}

// writeSettlementError maps engine errors to the API error envelope.
func writeSettlementError(w http.ResponseWriter, err error) {
	var serr *settlement.Error
	if errors.As(err, &serr) {
		apierrors.WriteError(w, serr.Code, serr.Message, serr.Details)
		return
	}
	apierrors.WriteSimpleError(w, apierrors.ErrCodeInternalError, "Settlement failed")
}
