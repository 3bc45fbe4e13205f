package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MeridianProtocol/server/internal/config"
	apierrors "github.com/MeridianProtocol/server/internal/errors"
	"github.com/MeridianProtocol/server/internal/logger"
	"github.com/MeridianProtocol/server/internal/money"
	"github.com/MeridianProtocol/server/pkg/responders"
)

// accountBalance reports an account's holdings of the two protocol tokens.
// GET /accounts/v1/{accountID}/balance
func (h *handlers) accountBalance(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	accountID := chi.URLParam(r, "accountID")
	if !config.IsEntityID(accountID) {
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeInvalidAccount,
			"accountID must be a ledger entity ID", "accountID", accountID)
		return
	}

	src := h.cfg.Protocol.SourceToken
	dst := h.cfg.Protocol.DestinationToken

	srcTiny, err := h.balances.TokenBalance(r.Context(), accountID, src.TokenID)
	if err != nil {
		log.Warn().Err(err).Str("account", accountID).Msg("accounts.balance.mirror_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMirrorUnavailable, "Balance lookup failed")
		return
	}
	dstTiny, err := h.balances.TokenBalance(r.Context(), accountID, dst.TokenID)
	if err != nil {
		log.Warn().Err(err).Str("account", accountID).Msg("accounts.balance.mirror_failed")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeMirrorUnavailable, "Balance lookup failed")
		return
	}

	responders.JSON(w, http.StatusOK, map[string]any{
		"account": accountID,
		"balances": []map[string]any{
			{"token": src.Code, "tokenId": src.TokenID, "amount": money.FromTinyUnits(srcTiny, src.Decimals)},
			{"token": dst.Code, "tokenId": dst.TokenID, "amount": money.FromTinyUnits(dstTiny, dst.Decimals)},
		},
	})
}
