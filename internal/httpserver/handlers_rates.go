package httpserver

import (
	"net/http"

	apierrors "github.com/MeridianProtocol/server/internal/errors"
	"github.com/MeridianProtocol/server/internal/logger"
	"github.com/MeridianProtocol/server/pkg/responders"
)

// latestRate reports the most recent oracle rate publication.
// GET /rates/v1/latest
func (h *handlers) latestRate(w http.ResponseWriter, r *http.Request) {
	rec, err := h.rates.CurrentRate(r.Context())
	if err != nil {
		log := logger.FromContext(r.Context())
		log.Warn().Err(err).Msg("rates.latest.unavailable")
		apierrors.WriteSimpleError(w, apierrors.ErrCodeOracleUnavailable, "Exchange rate is currently unavailable")
		return
	}

	responders.JSON(w, http.StatusOK, map[string]any{
		"pair":               h.cfg.Protocol.SourceToken.Code + "/" + h.cfg.Protocol.DestinationToken.Code,
		"rate":               rec.Rate.Decimal(),
		"sequence":           rec.Sequence,
		"consensusTimestamp": rec.ConsensusTimestamp,
	})
}
