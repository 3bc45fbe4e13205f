package httpserver

import (
	"net/http"
	"time"

	"github.com/MeridianProtocol/server/pkg/responders"
)

// health reports process liveness.
// GET /meridian-health
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(serverStartTime).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
