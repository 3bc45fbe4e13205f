package responders

import (
	"encoding/json"
	"net/http"
)

// JSON writes an application/json response with the given status and
// payload. Amounts in payloads are decimal strings, so HTML escaping is
// disabled to keep bodies byte-stable for signing and diffing.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

// NoContent writes an empty 204 response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
