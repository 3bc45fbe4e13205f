package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON envelope every refused request gets. Clients
// drive their retry and re-quote behavior off the machine-readable code and
// details, never off the message text.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the code, message, and optional context.
type ErrorDetail struct {
	Code      ErrorCode              `json:"code"`              // machine-readable error code
	Message   string                 `json:"message"`           // human-readable error message
	Retryable bool                   `json:"retryable"`         // whether the client should retry
	Details   map[string]interface{} `json:"details,omitempty"` // expected vs submitted rate, amounts, accounts
}

// NewErrorResponse builds the envelope for a code, deriving retryability.
func NewErrorResponse(code ErrorCode, message string, details map[string]interface{}) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: code.IsRetryable(),
			Details:   details,
		},
	}
}

// WriteJSON writes the envelope with the status the code maps to.
func (e ErrorResponse) WriteJSON(w http.ResponseWriter) {
	status := e.Error.Code.HTTPStatus()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(e)
}

// WriteError builds and writes an error response in one call.
func WriteError(w http.ResponseWriter, code ErrorCode, message string, details map[string]interface{}) {
	resp := NewErrorResponse(code, message, details)
	resp.WriteJSON(w)
}

// WriteSimpleError writes an error without a details object.
func WriteSimpleError(w http.ResponseWriter, code ErrorCode, message string) {
	WriteError(w, code, message, nil)
}

// WriteErrorWithDetail writes an error with a single detail field.
func WriteErrorWithDetail(w http.ResponseWriter, code ErrorCode, message string, key string, value interface{}) {
	WriteError(w, code, message, map[string]interface{}{key: value})
}
