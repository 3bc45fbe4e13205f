package settlement

import (
	apperrors "github.com/MeridianProtocol/server/internal/errors"
)

// Error is a settlement failure with a machine-readable code and structured
// details for the API error envelope.
type Error struct {
	Code    apperrors.ErrorCode
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func newError(code apperrors.ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) withDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
