package errors

// ErrorCode represents a machine-readable error identifier for frontend error handling.
type ErrorCode string

// Request validation errors
const (
	ErrCodeMissingField      ErrorCode = "missing_field"
	ErrCodeInvalidField      ErrorCode = "invalid_field"
	ErrCodeInvalidAccount    ErrorCode = "invalid_account"
	ErrCodeInvalidAmount     ErrorCode = "invalid_amount"
	ErrCodeAmountOutOfBounds ErrorCode = "amount_out_of_bounds"
	ErrCodeInvalidRate       ErrorCode = "invalid_rate"
)

// Settlement errors
const (
	// Submitted rate no longer matches the oracle's current publication.
	ErrCodeRateConflict ErrorCode = "rate_conflict"

	// Net payout exceeds the liquidity wallet balance.
	ErrCodeInsufficientLiquidity ErrorCode = "insufficient_liquidity"

	// Inbound transfer was not observed within the verification window.
	ErrCodeTransferNotVerified ErrorCode = "transfer_not_verified"
)

// External service errors
const (
	ErrCodeOracleUnavailable ErrorCode = "oracle_unavailable"
	ErrCodeMirrorUnavailable ErrorCode = "mirror_unavailable"
	ErrCodeNetworkError      ErrorCode = "network_error"
)

// Internal/system errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable returns whether an error code represents a retryable error.
// Retryable errors are typically transient network/service issues, not validation failures.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	// Service unavailability is retryable with backoff.
	case ErrCodeOracleUnavailable,
		ErrCodeMirrorUnavailable,
		ErrCodeNetworkError:
		return true

	// A rate conflict is retryable immediately with the fresh rate the
	// response carries; a missing transfer is retryable once replication
	// catches up.
	case ErrCodeRateConflict,
		ErrCodeTransferNotVerified,
		ErrCodeInsufficientLiquidity:
		return true

	// Validation and internal failures are NOT retryable as-is.
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	// 400 Bad Request - client validation errors
	case ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidAccount,
		ErrCodeInvalidAmount,
		ErrCodeAmountOutOfBounds,
		ErrCodeInvalidRate:
		return 400

	// 402 Payment Required - inbound payment not observed
	case ErrCodeTransferNotVerified:
		return 402

	// 409 Conflict - stale rate or liquidity exhausted
	case ErrCodeRateConflict,
		ErrCodeInsufficientLiquidity:
		return 409

	// 503 Service Unavailable - oracle or ledger read API unreachable
	case ErrCodeOracleUnavailable,
		ErrCodeMirrorUnavailable,
		ErrCodeNetworkError:
		return 503

	// 500 Internal Server Error - system/internal errors
	default:
		return 500
	}
}
