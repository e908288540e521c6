package domain

import (
	"errors"
	"fmt"
	"time"
)

// Application error codes
const (
	EINVALID      = "invalid"      // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized" // Authentication required
	EFORBIDDEN    = "forbidden"    // Permission denied (policy violation)
	ENOTFOUND     = "not_found"    // Resource not found
	ECONFLICT     = "conflict"     // Resource conflict (e.g., duplicate)
	ERATELIMIT    = "rate_limit"   // Daily quota exceeded
	EUNAVAILABLE  = "unavailable"  // Backing store or dataset unavailable
	EINTERNAL     = "internal"     // Internal server error
)

// Reason codes carried in Error.Detail for policy and quota rejections,
// so clients can decide whether to retry, upgrade, or abandon.
const (
	ReasonQuotaExceeded        = "RATE_LIMIT_EXCEEDED"
	ReasonIndicatorNotAllowed  = "INDICATOR_NOT_ALLOWED"
	ReasonHistoryWindowTooFar  = "DATE_RANGE_RESTRICTED"
	ReasonInvalidTierChange    = "INVALID_TIER_UPGRADE"
	ReasonSymbolNotFound       = "SYMBOL_NOT_FOUND"
	ReasonNoDataInRange        = "NO_DATA_FOUND"
	ReasonDatasetNotLoaded     = "DATA_NOT_LOADED"
)

// Error represents an application error with structured information.
type Error struct {
	Code    string         // Machine-readable error code
	Op      string         // Operation that failed (e.g., "ratelimit.check")
	Message string         // Human-readable message
	Detail  map[string]any // Structured detail for client decision-making
	Err     error          // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
// Internal errors are replaced with a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != EINTERNAL {
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// ErrorDetail returns the structured detail of the root error, if any.
func ErrorDetail(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return nil
}

// Convenience constructors

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{Code: EINVALID, Op: op, Message: message}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{Code: EUNAUTHORIZED, Op: op, Message: message}
}

// NotFound creates a not found error.
func NotFound(op, message, reason string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: message,
		Detail:  map[string]any{"reason": reason},
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{Code: ECONFLICT, Op: op, Message: message}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{Code: EINTERNAL, Op: op, Message: message, Err: err}
}

// QuotaExceeded creates a rate-limit error carrying the current quota numbers
// so the client knows when it can retry.
func QuotaExceeded(op string, limit, made int64, resetAt time.Time) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: fmt.Sprintf("Rate limit exceeded. Daily limit: %d", limit),
		Detail: map[string]any{
			"reason":        ReasonQuotaExceeded,
			"daily_limit":   limit,
			"requests_made": made,
			"remaining":     int64(0),
			"reset_time":    resetAt.Unix(),
		},
	}
}

// IndicatorNotAllowed creates a policy violation for an indicator outside the
// caller's tier.
func IndicatorNotAllowed(op string, kind IndicatorKind, tier SubscriptionTier) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: fmt.Sprintf("Indicator %s not available for %s tier", kind, tier),
		Detail: map[string]any{
			"reason":    ReasonIndicatorNotAllowed,
			"indicator": string(kind),
			"tier":      string(tier),
		},
	}
}

// HistoryWindowExceeded creates a policy violation for a start date earlier
// than the tier's allowance.
func HistoryWindowExceeded(op string, tier SubscriptionTier, earliest time.Time) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: fmt.Sprintf("Start date too far back for %s tier. Earliest allowed: %s", tier, earliest.Format("2006-01-02")),
		Detail: map[string]any{
			"reason":           ReasonHistoryWindowTooFar,
			"tier":             string(tier),
			"earliest_allowed": earliest.Format("2006-01-02"),
		},
	}
}

// InvalidTierChange creates a policy violation for a backward or lateral
// subscription change.
func InvalidTierChange(op string, from, to SubscriptionTier) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: "Can only upgrade to a higher tier",
		Detail: map[string]any{
			"reason":       ReasonInvalidTierChange,
			"current_tier": string(from),
			"target_tier":  string(to),
		},
	}
}
