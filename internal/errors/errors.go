package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// NotFound indicates the identifier or secondary key matched no row
	NotFound ErrorCode = "NOT_FOUND"
	// ValidationError indicates a missing required argument or an unknown field
	ValidationError ErrorCode = "VALIDATION_ERROR"
	// ImmutableField indicates a write targeted only derived or audit fields
	ImmutableField ErrorCode = "IMMUTABLE_FIELD"
	// BackendUnavailable indicates the persistence backend failed or timed out
	BackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// PartialBulkFailure is informational; bulk operations report it as a count
	PartialBulkFailure ErrorCode = "PARTIAL_BULK_FAILURE"
	// UnknownOperation indicates a command name outside the vocabulary
	UnknownOperation ErrorCode = "UNKNOWN_OPERATION"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixAction represents a suggested follow-up for an error
type FixAction struct {
	Operation   string `json:"operation,omitempty"`
	Description string `json:"description"`
}

// OpsError is the coded error returned by the store and the dispatcher.
type OpsError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error
}

// New creates an OpsError with the default fixes for its code.
func New(code ErrorCode, message string, cause error) *OpsError {
	return &OpsError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *OpsError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *OpsError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *OpsError) WithDetails(details interface{}) *OpsError {
	e.Details = details
	return e
}

// NewNotFoundError reports that nothing matched key.
func NewNotFoundError(what, key string) *OpsError {
	return New(NotFound, fmt.Sprintf("%s %s not found", what, key), nil)
}

// NewValidationError reports a bad argument.
func NewValidationError(format string, args ...interface{}) *OpsError {
	return New(ValidationError, fmt.Sprintf(format, args...), nil)
}

// NewImmutableFieldError reports a write that only touched protected fields.
func NewImmutableFieldError(fields ...string) *OpsError {
	return New(ImmutableField, "field is not writable: "+strings.Join(fields, ", "), nil).
		WithDetails(map[string]interface{}{"fields": fields})
}

// NewBackendUnavailableError wraps a persistence failure.
func NewBackendUnavailableError(op string, cause error) *OpsError {
	return New(BackendUnavailable, "backend unavailable during "+op, cause)
}

// NewUnknownOperationError reports a command outside the vocabulary.
func NewUnknownOperationError(name string) *OpsError {
	return New(UnknownOperation, "unknown operation: "+name, nil)
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *OpsError {
	return New(InternalError, message, cause)
}

// CodeOf returns the code of the first OpsError in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var oe *OpsError
	if stderrors.As(err, &oe) {
		return oe.Code
	}
	return InternalError
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// ErrorActions maps error codes to suggested follow-ups
var ErrorActions = map[ErrorCode][]FixAction{
	NotFound: {
		{Operation: "find_reports", Description: "Search by partial identifier, product or writer"},
		{Operation: "normalize_id", Description: "Check how the identifier is normalized"},
	},
	ValidationError: {
		{Operation: "list_operations", Description: "Inspect the input schema of the operation"},
	},
	ImmutableField: {
		{Operation: "update_periods", Description: "Change period_end; the due date is derived from it"},
	},
	BackendUnavailable: {
		{Description: "Retry the call once the backend is reachable"},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
