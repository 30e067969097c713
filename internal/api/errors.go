package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"psurops/internal/errors"
)

// ErrorResponse represents an HTTP error response. It has the same shape as
// a failed dispatcher response.
type ErrorResponse struct {
	Error          string             `json:"error"`
	Code           string             `json:"code"`
	Details        interface{}        `json:"details,omitempty"`
	SuggestedFixes []errors.FixAction `json:"suggested_fixes,omitempty"`
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error, status int) {
	resp := ErrorResponse{Error: err.Error(), Code: string(errors.InternalError)}

	var oe *errors.OpsError
	if stderrors.As(err, &oe) {
		resp.Error = oe.Message
		resp.Code = string(oe.Code)
		resp.Details = oe.Details
		resp.SuggestedFixes = oe.SuggestedFixes
	}
	WriteJSON(w, resp, status)
}

// WriteOpsError writes an OpsError with automatic status code mapping
func WriteOpsError(w http.ResponseWriter, err *errors.OpsError) {
	WriteError(w, err, MapCodeToStatus(err.Code))
}

// MapCodeToStatus maps error codes to HTTP status codes
func MapCodeToStatus(code errors.ErrorCode) int {
	switch code {
	case errors.NotFound:
		return http.StatusNotFound // 404
	case errors.ValidationError:
		return http.StatusBadRequest // 400
	case errors.ImmutableField:
		return http.StatusUnprocessableEntity // 422
	case errors.UnknownOperation:
		return http.StatusNotFound // 404
	case errors.BackendUnavailable:
		return http.StatusServiceUnavailable // 503
	case errors.PartialBulkFailure:
		return http.StatusMultiStatus // 207
	case errors.InternalError:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 Bad Request error
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, errors.NewValidationError("%s", message), http.StatusBadRequest)
}

// InternalError writes a 500 Internal Server Error
func InternalError(w http.ResponseWriter, message string, err error) {
	WriteError(w, errors.NewInternalError(message, err), http.StatusInternalServerError)
}
