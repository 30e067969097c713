package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestOpsError_Error(t *testing.T) {
	tests := []struct {
		name      string
		err       *OpsError
		wantParts []string
	}{
		{
			name:      "with cause",
			err:       NewBackendUnavailableError("read", errors.New("database is locked")),
			wantParts: []string{"BACKEND_UNAVAILABLE", "read", "database is locked"},
		},
		{
			name:      "without cause",
			err:       NewNotFoundError("record", "TD999"),
			wantParts: []string{"NOT_FOUND", "record TD999 not found"},
		},
		{
			name:      "immutable",
			err:       NewImmutableFieldError("due_date", "version"),
			wantParts: []string{"IMMUTABLE_FIELD", "due_date, version"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.err.Error()
			for _, part := range tt.wantParts {
				if !strings.Contains(got, part) {
					t.Errorf("Error() = %q, want to contain %q", got, part)
				}
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", NewValidationError("identifier is required"))
	if got := CodeOf(wrapped); got != ValidationError {
		t.Errorf("CodeOf(wrapped) = %v, want %v", got, ValidationError)
	}
	if got := CodeOf(errors.New("plain")); got != InternalError {
		t.Errorf("CodeOf(plain) = %v, want %v", got, InternalError)
	}
	if Is(nil, InternalError) {
		t.Error("Is(nil) should be false")
	}
}

func TestOpsError_Unwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := NewBackendUnavailableError("update", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestGetSuggestedFixes(t *testing.T) {
	if fixes := GetSuggestedFixes(NotFound); len(fixes) == 0 {
		t.Error("expected fixes for NOT_FOUND")
	}
	if fixes := GetSuggestedFixes(PartialBulkFailure); fixes != nil {
		t.Errorf("expected no fixes for PARTIAL_BULK_FAILURE, got %v", fixes)
	}
	err := NewImmutableFieldError("due_date")
	if len(err.SuggestedFixes) == 0 {
		t.Error("New should attach default fixes")
	}
}
