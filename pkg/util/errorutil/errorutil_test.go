package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestToDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"domain error passes through", NewConflict("stale", nil), CodeConflict, http.StatusConflict},
		{"wrapped domain error", fmt.Errorf("update: %w", NewNotFound("case", nil)), CodeNotFound, http.StatusNotFound},
		{"no rows", pgx.ErrNoRows, CodeNotFound, http.StatusNotFound},
		{"invalid transition", NewInvalidTransition("NEW", "CLOSED"), CodeInvalidTransition, http.StatusConflict},
		{"unknown error", errors.New("boom"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToDomainError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", got.Code, tt.wantCode)
			}
			if got.HTTPStatus != tt.wantStatus {
				t.Errorf("status = %d, want %d", got.HTTPStatus, tt.wantStatus)
			}
		})
	}
}

func TestNewFieldErrorNamesField(t *testing.T) {
	err := NewFieldError("resolution", "is required")
	de := ToDomainError(err)
	if de.Code != CodeValidationFailed {
		t.Fatalf("code = %s", de.Code)
	}
	if de.Details["resolution"] != "is required" {
		t.Errorf("details = %v", de.Details)
	}
	if !HasCode(err, CodeValidationFailed) {
		t.Error("HasCode should match validation code")
	}
}

func TestFromStatus(t *testing.T) {
	if got := FromStatus(http.StatusForbidden, "insufficient role"); got.Code != CodeForbidden {
		t.Errorf("code = %s, want %s", got.Code, CodeForbidden)
	}
	if got := FromStatus(http.StatusTeapot, "odd"); got.Code != CodeInternal || got.HTTPStatus != http.StatusTeapot {
		t.Errorf("unexpected %+v", got)
	}
}
