package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMatchesSentinelsByKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", New(KindConflict, "CreateReservation", http.StatusConflict, "slot taken"))

	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict error to match ErrConflict")
	}
	if errors.Is(err, ErrValidation) {
		t.Fatalf("did not expect conflict error to match ErrValidation")
	}
	if KindOf(err) != KindConflict {
		t.Fatalf("expected KindConflict, got %v", KindOf(err))
	}
	if got := err.Error(); got != "wrapped: CreateReservation: slot taken" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestWithKindPreservesMessage(t *testing.T) {
	t.Parallel()

	original := New(KindValidation, "Login", http.StatusBadRequest, "Invalid credentials")
	reclassified := WithKind(original, KindAuth)

	if !errors.Is(reclassified, ErrAuth) {
		t.Fatalf("expected reclassified error to match ErrAuth")
	}
	if original.Kind != KindValidation {
		t.Fatalf("expected original error to stay untouched")
	}
	var appErr *Error
	if !errors.As(reclassified, &appErr) || appErr.Message != "Invalid credentials" || appErr.Status != http.StatusBadRequest {
		t.Fatalf("expected message and status to survive, got %#v", appErr)
	}

	plain := errors.New("boom")
	wrapped := WithKind(plain, KindNetwork)
	if !errors.Is(wrapped, plain) || !errors.Is(wrapped, ErrNetwork) {
		t.Fatalf("expected plain error to become the cause of a network error")
	}
}

func TestStatusKind(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status        int
		authenticated bool
		want          Kind
	}{
		{http.StatusUnauthorized, true, KindTokenExpired},
		{http.StatusUnauthorized, false, KindAuth},
		{http.StatusForbidden, true, KindAuthorization},
		{http.StatusConflict, true, KindConflict},
		{http.StatusBadRequest, true, KindValidation},
		{http.StatusUnprocessableEntity, true, KindValidation},
		{http.StatusInternalServerError, true, KindUnknownServer},
		{http.StatusOK, true, KindUnknownServer},
	}
	for _, tc := range cases {
		if got := StatusKind(tc.status, tc.authenticated); got != tc.want {
			t.Fatalf("StatusKind(%d, %v) = %v, want %v", tc.status, tc.authenticated, got, tc.want)
		}
	}
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	vErr := &ValidationError{Op: "CreateResource"}
	if vErr.HasErrors() {
		t.Fatalf("expected empty validation error")
	}
	vErr.Add("name", "name is required")
	vErr.Add("max_bookings", "max bookings must be at least 1")

	if !errors.Is(vErr, ErrValidation) {
		t.Fatalf("expected validation error to match ErrValidation")
	}
	if Label(vErr) != "validation" {
		t.Fatalf("expected validation label, got %q", Label(vErr))
	}
	want := "CreateResource: validation failed: max bookings must be at least 1; name is required"
	if vErr.Error() != want {
		t.Fatalf("unexpected message %q", vErr.Error())
	}
}

func TestLabel(t *testing.T) {
	t.Parallel()

	if Label(nil) != "" {
		t.Fatalf("expected empty label for nil")
	}
	if Label(errors.New("boom")) != "unexpected" {
		t.Fatalf("expected unexpected label for unclassified errors")
	}
	if Label(Network("ListResources", errors.New("dial tcp"))) != "network" {
		t.Fatalf("expected network label")
	}
}

func TestStatusMessage(t *testing.T) {
	t.Parallel()

	if got := StatusMessage(http.StatusForbidden); got != "403 Forbidden" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := StatusMessage(599); got != "HTTP 599" {
		t.Fatalf("unexpected message %q", got)
	}
}
