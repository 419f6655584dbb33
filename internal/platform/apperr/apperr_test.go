package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(BalanceExceeded, "amount %.2f exceeds balance %.2f", 50.0, 40.0)
	if KindOf(err) != BalanceExceeded {
		t.Fatalf("KindOf = %v, want BalanceExceeded", KindOf(err))
	}
	if err.Error() != "amount 50.00 exceeds balance 40.00" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}

func TestKindOfWrapped(t *testing.T) {
	inner := New(NotFound, "order not found")
	err := fmt.Errorf("convert: %w", inner)
	if KindOf(err) != NotFound {
		t.Fatalf("KindOf through wrapping = %v, want NotFound", KindOf(err))
	}
}

func TestKindOfUntyped(t *testing.T) {
	if KindOf(errors.New("boom")) != Internal {
		t.Fatal("untyped error should classify as Internal")
	}
	if KindOf(nil) != Internal {
		t.Fatal("nil error should classify as Internal")
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(Internal, cause, "record payment")
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause should be reachable via errors.Is")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{NotFound, http.StatusNotFound},
		{InvalidState, http.StatusConflict},
		{AlreadyProcessed, http.StatusConflict},
		{ReferenceUnavailable, http.StatusConflict},
		{PermissionDenied, http.StatusForbidden},
		{ValidationFailed, http.StatusBadRequest},
		{BalanceExceeded, http.StatusUnprocessableEntity},
		{Internal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(New(tc.kind, "x")); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}
