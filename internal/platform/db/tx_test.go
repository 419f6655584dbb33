package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Fatal("expected nil tx from empty context")
	}
}

func TestTxFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), txKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Fatal("expected nil for non-tx value")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "lab_orders_order_code_key"}

	if !IsUniqueViolation(dup, "") {
		t.Error("23505 should match any constraint when name is empty")
	}
	if !IsUniqueViolation(dup, "lab_orders_order_code_key") {
		t.Error("23505 should match its own constraint name")
	}
	if IsUniqueViolation(dup, "other_constraint") {
		t.Error("23505 should not match a different constraint name")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Error("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("plain"), "") {
		t.Error("plain error is not a unique violation")
	}
}

func TestIsUniqueViolation_Wrapped(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "admission_requests_request_code_key"}
	wrapped := fmt.Errorf("insert admission request: %w", dup)
	if !IsUniqueViolation(wrapped, "admission_requests_request_code_key") {
		t.Error("unique violation should be detected through wrapping")
	}
}
