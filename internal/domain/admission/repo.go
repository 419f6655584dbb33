package admission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows request listings.
type ListFilter struct {
	Status     string
	PatientID  *uuid.UUID
	BranchID   *uuid.UUID
	CodePrefix string
}

// Repository is the persistence surface for admission requests.
type Repository interface {
	Create(ctx context.Context, req *AdmissionRequest, items []*AdmissionRequestItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*AdmissionRequest, error)
	GetItems(ctx context.Context, requestID uuid.UUID) ([]*AdmissionRequestItem, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*AdmissionRequest, int, error)
	ListCodesByPrefix(ctx context.Context, prefix string) ([]string, error)
	// UpdateHeader rewrites the mutable header fields (requester, notes,
	// patient type, branch, status).
	UpdateHeader(ctx context.Context, req *AdmissionRequest) error
	// UpdateItemPrices rewrites applied prices and the request total after a
	// re-validated adjustment.
	UpdateItemPrices(ctx context.Context, requestID uuid.UUID, items []*AdmissionRequestItem, newTotal float64) error
	// MarkConverted flips the request to CONVERTIDA with its order reference,
	// guarded so only a PENDIENTE, unconverted row transitions. Returns false
	// when the guard finds the row already taken.
	MarkConverted(ctx context.Context, id, orderID uuid.UUID, at time.Time) (bool, error)
	// RevertConversion puts a converted request back to PENDIENTE and clears
	// the order reference. Used when the produced order is deleted.
	RevertConversion(ctx context.Context, id uuid.UUID) error
	// Delete hard-deletes the request and its items.
	Delete(ctx context.Context, id uuid.UUID) error
}
