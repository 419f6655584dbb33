package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows order listings.
type ListFilter struct {
	Status    string
	PatientID *uuid.UUID
	BranchID  *uuid.UUID
	// Day restricts to orders whose code carries this day prefix.
	CodePrefix string
	// PaymentStatus filters by the classification of recorded payments
	// against the order total (PENDIENTE, PARCIAL or PAGADO).
	PaymentStatus string
}

// Repository is the persistence surface for lab orders.
type Repository interface {
	// Create inserts the order and its items. Must run inside the caller's
	// transaction when code allocation needs retry semantics.
	Create(ctx context.Context, o *LabOrder, items []*LabOrderItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabOrder, error)
	// GetByIDForUpdate reads the order holding a row lock until the caller's
	// transaction ends. Both payment ledgers take it before recomputing a
	// balance, so concurrent registrations serialize on the order row.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*LabOrder, error)
	GetByAdmissionRequest(ctx context.Context, requestID uuid.UUID) (*LabOrder, error)
	GetItems(ctx context.Context, orderID uuid.UUID) ([]*LabOrderItem, error)
	GetItem(ctx context.Context, itemID uuid.UUID) (*LabOrderItem, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*LabOrder, int, error)
	// ListCodesByPrefix returns every order code sharing a day prefix; called
	// inside the allocation transaction.
	ListCodesByPrefix(ctx context.Context, prefix string) ([]string, error)
	// AppendItems adds items and rewrites the stored total.
	AppendItems(ctx context.Context, orderID uuid.UUID, items []*LabOrderItem, newTotal float64) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, deliveredAt *time.Time) error
	UpdateItemSnapshot(ctx context.Context, itemID uuid.UUID, snap *TemplateSnapshot) error
	// ClearAdmissionRef detaches the order from its admission request (used
	// by administrative purge of the request).
	ClearAdmissionRef(ctx context.Context, orderID uuid.UUID) error
	// Delete removes the order; items and captured results cascade.
	Delete(ctx context.Context, id uuid.UUID) error
}
