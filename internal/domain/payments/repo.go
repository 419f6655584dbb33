package payments

import (
	"context"

	"github.com/google/uuid"
)

// LabExposure is one order's referred-work cost and settlement against a
// given external lab, used by the cross-order aggregate.
type LabExposure struct {
	OrderID   uuid.UUID `json:"order_id"`
	OrderCode string    `json:"order_code"`
	Cost      float64   `json:"cost"`
	Paid      float64   `json:"paid"`
}

// Repository is the persistence surface for both ledgers. The Sum methods
// exist so balance checks can re-derive totals inside the same transaction as
// the insert.
type Repository interface {
	InsertPayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, orderID uuid.UUID) ([]*Payment, error)
	SumPayments(ctx context.Context, orderID uuid.UUID) (float64, error)

	InsertReferredPayment(ctx context.Context, p *ReferredLabPayment) error
	ListReferredPayments(ctx context.Context, orderID uuid.UUID) ([]*ReferredLabPayment, error)
	SumReferredPayments(ctx context.Context, orderID, labID uuid.UUID) (float64, error)

	// ListLabExposure returns, per order with referred work for the lab, the
	// summed external cost snapshots and the summed payments made to the lab.
	ListLabExposure(ctx context.Context, labID uuid.UUID) ([]*LabExposure, error)
}
