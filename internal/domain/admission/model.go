package admission

import (
	"time"

	"github.com/google/uuid"
)

// Request statuses. CONVERTIDA and CANCELADA are terminal; only an
// administrative purge removes a request after that.
const (
	StatusPendiente  = "PENDIENTE"
	StatusConvertida = "CONVERTIDA"
	StatusCancelada  = "CANCELADA"
)

// AdmissionRequest maps to the admission_requests table. It is the priced
// draft an admission desk files before the laboratory takes over; conversion
// turns it into a lab order exactly once.
type AdmissionRequest struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	RequestCode string     `db:"request_code" json:"request_code"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Status      string     `db:"status" json:"status"`
	TotalPrice  float64    `db:"total_price" json:"total_price"`
	BranchID    *uuid.UUID `db:"branch_id" json:"branch_id,omitempty"`
	RequestedBy *string    `db:"requested_by" json:"requested_by,omitempty"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	PatientType *string    `db:"patient_type" json:"patient_type,omitempty"`
	// ConvertedOrderID and ConvertedAt are written exactly once, atomically
	// with the CONVERTIDA transition.
	ConvertedOrderID *uuid.UUID `db:"converted_order_id" json:"converted_order_id,omitempty"`
	ConvertedAt      *time.Time `db:"converted_at" json:"converted_at,omitempty"`
	CreatedByID      *uuid.UUID `db:"created_by_id" json:"created_by_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// AdmissionRequestItem maps to the admission_request_items table. PriceBase
// is the catalog price at creation time; PriceApplied carries any authorized
// adjustment. The request total is always the sum of PriceApplied.
type AdmissionRequestItem struct {
	ID               uuid.UUID `db:"id" json:"id"`
	RequestID        uuid.UUID `db:"request_id" json:"request_id"`
	LabTestID        uuid.UUID `db:"lab_test_id" json:"lab_test_id"`
	Position         int       `db:"position" json:"position"`
	PriceBase        float64   `db:"price_base" json:"price_base"`
	PriceApplied     float64   `db:"price_applied" json:"price_applied"`
	AdjustmentReason *string   `db:"adjustment_reason" json:"adjustment_reason,omitempty"`
}
