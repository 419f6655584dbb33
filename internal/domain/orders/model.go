package orders

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses.
const (
	StatusPendiente  = "PENDIENTE"
	StatusEnProceso  = "EN_PROCESO"
	StatusCompletado = "COMPLETADO"
	StatusEntregado  = "ENTREGADO"
	StatusAnulado    = "ANULADO"
)

// Order sources.
const (
	SourceLaboratorio = "LABORATORIO"
	SourceAdmision    = "ADMISION"
)

// Item statuses.
const (
	ItemPendiente  = "PENDIENTE"
	ItemEnProceso  = "EN_PROCESO"
	ItemCompletado = "COMPLETADO"
)

var validStatuses = map[string]bool{
	StatusPendiente:  true,
	StatusEnProceso:  true,
	StatusCompletado: true,
	StatusEntregado:  true,
	StatusAnulado:    true,
}

// LabOrder maps to the lab_orders table. It is the authoritative billable
// unit of work; totalPrice always equals the sum of its items' price
// snapshots.
type LabOrder struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	OrderCode          string     `db:"order_code" json:"order_code"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patient_id"`
	Status             string     `db:"status" json:"status"`
	TotalPrice         float64    `db:"total_price" json:"total_price"`
	OrderSource        string     `db:"order_source" json:"order_source"`
	AdmissionRequestID *uuid.UUID `db:"admission_request_id" json:"admission_request_id,omitempty"`
	BranchID           *uuid.UUID `db:"branch_id" json:"branch_id,omitempty"`
	CreatedByID        *uuid.UUID `db:"created_by_id" json:"created_by_id,omitempty"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	// CreatedAt may be backdated to the logical day of the order rather than
	// wall-clock time.
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
}

// LabOrderItem maps to the lab_order_items table. Price and template
// snapshots are frozen at creation time; later catalog edits never alter
// them.
type LabOrderItem struct {
	ID                      uuid.UUID         `db:"id" json:"id"`
	OrderID                 uuid.UUID         `db:"order_id" json:"order_id"`
	LabTestID               uuid.UUID         `db:"lab_test_id" json:"lab_test_id"`
	Position                int               `db:"position" json:"position"`
	PriceSnapshot           float64           `db:"price_snapshot" json:"price_snapshot"`
	PriceConventionSnapshot *float64          `db:"price_convention_snapshot" json:"price_convention_snapshot,omitempty"`
	ReferredLabID           *uuid.UUID        `db:"referred_lab_id" json:"referred_lab_id,omitempty"`
	ExternalLabCostSnapshot *float64          `db:"external_lab_cost_snapshot" json:"external_lab_cost_snapshot,omitempty"`
	TemplateSnapshot        *TemplateSnapshot `db:"template_snapshot" json:"template_snapshot,omitempty"`
	PromotionID             *uuid.UUID        `db:"promotion_id" json:"promotion_id,omitempty"`
	PromotionName           *string           `db:"promotion_name" json:"promotion_name,omitempty"`
	Status                  string            `db:"status" json:"status"`
}

// EffectiveConventionPrice resolves the admission-facing price of the item,
// falling back to the public snapshot when no convention snapshot was taken.
func (it *LabOrderItem) EffectiveConventionPrice() float64 {
	if it.PriceConventionSnapshot != nil {
		return *it.PriceConventionSnapshot
	}
	return it.PriceSnapshot
}
