package payments

import (
	"time"

	"github.com/google/uuid"
)

// Payment methods accepted at the counter.
const (
	MethodEfectivo      = "EFECTIVO"
	MethodTarjeta       = "TARJETA"
	MethodTransferencia = "TRANSFERENCIA"
	MethodCredito       = "CREDITO"
)

var validMethods = map[string]bool{
	MethodEfectivo:      true,
	MethodTarjeta:       true,
	MethodTransferencia: true,
	MethodCredito:       true,
}

// Payment is one append-only row of the patient ledger. There is no update
// path; the paid total is always derived by summing the ledger.
type Payment struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	OrderID      uuid.UUID  `db:"order_id" json:"order_id"`
	Amount       float64    `db:"amount" json:"amount"`
	Method       string     `db:"method" json:"method"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	PaidAt       time.Time  `db:"paid_at" json:"paid_at"`
	RecordedByID *uuid.UUID `db:"recorded_by_id" json:"recorded_by_id,omitempty"`
}

// ReferredLabPayment is one append-only row of the external-lab ledger,
// scoped to an (order, lab) pair. It is fully independent of the patient
// ledger.
type ReferredLabPayment struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	OrderID       uuid.UUID  `db:"order_id" json:"order_id"`
	ReferredLabID uuid.UUID  `db:"referred_lab_id" json:"referred_lab_id"`
	Amount        float64    `db:"amount" json:"amount"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
	PaidAt        time.Time  `db:"paid_at" json:"paid_at"`
	RecordedByID  *uuid.UUID `db:"recorded_by_id" json:"recorded_by_id,omitempty"`
}
