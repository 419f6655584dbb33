// Package notification delivers domain events to external collaborators.
// Delivery is strictly best-effort: a failed or slow notifier must never roll
// back the transaction that produced the event, so implementations are called
// after commit and their errors are logged, not returned.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConversionEvent is emitted when an admission request becomes a lab order.
type ConversionEvent struct {
	AdmissionRequestID uuid.UUID `json:"admission_request_id"`
	RequestCode        string    `json:"request_code"`
	OrderID            uuid.UUID `json:"order_id"`
	OrderCode          string    `json:"order_code"`
	PatientID          uuid.UUID `json:"patient_id"`
	TotalPrice         float64   `json:"total_price"`
	ConvertedAt        time.Time `json:"converted_at"`
}

// PaymentEvent is the audit record for a patient or referred-lab payment.
type PaymentEvent struct {
	OrderID       uuid.UUID  `json:"order_id"`
	OrderCode     string     `json:"order_code"`
	ReferredLabID *uuid.UUID `json:"referred_lab_id,omitempty"`
	Amount        float64    `json:"amount"`
	Method        string     `json:"method,omitempty"`
	ActorID       string     `json:"actor_id"`
	PaidAt        time.Time  `json:"paid_at"`
}

// Notifier receives domain events after the producing transaction commits.
type Notifier interface {
	AdmissionConverted(ctx context.Context, ev ConversionEvent)
	PaymentRecorded(ctx context.Context, ev PaymentEvent)
}

// LogNotifier writes events as structured log lines for an external
// audit/notification pipeline to pick up.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) AdmissionConverted(ctx context.Context, ev ConversionEvent) {
	n.logger.Info().
		Str("event", "admission_converted").
		Str("admission_request_id", ev.AdmissionRequestID.String()).
		Str("request_code", ev.RequestCode).
		Str("order_id", ev.OrderID.String()).
		Str("order_code", ev.OrderCode).
		Str("patient_id", ev.PatientID.String()).
		Float64("total_price", ev.TotalPrice).
		Time("converted_at", ev.ConvertedAt).
		Msg("admission converted to order")
}

func (n *LogNotifier) PaymentRecorded(ctx context.Context, ev PaymentEvent) {
	evt := n.logger.Info().
		Str("event", "payment_recorded").
		Str("order_id", ev.OrderID.String()).
		Str("order_code", ev.OrderCode).
		Float64("amount", ev.Amount).
		Str("actor_id", ev.ActorID).
		Time("paid_at", ev.PaidAt)
	if ev.Method != "" {
		evt = evt.Str("method", ev.Method)
	}
	if ev.ReferredLabID != nil {
		evt = evt.Str("referred_lab_id", ev.ReferredLabID.String())
	}
	evt.Msg("payment recorded")
}

// Collector stores events in memory. Test double.
type Collector struct {
	mu          sync.Mutex
	Conversions []ConversionEvent
	Payments    []PaymentEvent
}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) AdmissionConverted(_ context.Context, ev ConversionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Conversions = append(c.Conversions, ev)
}

func (c *Collector) PaymentRecorded(_ context.Context, ev PaymentEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Payments = append(c.Payments, ev)
}
