// Package money holds the amount comparison rules shared by the pricing
// resolver and both payment ledgers. All amounts are stored as float64 with
// two-decimal precision; every comparison goes through the same epsilon so
// that a payment status never flaps between PARCIAL and PAGADO due to
// rounding.
package money

import "math"

// Epsilon is the tolerance applied to every amount comparison.
const Epsilon = 0.0001

// PaymentStatus classifies how much of a total has been covered.
type PaymentStatus string

const (
	StatusPendiente PaymentStatus = "PENDIENTE"
	StatusParcial   PaymentStatus = "PARCIAL"
	StatusPagado    PaymentStatus = "PAGADO"
)

// Round2 rounds an amount to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Equal reports whether two amounts are equal within Epsilon.
func Equal(a, b float64) bool {
	return math.Abs(a-b) <= Epsilon
}

// LessOrEqual reports whether a <= b within Epsilon.
func LessOrEqual(a, b float64) bool {
	return a <= b+Epsilon
}

// Classify returns the payment status for a paid amount against a total.
func Classify(paid, total float64) PaymentStatus {
	if paid <= 0 {
		return StatusPendiente
	}
	if paid+Epsilon < total {
		return StatusParcial
	}
	return StatusPagado
}
