package payments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/labsys/lis/internal/domain/catalog"
	"github.com/labsys/lis/internal/domain/orders"
	"github.com/labsys/lis/internal/platform/apperr"
	"github.com/labsys/lis/internal/platform/db"
	"github.com/labsys/lis/internal/platform/notification"
	"github.com/labsys/lis/pkg/money"
)

// Service owns both money ledgers. Every balance check recomputes the paid
// total from the ledger inside the insert transaction; nothing here caches a
// running counter.
type Service struct {
	repo     Repository
	orders   orders.Repository
	catalog  catalog.Repository
	tx       db.Transactor
	notifier notification.Notifier
	loc      *time.Location
	now      func() time.Time
}

func NewService(repo Repository, ordersRepo orders.Repository, cat catalog.Repository,
	tx db.Transactor, notifier notification.Notifier, loc *time.Location) *Service {
	return &Service{
		repo:     repo,
		orders:   ordersRepo,
		catalog:  cat,
		tx:       tx,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
	}
}

// RecordInput carries one ledger entry. PaidAt, when supplied, is read in the
// clinic's zone; zero means now.
type RecordInput struct {
	Amount float64    `json:"amount"`
	Method string     `json:"method"`
	Notes  *string    `json:"notes"`
	PaidAt *time.Time `json:"paid_at"`
}

// RecordResult reports the ledger state right after an insert.
type RecordResult struct {
	Payment   *Payment            `json:"payment"`
	PaidTotal float64             `json:"paid_total"`
	Balance   float64             `json:"balance"`
	Status    money.PaymentStatus `json:"status"`
}

// RecordPayment appends to the patient ledger after re-deriving the paid
// total and checking the balance inside the same transaction.
func (s *Service) RecordPayment(ctx context.Context, orderID uuid.UUID, in RecordInput, actorID string) (*RecordResult, error) {
	if in.Amount <= 0 {
		return nil, apperr.New(apperr.ValidationFailed, "amount must be positive")
	}
	if !validMethods[in.Method] {
		return nil, apperr.New(apperr.ValidationFailed, "unknown payment method %q", in.Method)
	}

	var (
		result RecordResult
		ev     notification.PaymentEvent
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		// Lock the order row so a concurrent registration cannot read a
		// stale sum and overshoot the balance.
		order, err := s.orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == orders.StatusAnulado {
			return apperr.New(apperr.InvalidState, "order %s is annulled and cannot receive payments", order.OrderCode)
		}

		paid, err := s.repo.SumPayments(ctx, orderID)
		if err != nil {
			return err
		}
		balance := money.Round2(order.TotalPrice - paid)
		if !money.LessOrEqual(in.Amount, balance) {
			return apperr.New(apperr.BalanceExceeded,
				"payment of %.2f exceeds the outstanding balance of %.2f on order %s",
				in.Amount, balance, order.OrderCode)
		}

		p := &Payment{
			ID:      uuid.New(),
			OrderID: orderID,
			Amount:  money.Round2(in.Amount),
			Method:  in.Method,
			Notes:   in.Notes,
			PaidAt:  s.paidAt(in.PaidAt),
		}
		if actor, err := uuid.Parse(actorID); err == nil {
			p.RecordedByID = &actor
		}
		if err := s.repo.InsertPayment(ctx, p); err != nil {
			return err
		}

		newPaid := money.Round2(paid + p.Amount)
		result = RecordResult{
			Payment:   p,
			PaidTotal: newPaid,
			Balance:   money.Round2(order.TotalPrice - newPaid),
			Status:    money.Classify(newPaid, order.TotalPrice),
		}
		ev = notification.PaymentEvent{
			OrderID:   orderID,
			OrderCode: order.OrderCode,
			Amount:    p.Amount,
			Method:    p.Method,
			ActorID:   actorID,
			PaidAt:    p.PaidAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PaymentRecorded(ctx, ev)
	return &result, nil
}

func (s *Service) paidAt(t *time.Time) time.Time {
	if t == nil {
		return s.now()
	}
	return t.In(s.loc)
}

func (s *Service) ListPayments(ctx context.Context, orderID uuid.UUID) ([]*Payment, error) {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, orderID)
}

// OrderSummary is the derived payment state of one order.
type OrderSummary struct {
	OrderID    uuid.UUID           `json:"order_id"`
	OrderCode  string              `json:"order_code"`
	TotalPrice float64             `json:"total_price"`
	Paid       float64             `json:"paid"`
	Balance    float64             `json:"balance"`
	Status     money.PaymentStatus `json:"status"`
}

func (s *Service) OrderPaymentSummary(ctx context.Context, orderID uuid.UUID) (*OrderSummary, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	paid, err := s.repo.SumPayments(ctx, orderID)
	if err != nil {
		return nil, err
	}
	paid = money.Round2(paid)
	return &OrderSummary{
		OrderID:    order.ID,
		OrderCode:  order.OrderCode,
		TotalPrice: order.TotalPrice,
		Paid:       paid,
		Balance:    money.Round2(order.TotalPrice - paid),
		Status:     money.Classify(paid, order.TotalPrice),
	}, nil
}

// RecordReferredLabPayment appends to the external-lab ledger. The owed
// baseline is summed from the order's item cost snapshots whose effective lab
// (item override, else the test's current catalog default) is the target lab.
func (s *Service) RecordReferredLabPayment(ctx context.Context, orderID, labID uuid.UUID, in RecordInput, actorID string) (*RecordResult, error) {
	if in.Amount <= 0 {
		return nil, apperr.New(apperr.ValidationFailed, "amount must be positive")
	}

	var (
		result RecordResult
		ev     notification.PaymentEvent
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		// Same row lock as the patient ledger; the lab balance check is
		// only sound when registrations on the order serialize.
		order, err := s.orders.GetByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == orders.StatusAnulado {
			return apperr.New(apperr.InvalidState, "order %s is annulled and cannot receive payments", order.OrderCode)
		}

		baseline, err := s.labBaseline(ctx, orderID, labID)
		if err != nil {
			return err
		}
		if baseline <= money.Epsilon {
			return apperr.New(apperr.ValidationFailed,
				"order %s has no referred work for lab %s", order.OrderCode, labID)
		}

		paid, err := s.repo.SumReferredPayments(ctx, orderID, labID)
		if err != nil {
			return err
		}
		balance := money.Round2(baseline - paid)
		if !money.LessOrEqual(in.Amount, balance) {
			return apperr.New(apperr.BalanceExceeded,
				"payment of %.2f exceeds the outstanding lab balance of %.2f on order %s",
				in.Amount, balance, order.OrderCode)
		}

		p := &ReferredLabPayment{
			ID:            uuid.New(),
			OrderID:       orderID,
			ReferredLabID: labID,
			Amount:        money.Round2(in.Amount),
			Notes:         in.Notes,
			PaidAt:        s.paidAt(in.PaidAt),
		}
		if actor, err := uuid.Parse(actorID); err == nil {
			p.RecordedByID = &actor
		}
		if err := s.repo.InsertReferredPayment(ctx, p); err != nil {
			return err
		}

		newPaid := money.Round2(paid + p.Amount)
		result = RecordResult{
			PaidTotal: newPaid,
			Balance:   money.Round2(baseline - newPaid),
			Status:    money.Classify(newPaid, baseline),
		}
		ev = notification.PaymentEvent{
			OrderID:       orderID,
			OrderCode:     order.OrderCode,
			ReferredLabID: &labID,
			Amount:        p.Amount,
			ActorID:       actorID,
			PaidAt:        p.PaidAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.PaymentRecorded(ctx, ev)
	return &result, nil
}

// labBaseline sums the external cost snapshots of the order's items whose
// effective referred lab is labID.
func (s *Service) labBaseline(ctx context.Context, orderID, labID uuid.UUID) (float64, error) {
	items, err := s.orders.GetItems(ctx, orderID)
	if err != nil {
		return 0, err
	}

	// Items without their own lab reference fall back to the test's current
	// catalog default.
	var unresolved []uuid.UUID
	for _, it := range items {
		if it.ExternalLabCostSnapshot != nil && it.ReferredLabID == nil {
			unresolved = append(unresolved, it.LabTestID)
		}
	}
	defaults := map[uuid.UUID]*uuid.UUID{}
	if len(unresolved) > 0 {
		tests, err := s.catalog.GetTests(ctx, unresolved)
		if err != nil {
			return 0, err
		}
		for _, t := range tests {
			defaults[t.ID] = t.DefaultReferredLabID
		}
	}

	baseline := 0.0
	for _, it := range items {
		if it.ExternalLabCostSnapshot == nil {
			continue
		}
		lab := it.ReferredLabID
		if lab == nil {
			lab = defaults[it.LabTestID]
		}
		if lab != nil && *lab == labID {
			baseline += *it.ExternalLabCostSnapshot
		}
	}
	return money.Round2(baseline), nil
}

func (s *Service) ListReferredLabPayments(ctx context.Context, orderID uuid.UUID) ([]*ReferredLabPayment, error) {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.ListReferredPayments(ctx, orderID)
}

// LabSummary is the derived settlement state of one (order, lab) pair.
type LabSummary struct {
	ReferredLabID uuid.UUID           `json:"referred_lab_id"`
	LabName       string              `json:"lab_name,omitempty"`
	Cost          float64             `json:"cost"`
	Paid          float64             `json:"paid"`
	Balance       float64             `json:"balance"`
	Status        money.PaymentStatus `json:"status"`
}

// ReferredLabSummary lists, per lab with referred work on the order, the owed
// baseline, paid total and balance.
func (s *Service) ReferredLabSummary(ctx context.Context, orderID uuid.UUID) ([]*LabSummary, error) {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	items, err := s.orders.GetItems(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var unresolved []uuid.UUID
	for _, it := range items {
		if it.ExternalLabCostSnapshot != nil && it.ReferredLabID == nil {
			unresolved = append(unresolved, it.LabTestID)
		}
	}
	defaults := map[uuid.UUID]*uuid.UUID{}
	if len(unresolved) > 0 {
		tests, err := s.catalog.GetTests(ctx, unresolved)
		if err != nil {
			return nil, err
		}
		for _, t := range tests {
			defaults[t.ID] = t.DefaultReferredLabID
		}
	}

	costs := map[uuid.UUID]float64{}
	var order []uuid.UUID
	for _, it := range items {
		if it.ExternalLabCostSnapshot == nil {
			continue
		}
		lab := it.ReferredLabID
		if lab == nil {
			lab = defaults[it.LabTestID]
		}
		if lab == nil {
			continue
		}
		if _, seen := costs[*lab]; !seen {
			order = append(order, *lab)
		}
		costs[*lab] += *it.ExternalLabCostSnapshot
	}

	out := make([]*LabSummary, 0, len(order))
	for _, labID := range order {
		paid, err := s.repo.SumReferredPayments(ctx, orderID, labID)
		if err != nil {
			return nil, err
		}
		cost := money.Round2(costs[labID])
		paid = money.Round2(paid)
		summary := &LabSummary{
			ReferredLabID: labID,
			Cost:          cost,
			Paid:          paid,
			Balance:       money.Round2(cost - paid),
			Status:        money.Classify(paid, cost),
		}
		if lab, err := s.catalog.GetReferredLab(ctx, labID); err == nil {
			summary.LabName = lab.Name
		}
		out = append(out, summary)
	}
	return out, nil
}

// LabAggregate is the cross-order settlement state of one external lab.
type LabAggregate struct {
	ReferredLabID uuid.UUID      `json:"referred_lab_id"`
	LabName       string         `json:"lab_name,omitempty"`
	TotalCost     float64        `json:"total_cost"`
	TotalPaid     float64        `json:"total_paid"`
	Balance       float64        `json:"balance"`
	Orders        []*LabExposure `json:"orders"`
}

// TotalOwedToLab aggregates cost and settlement for one lab across all
// orders, grouped at read time; no denormalized running total exists.
func (s *Service) TotalOwedToLab(ctx context.Context, labID uuid.UUID) (*LabAggregate, error) {
	lab, err := s.catalog.GetReferredLab(ctx, labID)
	if err != nil {
		return nil, err
	}

	exposures, err := s.repo.ListLabExposure(ctx, labID)
	if err != nil {
		return nil, err
	}

	agg := &LabAggregate{ReferredLabID: labID, LabName: lab.Name, Orders: exposures}
	for _, e := range exposures {
		agg.TotalCost += e.Cost
		agg.TotalPaid += e.Paid
	}
	agg.TotalCost = money.Round2(agg.TotalCost)
	agg.TotalPaid = money.Round2(agg.TotalPaid)
	agg.Balance = money.Round2(agg.TotalCost - agg.TotalPaid)
	return agg, nil
}
