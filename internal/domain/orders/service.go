package orders

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/labsys/lis/internal/domain/catalog"
	"github.com/labsys/lis/internal/domain/codes"
	"github.com/labsys/lis/internal/domain/pricing"
	"github.com/labsys/lis/internal/platform/apperr"
	"github.com/labsys/lis/internal/platform/db"
	"github.com/labsys/lis/pkg/money"
)

// AdmissionReverter undoes a conversion when its order is deleted: the linked
// admission request goes back to PENDIENTE and drops its order reference. The
// admission domain provides the implementation; the indirection keeps order
// deletion from importing it.
type AdmissionReverter interface {
	RevertConversion(ctx context.Context, requestID uuid.UUID) error
}

// Service owns lab-order lifecycle operations.
type Service struct {
	repo     Repository
	catalog  catalog.Repository
	resolver *pricing.Resolver
	tx       db.Transactor
	reverter AdmissionReverter
	loc      *time.Location
	now      func() time.Time
}

func NewService(repo Repository, cat catalog.Repository, resolver *pricing.Resolver, tx db.Transactor, loc *time.Location) *Service {
	return &Service{
		repo:     repo,
		catalog:  cat,
		resolver: resolver,
		tx:       tx,
		loc:      loc,
		now:      time.Now,
	}
}

// SetReverter wires the admission-side conversion reverter. Set once at
// startup; nil means deleting an admission-sourced order leaves the request
// untouched.
func (s *Service) SetReverter(r AdmissionReverter) { s.reverter = r }

// CreateInput carries a lab-originated order request.
type CreateInput struct {
	PatientID   uuid.UUID            `json:"patient_id"`
	TestIDs     []uuid.UUID          `json:"test_ids"`
	ProfileIDs  []uuid.UUID          `json:"profile_ids"`
	Adjustments []pricing.Adjustment `json:"adjustments"`
	BranchID    *uuid.UUID           `json:"branch_id"`
	Notes       *string              `json:"notes"`
	// CreatedAt backdates the order to its logical day; the code sequence
	// follows it. Zero means now.
	CreatedAt      time.Time `json:"created_at"`
	CreatedByID    *uuid.UUID
	CanAdjustPrice bool
}

// CreateDirect registers a lab-originated order: resolves pricing, freezes
// template snapshots and allocates the day-sequential order code, all within
// one transaction per attempt.
func (s *Service) CreateDirect(ctx context.Context, in CreateInput) (*LabOrder, error) {
	if in.PatientID == uuid.Nil {
		return nil, apperr.New(apperr.ValidationFailed, "patient_id is required")
	}

	resolved, total, err := s.resolver.ResolveItems(ctx, pricing.Input{
		TestIDs:        in.TestIDs,
		ProfileIDs:     in.ProfileIDs,
		Adjustments:    in.Adjustments,
		CanAdjustPrice: in.CanAdjustPrice,
	})
	if err != nil {
		return nil, err
	}

	items, err := s.buildItems(ctx, resolved)
	if err != nil {
		return nil, err
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	order := &LabOrder{
		ID:          uuid.New(),
		PatientID:   in.PatientID,
		Status:      StatusPendiente,
		TotalPrice:  total,
		OrderSource: SourceLaboratorio,
		BranchID:    in.BranchID,
		CreatedByID: in.CreatedByID,
		Notes:       in.Notes,
		CreatedAt:   createdAt,
	}

	if err := s.insertWithCode(ctx, order, items); err != nil {
		return nil, err
	}
	return order, nil
}

// insertWithCode allocates the next order code and inserts the order plus
// items. The code is re-derived inside each transaction; a concurrent writer
// claiming the candidate first surfaces as a unique violation and triggers a
// retry, up to codes.MaxAttempts.
func (s *Service) insertWithCode(ctx context.Context, order *LabOrder, items []*LabOrderItem) error {
	prefix := codes.DayPrefix(codes.OrderKind, order.CreatedAt, s.loc)

	for attempt := 0; attempt < codes.MaxAttempts; attempt++ {
		err := s.tx.InTx(ctx, func(ctx context.Context) error {
			existing, err := s.repo.ListCodesByPrefix(ctx, prefix)
			if err != nil {
				return err
			}
			order.OrderCode = codes.Next(prefix, existing)
			return s.repo.Create(ctx, order, items)
		})
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "lab_orders_order_code_key") {
			return err
		}
	}
	return apperr.New(apperr.AlreadyProcessed, "could not allocate an order code after %d attempts", codes.MaxAttempts)
}

// buildItems turns resolved pricing lines into order items with frozen
// template snapshots.
func (s *Service) buildItems(ctx context.Context, resolved []pricing.ResolvedItem) ([]*LabOrderItem, error) {
	items := make([]*LabOrderItem, 0, len(resolved))
	for _, ri := range resolved {
		tmpl, err := s.catalog.GetTemplateForTest(ctx, ri.TestID)
		if err != nil {
			return nil, err
		}
		it := &LabOrderItem{
			ID:                      uuid.New(),
			LabTestID:               ri.TestID,
			Position:                ri.Position,
			PriceSnapshot:           ri.PriceApplied,
			PriceConventionSnapshot: ri.ConventionPrice,
			ReferredLabID:           ri.ReferredLabID,
			ExternalLabCostSnapshot: ri.ExternalCost,
			TemplateSnapshot:        BuildTemplateSnapshot(tmpl),
			PromotionID:             ri.ProfileID,
			PromotionName:           ri.ProfileName,
			Status:                  ItemPendiente,
		}
		items = append(items, it)
	}
	return items, nil
}

// OrderDetail is an order with its items.
type OrderDetail struct {
	LabOrder
	Items []*LabOrderItem `json:"items"`
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*OrderDetail, error) {
	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{LabOrder: *order, Items: items}, nil
}

// List returns a page of orders. A non-empty day ("2006-01-02") narrows to
// that clinic-local day via the code prefix.
func (s *Service) List(ctx context.Context, filter ListFilter, day string, limit, offset int) ([]*LabOrder, int, error) {
	if day != "" {
		d, err := time.ParseInLocation("2006-01-02", day, s.loc)
		if err != nil {
			return nil, 0, apperr.New(apperr.ValidationFailed, "invalid day %q, want YYYY-MM-DD", day)
		}
		filter.CodePrefix = codes.DayPrefix(codes.OrderKind, d, s.loc)
	}
	return s.repo.List(ctx, filter, limit, offset)
}

// AppendInput adds tests to an existing order.
type AppendInput struct {
	TestIDs        []uuid.UUID          `json:"test_ids"`
	ProfileIDs     []uuid.UUID          `json:"profile_ids"`
	Adjustments    []pricing.Adjustment `json:"adjustments"`
	CanAdjustPrice bool
}

// AppendItems prices additional tests and attaches them to the order,
// rewriting the total. Annulled and delivered orders reject additions.
func (s *Service) AppendItems(ctx context.Context, orderID uuid.UUID, in AppendInput) (*OrderDetail, error) {
	var detail *OrderDetail
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == StatusAnulado || order.Status == StatusEntregado {
			return apperr.New(apperr.InvalidState, "cannot add items to a %s order", order.Status)
		}

		existing, err := s.repo.GetItems(ctx, orderID)
		if err != nil {
			return err
		}
		present := make(map[uuid.UUID]bool, len(existing))
		for _, it := range existing {
			present[it.LabTestID] = true
		}

		resolved, added, err := s.resolver.ResolveItems(ctx, pricing.Input{
			TestIDs:        in.TestIDs,
			ProfileIDs:     in.ProfileIDs,
			Adjustments:    in.Adjustments,
			CanAdjustPrice: in.CanAdjustPrice,
		})
		if err != nil {
			return err
		}

		fresh := resolved[:0]
		for _, ri := range resolved {
			if present[ri.TestID] {
				added = money.Round2(added - ri.PriceApplied)
				continue
			}
			fresh = append(fresh, ri)
		}
		if len(fresh) == 0 {
			return apperr.New(apperr.ValidationFailed, "every requested test is already on the order")
		}

		items, err := s.buildItems(ctx, fresh)
		if err != nil {
			return err
		}
		for i, it := range items {
			it.Position = len(existing) + i + 1
		}
		newTotal := money.Round2(order.TotalPrice + added)
		if err := s.repo.AppendItems(ctx, orderID, items, newTotal); err != nil {
			return err
		}

		order.TotalPrice = newTotal
		detail = &OrderDetail{LabOrder: *order, Items: append(existing, items...)}
		return nil
	})
	return detail, err
}

// transitions lists the legal forward moves for each order status.
var transitions = map[string][]string{
	StatusPendiente:  {StatusEnProceso, StatusCompletado, StatusAnulado},
	StatusEnProceso:  {StatusCompletado, StatusAnulado},
	StatusCompletado: {StatusEntregado, StatusAnulado},
	StatusEntregado:  {},
	StatusAnulado:    {},
}

// AdvanceStatus moves the order along its lifecycle. Moving to ENTREGADO
// stamps the delivery time.
func (s *Service) AdvanceStatus(ctx context.Context, id uuid.UUID, status string) (*LabOrder, error) {
	if !validStatuses[status] {
		return nil, apperr.New(apperr.ValidationFailed, "unknown order status %q", status)
	}

	order, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	allowed := false
	for _, next := range transitions[order.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apperr.New(apperr.InvalidState, "order cannot move from %s to %s", order.Status, status)
	}

	var deliveredAt *time.Time
	if status == StatusEntregado {
		now := s.now()
		deliveredAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, id, status, deliveredAt); err != nil {
		return nil, err
	}
	order.Status = status
	if deliveredAt != nil {
		order.DeliveredAt = deliveredAt
	}
	return order, nil
}

// MarkDelivered is shorthand for the ENTREGADO transition.
func (s *Service) MarkDelivered(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	return s.AdvanceStatus(ctx, id, StatusEntregado)
}

// Annul voids the order. Delivered orders cannot be annulled.
func (s *Service) Annul(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	return s.AdvanceStatus(ctx, id, StatusAnulado)
}

// UpdateItemTemplateSnapshot overwrites one item's frozen template with the
// supplied fields, keeping everything the update leaves out.
func (s *Service) UpdateItemTemplateSnapshot(ctx context.Context, orderID, itemID uuid.UUID, upd SnapshotUpdate) (*LabOrderItem, error) {
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OrderID != orderID {
		return nil, apperr.New(apperr.NotFound, "order item %s not found", itemID)
	}

	merged := MergeSnapshot(item.TemplateSnapshot, upd)
	if err := s.repo.UpdateItemSnapshot(ctx, itemID, merged); err != nil {
		return nil, err
	}
	item.TemplateSnapshot = merged
	return item, nil
}

// Delete removes the order and its items. When the order came from an
// admission request, the request reverts to PENDIENTE and drops its
// reference, in the same transaction.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if order.AdmissionRequestID != nil && s.reverter != nil {
			if err := s.reverter.RevertConversion(ctx, *order.AdmissionRequestID); err != nil {
				return err
			}
		}
		return s.repo.Delete(ctx, id)
	})
}
