package admission

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/labsys/lis/internal/domain/catalog"
	"github.com/labsys/lis/internal/domain/codes"
	"github.com/labsys/lis/internal/domain/orders"
	"github.com/labsys/lis/internal/domain/pricing"
	"github.com/labsys/lis/internal/platform/apperr"
	"github.com/labsys/lis/internal/platform/db"
	"github.com/labsys/lis/internal/platform/notification"
	"github.com/labsys/lis/pkg/money"
)

// Service owns the admission request lifecycle and the conversion engine
// that turns a PENDIENTE request into a lab order.
type Service struct {
	repo     Repository
	orders   orders.Repository
	catalog  catalog.Repository
	resolver *pricing.Resolver
	tx       db.Transactor
	notifier notification.Notifier
	loc      *time.Location
	now      func() time.Time
}

func NewService(repo Repository, ordersRepo orders.Repository, cat catalog.Repository,
	resolver *pricing.Resolver, tx db.Transactor, notifier notification.Notifier, loc *time.Location) *Service {
	return &Service{
		repo:     repo,
		orders:   ordersRepo,
		catalog:  cat,
		resolver: resolver,
		tx:       tx,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
	}
}

// RevertConversion implements the reverter hook the order domain calls when
// an admission-sourced order is deleted.
func (s *Service) RevertConversion(ctx context.Context, requestID uuid.UUID) error {
	return s.repo.RevertConversion(ctx, requestID)
}

// CreateInput carries a new admission request.
type CreateInput struct {
	PatientID   uuid.UUID            `json:"patient_id"`
	TestIDs     []uuid.UUID          `json:"test_ids"`
	ProfileIDs  []uuid.UUID          `json:"profile_ids"`
	Adjustments []pricing.Adjustment `json:"adjustments"`
	BranchID    *uuid.UUID           `json:"branch_id"`
	RequestedBy *string              `json:"requested_by"`
	Notes       *string              `json:"notes"`
	PatientType *string              `json:"patient_type"`
	CreatedByID    *uuid.UUID
	CanAdjustPrice bool
}

// RequestDetail is a request with its items.
type RequestDetail struct {
	AdmissionRequest
	Items []*AdmissionRequestItem `json:"items"`
}

// ConversionResult identifies the order a conversion produced.
type ConversionResult struct {
	OrderID   uuid.UUID `json:"order_id"`
	OrderCode string    `json:"order_code"`
}

// CreateResult is a created request plus the outcome of the automatic
// conversion attempt. A failed auto-conversion leaves the request PENDIENTE
// and reports the reason as a warning, never as a creation failure.
type CreateResult struct {
	RequestDetail
	Order             *ConversionResult `json:"order,omitempty"`
	ConversionWarning *string           `json:"conversion_warning,omitempty"`
}

// Create prices and persists a PENDIENTE admission request, then immediately
// attempts to convert it.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
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

	req := &AdmissionRequest{
		ID:          uuid.New(),
		PatientID:   in.PatientID,
		Status:      StatusPendiente,
		TotalPrice:  total,
		BranchID:    in.BranchID,
		RequestedBy: in.RequestedBy,
		Notes:       in.Notes,
		PatientType: in.PatientType,
		CreatedByID: in.CreatedByID,
		CreatedAt:   s.now(),
	}
	items := make([]*AdmissionRequestItem, 0, len(resolved))
	for _, ri := range resolved {
		items = append(items, &AdmissionRequestItem{
			ID:               uuid.New(),
			RequestID:        req.ID,
			LabTestID:        ri.TestID,
			Position:         ri.Position,
			PriceBase:        ri.PriceBase,
			PriceApplied:     ri.PriceApplied,
			AdjustmentReason: ri.AdjustmentReason,
		})
	}

	if err := s.insertWithCode(ctx, req, items); err != nil {
		return nil, err
	}

	result := &CreateResult{RequestDetail: RequestDetail{AdmissionRequest: *req, Items: items}}

	// Best-effort auto-conversion. The request is already durably PENDIENTE;
	// a conversion failure is reported as a warning and retried later by an
	// operator.
	conv, err := s.Convert(ctx, req.ID)
	if err != nil {
		warning := err.Error()
		result.ConversionWarning = &warning
		return result, nil
	}
	result.Order = conv
	result.Status = StatusConvertida
	result.ConvertedOrderID = &conv.OrderID
	return result, nil
}

func (s *Service) insertWithCode(ctx context.Context, req *AdmissionRequest, items []*AdmissionRequestItem) error {
	prefix := codes.DayPrefix(codes.AdmissionKind, req.CreatedAt, s.loc)

	for attempt := 0; attempt < codes.MaxAttempts; attempt++ {
		err := s.tx.InTx(ctx, func(ctx context.Context) error {
			existing, err := s.repo.ListCodesByPrefix(ctx, prefix)
			if err != nil {
				return err
			}
			req.RequestCode = codes.Next(prefix, existing)
			return s.repo.Create(ctx, req, items)
		})
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err, "admission_requests_request_code_key") {
			return err
		}
	}
	return apperr.New(apperr.AlreadyProcessed, "could not allocate a request code after %d attempts", codes.MaxAttempts)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*RequestDetail, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RequestDetail{AdmissionRequest: *req, Items: items}, nil
}

// List returns a page of requests; a non-empty day narrows via the code
// prefix in the clinic's zone.
func (s *Service) List(ctx context.Context, filter ListFilter, day string, limit, offset int) ([]*AdmissionRequest, int, error) {
	if day != "" {
		d, err := time.ParseInLocation("2006-01-02", day, s.loc)
		if err != nil {
			return nil, 0, apperr.New(apperr.ValidationFailed, "invalid day %q, want YYYY-MM-DD", day)
		}
		filter.CodePrefix = codes.DayPrefix(codes.AdmissionKind, d, s.loc)
	}
	return s.repo.List(ctx, filter, limit, offset)
}

// UpdateInput carries a partial edit of a PENDIENTE request.
type UpdateInput struct {
	RequestedBy *string    `json:"requested_by"`
	Notes       *string    `json:"notes"`
	PatientType *string    `json:"patient_type"`
	BranchID    *uuid.UUID `json:"branch_id"`
	// Status may only move to CANCELADA through this path.
	Status      *string              `json:"status"`
	Adjustments []pricing.Adjustment `json:"adjustments"`
	CanAdjustPrice bool
}

// Update edits a request while it is still PENDIENTE. Price adjustments are
// re-validated against the adjustment capability exactly as at creation.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*RequestDetail, error) {
	var detail *RequestDetail
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		req, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPendiente {
			return apperr.New(apperr.InvalidState, "admission request %s is %s and cannot be edited", req.RequestCode, req.Status)
		}

		if in.RequestedBy != nil {
			req.RequestedBy = in.RequestedBy
		}
		if in.Notes != nil {
			req.Notes = in.Notes
		}
		if in.PatientType != nil {
			req.PatientType = in.PatientType
		}
		if in.BranchID != nil {
			req.BranchID = in.BranchID
		}
		if in.Status != nil {
			if *in.Status != StatusCancelada {
				return apperr.New(apperr.ValidationFailed, "status may only change to %s", StatusCancelada)
			}
			req.Status = StatusCancelada
		}

		items, err := s.repo.GetItems(ctx, id)
		if err != nil {
			return err
		}
		if len(in.Adjustments) > 0 {
			byTest := make(map[uuid.UUID]*AdmissionRequestItem, len(items))
			for _, it := range items {
				byTest[it.LabTestID] = it
			}
			for _, adj := range in.Adjustments {
				it, ok := byTest[adj.TestID]
				if !ok {
					return apperr.New(apperr.ValidationFailed, "test %s is not on the request", adj.TestID)
				}
				if !money.Equal(adj.Price, it.PriceBase) && !in.CanAdjustPrice {
					return apperr.New(apperr.PermissionDenied,
						"adjusting the price of test %s requires the price-adjustment capability", adj.TestID)
				}
				it.PriceApplied = money.Round2(adj.Price)
				if adj.Reason != "" {
					reason := adj.Reason
					it.AdjustmentReason = &reason
				} else {
					it.AdjustmentReason = nil
				}
			}
			total := 0.0
			for _, it := range items {
				total += it.PriceApplied
			}
			req.TotalPrice = money.Round2(total)
			if err := s.repo.UpdateItemPrices(ctx, id, items, req.TotalPrice); err != nil {
				return err
			}
		}

		if err := s.repo.UpdateHeader(ctx, req); err != nil {
			return err
		}
		detail = &RequestDetail{AdmissionRequest: *req, Items: items}
		return nil
	})
	return detail, err
}

// Cancel moves a PENDIENTE request to CANCELADA.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*AdmissionRequest, error) {
	var req *AdmissionRequest
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPendiente {
			return apperr.New(apperr.InvalidState, "admission request %s is %s and cannot be cancelled", req.RequestCode, req.Status)
		}
		req.Status = StatusCancelada
		return s.repo.UpdateHeader(ctx, req)
	})
	return req, err
}

// Purge hard-deletes a request regardless of state. A linked converted order
// survives with its back-reference cleared.
func (s *Service) Purge(ctx context.Context, id uuid.UUID) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		req, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if req.ConvertedOrderID != nil {
			if err := s.orders.ClearAdmissionRef(ctx, *req.ConvertedOrderID); err != nil {
				return err
			}
		}
		return s.repo.Delete(ctx, id)
	})
}

// Convert turns a PENDIENTE request into a lab order: one transaction creates
// the order with frozen price and template snapshots and flips the request to
// CONVERTIDA. A code collision re-runs the whole transaction, up to the
// sequencer's retry budget.
func (s *Service) Convert(ctx context.Context, id uuid.UUID) (*ConversionResult, error) {
	for attempt := 0; attempt < codes.MaxAttempts; attempt++ {
		res, ev, err := s.convertOnce(ctx, id)
		if err == nil {
			s.notifier.AdmissionConverted(ctx, *ev)
			return res, nil
		}
		if db.IsUniqueViolation(err, "lab_orders_order_code_key") {
			continue
		}
		if db.IsUniqueViolation(err, "lab_orders_admission_request_id_key") {
			// A concurrent conversion won the race.
			return nil, apperr.New(apperr.AlreadyProcessed, "admission request %s is already converted", id)
		}
		return nil, err
	}
	return nil, apperr.New(apperr.AlreadyProcessed, "could not allocate an order code after %d attempts", codes.MaxAttempts)
}

func (s *Service) convertOnce(ctx context.Context, id uuid.UUID) (*ConversionResult, *notification.ConversionEvent, error) {
	var (
		res ConversionResult
		ev  notification.ConversionEvent
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		req, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if req.Status == StatusConvertida || req.ConvertedOrderID != nil {
			if existing, lookErr := s.orders.GetByAdmissionRequest(ctx, id); lookErr == nil {
				return apperr.New(apperr.AlreadyProcessed,
					"admission request %s is already converted to order %s", req.RequestCode, existing.OrderCode)
			}
			return apperr.New(apperr.AlreadyProcessed, "admission request %s is already converted", req.RequestCode)
		}
		if req.Status != StatusPendiente {
			return apperr.New(apperr.InvalidState, "admission request %s is %s and cannot be converted", req.RequestCode, req.Status)
		}

		items, err := s.repo.GetItems(ctx, id)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return apperr.New(apperr.ValidationFailed, "admission request %s has no items", req.RequestCode)
		}

		testIDs := make([]uuid.UUID, 0, len(items))
		for _, it := range items {
			testIDs = append(testIDs, it.LabTestID)
		}
		tests, err := s.catalog.GetTests(ctx, testIDs)
		if err != nil {
			return err
		}
		byID := make(map[uuid.UUID]*catalog.LabTest, len(tests))
		for _, t := range tests {
			byID[t.ID] = t
		}

		orderItems := make([]*orders.LabOrderItem, 0, len(items))
		total := 0.0
		for _, it := range items {
			test, ok := byID[it.LabTestID]
			if !ok {
				return apperr.New(apperr.ReferenceUnavailable, "analysis %s is no longer available", it.LabTestID)
			}
			if !test.Available() {
				return apperr.New(apperr.ReferenceUnavailable, "analysis %q is no longer available", test.Name)
			}

			tmpl, err := s.catalog.GetTemplateForTest(ctx, test.ID)
			if err != nil {
				return err
			}
			conv := money.Round2(test.EffectiveConventionPrice())
			oi := &orders.LabOrderItem{
				ID:                      uuid.New(),
				LabTestID:               test.ID,
				Position:                it.Position,
				PriceSnapshot:           it.PriceApplied,
				PriceConventionSnapshot: &conv,
				TemplateSnapshot:        orders.BuildTemplateSnapshot(tmpl),
				Status:                  orders.ItemPendiente,
			}
			if test.IsReferred {
				oi.ReferredLabID = test.DefaultReferredLabID
				if test.ExternalCost != nil {
					cost := money.Round2(*test.ExternalCost)
					oi.ExternalLabCostSnapshot = &cost
				}
			}
			orderItems = append(orderItems, oi)
			total += it.PriceApplied
		}

		now := s.now()
		prefix := codes.DayPrefix(codes.OrderKind, now, s.loc)
		existing, err := s.orders.ListCodesByPrefix(ctx, prefix)
		if err != nil {
			return err
		}

		order := &orders.LabOrder{
			ID:                 uuid.New(),
			OrderCode:          codes.Next(prefix, existing),
			PatientID:          req.PatientID,
			Status:             orders.StatusPendiente,
			TotalPrice:         money.Round2(total),
			OrderSource:        orders.SourceAdmision,
			AdmissionRequestID: &req.ID,
			BranchID:           req.BranchID,
			CreatedByID:        req.CreatedByID,
			CreatedAt:          now,
		}
		if err := s.orders.Create(ctx, order, orderItems); err != nil {
			return err
		}

		ok, err := s.repo.MarkConverted(ctx, req.ID, order.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.AlreadyProcessed, "admission request %s is already converted", req.RequestCode)
		}

		res = ConversionResult{OrderID: order.ID, OrderCode: order.OrderCode}
		ev = notification.ConversionEvent{
			AdmissionRequestID: req.ID,
			RequestCode:        req.RequestCode,
			OrderID:            order.ID,
			OrderCode:          order.OrderCode,
			PatientID:          req.PatientID,
			TotalPrice:         order.TotalPrice,
			ConvertedAt:        now,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &res, &ev, nil
}
