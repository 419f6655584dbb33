// Package pricing computes per-item price snapshots for admission requests
// and lab orders. Bundles are resolved before individual tests, a test never
// gets priced twice, and any effective change from the catalog price requires
// the price-adjustment capability.
package pricing

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/labsys/lis/internal/domain/catalog"
	"github.com/labsys/lis/internal/platform/apperr"
	"github.com/labsys/lis/pkg/money"
)

// Adjustment overrides the applied price of one test.
type Adjustment struct {
	TestID uuid.UUID `json:"test_id"`
	Price  float64   `json:"price"`
	Reason string    `json:"reason,omitempty"`
}

// ResolvedItem is one priced line, ready to become an admission request item
// or an order item.
type ResolvedItem struct {
	TestID           uuid.UUID
	TestName         string
	Position         int
	PriceBase        float64
	PriceApplied     float64
	AdjustmentReason *string
	// ConventionPrice is the admission-facing price snapshot; nil for
	// lab-originated pricing.
	ConventionPrice *float64
	// ExternalCost and ReferredLabID are set when the test is routed to an
	// external laboratory.
	ExternalCost  *float64
	ReferredLabID *uuid.UUID
	// ProfileID/ProfileName attribute the item to the bundle that priced it.
	ProfileID   *uuid.UUID
	ProfileName *string
}

// Input bundles the arguments of a resolution.
type Input struct {
	TestIDs     []uuid.UUID
	ProfileIDs  []uuid.UUID
	Adjustments []Adjustment
	// CanAdjustPrice is the caller's pre-checked capability; consulted only
	// when an adjustment effectively changes a price.
	CanAdjustPrice bool
	// AdmissionSourced enables convention-price snapshots.
	AdmissionSourced bool
}

// Resolver prices tests and bundles against the current catalog.
type Resolver struct {
	catalog catalog.Repository
}

func NewResolver(cat catalog.Repository) *Resolver {
	return &Resolver{catalog: cat}
}

// ResolveItems resolves the requested tests and profiles into priced items and
// the resulting total. Resolution fails with ValidationFailed when nothing
// prices (all requested entries inactive or unknown) and with
// PermissionDenied when an adjustment changes a price without authorization.
func (r *Resolver) ResolveItems(ctx context.Context, in Input) ([]ResolvedItem, float64, error) {
	adjustments := make(map[uuid.UUID]Adjustment, len(in.Adjustments))
	for _, a := range in.Adjustments {
		adjustments[a.TestID] = a
	}

	var items []ResolvedItem
	covered := make(map[uuid.UUID]bool)

	// Bundles first: a test requested both individually and via a bundle is
	// priced once, as a bundle member.
	profiles, err := r.catalog.GetProfiles(ctx, in.ProfileIDs)
	if err != nil {
		return nil, 0, err
	}
	for _, p := range profiles {
		if !p.Available() {
			continue
		}
		members, err := r.catalog.GetProfileMembers(ctx, p.ID)
		if err != nil {
			return nil, 0, err
		}
		if len(members) == 0 {
			continue
		}

		shares := memberShares(p, members)
		for i, m := range members {
			if covered[m.ID] {
				continue
			}
			covered[m.ID] = true
			profileID, profileName := p.ID, p.Name
			items = append(items, newItem(m, shares[i], in.AdmissionSourced, &profileID, &profileName))
		}
	}

	// Then individually requested tests not already covered.
	tests, err := r.catalog.GetTests(ctx, in.TestIDs)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[uuid.UUID]*catalog.LabTest, len(tests))
	for _, t := range tests {
		byID[t.ID] = t
	}
	for _, id := range in.TestIDs {
		t, ok := byID[id]
		if !ok || !t.Available() || covered[id] {
			continue
		}
		covered[id] = true
		items = append(items, newItem(t, t.Price, in.AdmissionSourced, nil, nil))
	}

	if len(items) == 0 {
		return nil, 0, apperr.New(apperr.ValidationFailed, "no valid tests to price")
	}

	// Apply adjustments. The authoritative permission test is whether the
	// applied price effectively differs from the base, not whether an
	// adjustment object was supplied.
	total := 0.0
	for i := range items {
		if adj, ok := adjustments[items[i].TestID]; ok {
			if !money.Equal(adj.Price, items[i].PriceBase) && !in.CanAdjustPrice {
				return nil, 0, apperr.New(apperr.PermissionDenied,
					"adjusting the price of %s requires the price-adjustment capability", items[i].TestName)
			}
			items[i].PriceApplied = money.Round2(adj.Price)
			if adj.Reason != "" {
				reason := adj.Reason
				items[i].AdjustmentReason = &reason
			}
		}
		items[i].Position = i + 1
		total += items[i].PriceApplied
	}

	return items, money.Round2(total), nil
}

// memberShares splits a bundle's package price evenly across its members; the
// last member absorbs the rounding remainder so the shares always sum to the
// package price exactly. Without a package price each member keeps its
// catalog price.
func memberShares(p *catalog.TestProfile, members []*catalog.LabTest) []float64 {
	shares := make([]float64, len(members))
	if p.PackagePrice == nil {
		for i, m := range members {
			shares[i] = m.Price
		}
		return shares
	}

	pkg := money.Round2(*p.PackagePrice)
	base := math.Floor(pkg/float64(len(members))*100) / 100
	allocated := 0.0
	for i := range members {
		if i == len(members)-1 {
			shares[i] = money.Round2(pkg - allocated)
			break
		}
		shares[i] = base
		allocated = money.Round2(allocated + base)
	}
	return shares
}

func newItem(t *catalog.LabTest, priceBase float64, admissionSourced bool, profileID *uuid.UUID, profileName *string) ResolvedItem {
	item := ResolvedItem{
		TestID:       t.ID,
		TestName:     t.Name,
		PriceBase:    money.Round2(priceBase),
		PriceApplied: money.Round2(priceBase),
		ProfileID:    profileID,
		ProfileName:  profileName,
	}
	if admissionSourced {
		conv := money.Round2(t.EffectiveConventionPrice())
		item.ConventionPrice = &conv
	}
	if t.IsReferred {
		if t.ExternalCost != nil {
			cost := money.Round2(*t.ExternalCost)
			item.ExternalCost = &cost
		}
		item.ReferredLabID = t.DefaultReferredLabID
	}
	return item
}
