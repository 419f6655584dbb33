package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/labsys/lis/internal/domain/catalog"
	"github.com/labsys/lis/internal/platform/apperr"
	"github.com/labsys/lis/pkg/money"
)

type fakeCatalog struct {
	tests    map[uuid.UUID]*catalog.LabTest
	profiles map[uuid.UUID]*catalog.TestProfile
	members  map[uuid.UUID][]uuid.UUID
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		tests:    make(map[uuid.UUID]*catalog.LabTest),
		profiles: make(map[uuid.UUID]*catalog.TestProfile),
		members:  make(map[uuid.UUID][]uuid.UUID),
	}
}

func (f *fakeCatalog) addTest(name string, price float64) *catalog.LabTest {
	t := &catalog.LabTest{ID: uuid.New(), Code: name, Name: name, Price: price, Active: true}
	f.tests[t.ID] = t
	return t
}

func (f *fakeCatalog) GetTests(_ context.Context, ids []uuid.UUID) ([]*catalog.LabTest, error) {
	var out []*catalog.LabTest
	for _, id := range ids {
		if t, ok := f.tests[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListTests(_ context.Context, limit, offset int) ([]*catalog.LabTest, int, error) {
	return nil, 0, nil
}

func (f *fakeCatalog) GetProfiles(_ context.Context, ids []uuid.UUID) ([]*catalog.TestProfile, error) {
	var out []*catalog.TestProfile
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListProfiles(_ context.Context, limit, offset int) ([]*catalog.TestProfile, int, error) {
	return nil, 0, nil
}

func (f *fakeCatalog) GetProfileMembers(_ context.Context, profileID uuid.UUID) ([]*catalog.LabTest, error) {
	var out []*catalog.LabTest
	for _, id := range f.members[profileID] {
		if t, ok := f.tests[id]; ok && t.Available() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetTemplateForTest(_ context.Context, testID uuid.UUID) (*catalog.ResultTemplate, error) {
	return nil, nil
}

func (f *fakeCatalog) GetReferredLab(_ context.Context, id uuid.UUID) (*catalog.ReferredLab, error) {
	return nil, apperr.New(apperr.NotFound, "referred lab %s not found", id)
}

func TestResolveIndividualTests(t *testing.T) {
	cat := newFakeCatalog()
	a := cat.addTest("Glucose", 45.00)
	b := cat.addTest("Urea", 30.00)
	r := NewResolver(cat)

	items, total, err := r.ResolveItems(context.Background(), Input{TestIDs: []uuid.UUID{a.ID, b.ID}})
	if err != nil {
		t.Fatalf("ResolveItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if total != 75.00 {
		t.Errorf("total = %v, want 75.00", total)
	}
	if items[0].Position != 1 || items[1].Position != 2 {
		t.Errorf("positions = %d, %d", items[0].Position, items[1].Position)
	}
	if items[0].PriceBase != items[0].PriceApplied {
		t.Error("unadjusted item should apply its base price")
	}
}

func TestResolveBundleSplitsPackagePrice(t *testing.T) {
	cat := newFakeCatalog()
	a := cat.addTest("TSH", 40.00)
	b := cat.addTest("T3", 40.00)
	c := cat.addTest("T4", 40.00)
	pkg := 100.00
	profile := &catalog.TestProfile{ID: uuid.New(), Name: "Thyroid panel", PackagePrice: &pkg, Active: true}
	cat.profiles[profile.ID] = profile
	cat.members[profile.ID] = []uuid.UUID{a.ID, b.ID, c.ID}

	r := NewResolver(cat)
	items, total, err := r.ResolveItems(context.Background(), Input{ProfileIDs: []uuid.UUID{profile.ID}})
	if err != nil {
		t.Fatalf("ResolveItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if total != 100.00 {
		t.Errorf("total = %v, want the package price exactly", total)
	}
	// 100/3 = 33.33 + 33.33 + 33.34
	if items[0].PriceBase != 33.33 || items[1].PriceBase != 33.33 || items[2].PriceBase != 33.34 {
		t.Errorf("shares = %v, %v, %v", items[0].PriceBase, items[1].PriceBase, items[2].PriceBase)
	}
	for _, it := range items {
		if it.ProfileID == nil || *it.ProfileID != profile.ID {
			t.Error("bundle member should carry profile attribution")
		}
	}
}

func TestResolveBundleWithoutPackagePriceUsesCatalogPrices(t *testing.T) {
	cat := newFakeCatalog()
	a := cat.addTest("Hemoglobin", 12.50)
	b := cat.addTest("Hematocrit", 10.00)
	profile := &catalog.TestProfile{ID: uuid.New(), Name: "CBC", Active: true}
	cat.profiles[profile.ID] = profile
	cat.members[profile.ID] = []uuid.UUID{a.ID, b.ID}

	r := NewResolver(cat)
	_, total, err := r.ResolveItems(context.Background(), Input{ProfileIDs: []uuid.UUID{profile.ID}})
	if err != nil {
		t.Fatalf("ResolveItems: %v", err)
	}
	if total != 22.50 {
		t.Errorf("total = %v, want 22.50", total)
	}
}

func TestResolveDeduplicatesBundleMember(t *testing.T) {
	cat := newFakeCatalog()
	a := cat.addTest("Glucose", 45.00)
	b := cat.addTest("Creatinine", 20.00)
	pkg := 50.00
	profile := &catalog.TestProfile{ID: uuid.New(), Name: "Basic panel", PackagePrice: &pkg, Active: true}
	cat.profiles[profile.ID] = profile
	cat.members[profile.ID] = []uuid.UUID{a.ID, b.ID}

	r := NewResolver(cat)
	// Glucose requested both individually and via the bundle.
	items, total, err := r.ResolveItems(context.Background(), Input{
		TestIDs:    []uuid.UUID{a.ID},
		ProfileIDs: []uuid.UUID{profile.ID},
	})
	if err != nil {
		t.Fatalf("ResolveItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2 (dedup)", len(items))
	}
	if total != 50.00 {
		t.Errorf("total = %v, want bundle price 50.00", total)
	}
}

func TestResolveAdjustmentRequiresCapability(t *testing.T) {
	cat := newFakeCatalog()
	a := cat.addTest("Glucose", 50.00)
	r := NewResolver(cat)

	_, _, err := r.ResolveItems(context.Background(), Input{
		TestIDs:     []uuid.UUID{a.ID},
		Adjustments: []Adjustment{{TestID: a.ID, Price: 35.00}},
	})
	if apperr.KindOf(err) != apperr.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}

	items, total, err := r.ResolveItems(context.Background(), Input{
		TestIDs:        []uuid.UUID{a.ID},
		Adjustments:    []Adjustment{{TestID: a.ID, Price: 35.00, Reason: "agreement"}},
		CanAdjustPrice: true,
	})
	if err != nil {
		t.Fatalf("authorized adjustment: %v", err)
	}
	if total != 35.00 || items[0].PriceApplied != 35.00 {
		t.Errorf("adjusted total = %v, applied = %v", total, items[0].PriceApplied)
	}
	if items[0].AdjustmentReason == nil || *items[0].AdjustmentReason != "agreement" {
		t.Error("adjustment reason should be carried")
	}
}

func TestResolveNoOpAdjustmentAllowedWithoutCapability(t *testing.T) {
	cat := newFakeCatalog()
	a := cat.addTest("Glucose", 50.00)
	r := NewResolver(cat)

	// An explicit adjustment equal (within epsilon) to the base price is not
	// an effective change and must not require the capability.
	_, total, err := r.ResolveItems(context.Background(), Input{
		TestIDs:     []uuid.UUID{a.ID},
		Adjustments: []Adjustment{{TestID: a.ID, Price: 50.00005}},
	})
	if err != nil {
		t.Fatalf("no-op adjustment rejected: %v", err)
	}
	if !money.Equal(total, 50.00) {
		t.Errorf("total = %v", total)
	}
}

func TestResolveNoValidTests(t *testing.T) {
	cat := newFakeCatalog()
	inactive := cat.addTest("Retired", 10.00)
	inactive.Active = false
	r := NewResolver(cat)

	for name, in := range map[string]Input{
		"empty input":     {},
		"unknown test":    {TestIDs: []uuid.UUID{uuid.New()}},
		"inactive test":   {TestIDs: []uuid.UUID{inactive.ID}},
		"unknown profile": {ProfileIDs: []uuid.UUID{uuid.New()}},
	} {
		_, _, err := r.ResolveItems(context.Background(), in)
		if apperr.KindOf(err) != apperr.ValidationFailed {
			t.Errorf("%s: expected ValidationFailed, got %v", name, err)
		}
	}
}

func TestResolveSoftDeletedTestSkipped(t *testing.T) {
	cat := newFakeCatalog()
	now := time.Now()
	gone := cat.addTest("Gone", 10.00)
	gone.DeletedAt = &now
	alive := cat.addTest("Alive", 20.00)
	r := NewResolver(cat)

	items, total, err := r.ResolveItems(context.Background(), Input{TestIDs: []uuid.UUID{gone.ID, alive.ID}})
	if err != nil {
		t.Fatalf("ResolveItems: %v", err)
	}
	if len(items) != 1 || items[0].TestID != alive.ID {
		t.Fatalf("expected only the available test, got %d items", len(items))
	}
	if total != 20.00 {
		t.Errorf("total = %v", total)
	}
}

func TestResolveAdmissionSourcedSnapshots(t *testing.T) {
	cat := newFakeCatalog()
	conv := 30.0
	cost := 18.0
	labID := uuid.New()
	ref := cat.addTest("Culture", 45.00)
	ref.ConventionPrice = &conv
	ref.IsReferred = true
	ref.ExternalCost = &cost
	ref.DefaultReferredLabID = &labID

	plain := cat.addTest("Glucose", 10.00)

	r := NewResolver(cat)
	items, _, err := r.ResolveItems(context.Background(), Input{
		TestIDs:          []uuid.UUID{ref.ID, plain.ID},
		AdmissionSourced: true,
	})
	if err != nil {
		t.Fatalf("ResolveItems: %v", err)
	}

	var got, other ResolvedItem
	for _, it := range items {
		if it.TestID == ref.ID {
			got = it
		} else {
			other = it
		}
	}
	if got.ConventionPrice == nil || *got.ConventionPrice != 30.00 {
		t.Errorf("convention price = %v", got.ConventionPrice)
	}
	if got.ExternalCost == nil || *got.ExternalCost != 18.00 {
		t.Errorf("external cost = %v", got.ExternalCost)
	}
	if got.ReferredLabID == nil || *got.ReferredLabID != labID {
		t.Errorf("referred lab = %v", got.ReferredLabID)
	}
	// Convention price falls back to the public price when unset.
	if other.ConventionPrice == nil || *other.ConventionPrice != 10.00 {
		t.Errorf("fallback convention price = %v", other.ConventionPrice)
	}
	if other.ExternalCost != nil || other.ReferredLabID != nil {
		t.Error("non-referred test should carry no external cost")
	}
}
