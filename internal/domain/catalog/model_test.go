package catalog

import (
	"testing"
	"time"
)

func TestLabTestAvailable(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		test LabTest
		want bool
	}{
		{"active", LabTest{Active: true}, true},
		{"inactive", LabTest{Active: false}, false},
		{"soft-deleted", LabTest{Active: true, DeletedAt: &now}, false},
	}
	for _, tc := range cases {
		if got := tc.test.Available(); got != tc.want {
			t.Errorf("%s: Available = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEffectiveConventionPrice(t *testing.T) {
	conv := 35.0
	withConv := LabTest{Price: 45.0, ConventionPrice: &conv}
	if got := withConv.EffectiveConventionPrice(); got != 35.0 {
		t.Errorf("with convention price: got %v", got)
	}

	withoutConv := LabTest{Price: 45.0}
	if got := withoutConv.EffectiveConventionPrice(); got != 45.0 {
		t.Errorf("fallback to public price: got %v", got)
	}
}
