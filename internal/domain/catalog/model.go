package catalog

import (
	"time"

	"github.com/google/uuid"
)

// LabTest maps to the lab_tests table. The conversion engine and pricing
// resolver only ever read these rows; catalog maintenance lives elsewhere.
type LabTest struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	Code                 string     `db:"code" json:"code"`
	Name                 string     `db:"name" json:"name"`
	SectionID            *uuid.UUID `db:"section_id" json:"section_id,omitempty"`
	Price                float64    `db:"price" json:"price"`
	ConventionPrice      *float64   `db:"convention_price" json:"convention_price,omitempty"`
	IsReferred           bool       `db:"is_referred" json:"is_referred"`
	DefaultReferredLabID *uuid.UUID `db:"default_referred_lab_id" json:"default_referred_lab_id,omitempty"`
	ExternalCost         *float64   `db:"external_cost" json:"external_cost,omitempty"`
	Active               bool       `db:"active" json:"active"`
	DeletedAt            *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
}

// Available reports whether the test can still be ordered.
func (t *LabTest) Available() bool {
	return t.Active && t.DeletedAt == nil
}

// EffectiveConventionPrice resolves the admission-facing price, falling back
// to the public price when no convention price is configured.
func (t *LabTest) EffectiveConventionPrice() float64 {
	if t.ConventionPrice != nil {
		return *t.ConventionPrice
	}
	return t.Price
}

// TestProfile maps to the test_profiles table (a bundle of tests sold
// together, optionally at a package price).
type TestProfile struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	PackagePrice *float64   `db:"package_price" json:"package_price,omitempty"`
	Active       bool       `db:"active" json:"active"`
	DeletedAt    *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// Available reports whether the profile can still be ordered.
func (p *TestProfile) Available() bool {
	return p.Active && p.DeletedAt == nil
}

// ReferredLab maps to the referred_labs table.
type ReferredLab struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ResultTemplate is a test's current result-entry form definition. Orders
// never reference these rows directly; they carry a frozen snapshot instead.
type ResultTemplate struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	LabTestID  uuid.UUID       `db:"lab_test_id" json:"lab_test_id"`
	Title      string          `db:"title" json:"title"`
	Notes      *string         `db:"notes" json:"notes,omitempty"`
	Parameters []TemplateParam `json:"parameters"`
}

// TemplateParam is one entry line of a result template.
type TemplateParam struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	Group         *string        `db:"param_group" json:"group,omitempty"`
	Name          string         `db:"name" json:"name"`
	Unit          *string        `db:"unit" json:"unit,omitempty"`
	ReferenceText *string        `db:"reference_text" json:"reference_text,omitempty"`
	RefMin        *float64       `db:"ref_min" json:"ref_min,omitempty"`
	RefMax        *float64       `db:"ref_max" json:"ref_max,omitempty"`
	ValueType     string         `db:"value_type" json:"value_type"`
	Options       []string       `db:"options" json:"options,omitempty"`
	Position      int            `db:"position" json:"position"`
	Variants      []ParamVariant `db:"variants" json:"variants,omitempty"`
}

// ParamVariant is an age/sex-specific reference-range override.
type ParamVariant struct {
	Sex           *string  `json:"sex,omitempty"`
	AgeMinMonths  *int     `json:"age_min_months,omitempty"`
	AgeMaxMonths  *int     `json:"age_max_months,omitempty"`
	RefMin        *float64 `json:"ref_min,omitempty"`
	RefMax        *float64 `json:"ref_max,omitempty"`
	ReferenceText *string  `json:"reference_text,omitempty"`
}
