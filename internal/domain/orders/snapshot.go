package orders

import (
	"github.com/google/uuid"

	"github.com/labsys/lis/internal/domain/catalog"
)

// TemplateSnapshot is the frozen copy of a test's result template carried by
// an order item. It is fully self-contained: plain values, no live references
// to catalog rows, so later template edits never rewrite placed orders.
type TemplateSnapshot struct {
	Title      string          `json:"title"`
	Notes      *string         `json:"notes,omitempty"`
	Parameters []SnapshotParam `json:"parameters,omitempty"`
}

// SnapshotParam is one frozen template parameter.
type SnapshotParam struct {
	ParamID       uuid.UUID         `json:"param_id"`
	Group         *string           `json:"group,omitempty"`
	Name          string            `json:"name"`
	Unit          *string           `json:"unit,omitempty"`
	ReferenceText *string           `json:"reference_text,omitempty"`
	RefMin        *float64          `json:"ref_min,omitempty"`
	RefMax        *float64          `json:"ref_max,omitempty"`
	ValueType     string            `json:"value_type"`
	Options       []string          `json:"options,omitempty"`
	Position      int               `json:"position"`
	Variants      []SnapshotVariant `json:"variants,omitempty"`
}

// SnapshotVariant is a frozen age/sex reference-range variant.
type SnapshotVariant struct {
	Sex           *string  `json:"sex,omitempty"`
	AgeMinMonths  *int     `json:"age_min_months,omitempty"`
	AgeMaxMonths  *int     `json:"age_max_months,omitempty"`
	RefMin        *float64 `json:"ref_min,omitempty"`
	RefMax        *float64 `json:"ref_max,omitempty"`
	ReferenceText *string  `json:"reference_text,omitempty"`
}

// BuildTemplateSnapshot freezes a test's current result template. A test
// without a template yields nil, not an empty snapshot.
func BuildTemplateSnapshot(t *catalog.ResultTemplate) *TemplateSnapshot {
	if t == nil {
		return nil
	}

	snap := &TemplateSnapshot{
		Title: t.Title,
		Notes: copyStr(t.Notes),
	}
	for _, p := range t.Parameters {
		sp := SnapshotParam{
			ParamID:       p.ID,
			Group:         copyStr(p.Group),
			Name:          p.Name,
			Unit:          copyStr(p.Unit),
			ReferenceText: copyStr(p.ReferenceText),
			RefMin:        copyFloat(p.RefMin),
			RefMax:        copyFloat(p.RefMax),
			ValueType:     p.ValueType,
			Options:       append([]string(nil), p.Options...),
			Position:      p.Position,
		}
		for _, v := range p.Variants {
			sp.Variants = append(sp.Variants, SnapshotVariant{
				Sex:           copyStr(v.Sex),
				AgeMinMonths:  copyInt(v.AgeMinMonths),
				AgeMaxMonths:  copyInt(v.AgeMaxMonths),
				RefMin:        copyFloat(v.RefMin),
				RefMax:        copyFloat(v.RefMax),
				ReferenceText: copyStr(v.ReferenceText),
			})
		}
		snap.Parameters = append(snap.Parameters, sp)
	}
	return snap
}

// SnapshotUpdate is a partial overwrite of a single item's snapshot, used
// when an operator manually adjusts a patient's result form. Absent fields
// keep the previous snapshot's values.
type SnapshotUpdate struct {
	Title      *string         `json:"title,omitempty"`
	Notes      *string         `json:"notes,omitempty"`
	Parameters []SnapshotParam `json:"parameters,omitempty"`
}

// MergeSnapshot applies an update on top of the previous snapshot. The
// previous snapshot may be nil (test had no template at order time); the
// update then stands alone.
func MergeSnapshot(prev *TemplateSnapshot, upd SnapshotUpdate) *TemplateSnapshot {
	out := &TemplateSnapshot{}
	if prev != nil {
		out.Title = prev.Title
		out.Notes = copyStr(prev.Notes)
		out.Parameters = prev.Parameters
	}
	if upd.Title != nil {
		out.Title = *upd.Title
	}
	if upd.Notes != nil {
		out.Notes = copyStr(upd.Notes)
	}
	if upd.Parameters != nil {
		out.Parameters = upd.Parameters
	}
	return out
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func copyInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
