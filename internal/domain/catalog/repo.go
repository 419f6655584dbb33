package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the read-only catalog surface the conversion and pricing
// components depend on.
type Repository interface {
	// GetTests returns the requested tests regardless of availability, so
	// callers can name a test that has since been retired.
	GetTests(ctx context.Context, ids []uuid.UUID) ([]*LabTest, error)
	ListTests(ctx context.Context, limit, offset int) ([]*LabTest, int, error)
	GetProfiles(ctx context.Context, ids []uuid.UUID) ([]*TestProfile, error)
	ListProfiles(ctx context.Context, limit, offset int) ([]*TestProfile, int, error)
	// GetProfileMembers returns the available member tests of a profile in
	// display order.
	GetProfileMembers(ctx context.Context, profileID uuid.UUID) ([]*LabTest, error)
	// GetTemplateForTest returns the test's current result template with all
	// parameters, or (nil, nil) when the test has none.
	GetTemplateForTest(ctx context.Context, testID uuid.UUID) (*ResultTemplate, error)
	GetReferredLab(ctx context.Context, id uuid.UUID) (*ReferredLab, error)
}
