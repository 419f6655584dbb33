package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labsys/lis/internal/platform/apperr"
	"github.com/labsys/lis/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres-backed catalog repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const testCols = `id, code, name, section_id, price, convention_price,
	is_referred, default_referred_lab_id, external_cost, active, deleted_at, created_at`

func scanTest(row pgx.Row) (*LabTest, error) {
	var t LabTest
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.SectionID, &t.Price, &t.ConventionPrice,
		&t.IsReferred, &t.DefaultReferredLabID, &t.ExternalCost, &t.Active, &t.DeletedAt, &t.CreatedAt)
	return &t, err
}

func (r *repoPG) GetTests(ctx context.Context, ids []uuid.UUID) ([]*LabTest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+testCols+` FROM lab_tests WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()

	var tests []*LabTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

func (r *repoPG) ListTests(ctx context.Context, limit, offset int) ([]*LabTest, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM lab_tests WHERE active AND deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tests: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+testCols+` FROM lab_tests
		 WHERE active AND deleted_at IS NULL
		 ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list tests: %w", err)
	}
	defer rows.Close()

	var tests []*LabTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan test: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, total, rows.Err()
}

func (r *repoPG) GetProfiles(ctx context.Context, ids []uuid.UUID) ([]*TestProfile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, package_price, active, deleted_at, created_at
		 FROM test_profiles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*TestProfile
	for rows.Next() {
		var p TestProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.PackagePrice, &p.Active, &p.DeletedAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

func (r *repoPG) ListProfiles(ctx context.Context, limit, offset int) ([]*TestProfile, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM test_profiles WHERE active AND deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count profiles: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, package_price, active, deleted_at, created_at
		 FROM test_profiles WHERE active AND deleted_at IS NULL
		 ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*TestProfile
	for rows.Next() {
		var p TestProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.PackagePrice, &p.Active, &p.DeletedAt, &p.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, &p)
	}
	return profiles, total, rows.Err()
}

func (r *repoPG) GetProfileMembers(ctx context.Context, profileID uuid.UUID) ([]*LabTest, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT t.id, t.code, t.name, t.section_id, t.price, t.convention_price,
			t.is_referred, t.default_referred_lab_id, t.external_cost, t.active, t.deleted_at, t.created_at
		 FROM test_profile_members m
		 JOIN lab_tests t ON t.id = m.lab_test_id
		 WHERE m.profile_id = $1 AND t.active AND t.deleted_at IS NULL
		 ORDER BY m.position`, profileID)
	if err != nil {
		return nil, fmt.Errorf("query profile members: %w", err)
	}
	defer rows.Close()

	var tests []*LabTest
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile member: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

func (r *repoPG) GetTemplateForTest(ctx context.Context, testID uuid.UUID) (*ResultTemplate, error) {
	var t ResultTemplate
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, lab_test_id, title, notes FROM result_templates WHERE lab_test_id = $1`,
		testID).Scan(&t.ID, &t.LabTestID, &t.Title, &t.Notes)
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, param_group, name, unit, reference_text, ref_min, ref_max,
			value_type, options, position, variants
		 FROM template_params WHERE template_id = $1 ORDER BY position`, t.ID)
	if err != nil {
		return nil, fmt.Errorf("query template params: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p TemplateParam
		if err := rows.Scan(&p.ID, &p.Group, &p.Name, &p.Unit, &p.ReferenceText,
			&p.RefMin, &p.RefMax, &p.ValueType, &p.Options, &p.Position, &p.Variants); err != nil {
			return nil, fmt.Errorf("scan template param: %w", err)
		}
		t.Parameters = append(t.Parameters, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) GetReferredLab(ctx context.Context, id uuid.UUID) (*ReferredLab, error) {
	var l ReferredLab
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, active, created_at FROM referred_labs WHERE id = $1`,
		id).Scan(&l.ID, &l.Name, &l.Active, &l.CreatedAt)
	if db.IsNoRows(err) {
		return nil, apperr.New(apperr.NotFound, "referred lab %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query referred lab: %w", err)
	}
	return &l, nil
}
