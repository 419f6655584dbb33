package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labsys/lis/internal/platform/apperr"
	"github.com/labsys/lis/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres-backed admission request repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const requestCols = `id, request_code, patient_id, status, total_price, branch_id,
	requested_by, notes, patient_type, converted_order_id, converted_at,
	created_by_id, created_at`

func scanRequest(row pgx.Row) (*AdmissionRequest, error) {
	var req AdmissionRequest
	err := row.Scan(&req.ID, &req.RequestCode, &req.PatientID, &req.Status, &req.TotalPrice,
		&req.BranchID, &req.RequestedBy, &req.Notes, &req.PatientType,
		&req.ConvertedOrderID, &req.ConvertedAt, &req.CreatedByID, &req.CreatedAt)
	return &req, err
}

func (r *repoPG) Create(ctx context.Context, req *AdmissionRequest, items []*AdmissionRequestItem) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO admission_requests (id, request_code, patient_id, status, total_price,
			branch_id, requested_by, notes, patient_type, created_by_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		req.ID, req.RequestCode, req.PatientID, req.Status, req.TotalPrice,
		req.BranchID, req.RequestedBy, req.Notes, req.PatientType, req.CreatedByID, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert admission request: %w", err)
	}

	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.RequestID = req.ID
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO admission_request_items (id, request_id, lab_test_id, position,
				price_base, price_applied, adjustment_reason)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			it.ID, it.RequestID, it.LabTestID, it.Position,
			it.PriceBase, it.PriceApplied, it.AdjustmentReason); err != nil {
			return fmt.Errorf("insert admission request item: %w", err)
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*AdmissionRequest, error) {
	req, err := scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM admission_requests WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.New(apperr.NotFound, "admission request %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query admission request: %w", err)
	}
	return req, nil
}

func (r *repoPG) GetItems(ctx context.Context, requestID uuid.UUID) ([]*AdmissionRequestItem, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, request_id, lab_test_id, position, price_base, price_applied, adjustment_reason
		FROM admission_request_items WHERE request_id = $1 ORDER BY position`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query admission request items: %w", err)
	}
	defer rows.Close()

	var items []*AdmissionRequestItem
	for rows.Next() {
		var it AdmissionRequestItem
		if err := rows.Scan(&it.ID, &it.RequestID, &it.LabTestID, &it.Position,
			&it.PriceBase, &it.PriceApplied, &it.AdjustmentReason); err != nil {
			return nil, fmt.Errorf("scan admission request item: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*AdmissionRequest, int, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	n := 0
	add := func(clause string, val interface{}) {
		n++
		where += fmt.Sprintf(" AND "+clause, n)
		args = append(args, val)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.PatientID != nil {
		add("patient_id = $%d", *filter.PatientID)
	}
	if filter.BranchID != nil {
		add("branch_id = $%d", *filter.BranchID)
	}
	if filter.CodePrefix != "" {
		add("request_code LIKE $%d", filter.CodePrefix+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM admission_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count admission requests: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM admission_requests%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		requestCols, where, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list admission requests: %w", err)
	}
	defer rows.Close()

	var out []*AdmissionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan admission request: %w", err)
		}
		out = append(out, req)
	}
	return out, total, rows.Err()
}

func (r *repoPG) ListCodesByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT request_code FROM admission_requests WHERE request_code LIKE $1`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("query request codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan request code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (r *repoPG) UpdateHeader(ctx context.Context, req *AdmissionRequest) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE admission_requests
		SET requested_by = $2, notes = $3, patient_type = $4, branch_id = $5, status = $6
		WHERE id = $1`,
		req.ID, req.RequestedBy, req.Notes, req.PatientType, req.BranchID, req.Status)
	if err != nil {
		return fmt.Errorf("update admission request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "admission request %s not found", req.ID)
	}
	return nil
}

func (r *repoPG) UpdateItemPrices(ctx context.Context, requestID uuid.UUID, items []*AdmissionRequestItem, newTotal float64) error {
	for _, it := range items {
		if _, err := r.conn(ctx).Exec(ctx, `
			UPDATE admission_request_items
			SET price_applied = $3, adjustment_reason = $4
			WHERE id = $1 AND request_id = $2`,
			it.ID, requestID, it.PriceApplied, it.AdjustmentReason); err != nil {
			return fmt.Errorf("update item price: %w", err)
		}
	}
	if _, err := r.conn(ctx).Exec(ctx,
		`UPDATE admission_requests SET total_price = $2 WHERE id = $1`, requestID, newTotal); err != nil {
		return fmt.Errorf("update request total: %w", err)
	}
	return nil
}

func (r *repoPG) MarkConverted(ctx context.Context, id, orderID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE admission_requests
		SET status = $2, converted_order_id = $3, converted_at = $4
		WHERE id = $1 AND status = $5 AND converted_order_id IS NULL`,
		id, StatusConvertida, orderID, at, StatusPendiente)
	if err != nil {
		return false, fmt.Errorf("mark converted: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) RevertConversion(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE admission_requests
		SET status = $2, converted_order_id = NULL, converted_at = NULL
		WHERE id = $1`,
		id, StatusPendiente)
	if err != nil {
		return fmt.Errorf("revert conversion: %w", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM admission_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete admission request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "admission request %s not found", id)
	}
	return nil
}
