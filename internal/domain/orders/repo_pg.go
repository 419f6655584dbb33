package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labsys/lis/internal/platform/apperr"
	"github.com/labsys/lis/internal/platform/db"
	"github.com/labsys/lis/pkg/money"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres-backed order repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const orderCols = `id, order_code, patient_id, status, total_price, order_source,
	admission_request_id, branch_id, created_by_id, notes, created_at, delivered_at`

func scanOrder(row pgx.Row) (*LabOrder, error) {
	var o LabOrder
	err := row.Scan(&o.ID, &o.OrderCode, &o.PatientID, &o.Status, &o.TotalPrice, &o.OrderSource,
		&o.AdmissionRequestID, &o.BranchID, &o.CreatedByID, &o.Notes, &o.CreatedAt, &o.DeliveredAt)
	return &o, err
}

func (r *repoPG) Create(ctx context.Context, o *LabOrder, items []*LabOrderItem) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO lab_orders (id, order_code, patient_id, status, total_price, order_source,
			admission_request_id, branch_id, created_by_id, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.OrderCode, o.PatientID, o.Status, o.TotalPrice, o.OrderSource,
		o.AdmissionRequestID, o.BranchID, o.CreatedByID, o.Notes, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.OrderID = o.ID
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO lab_order_items (id, order_id, lab_test_id, position, price_snapshot,
				price_convention_snapshot, referred_lab_id, external_lab_cost_snapshot,
				template_snapshot, promotion_id, promotion_name, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			it.ID, it.OrderID, it.LabTestID, it.Position, it.PriceSnapshot,
			it.PriceConventionSnapshot, it.ReferredLabID, it.ExternalLabCostSnapshot,
			it.TemplateSnapshot, it.PromotionID, it.PromotionName, it.Status); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM lab_orders WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperr.New(apperr.NotFound, "order %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return o, nil
}

func (r *repoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*LabOrder, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM lab_orders WHERE id = $1 FOR UPDATE`, id))
	if db.IsNoRows(err) {
		return nil, apperr.New(apperr.NotFound, "order %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query order for update: %w", err)
	}
	return o, nil
}

func (r *repoPG) GetByAdmissionRequest(ctx context.Context, requestID uuid.UUID) (*LabOrder, error) {
	o, err := scanOrder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM lab_orders WHERE admission_request_id = $1`, requestID))
	if db.IsNoRows(err) {
		return nil, apperr.New(apperr.NotFound, "no order for admission request %s", requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("query order by admission request: %w", err)
	}
	return o, nil
}

const itemCols = `id, order_id, lab_test_id, position, price_snapshot,
	price_convention_snapshot, referred_lab_id, external_lab_cost_snapshot,
	template_snapshot, promotion_id, promotion_name, status`

func scanItem(row pgx.Row) (*LabOrderItem, error) {
	var it LabOrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.LabTestID, &it.Position, &it.PriceSnapshot,
		&it.PriceConventionSnapshot, &it.ReferredLabID, &it.ExternalLabCostSnapshot,
		&it.TemplateSnapshot, &it.PromotionID, &it.PromotionName, &it.Status)
	return &it, err
}

func (r *repoPG) GetItems(ctx context.Context, orderID uuid.UUID) ([]*LabOrderItem, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+itemCols+` FROM lab_order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []*LabOrderItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repoPG) GetItem(ctx context.Context, itemID uuid.UUID) (*LabOrderItem, error) {
	it, err := scanItem(r.conn(ctx).QueryRow(ctx,
		`SELECT `+itemCols+` FROM lab_order_items WHERE id = $1`, itemID))
	if db.IsNoRows(err) {
		return nil, apperr.New(apperr.NotFound, "order item %s not found", itemID)
	}
	if err != nil {
		return nil, fmt.Errorf("query order item: %w", err)
	}
	return it, nil
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*LabOrder, int, error) {
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
		add("order_code LIKE $%d", filter.CodePrefix+"%")
	}
	if filter.PaymentStatus != "" {
		// The classification mirrors money.Classify against the summed
		// payments, with the same tolerance.
		paid := `(SELECT COALESCE(SUM(p.amount), 0) FROM payments p WHERE p.order_id = lab_orders.id)`
		switch filter.PaymentStatus {
		case "PENDIENTE":
			where += " AND " + paid + " <= 0"
		case "PARCIAL":
			n++
			where += fmt.Sprintf(" AND %s > 0 AND %s + $%d < total_price", paid, paid, n)
			args = append(args, money.Epsilon)
		case "PAGADO":
			n++
			where += fmt.Sprintf(" AND %s + $%d >= total_price AND %s > 0", paid, n, paid)
			args = append(args, money.Epsilon)
		default:
			return nil, 0, apperr.New(apperr.ValidationFailed, "unknown payment status %q", filter.PaymentStatus)
		}
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM lab_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM lab_orders%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		orderCols, where, n+1, n+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []*LabOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *repoPG) ListCodesByPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT order_code FROM lab_orders WHERE order_code LIKE $1`, prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("query order codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan order code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (r *repoPG) AppendItems(ctx context.Context, orderID uuid.UUID, items []*LabOrderItem, newTotal float64) error {
	for _, it := range items {
		if it.ID == uuid.Nil {
			it.ID = uuid.New()
		}
		it.OrderID = orderID
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO lab_order_items (id, order_id, lab_test_id, position, price_snapshot,
				price_convention_snapshot, referred_lab_id, external_lab_cost_snapshot,
				template_snapshot, promotion_id, promotion_name, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			it.ID, it.OrderID, it.LabTestID, it.Position, it.PriceSnapshot,
			it.PriceConventionSnapshot, it.ReferredLabID, it.ExternalLabCostSnapshot,
			it.TemplateSnapshot, it.PromotionID, it.PromotionName, it.Status); err != nil {
			return fmt.Errorf("insert appended item: %w", err)
		}
	}
	if _, err := r.conn(ctx).Exec(ctx,
		`UPDATE lab_orders SET total_price = $2 WHERE id = $1`, orderID, newTotal); err != nil {
		return fmt.Errorf("update order total: %w", err)
	}
	return nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string, deliveredAt *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE lab_orders SET status = $2, delivered_at = COALESCE($3, delivered_at) WHERE id = $1`,
		id, status, deliveredAt)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "order %s not found", id)
	}
	return nil
}

func (r *repoPG) UpdateItemSnapshot(ctx context.Context, itemID uuid.UUID, snap *TemplateSnapshot) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE lab_order_items SET template_snapshot = $2 WHERE id = $1`, itemID, snap)
	if err != nil {
		return fmt.Errorf("update item snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "order item %s not found", itemID)
	}
	return nil
}

func (r *repoPG) ClearAdmissionRef(ctx context.Context, orderID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE lab_orders SET admission_request_id = NULL WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("clear admission reference: %w", err)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM lab_orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "order %s not found", id)
	}
	return nil
}
