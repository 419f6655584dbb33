package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labsys/lis/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres-backed ledger repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) InsertPayment(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payments (id, order_id, amount, method, notes, paid_at, recorded_by_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.OrderID, p.Amount, p.Method, p.Notes, p.PaidAt, p.RecordedByID)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *repoPG) ListPayments(ctx context.Context, orderID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, order_id, amount, method, notes, paid_at, recorded_by_id
		FROM payments WHERE order_id = $1 ORDER BY paid_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Method, &p.Notes, &p.PaidAt, &p.RecordedByID); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *repoPG) SumPayments(ctx context.Context, orderID uuid.UUID) (float64, error) {
	var sum float64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payments WHERE order_id = $1`, orderID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum payments: %w", err)
	}
	return sum, nil
}

func (r *repoPG) InsertReferredPayment(ctx context.Context, p *ReferredLabPayment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO referred_lab_payments (id, order_id, referred_lab_id, amount, notes, paid_at, recorded_by_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.OrderID, p.ReferredLabID, p.Amount, p.Notes, p.PaidAt, p.RecordedByID)
	if err != nil {
		return fmt.Errorf("insert referred lab payment: %w", err)
	}
	return nil
}

func (r *repoPG) ListReferredPayments(ctx context.Context, orderID uuid.UUID) ([]*ReferredLabPayment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, order_id, referred_lab_id, amount, notes, paid_at, recorded_by_id
		FROM referred_lab_payments WHERE order_id = $1 ORDER BY paid_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query referred lab payments: %w", err)
	}
	defer rows.Close()

	var out []*ReferredLabPayment
	for rows.Next() {
		var p ReferredLabPayment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.ReferredLabID, &p.Amount, &p.Notes, &p.PaidAt, &p.RecordedByID); err != nil {
			return nil, fmt.Errorf("scan referred lab payment: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *repoPG) SumReferredPayments(ctx context.Context, orderID, labID uuid.UUID) (float64, error) {
	var sum float64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM referred_lab_payments WHERE order_id = $1 AND referred_lab_id = $2`,
		orderID, labID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum referred lab payments: %w", err)
	}
	return sum, nil
}

func (r *repoPG) ListLabExposure(ctx context.Context, labID uuid.UUID) ([]*LabExposure, error) {
	// The effective lab of an item is its own referred_lab_id when set,
	// otherwise the test's catalog default at read time.
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT o.id, o.order_code,
			COALESCE(SUM(i.external_lab_cost_snapshot), 0) AS cost,
			COALESCE((SELECT SUM(p.amount) FROM referred_lab_payments p
				WHERE p.order_id = o.id AND p.referred_lab_id = $1), 0) AS paid
		FROM lab_orders o
		JOIN lab_order_items i ON i.order_id = o.id
		JOIN lab_tests t ON t.id = i.lab_test_id
		WHERE COALESCE(i.referred_lab_id, t.default_referred_lab_id) = $1
			AND i.external_lab_cost_snapshot IS NOT NULL
		GROUP BY o.id, o.order_code
		ORDER BY o.created_at`, labID)
	if err != nil {
		return nil, fmt.Errorf("query lab exposure: %w", err)
	}
	defer rows.Close()

	var out []*LabExposure
	for rows.Next() {
		var e LabExposure
		if err := rows.Scan(&e.OrderID, &e.OrderCode, &e.Cost, &e.Paid); err != nil {
			return nil, fmt.Errorf("scan lab exposure: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
