package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labsys/lis/internal/domain/admission"
	"github.com/labsys/lis/internal/domain/catalog"
	"github.com/labsys/lis/internal/domain/orders"
	"github.com/labsys/lis/internal/domain/payments"
	"github.com/labsys/lis/internal/domain/pricing"
	"github.com/labsys/lis/internal/platform/db"
	"github.com/labsys/lis/internal/platform/notification"
)

const (
	testPort     = 15433
	testDBName   = "listest"
	testUser     = "postgres"
	testPassword = "postgres"
)

var (
	testPool *pgxpool.Pool
	clinicTZ *time.Location
)

func TestMain(m *testing.M) {
	dsn := fmt.Sprintf("postgresql://%s:%s@localhost:%d/%s?sslmode=disable",
		testUser, testPassword, testPort, testDBName)

	pg := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(testPort).
			Database(testDBName).
			Username(testUser).
			Password(testPassword).
			Version(embeddedpostgres.V16).
			StartTimeout(30 * time.Second),
	)
	if err := pg.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start embedded postgres: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	var err error
	testPool, err = pgxpool.New(ctx, dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		pg.Stop()
		os.Exit(1)
	}

	if _, err := db.NewMigrator(testPool, migrationsDir()).Up(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrations failed: %v\n", err)
		testPool.Close()
		pg.Stop()
		os.Exit(1)
	}

	clinicTZ, err = time.LoadLocation("America/Guayaquil")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load timezone: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testPool.Close()
	if err := pg.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to stop embedded postgres: %v\n", err)
	}
	os.Exit(code)
}

func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// services bundles the wired domain services the way cmd/lis-server does,
// with a Collector in place of the log notifier.
type services struct {
	catalog   catalog.Repository
	orders    *orders.Service
	admission *admission.Service
	payments  *payments.Service
	events    *notification.Collector
}

func newServices(t *testing.T) *services {
	t.Helper()

	tx := db.NewPgTransactor(testPool)
	events := &notification.Collector{}

	catalogRepo := catalog.NewRepoPG(testPool)
	resolver := pricing.NewResolver(catalogRepo)

	ordersRepo := orders.NewRepoPG(testPool)
	ordersSvc := orders.NewService(ordersRepo, catalogRepo, resolver, tx, clinicTZ)

	admissionRepo := admission.NewRepoPG(testPool)
	admissionSvc := admission.NewService(admissionRepo, ordersRepo, catalogRepo, resolver, tx, events, clinicTZ)
	ordersSvc.SetReverter(admissionSvc)

	paymentsRepo := payments.NewRepoPG(testPool)
	paymentsSvc := payments.NewService(paymentsRepo, ordersRepo, catalogRepo, tx, events, clinicTZ)

	return &services{
		catalog:   catalogRepo,
		orders:    ordersSvc,
		admission: admissionSvc,
		payments:  paymentsSvc,
		events:    events,
	}
}

// resetDB truncates all mutable tables so each test starts clean.
func resetDB(t *testing.T) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `
		TRUNCATE referred_lab_payments, payments, lab_order_items, lab_orders,
			admission_request_items, admission_requests,
			template_params, result_templates, test_profile_members, test_profiles,
			lab_tests, lab_sections, referred_labs CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func seedReferredLab(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO referred_labs (id, name) VALUES ($1, $2)`, id, name)
	if err != nil {
		t.Fatalf("seed referred lab: %v", err)
	}
	return id
}

type seedTestOpts struct {
	conventionPrice *float64
	isReferred      bool
	defaultLabID    *uuid.UUID
	externalCost    *float64
}

func seedTest(t *testing.T, code, name string, price float64, opts seedTestOpts) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := testPool.Exec(context.Background(), `
		INSERT INTO lab_tests (id, code, name, price, convention_price,
			is_referred, default_referred_lab_id, external_cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, code, name, price, opts.conventionPrice,
		opts.isReferred, opts.defaultLabID, opts.externalCost)
	if err != nil {
		t.Fatalf("seed test %s: %v", code, err)
	}
	return id
}

func seedTemplate(t *testing.T, testID uuid.UUID, title string, params ...string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO result_templates (id, lab_test_id, title) VALUES ($1, $2, $3)`,
		id, testID, title)
	if err != nil {
		t.Fatalf("seed template: %v", err)
	}
	for i, name := range params {
		_, err := testPool.Exec(context.Background(), `
			INSERT INTO template_params (template_id, name, value_type, position)
			VALUES ($1, $2, 'numeric', $3)`, id, name, i)
		if err != nil {
			t.Fatalf("seed template param %s: %v", name, err)
		}
	}
	return id
}

func seedProfile(t *testing.T, name string, packagePrice *float64, testIDs ...uuid.UUID) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := testPool.Exec(context.Background(),
		`INSERT INTO test_profiles (id, name, package_price) VALUES ($1, $2, $3)`,
		id, name, packagePrice)
	if err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	for i, testID := range testIDs {
		_, err := testPool.Exec(context.Background(), `
			INSERT INTO test_profile_members (profile_id, lab_test_id, position)
			VALUES ($1, $2, $3)`, id, testID, i)
		if err != nil {
			t.Fatalf("seed profile member: %v", err)
		}
	}
	return id
}

func softDeleteTest(t *testing.T, testID uuid.UUID) {
	t.Helper()
	_, err := testPool.Exec(context.Background(),
		`UPDATE lab_tests SET active = FALSE, deleted_at = NOW() WHERE id = $1`, testID)
	if err != nil {
		t.Fatalf("soft delete test: %v", err)
	}
}

func floatPtr(v float64) *float64 { return &v }
func strPtr(s string) *string     { return &s }
