// README: Helpers for DB-backed tests; they skip unless CURVAS_TEST_DSN points at a disposable Postgres.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simaodiazz/curvas-humildes-server/internal/infra"
)

// NewPool migrates the test database, truncates every table and returns a pool
// closed at test cleanup.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("CURVAS_TEST_DSN")
	if dsn == "" {
		t.Skip("CURVAS_TEST_DSN not set; skipping DB-backed test")
	}
	if err := infra.Migrate(dsn); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(ctx, `TRUNCATE TABLE voucher_usages, booking_status_events, bookings, vouchers, drivers, tariff_settings`); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

// InsertDriver adds a driver row directly.
func InsertDriver(t *testing.T, db *pgxpool.Pool, id string, active bool) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
		INSERT INTO drivers (id, first_name, last_name, email, phone, is_active)
		VALUES ($1, 'Test', $1, $1 || '@example.com', NULL, $2)`, id, active)
	if err != nil {
		t.Fatalf("insert driver %s: %v", id, err)
	}
}
