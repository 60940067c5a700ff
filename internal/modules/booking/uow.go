// README: Postgres unit of work for admission and status changes: one transaction, per-day advisory lock.
package booking

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simaodiazz/curvas-humildes-server/internal/modules/driver"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/voucher"
)

type PgUnitOfWork struct {
	pool     *pgxpool.Pool
	bookings *Store
	drivers  *driver.Store
	vouchers *voucher.Store
}

func NewPgUnitOfWork(pool *pgxpool.Pool, bookings *Store, drivers *driver.Store, vouchers *voucher.Store) *PgUnitOfWork {
	return &PgUnitOfWork{pool: pool, bookings: bookings, drivers: drivers, vouchers: vouchers}
}

// InTx runs fn in one transaction and commits when it returns nil.
func (u *PgUnitOfWork) InTx(ctx context.Context, fn func(Tx) error) error {
	return pgx.BeginFunc(ctx, u.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{
			tx:       tx,
			bookings: u.bookings.WithTx(tx),
			drivers:  u.drivers.WithTx(tx),
			vouchers: u.vouchers.WithTx(tx),
		})
	})
}

type pgTx struct {
	tx       pgx.Tx
	bookings *Store
	drivers  *driver.Store
	vouchers *voucher.Store
}

func (t *pgTx) Bookings() Repository    { return t.bookings }
func (t *pgTx) Drivers() DriverLookup   { return t.drivers }
func (t *pgTx) Vouchers() VoucherLocker { return t.vouchers }

// LockDay serializes admissions for the same service date until the
// transaction ends.
func (t *pgTx) LockDay(ctx context.Context, date time.Time) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('curvas.booking_day'), hashtext($1))`, FormatDate(date))
	return err
}
