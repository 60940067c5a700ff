// README: Voucher store backed by PostgreSQL; usable on the pool or inside a caller's transaction.
package voucher

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db   DBTX
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

// WithTx returns a store whose statements run inside tx.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx, pool: s.pool}
}

// InTx runs fn in a new transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(Repository) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(s.WithTx(tx))
	})
}

const voucherColumns = `
	id, code, description, discount_type, discount_value, expiration_date,
	max_uses, current_uses, min_booking_value_cents, is_active, created_at, updated_at`

func (s *Store) Create(ctx context.Context, v *Voucher) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO vouchers (
			id, code, description, discount_type, discount_value, expiration_date,
			max_uses, current_uses, min_booking_value_cents, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at`,
		string(v.ID), v.Code, v.Description, string(v.DiscountType), v.DiscountValue, v.ExpirationDate,
		v.MaxUses, moneyPtr(v.MinBookingValue), v.IsActive,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	return translate(err)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Voucher, error) {
	return s.scanOne(s.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1`, string(id)))
}

func (s *Store) FindByCode(ctx context.Context, code string) (*Voucher, error) {
	return s.scanOne(s.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1`, NormalizeCode(code)))
}

// LockByCode reads the voucher and holds a row lock until the surrounding
// transaction ends. Only meaningful on a store returned by WithTx.
func (s *Store) LockByCode(ctx context.Context, code string) (*Voucher, error) {
	return s.scanOne(s.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code = $1 FOR UPDATE`, NormalizeCode(code)))
}

func (s *Store) List(ctx context.Context) ([]Voucher, error) {
	rows, err := s.db.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// Save writes the editable fields. The update is refused with
// ErrMaxUsesBelowUsage when the stored current_uses already exceeds a
// non-zero max_uses.
func (s *Store) Save(ctx context.Context, v *Voucher) error {
	err := s.db.QueryRow(ctx, `
		UPDATE vouchers
		SET code = $2,
		    description = $3,
		    discount_type = $4,
		    discount_value = $5,
		    expiration_date = $6,
		    max_uses = $7,
		    min_booking_value_cents = $8,
		    is_active = $9,
		    updated_at = NOW()
		WHERE id = $1 AND ($7 = 0 OR current_uses <= $7)
		RETURNING current_uses, updated_at`,
		string(v.ID), v.Code, v.Description, string(v.DiscountType), v.DiscountValue, v.ExpirationDate,
		v.MaxUses, moneyPtr(v.MinBookingValue), v.IsActive,
	).Scan(&v.CurrentUses, &v.UpdatedAt)
	if !errors.Is(err, pgx.ErrNoRows) {
		return translate(err)
	}
	var uses int
	err = s.db.QueryRow(ctx, `SELECT current_uses FROM vouchers WHERE id = $1`, string(v.ID)).Scan(&uses)
	if err != nil {
		return translate(err)
	}
	v.CurrentUses = uses
	return ErrMaxUsesBelowUsage
}

func (s *Store) Delete(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM vouchers WHERE id = $1`, string(id))
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordUsage writes the per-booking usage marker and bumps current_uses.
// It reports false when the booking already has a marker. Call it inside a
// transaction so the marker and the counter commit together.
func (s *Store) RecordUsage(ctx context.Context, v *Voucher, bookingID types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO voucher_usages (booking_id, voucher_id, voucher_code, used_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (booking_id) DO NOTHING`,
		string(bookingID), string(v.ID), v.Code, time.Now(),
	)
	if err != nil {
		return false, translate(err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	err = s.db.QueryRow(ctx, `
		UPDATE vouchers
		SET current_uses = current_uses + 1,
		    updated_at = NOW()
		WHERE id = $1 AND (max_uses = 0 OR current_uses < max_uses)
		RETURNING current_uses`,
		string(v.ID),
	).Scan(&v.CurrentUses)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrExhausted
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) scanOne(row pgx.Row) (*Voucher, error) {
	v, err := scanVoucher(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func scanVoucher(row pgx.Row) (*Voucher, error) {
	var v Voucher
	var id, discountType string
	var minCents *int64
	if err := row.Scan(
		&id, &v.Code, &v.Description, &discountType, &v.DiscountValue, &v.ExpirationDate,
		&v.MaxUses, &v.CurrentUses, &minCents, &v.IsActive, &v.CreatedAt, &v.UpdatedAt,
	); err != nil {
		return nil, err
	}
	v.ID = types.ID(id)
	v.DiscountType = DiscountType(discountType)
	if minCents != nil {
		m := types.Cents(*minCents)
		v.MinBookingValue = &m
	}
	return &v, nil
}

func moneyPtr(m *types.Money) *int64 {
	if m == nil {
		return nil
	}
	n := m.Amount
	return &n
}

// translate maps constraint violations onto package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrCodeTaken
		case "23503":
			return ErrInUse
		}
	}
	return err
}
