// README: Driver store backed by PostgreSQL. Driver administration lives elsewhere; this side only reads.
package driver

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db DBTX
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// WithTx returns a store whose reads run inside tx.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

func (s *Store) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM drivers WHERE is_active`).Scan(&n)
	return n, err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	var d Driver
	var rawID string
	err := s.db.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, phone, is_active, created_at
		FROM drivers
		WHERE id = $1`, string(id),
	).Scan(&rawID, &d.FirstName, &d.LastName, &d.Email, &d.Phone, &d.IsActive, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.ID = types.ID(rawID)
	return &d, nil
}

// GetActive is Get that also rejects inactive drivers.
func (s *Store) GetActive(ctx context.Context, id types.ID) (*Driver, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.IsActive {
		return nil, ErrInactive
	}
	return d, nil
}
