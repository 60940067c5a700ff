// README: Booking store backed by PostgreSQL; usable on the pool or inside an admission transaction.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simaodiazz/curvas-humildes-server/internal/modules/availability"
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

func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

const bookingColumns = `
	id, user_id, passenger_name, passenger_phone, service_date, start_minute, duration_minutes,
	pickup_location, dropoff_location, passengers, bags, instructions,
	original_budget_pre_vat, discount_amount, final_budget_pre_vat, vat_percentage, vat_amount, total_with_vat,
	applied_voucher_code, status, status_version, assigned_driver_id, created_at`

func (s *Store) Create(ctx context.Context, b *Booking) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO bookings (
			id, user_id, passenger_name, passenger_phone, service_date, start_minute, duration_minutes,
			pickup_location, dropoff_location, passengers, bags, instructions,
			original_budget_pre_vat, discount_amount, final_budget_pre_vat, vat_percentage, vat_amount, total_with_vat,
			applied_voucher_code, status, status_version, assigned_driver_id
		) VALUES (
			$1, $2, $3, $4, $5::date, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22
		)
		RETURNING created_at`,
		string(b.ID), idPtr(b.UserID), b.PassengerName, b.PassengerPhone, FormatDate(b.Date), int(b.Time), b.DurationMinutes,
		b.Pickup, b.Dropoff, b.Passengers, b.Bags, b.Instructions,
		b.OriginalBudget.Amount, b.DiscountAmount.Amount, b.FinalBudget.Amount, b.VATPercentage, b.VATAmount.Amount, b.TotalWithVAT.Amount,
		b.AppliedVoucher, string(b.Status), b.StatusVersion, idPtr(b.AssignedDriverID),
	).Scan(&b.CreatedAt)
	return translate(err)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	b, err := scanBooking(s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

// List returns bookings newest service time first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Booking, error) {
	var where []string
	var args []any
	if f.UserID != nil {
		args = append(args, string(*f.UserID))
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Date != nil {
		args = append(args, FormatDate(*f.Date))
		where = append(where, fmt.Sprintf("service_date = $%d::date", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY service_date DESC, start_minute DESC, created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// FindOccupying returns the same-day bookings in any of statuses.
func (s *Store) FindOccupying(ctx context.Context, date time.Time, statuses []string) ([]availability.Slot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, status, start_minute, duration_minutes
		FROM bookings
		WHERE service_date = $1::date AND status = ANY($2)`,
		FormatDate(date), statuses,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Slot
	for rows.Next() {
		var id, status string
		var start int
		var duration *int
		if err := rows.Scan(&id, &status, &start, &duration); err != nil {
			return nil, err
		}
		out = append(out, availability.Slot{
			BookingID:       types.ID(id),
			Status:          status,
			Start:           types.TimeOfDay(start),
			DurationMinutes: duration,
		})
	}
	return out, rows.Err()
}

// UpdateStatus moves the booking from one status to another if nobody else
// changed it since version was read.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET status = $1,
		    status_version = status_version + 1
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() == 1, nil
}

// AssignDriver sets or clears the driver together with the resulting status,
// under the same optimistic check as UpdateStatus.
func (s *Store) AssignDriver(ctx context.Context, id types.ID, driverID *types.ID, from, to Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE bookings
		SET assigned_driver_id = $1,
		    status = $2,
		    status_version = status_version + 1
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		idPtr(driverID), string(to), string(id), string(from), version,
	)
	if err != nil {
		return false, translate(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Delete(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, string(id))
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO booking_status_events (
			booking_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		string(e.BookingID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		idPtr(e.ActorID),
		e.CreatedAt,
	).Scan(&e.ID)
}

// Events returns the status history of a booking, oldest first.
func (s *Store) Events(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, booking_id, from_status, to_status, actor_type, actor_id, created_at
		FROM booking_status_events
		WHERE booking_id = $1
		ORDER BY id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var bookingID, from, to string
		var actorID *string
		if err := rows.Scan(&e.ID, &bookingID, &from, &to, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.BookingID = types.ID(bookingID)
		e.FromStatus = Status(from)
		e.ToStatus = Status(to)
		e.ActorID = toID(actorID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var id, status string
	var userID, driverID *string
	var start int
	if err := row.Scan(
		&id, &userID, &b.PassengerName, &b.PassengerPhone, &b.Date, &start, &b.DurationMinutes,
		&b.Pickup, &b.Dropoff, &b.Passengers, &b.Bags, &b.Instructions,
		&b.OriginalBudget.Amount, &b.DiscountAmount.Amount, &b.FinalBudget.Amount, &b.VATPercentage, &b.VATAmount.Amount, &b.TotalWithVAT.Amount,
		&b.AppliedVoucher, &status, &b.StatusVersion, &driverID, &b.CreatedAt,
	); err != nil {
		return nil, err
	}
	b.ID = types.ID(id)
	b.UserID = toID(userID)
	b.AssignedDriverID = toID(driverID)
	b.Time = types.TimeOfDay(start)
	b.Status = Status(status)
	for _, m := range []*types.Money{&b.OriginalBudget, &b.DiscountAmount, &b.FinalBudget, &b.VATAmount, &b.TotalWithVAT} {
		m.Currency = types.CurrencyEUR
	}
	return &b, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toID(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrDriverMissing
	}
	return err
}
