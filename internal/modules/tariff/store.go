// README: Tariff settings store backed by PostgreSQL.
package tariff

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectSettings = `
	SELECT base_rate, rate_per_km, rate_per_passenger, rate_per_bag,
	       night_surcharge_applies, night_surcharge_percentage,
	       night_surcharge_start_hour, night_surcharge_end_hour,
	       booking_slot_overlap_minutes, updated_at
	FROM tariff_settings
	WHERE id = $1`

func (s *Store) Get(ctx context.Context) (*Settings, error) {
	var t Settings
	err := s.db.QueryRow(ctx, selectSettings, SettingsID).Scan(
		&t.BaseRate, &t.RatePerKm, &t.RatePerPassenger, &t.RatePerBag,
		&t.NightSurchargeApplies, &t.NightSurchargePercentage,
		&t.NightSurchargeStartHour, &t.NightSurchargeEndHour,
		&t.BookingSlotOverlapMinutes, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateDefault inserts the row unless another caller already did.
func (s *Store) CreateDefault(ctx context.Context, t Settings) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO tariff_settings (
			id, base_rate, rate_per_km, rate_per_passenger, rate_per_bag,
			night_surcharge_applies, night_surcharge_percentage,
			night_surcharge_start_hour, night_surcharge_end_hour,
			booking_slot_overlap_minutes, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (id) DO NOTHING`,
		SettingsID,
		t.BaseRate, t.RatePerKm, t.RatePerPassenger, t.RatePerBag,
		t.NightSurchargeApplies, t.NightSurchargePercentage,
		t.NightSurchargeStartHour, t.NightSurchargeEndHour,
		t.BookingSlotOverlapMinutes,
	)
	return err
}

// Update writes only the fields cmd supplies. Each column keeps its stored
// value when its parameter is NULL, so concurrent edits to different fields
// do not overwrite each other.
func (s *Store) Update(ctx context.Context, cmd UpdateCommand) (*Settings, error) {
	var t Settings
	err := s.db.QueryRow(ctx, `
		UPDATE tariff_settings
		SET base_rate = COALESCE($2::double precision, base_rate),
		    rate_per_km = COALESCE($3::double precision, rate_per_km),
		    rate_per_passenger = COALESCE($4::double precision, rate_per_passenger),
		    rate_per_bag = COALESCE($5::double precision, rate_per_bag),
		    night_surcharge_applies = COALESCE($6::boolean, night_surcharge_applies),
		    night_surcharge_percentage = COALESCE($7::double precision, night_surcharge_percentage),
		    night_surcharge_start_hour = COALESCE($8::integer, night_surcharge_start_hour),
		    night_surcharge_end_hour = COALESCE($9::integer, night_surcharge_end_hour),
		    booking_slot_overlap_minutes = COALESCE($10::integer, booking_slot_overlap_minutes),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING base_rate, rate_per_km, rate_per_passenger, rate_per_bag,
		          night_surcharge_applies, night_surcharge_percentage,
		          night_surcharge_start_hour, night_surcharge_end_hour,
		          booking_slot_overlap_minutes, updated_at`,
		SettingsID,
		cmd.BaseRate, cmd.RatePerKm, cmd.RatePerPassenger, cmd.RatePerBag,
		cmd.NightSurchargeApplies, cmd.NightSurchargePercentage,
		cmd.NightSurchargeStartHour, cmd.NightSurchargeEndHour,
		cmd.BookingSlotOverlapMinutes,
	).Scan(
		&t.BaseRate, &t.RatePerKm, &t.RatePerPassenger, &t.RatePerBag,
		&t.NightSurchargeApplies, &t.NightSurchargePercentage,
		&t.NightSurchargeStartHour, &t.NightSurchargeEndHour,
		&t.BookingSlotOverlapMinutes, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
