// README: Tariff settings (single active row) and the typed admin update command.
package tariff

import (
	"time"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/config"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

// SettingsID is the primary key of the only tariff row.
const SettingsID = 1

type Settings struct {
	BaseRate                  float64   `json:"base_rate"`
	RatePerKm                 float64   `json:"rate_per_km"`
	RatePerPassenger          float64   `json:"rate_per_passenger"`
	RatePerBag                float64   `json:"rate_per_bag"`
	NightSurchargeApplies     bool      `json:"night_surcharge_applies"`
	NightSurchargePercentage  float64   `json:"night_surcharge_percentage"`
	NightSurchargeStartHour   int       `json:"night_surcharge_start_hour"`
	NightSurchargeEndHour     int       `json:"night_surcharge_end_hour"`
	BookingSlotOverlapMinutes int       `json:"booking_slot_overlap_minutes"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

func FromDefaults(d config.TariffDefaults) Settings {
	return Settings{
		BaseRate:                  d.BaseRate,
		RatePerKm:                 d.RatePerKm,
		RatePerPassenger:          d.RatePerPassenger,
		RatePerBag:                d.RatePerBag,
		NightSurchargeApplies:     d.NightSurchargeApplies,
		NightSurchargePercentage:  d.NightSurchargePercentage,
		NightSurchargeStartHour:   d.NightSurchargeStartHour,
		NightSurchargeEndHour:     d.NightSurchargeEndHour,
		BookingSlotOverlapMinutes: d.BookingSlotOverlapMin,
	}
}

// IsNight reports whether t falls in the night surcharge window. A window
// whose start hour is after its end hour wraps past midnight.
func (s Settings) IsNight(t types.TimeOfDay) bool {
	start := types.TimeOfDay(s.NightSurchargeStartHour * 60)
	end := types.TimeOfDay(s.NightSurchargeEndHour * 60)
	if start > end {
		return t >= start || t < end
	}
	return start <= t && t < end
}

// NightSurchargeDue combines the enabled flag with the window check.
func (s Settings) NightSurchargeDue(t types.TimeOfDay) bool {
	return s.NightSurchargeApplies && s.IsNight(t)
}

// UpdateCommand carries the admin-editable fields. Nil fields are left unchanged.
type UpdateCommand struct {
	BaseRate                  *float64 `json:"base_rate"`
	RatePerKm                 *float64 `json:"rate_per_km"`
	RatePerPassenger          *float64 `json:"rate_per_passenger"`
	RatePerBag                *float64 `json:"rate_per_bag"`
	NightSurchargeApplies     *bool    `json:"night_surcharge_applies"`
	NightSurchargePercentage  *float64 `json:"night_surcharge_percentage"`
	NightSurchargeStartHour   *int     `json:"night_surcharge_start_hour"`
	NightSurchargeEndHour     *int     `json:"night_surcharge_end_hour"`
	BookingSlotOverlapMinutes *int     `json:"booking_slot_overlap_minutes"`
}

func (u UpdateCommand) IsEmpty() bool {
	return u.BaseRate == nil && u.RatePerKm == nil && u.RatePerPassenger == nil &&
		u.RatePerBag == nil && u.NightSurchargeApplies == nil && u.NightSurchargePercentage == nil &&
		u.NightSurchargeStartHour == nil && u.NightSurchargeEndHour == nil && u.BookingSlotOverlapMinutes == nil
}

// Validate checks every supplied field and reports the first offending one.
func (u UpdateCommand) Validate() error {
	if u.IsEmpty() {
		return apperr.Validation("settings", "no fields to update")
	}
	rates := []struct {
		field string
		v     *float64
	}{
		{"base_rate", u.BaseRate},
		{"rate_per_km", u.RatePerKm},
		{"rate_per_passenger", u.RatePerPassenger},
		{"rate_per_bag", u.RatePerBag},
	}
	for _, r := range rates {
		if r.v != nil && *r.v < 0 {
			return apperr.Validation(r.field, "must be >= 0")
		}
	}
	if p := u.NightSurchargePercentage; p != nil && (*p < 0 || *p > 100) {
		return apperr.Validation("night_surcharge_percentage", "must be between 0 and 100")
	}
	if h := u.NightSurchargeStartHour; h != nil && (*h < 0 || *h > 23) {
		return apperr.Validation("night_surcharge_start_hour", "must be between 0 and 23")
	}
	if h := u.NightSurchargeEndHour; h != nil && (*h < 0 || *h > 23) {
		return apperr.Validation("night_surcharge_end_hour", "must be between 0 and 23")
	}
	if m := u.BookingSlotOverlapMinutes; m != nil && *m < 0 {
		return apperr.Validation("booking_slot_overlap_minutes", "must be >= 0")
	}
	return nil
}

// Apply returns s with the supplied fields overwritten.
func (u UpdateCommand) Apply(s Settings) Settings {
	if u.BaseRate != nil {
		s.BaseRate = *u.BaseRate
	}
	if u.RatePerKm != nil {
		s.RatePerKm = *u.RatePerKm
	}
	if u.RatePerPassenger != nil {
		s.RatePerPassenger = *u.RatePerPassenger
	}
	if u.RatePerBag != nil {
		s.RatePerBag = *u.RatePerBag
	}
	if u.NightSurchargeApplies != nil {
		s.NightSurchargeApplies = *u.NightSurchargeApplies
	}
	if u.NightSurchargePercentage != nil {
		s.NightSurchargePercentage = *u.NightSurchargePercentage
	}
	if u.NightSurchargeStartHour != nil {
		s.NightSurchargeStartHour = *u.NightSurchargeStartHour
	}
	if u.NightSurchargeEndHour != nil {
		s.NightSurchargeEndHour = *u.NightSurchargeEndHour
	}
	if u.BookingSlotOverlapMinutes != nil {
		s.BookingSlotOverlapMinutes = *u.BookingSlotOverlapMinutes
	}
	return s
}
