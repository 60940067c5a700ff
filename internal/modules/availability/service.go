// README: Availability checker wiring the capacity model to drivers, bookings and tariff settings.
package availability

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/tariff"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

type DriverCounter interface {
	CountActive(ctx context.Context) (int, error)
}

type BookingFinder interface {
	FindOccupying(ctx context.Context, date time.Time, statuses []string) ([]Slot, error)
}

type TariffSource interface {
	GetActive(ctx context.Context) (tariff.Settings, error)
}

type Checker struct {
	drivers  DriverCounter
	bookings BookingFinder
	tariffs  TariffSource
	log      *zap.Logger
}

func NewChecker(drivers DriverCounter, bookings BookingFinder, tariffs TariffSource, log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{drivers: drivers, bookings: bookings, tariffs: tariffs, log: log}
}

// With returns a checker reading drivers and bookings from other sources,
// typically ones bound to an open transaction.
func (c *Checker) With(drivers DriverCounter, bookings BookingFinder) *Checker {
	return &Checker{drivers: drivers, bookings: bookings, tariffs: c.tariffs, log: c.log}
}

func (c *Checker) IsAvailable(ctx context.Context, date time.Time, start types.TimeOfDay, durationMinutes int) (bool, error) {
	res, err := c.Check(ctx, date, start, durationMinutes)
	if err != nil {
		return false, err
	}
	return res.Available, nil
}

// Check evaluates the slot and returns the full result, including which
// bookings conflict.
func (c *Checker) Check(ctx context.Context, date time.Time, start types.TimeOfDay, durationMinutes int) (Result, error) {
	if durationMinutes <= 0 {
		return Result{}, apperr.Validation("duration_minutes", "must be greater than zero")
	}
	settings, err := c.tariffs.GetActive(ctx)
	if err != nil {
		return Result{}, err
	}
	active, err := c.drivers.CountActive(ctx)
	if err != nil {
		return Result{}, apperr.Persistence("count active drivers", err)
	}
	day := date.Format("2006-01-02")
	if active == 0 {
		c.log.Info("no active drivers", zap.String("date", day), zap.String("time", start.String()))
		return Result{}, nil
	}
	slots, err := c.bookings.FindOccupying(ctx, date, OccupyingStatuses)
	if err != nil {
		return Result{}, apperr.Persistence("find occupying bookings", err)
	}

	res := Evaluate(start, durationMinutes, settings.BookingSlotOverlapMinutes, active, slots)
	for _, id := range res.Skipped {
		c.log.Warn("booking without duration ignored for availability",
			zap.String("booking_id", string(id)), zap.String("date", day))
	}
	c.log.Debug("availability evaluated",
		zap.String("date", day),
		zap.String("time", start.String()),
		zap.Int("duration_minutes", durationMinutes),
		zap.Int("conflicts", len(res.Conflicts)),
		zap.Int("active_drivers", active),
		zap.Bool("available", res.Available),
	)
	return res, nil
}
