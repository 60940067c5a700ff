// README: Booking service: admission workflow, fare and availability queries, status and driver changes.
package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/clock"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/availability"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/driver"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/pricing"
	"github.com/simaodiazz/curvas-humildes-server/internal/modules/voucher"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

var (
	ErrNotFound      = errors.New("booking not found")
	ErrConflict      = errors.New("booking changed concurrently")
	ErrInvalidState  = errors.New("booking is in a terminal status")
	ErrDriverMissing = errors.New("referenced driver does not exist")
)

type Repository interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	List(ctx context.Context, f ListFilter) ([]Booking, error)
	FindOccupying(ctx context.Context, date time.Time, statuses []string) ([]availability.Slot, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int) (bool, error)
	AssignDriver(ctx context.Context, id types.ID, driverID *types.ID, from, to Status, version int) (bool, error)
	Delete(ctx context.Context, id types.ID) error
	AppendEvent(ctx context.Context, e *Event) error
}

type DriverLookup interface {
	CountActive(ctx context.Context) (int, error)
	GetActive(ctx context.Context, id types.ID) (*driver.Driver, error)
}

type VoucherLocker interface {
	LockByCode(ctx context.Context, code string) (*voucher.Voucher, error)
	RecordUsage(ctx context.Context, v *voucher.Voucher, bookingID types.ID) (bool, error)
}

// Tx exposes the repositories bound to one open transaction.
type Tx interface {
	Bookings() Repository
	Drivers() DriverLookup
	Vouchers() VoucherLocker
	LockDay(ctx context.Context, date time.Time) error
}

type UnitOfWork interface {
	InTx(ctx context.Context, fn func(Tx) error) error
}

type FareEstimator interface {
	Estimate(ctx context.Context, req pricing.FareRequest) (pricing.FareBreakdown, error)
}

type VoucherValidator interface {
	Validate(ctx context.Context, code string, preVAT types.Money) (*voucher.Voucher, error)
}

// Observer receives admission outcomes. *infra.Metrics implements it.
type Observer interface {
	AdmissionOutcome(outcome string)
	VoucherRedemption()
}

type nopObserver struct{}

func (nopObserver) AdmissionOutcome(string) {}
func (nopObserver) VoucherRedemption()      {}

const (
	OutcomeAdmitted         = "admitted"
	OutcomeInvalid          = "invalid"
	OutcomeFareFailed       = "fare_failed"
	OutcomeCapacityConflict = "capacity_conflict"
	OutcomeError            = "error"
)

type Deps struct {
	Store    Repository
	UoW      UnitOfWork
	Fares    FareEstimator
	Vouchers VoucherValidator
	Checker  *availability.Checker
}

type Options struct {
	Clock     clock.Clock
	Location  *time.Location
	PastGrace time.Duration
	Observer  Observer
	Logger    *zap.Logger
}

type Service struct {
	store    Repository
	uow      UnitOfWork
	fares    FareEstimator
	vouchers VoucherValidator
	checker  *availability.Checker
	clock    clock.Clock
	loc      *time.Location
	grace    time.Duration
	obs      Observer
	log      *zap.Logger
}

func NewService(deps Deps, opts Options) *Service {
	s := &Service{
		store:    deps.Store,
		uow:      deps.UoW,
		fares:    deps.Fares,
		vouchers: deps.Vouchers,
		checker:  deps.Checker,
		clock:    opts.Clock,
		loc:      opts.Location,
		grace:    opts.PastGrace,
		obs:      opts.Observer,
		log:      opts.Logger,
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Admit prices, capacity-checks and persists a booking. The availability
// re-check, the voucher re-validation, the insert and the voucher usage all
// commit in one transaction holding the service-day lock.
func (s *Service) Admit(ctx context.Context, cmd AdmitCommand) (*Booking, error) {
	b, err := s.admit(ctx, cmd)
	switch {
	case err == nil:
		s.obs.AdmissionOutcome(OutcomeAdmitted)
	case apperr.IsValidation(err):
		s.obs.AdmissionOutcome(OutcomeInvalid)
	case apperr.IsRouting(err):
		s.obs.AdmissionOutcome(OutcomeFareFailed)
	case apperr.IsCapacityConflict(err):
		s.obs.AdmissionOutcome(OutcomeCapacityConflict)
	default:
		s.obs.AdmissionOutcome(OutcomeError)
	}
	return b, err
}

func (s *Service) admit(ctx context.Context, cmd AdmitCommand) (*Booking, error) {
	req, err := cmd.validate()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if req.startsAt(s.loc).Before(now.Add(-s.grace)) {
		return nil, apperr.Validation("date", "booking time is in the past")
	}

	base, err := s.fares.Estimate(ctx, pricing.FareRequest{
		Passengers: cmd.Passengers,
		Bags:       cmd.Bags,
		Pickup:     cmd.Pickup,
		Dropoff:    cmd.Dropoff,
		TimeOfDay:  req.start,
	})
	if err != nil {
		return nil, err
	}

	var applied *voucher.Voucher
	if code := voucher.NormalizeCode(cmd.VoucherCode); code != "" {
		v, err := s.vouchers.Validate(ctx, code, base.OriginalBudgetPreVAT)
		if err != nil {
			s.log.Warn("voucher ignored for booking", zap.String("voucher_code", code), zap.Error(err))
		} else {
			applied = v
		}
	}

	b := &Booking{
		ID:              types.NewID(),
		UserID:          cmd.UserID,
		PassengerName:   strings.TrimSpace(cmd.PassengerName),
		PassengerPhone:  trimmedOrNil(cmd.PassengerPhone),
		Date:            req.date,
		Time:            req.start,
		DurationMinutes: &req.duration,
		Pickup:          strings.TrimSpace(cmd.Pickup),
		Dropoff:         strings.TrimSpace(cmd.Dropoff),
		Passengers:      cmd.Passengers,
		Bags:            cmd.Bags,
		Instructions:    trimmedOrNil(cmd.Instructions),
		Status:          StatusPendingConfirmation,
	}

	err = s.uow.InTx(ctx, func(tx Tx) error {
		if err := tx.LockDay(ctx, req.date); err != nil {
			return apperr.Persistence("lock service day", err)
		}
		res, err := s.checker.With(tx.Drivers(), tx.Bookings()).Check(ctx, req.date, req.start, req.duration)
		if err != nil {
			return err
		}
		if !res.Available {
			return apperr.CapacityConflictError{
				Date:          FormatDate(req.date),
				Time:          req.start.String(),
				ActiveDrivers: res.ActiveDrivers,
				Conflicts:     len(res.Conflicts),
			}
		}

		var locked *voucher.Voucher
		if applied != nil {
			locked, err = s.relockVoucher(ctx, tx, applied.Code, base.OriginalBudgetPreVAT, now)
			if err != nil {
				return err
			}
		}
		s.freezeFare(b, base, locked)
		b.CreatedAt = now

		if err := tx.Bookings().Create(ctx, b); err != nil {
			return apperr.Persistence("create booking", err)
		}
		if err := tx.Bookings().AppendEvent(ctx, &Event{
			BookingID:  b.ID,
			FromStatus: StatusNone,
			ToStatus:   StatusPendingConfirmation,
			ActorType:  ActorCustomer,
			ActorID:    cmd.UserID,
			CreatedAt:  now,
		}); err != nil {
			return apperr.Persistence("append booking event", err)
		}
		if locked != nil {
			if _, err := tx.Vouchers().RecordUsage(ctx, locked, b.ID); err != nil {
				return apperr.Persistence("record voucher usage", err)
			}
		}
		return nil
	})
	if err != nil {
		if !apperr.IsCapacityConflict(err) {
			s.log.Error("booking admission failed", zap.String("date", FormatDate(req.date)), zap.Error(err))
		}
		return nil, err
	}

	if b.AppliedVoucher != nil {
		s.obs.VoucherRedemption()
	}
	s.log.Info("booking admitted",
		zap.String("booking_id", string(b.ID)),
		zap.String("date", FormatDate(b.Date)),
		zap.String("time", b.Time.String()),
		zap.Int64("total_cents", b.TotalWithVAT.Amount),
	)
	return b, nil
}

// relockVoucher re-reads the voucher under a row lock. A voucher that no
// longer validates yields nil so the booking proceeds at full price.
func (s *Service) relockVoucher(ctx context.Context, tx Tx, code string, preVAT types.Money, now time.Time) (*voucher.Voucher, error) {
	v, err := tx.Vouchers().LockByCode(ctx, code)
	if errors.Is(err, voucher.ErrNotFound) {
		s.log.Warn("voucher disappeared during admission", zap.String("voucher_code", code))
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("lock voucher", err)
	}
	if err := v.CheckUsable(preVAT, now.In(s.loc)); err != nil {
		s.log.Warn("voucher no longer usable, booking continues without discount", zap.String("voucher_code", code), zap.Error(err))
		return nil, nil
	}
	return v, nil
}

func (s *Service) freezeFare(b *Booking, base pricing.FareBreakdown, v *voucher.Voucher) {
	fare := base.WithDiscount(types.Cents(0))
	b.AppliedVoucher = nil
	if v != nil {
		_, discount := v.Apply(base.OriginalBudgetPreVAT)
		fare = base.WithDiscount(discount)
		code := v.Code
		b.AppliedVoucher = &code
	}
	b.OriginalBudget = fare.OriginalBudgetPreVAT
	b.DiscountAmount = fare.DiscountAmount
	b.FinalBudget = fare.FinalBudgetPreVAT
	b.VATPercentage = fare.VATPercentage
	b.VATAmount = fare.VATAmount
	b.TotalWithVAT = fare.TotalWithVAT
}

// EstimateFare prices a trip without side effects.
func (s *Service) EstimateFare(ctx context.Context, cmd EstimateCommand) (pricing.FareBreakdown, error) {
	at := types.TimeOfDayOf(s.clock.Now().In(s.loc))
	if cmd.Time != "" {
		t, err := ParseTime(cmd.Time)
		if err != nil {
			return pricing.FareBreakdown{}, err
		}
		at = t
	}
	return s.fares.Estimate(ctx, pricing.FareRequest{
		Passengers: cmd.Passengers,
		Bags:       cmd.Bags,
		Pickup:     cmd.Pickup,
		Dropoff:    cmd.Dropoff,
		TimeOfDay:  at,
	})
}

// CheckAvailability is the read-only pre-check. Admission repeats it under
// the day lock.
func (s *Service) CheckAvailability(ctx context.Context, q AvailabilityQuery) (bool, error) {
	date, err := ParseDate(q.Date)
	if err != nil {
		return false, err
	}
	start, err := ParseTime(q.Time)
	if err != nil {
		return false, err
	}
	return s.checker.IsAvailable(ctx, date, start, q.DurationMinutes)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, mapStoreError(err, "get booking")
	}
	return b, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Booking, error) {
	out, err := s.store.List(ctx, f)
	if err != nil {
		return nil, apperr.Persistence("list bookings", err)
	}
	return out, nil
}

func (s *Service) ListByUser(ctx context.Context, userID types.ID) ([]Booking, error) {
	return s.List(ctx, ListFilter{UserID: &userID})
}

// UpdateStatus sets an explicit status from the allow-list.
func (s *Service) UpdateStatus(ctx context.Context, id types.ID, status string, actor Actor) (*Booking, error) {
	to, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	var out *Booking
	err = s.uow.InTx(ctx, func(tx Tx) error {
		b, err := tx.Bookings().Get(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == to {
			out = b
			return nil
		}
		if b.Status.Terminal() {
			return ErrInvalidState
		}
		ok, err := tx.Bookings().UpdateStatus(ctx, b.ID, b.Status, to, b.StatusVersion)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		if err := s.appendEvent(ctx, tx, b.ID, b.Status, to, actor); err != nil {
			return err
		}
		b.Status = to
		b.StatusVersion++
		out = b
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "update booking status")
	}
	s.log.Info("booking status updated", zap.String("booking_id", string(id)), zap.String("status", string(to)), zap.String("actor", actor.Type))
	return out, nil
}

// AssignDriver sets the driver, or clears it when driverID is nil. Setting a
// driver on a CONFIRMED booking moves it to DRIVER_ASSIGNED; clearing it on a
// DRIVER_ASSIGNED booking moves it back to CONFIRMED.
func (s *Service) AssignDriver(ctx context.Context, id types.ID, driverID *types.ID, actor Actor) (*Booking, error) {
	var out *Booking
	err := s.uow.InTx(ctx, func(tx Tx) error {
		if driverID != nil {
			if _, err := tx.Drivers().GetActive(ctx, *driverID); err != nil {
				return err
			}
		}
		b, err := tx.Bookings().Get(ctx, id)
		if err != nil {
			return err
		}
		if b.Status.Terminal() {
			return ErrInvalidState
		}
		to := b.Status.AfterDriverChange(driverID != nil)
		ok, err := tx.Bookings().AssignDriver(ctx, b.ID, driverID, b.Status, to, b.StatusVersion)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		if to != b.Status {
			if err := s.appendEvent(ctx, tx, b.ID, b.Status, to, actor); err != nil {
				return err
			}
		}
		b.AssignedDriverID = driverID
		b.Status = to
		b.StatusVersion++
		out = b
		return nil
	})
	if err != nil {
		return nil, mapStoreError(err, "assign driver")
	}
	return out, nil
}

// Delete removes a booking. Voucher usage counters are not given back.
func (s *Service) Delete(ctx context.Context, id types.ID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return mapStoreError(err, "delete booking")
	}
	s.log.Info("booking deleted", zap.String("booking_id", string(id)))
	return nil
}

func (s *Service) appendEvent(ctx context.Context, tx Tx, id types.ID, from, to Status, actor Actor) error {
	return tx.Bookings().AppendEvent(ctx, &Event{
		BookingID:  id,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actor.Type,
		ActorID:    actor.ID,
		CreatedAt:  s.clock.Now(),
	})
}

func mapStoreError(err error, op string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFoundError{Resource: "booking", Err: err}
	case errors.Is(err, driver.ErrNotFound), errors.Is(err, ErrDriverMissing):
		return apperr.NotFoundError{Resource: "driver", Err: err}
	case errors.Is(err, driver.ErrInactive):
		return apperr.ValidationError{Field: "driver_id", Msg: "driver is not active", Err: err}
	case errors.Is(err, ErrConflict):
		return apperr.ConflictError{Resource: "booking", Msg: "booking was changed by another request", Err: err}
	case errors.Is(err, ErrInvalidState):
		return apperr.ConflictError{Resource: "booking", Msg: "booking is already closed", Err: err}
	}
	return apperr.Persistence(op, err)
}
