// README: Booking aggregate, status machine and admission commands.
package booking

import (
	"strings"
	"time"

	"github.com/simaodiazz/curvas-humildes-server/internal/apperr"
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

type Status string

const (
	StatusNone                Status = "NONE"
	StatusPendingConfirmation Status = "PENDING_CONFIRMATION"
	StatusConfirmed           Status = "CONFIRMED"
	StatusDriverAssigned      Status = "DRIVER_ASSIGNED"
	StatusOnRoutePickup       Status = "ON_ROUTE_PICKUP"
	StatusPassengerOnBoard    Status = "PASSENGER_ON_BOARD"
	StatusCompleted           Status = "COMPLETED"
	StatusCanceledByClient    Status = "CANCELED_BY_CLIENT"
	StatusCanceledByAdmin     Status = "CANCELED_BY_ADMIN"
	StatusNoShow              Status = "NO_SHOW"
)

// KnownStatuses is the allow-list accepted by explicit status updates.
var KnownStatuses = []Status{
	StatusPendingConfirmation,
	StatusConfirmed,
	StatusDriverAssigned,
	StatusOnRoutePickup,
	StatusPassengerOnBoard,
	StatusCompleted,
	StatusCanceledByClient,
	StatusCanceledByAdmin,
	StatusNoShow,
}

func ParseStatus(s string) (Status, error) {
	candidate := Status(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range KnownStatuses {
		if candidate == known {
			return known, nil
		}
	}
	return "", apperr.Validation("status", "unknown status "+s)
}

// Terminal statuses admit no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCanceledByClient, StatusCanceledByAdmin, StatusNoShow:
		return true
	}
	return false
}

// AfterDriverChange is the status a booking moves to when its driver is set
// (assigned=true) or cleared. Only CONFIRMED and DRIVER_ASSIGNED move.
func (s Status) AfterDriverChange(assigned bool) Status {
	switch {
	case assigned && s == StatusConfirmed:
		return StatusDriverAssigned
	case !assigned && s == StatusDriverAssigned:
		return StatusConfirmed
	}
	return s
}

// Booking is a persisted ride request. Fare fields are frozen at admission.
type Booking struct {
	ID               types.ID
	UserID           *types.ID
	PassengerName    string
	PassengerPhone   *string
	Date             time.Time
	Time             types.TimeOfDay
	DurationMinutes  *int
	Pickup           string
	Dropoff          string
	Passengers       int
	Bags             int
	Instructions     *string
	OriginalBudget   types.Money
	DiscountAmount   types.Money
	FinalBudget      types.Money
	VATPercentage    float64
	VATAmount        types.Money
	TotalWithVAT     types.Money
	AppliedVoucher   *string
	Status           Status
	StatusVersion    int
	AssignedDriverID *types.ID
	CreatedAt        time.Time
}

type Actor struct {
	Type string
	ID   *types.ID
}

const (
	ActorCustomer = "customer"
	ActorAdmin    = "admin"
)

type Event struct {
	ID         int64
	BookingID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

type ListFilter struct {
	UserID *types.ID
	Date   *time.Time
	Status *Status
}

// AdmitCommand is a customer booking request as submitted.
type AdmitCommand struct {
	UserID          *types.ID
	PassengerName   string
	PassengerPhone  *string
	Date            string
	Time            string
	DurationMinutes int
	Pickup          string
	Dropoff         string
	Passengers      int
	Bags            int
	Instructions    *string
	VoucherCode     string
}

// EstimateCommand prices a trip without booking it. An empty Time prices at
// the current wall-clock time.
type EstimateCommand struct {
	Passengers int
	Bags       int
	Pickup     string
	Dropoff    string
	Time       string
}

type AvailabilityQuery struct {
	Date            string
	Time            string
	DurationMinutes int
}

const dateLayout = "2006-01-02"

// ParseDate reads YYYY-MM-DD as a calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, apperr.Validation("date", "must be YYYY-MM-DD")
	}
	return d, nil
}

func ParseTime(s string) (types.TimeOfDay, error) {
	t, err := types.ParseTimeOfDay(strings.TrimSpace(s))
	if err != nil {
		return 0, apperr.Validation("time", "must be HH:MM")
	}
	return t, nil
}

func FormatDate(d time.Time) string { return d.Format(dateLayout) }

type admission struct {
	date     time.Time
	start    types.TimeOfDay
	duration int
}

// startsAt is the pickup instant on the wall clock of loc.
func (a admission) startsAt(loc *time.Location) time.Time {
	y, m, d := a.date.Date()
	return time.Date(y, m, d, a.start.Hour(), a.start.Minute(), 0, 0, loc)
}

func (c AdmitCommand) validate() (admission, error) {
	if strings.TrimSpace(c.PassengerName) == "" {
		return admission{}, apperr.Validation("passenger_name", "is required")
	}
	date, err := ParseDate(c.Date)
	if err != nil {
		return admission{}, err
	}
	start, err := ParseTime(c.Time)
	if err != nil {
		return admission{}, err
	}
	switch {
	case c.DurationMinutes <= 0:
		return admission{}, apperr.Validation("duration_minutes", "must be greater than zero")
	case c.Passengers < 1:
		return admission{}, apperr.Validation("passengers", "must be at least 1")
	case c.Bags < 0:
		return admission{}, apperr.Validation("bags", "cannot be negative")
	case strings.TrimSpace(c.Pickup) == "":
		return admission{}, apperr.Validation("pickup_location", "is required")
	case strings.TrimSpace(c.Dropoff) == "":
		return admission{}, apperr.Validation("dropoff_location", "is required")
	}
	return admission{date: date, start: start, duration: c.DurationMinutes}, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
