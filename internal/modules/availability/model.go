// README: Capacity model for booking slots: active drivers versus overlapping committed bookings.
package availability

import (
	"github.com/simaodiazz/curvas-humildes-server/internal/types"
)

// OccupyingStatuses are the booking statuses that hold a driver.
var OccupyingStatuses = []string{
	"PENDING_CONFIRMATION",
	"CONFIRMED",
	"DRIVER_ASSIGNED",
	"ON_ROUTE_PICKUP",
	"PASSENGER_ON_BOARD",
}

func isOccupying(status string) bool {
	for _, s := range OccupyingStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Slot is an existing same-day booking as the checker sees it.
type Slot struct {
	BookingID       types.ID
	Status          string
	Start           types.TimeOfDay
	DurationMinutes *int
}

// Window is a half-open interval in minutes after midnight. Bounds may fall
// outside [0, 1440) once the buffer is applied.
type Window struct {
	Start int
	End   int
}

func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

// RequestWindow pads the requested trip by buffer minutes on both sides.
func RequestWindow(start types.TimeOfDay, durationMinutes, buffer int) Window {
	return Window{
		Start: int(start) - buffer,
		End:   int(start) + durationMinutes + buffer,
	}
}

type Result struct {
	Available     bool
	ActiveDrivers int
	Conflicts     []types.ID
	// Skipped lists occupying bookings with no duration on record.
	Skipped []types.ID
}

// Evaluate counts the slots whose trip overlaps the padded request window and
// grants the request while conflicts stay below the active driver count.
// Existing bookings are compared on their own unpadded window.
func Evaluate(start types.TimeOfDay, durationMinutes, buffer, activeDrivers int, slots []Slot) Result {
	res := Result{ActiveDrivers: activeDrivers}
	want := RequestWindow(start, durationMinutes, buffer)
	for _, s := range slots {
		if !isOccupying(s.Status) {
			continue
		}
		if s.DurationMinutes == nil {
			res.Skipped = append(res.Skipped, s.BookingID)
			continue
		}
		held := Window{Start: int(s.Start), End: int(s.Start) + *s.DurationMinutes}
		if want.Overlaps(held) {
			res.Conflicts = append(res.Conflicts, s.BookingID)
		}
	}
	res.Available = activeDrivers > 0 && len(res.Conflicts) < activeDrivers
	return res
}
