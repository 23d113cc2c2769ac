/*
Package conflict detects time-slot overlaps between a candidate booking and
the existing bookings of the same day and resource.

RULE:
  Intervals are half-open [start, end). Two intervals conflict iff

    candidateStart < existingEnd AND candidateEnd > existingStart

  so back-to-back bookings (10:00-10:30 then 10:30-11:00) never conflict.

ACTIVE BOOKINGS:
  Cancelled and no-show appointments never block a slot. Completed ones do,
  unless the caller sets Options.ExcludeCompleted.

POLICY:
  Detection is advisory. The detector reports; callers decide whether to stop
  or to let the user override and proceed. Warning wraps
  booking.ErrSlotConflict so transports can map it to a confirm prompt.

SEE ALSO:
  - lifecycle/service.go: Book and Edit surface warnings
  - lifecycle/slots.go: Available-slot enumeration reuses Overlaps
*/
package conflict

import (
	"fmt"
	"strings"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
)

// Interval is a half-open time range on one day.
type Interval struct {
	Start calendar.TimeOfDay
	End   calendar.TimeOfDay
}

// Overlaps is symmetric: Overlaps(a, b) == Overlaps(b, a).
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && a.End > b.Start
}

// HasConflict reports whether [start, end) overlaps any interval.
func HasConflict(start, end calendar.TimeOfDay, existing []Interval) bool {
	candidate := Interval{Start: start, End: end}
	for _, e := range existing {
		if Overlaps(candidate, e) {
			return true
		}
	}
	return false
}

// Options tune which existing bookings are considered.
type Options struct {
	ExcludeCompleted bool
	IgnoreID         booking.AppointmentID // the appointment being edited
}

// Detect returns the existing appointments that overlap the candidate range,
// in their original order.
func Detect(start, end calendar.TimeOfDay, existing []booking.Appointment, opts Options) []booking.Appointment {
	candidate := Interval{Start: start, End: end}
	var hits []booking.Appointment
	for _, a := range existing {
		if !counts(a, opts) {
			continue
		}
		if Overlaps(candidate, Interval{Start: a.StartTime, End: a.EndTime}) {
			hits = append(hits, a)
		}
	}
	return hits
}

// Intervals extracts the blocking intervals of existing appointments.
func Intervals(existing []booking.Appointment, opts Options) []Interval {
	out := make([]Interval, 0, len(existing))
	for _, a := range existing {
		if counts(a, opts) {
			out = append(out, Interval{Start: a.StartTime, End: a.EndTime})
		}
	}
	return out
}

func counts(a booking.Appointment, opts Options) bool {
	if opts.IgnoreID != "" && a.ID == opts.IgnoreID {
		return false
	}
	if !a.Status.IsActive() {
		return false
	}
	if opts.ExcludeCompleted && a.Status == booking.StatusCompleted {
		return false
	}
	return true
}

// =============================================================================
// WARNING - Non-fatal, requires explicit override
// =============================================================================

// Warning lists the bookings a candidate overlaps.
type Warning struct {
	Date      calendar.Date
	Start     calendar.TimeOfDay
	End       calendar.TimeOfDay
	Conflicts []booking.Appointment
}

func (w *Warning) Error() string {
	slots := make([]string, len(w.Conflicts))
	for i, c := range w.Conflicts {
		slots[i] = c.StartTime.String() + "-" + c.EndTime.String()
	}
	return fmt.Sprintf("%s %s-%s overlaps %s", w.Date, w.Start, w.End, strings.Join(slots, ", "))
}

func (w *Warning) Unwrap() error { return booking.ErrSlotConflict }
