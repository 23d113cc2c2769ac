/*
Package lifecycle drives appointments through their states and applies the
ledger side effects each transition requires.

STATE MACHINE:
  ┌─────────┐ confirm ┌───────────┐ start ┌────────────┐
  │ Pending │───────▶│ Confirmed │──────▶│ InProgress │
  └─────────┘        └───────────┘       └────────────┘
     │  ▲                  │                    │
     │  │ reactivate       │ complete / cancel / no_show
     │  │                  ▼                    ▼
     │ ┌───────────┐   ┌───────────┐      ┌────────┐
     └▶│ Cancelled │   │ Completed │      │ NoShow │
       └───────────┘   └───────────┘      └────────┘

SIDE EFFECTS:
  confirm:    optional confirmation message
  complete:   outstanding balance > 0 needs a settlement method; a
              final_payment is recorded before the status changes
  cancel:     a held deposit needs a disposition: refund, retain, or
              reschedule (new appointment + deposit transfer)
  no_show:    none; deposit follow-up is manual
  reactivate: clears the cancellation timestamp

MULTI-STEP WRITES:
  Booking writes the appointment, then its service lines, then series
  occurrences. A failure undoes earlier steps through UnitOfWork
  compensations. Deposit transfer and external-ledger mirroring happen after
  the primary write and are reported as booking.PartialFailure, never
  rolled back.

SEE ALSO:
  - service.go: Book / Edit
  - transitions.go: Status changes
  - series.go: Series creation, extension, propagation
  - ledger/: Balance and deposit operations
*/
package lifecycle

import (
	"github.com/warp/booking-engine/booking"
)

// =============================================================================
// TRANSITIONS
// =============================================================================

type Trigger string

const (
	TriggerConfirm    Trigger = "confirm"
	TriggerStart      Trigger = "start"
	TriggerComplete   Trigger = "complete"
	TriggerCancel     Trigger = "cancel"
	TriggerNoShow     Trigger = "no_show"
	TriggerReactivate Trigger = "reactivate"
)

type transition struct {
	from []booking.Status
	to   booking.Status
}

var openStates = []booking.Status{booking.StatusPending, booking.StatusConfirmed, booking.StatusInProgress}

var transitions = map[Trigger]transition{
	TriggerConfirm:    {from: []booking.Status{booking.StatusPending}, to: booking.StatusConfirmed},
	TriggerStart:      {from: []booking.Status{booking.StatusPending, booking.StatusConfirmed}, to: booking.StatusInProgress},
	TriggerComplete:   {from: openStates, to: booking.StatusCompleted},
	TriggerCancel:     {from: openStates, to: booking.StatusCancelled},
	TriggerNoShow:     {from: openStates, to: booking.StatusNoShow},
	TriggerReactivate: {from: []booking.Status{booking.StatusCancelled}, to: booking.StatusPending},
}

// Next returns the status trig leads to from the given status.
func Next(from booking.Status, trig Trigger) (booking.Status, bool) {
	t, ok := transitions[trig]
	if !ok {
		return "", false
	}
	for _, s := range t.from {
		if s == from {
			return t.to, true
		}
	}
	return "", false
}

// Available lists the triggers allowed from a status, in a stable order.
func Available(from booking.Status) []Trigger {
	var out []Trigger
	for _, trig := range []Trigger{TriggerConfirm, TriggerStart, TriggerComplete, TriggerCancel, TriggerNoShow, TriggerReactivate} {
		if _, ok := Next(from, trig); ok {
			out = append(out, trig)
		}
	}
	return out
}

// guard returns the target status or a TransitionError.
func guard(a *booking.Appointment, trig Trigger) (booking.Status, error) {
	to, ok := Next(a.Status, trig)
	if !ok {
		return "", &booking.TransitionError{AppointmentID: a.ID, From: a.Status, To: transitions[trig].to}
	}
	return to, nil
}
