package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/conflict"
)

type SlotQuery struct {
	Date            calendar.Date
	ResourceID      booking.ResourceID
	DurationMinutes int // 0 = one grid step
	Window          calendar.SlotRange
}

// AvailableSlots returns the start times in the window where a booking of
// the given duration fits, ending by Window.To, without overlapping an
// active one. Past dates have
// no slots; today drops slots that already started.
func (s *Service) AvailableSlots(ctx context.Context, act booking.ActingContext, q SlotQuery) ([]calendar.TimeOfDay, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	now := s.Clock.Now()
	today := calendar.DateOf(now, s.Clock.Location())
	if q.Date.Before(today) {
		return nil, nil
	}

	resource := q.ResourceID
	existing, err := s.Store.ListAppointments(ctx, booking.AppointmentFilter{
		OwnerID:    act.OwnerID,
		ResourceID: &resource,
	}.OnDay(q.Date))
	if err != nil {
		return nil, fmt.Errorf("failed to load day bookings: %w", err)
	}
	busy := conflict.Intervals(existing, conflict.Options{})

	length := time.Duration(q.DurationMinutes) * time.Minute
	if length <= 0 {
		length = q.Window.Step
	}
	if length <= 0 {
		length = calendar.DefaultSlotStep
	}
	earliest := calendar.TimeOfDay(-1)
	if q.Date.Equal(today) {
		earliest = calendar.NewTimeOfDay(now.Hour(), now.Minute())
	}

	var free []calendar.TimeOfDay
	for start := range q.Window.All() {
		if start <= earliest {
			continue
		}
		if start.Add(length) > q.Window.To {
			break
		}
		if !conflict.HasConflict(start, start.Add(length), busy) {
			free = append(free, start)
		}
	}
	return free, nil
}
