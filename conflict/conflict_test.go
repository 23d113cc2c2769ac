package conflict_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/conflict"
)

func tod(s string) calendar.TimeOfDay { return calendar.MustParseTimeOfDay(s) }

func appt(id, start, end string, status booking.Status) booking.Appointment {
	return booking.Appointment{
		ID:        booking.AppointmentID(id),
		StartTime: tod(start),
		EndTime:   tod(end),
		Status:    status,
	}
}

func TestHasConflict_Scenario(t *testing.T) {
	// GIVEN: an existing booking 10:00-10:30
	existing := []conflict.Interval{{Start: tod("10:00"), End: tod("10:30")}}

	// THEN: 10:15-10:45 overlaps, 10:30-11:00 is adjacent
	assert.True(t, conflict.HasConflict(tod("10:15"), tod("10:45"), existing))
	assert.False(t, conflict.HasConflict(tod("10:30"), tod("11:00"), existing))
}

func TestOverlaps_Symmetric(t *testing.T) {
	times := []string{"08:00", "08:30", "09:00", "09:15", "10:00", "11:30"}
	for _, as := range times {
		for _, ae := range times {
			if ae <= as {
				continue
			}
			for _, bs := range times {
				for _, be := range times {
					if be <= bs {
						continue
					}
					a := conflict.Interval{Start: tod(as), End: tod(ae)}
					b := conflict.Interval{Start: tod(bs), End: tod(be)}
					assert.Equal(t, conflict.Overlaps(a, b), conflict.Overlaps(b, a), "%v %v", a, b)
				}
			}
		}
	}
}

func TestOverlaps_SelfAndAdjacent(t *testing.T) {
	a := conflict.Interval{Start: tod("09:00"), End: tod("10:00")}
	assert.True(t, conflict.Overlaps(a, a))

	before := conflict.Interval{Start: tod("08:00"), End: tod("09:00")}
	after := conflict.Interval{Start: tod("10:00"), End: tod("11:00")}
	assert.False(t, conflict.Overlaps(before, a))
	assert.False(t, conflict.Overlaps(a, after))
}

func TestDetect_SkipsInactive(t *testing.T) {
	existing := []booking.Appointment{
		appt("a", "10:00", "11:00", booking.StatusCancelled),
		appt("b", "10:00", "11:00", booking.StatusNoShow),
		appt("c", "10:30", "11:30", booking.StatusConfirmed),
		appt("d", "09:00", "10:15", booking.StatusCompleted),
	}

	hits := conflict.Detect(tod("10:00"), tod("10:45"), existing, conflict.Options{})
	require.Len(t, hits, 2)
	assert.Equal(t, booking.AppointmentID("c"), hits[0].ID)
	assert.Equal(t, booking.AppointmentID("d"), hits[1].ID)

	hits = conflict.Detect(tod("10:00"), tod("10:45"), existing, conflict.Options{ExcludeCompleted: true})
	require.Len(t, hits, 1)
	assert.Equal(t, booking.AppointmentID("c"), hits[0].ID)
}

func TestDetect_IgnoresEditedAppointment(t *testing.T) {
	existing := []booking.Appointment{appt("self", "10:00", "11:00", booking.StatusPending)}

	hits := conflict.Detect(tod("10:30"), tod("11:30"), existing, conflict.Options{IgnoreID: "self"})
	assert.Empty(t, hits)
}

func TestWarning_WrapsSentinel(t *testing.T) {
	w := &conflict.Warning{
		Date:      calendar.MustParseDate("2025-03-10"),
		Start:     tod("10:15"),
		End:       tod("10:45"),
		Conflicts: []booking.Appointment{appt("x", "10:00", "10:30", booking.StatusPending)},
	}
	var err error = w

	assert.True(t, errors.Is(err, booking.ErrSlotConflict))
	assert.Contains(t, err.Error(), "10:00-10:30")
}
