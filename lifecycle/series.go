package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/recurrence"
)

// =============================================================================
// OCCURRENCES
// =============================================================================

// occurrence copies the root's time, resource, services and notes onto d.
func (s *Service) occurrence(root *booking.Appointment, d calendar.Date, now time.Time) booking.Appointment {
	occ := *root
	occ.ID = booking.AppointmentID(s.NewID())
	occ.Date = d
	occ.Status = booking.StatusPending
	occ.RootSeriesID = root.ID
	occ.Pattern = nil
	occ.SeriesEnd = nil
	occ.ReminderSent = false
	occ.ReminderSentAt = nil
	occ.CompletedAt = nil
	occ.CancelledAt = nil
	occ.CreatedAt = now
	occ.UpdatedAt = now
	occ.Services = make([]booking.ServiceBooking, len(root.Services))
	copy(occ.Services, root.Services)
	return occ
}

// seriesRoot loads the root of a's series, or nil if it was deleted.
func (s *Service) seriesRoot(ctx context.Context, owner booking.OwnerID, a *booking.Appointment) (*booking.Appointment, error) {
	if a.RootSeriesID == "" {
		return a, nil
	}
	root, err := s.Store.GetAppointment(ctx, owner, a.RootSeriesID)
	if errors.Is(err, booking.ErrAppointmentNotFound) {
		return nil, nil
	}
	return root, err
}

// =============================================================================
// PROPAGATION
// =============================================================================

// propagate copies the edited fields to the series occurrences dated on or
// after the original date that still occupy their slot. Each occurrence is
// written independently.
func (s *Service) propagate(ctx context.Context, act booking.ActingContext, before, after *booking.Appointment, in EditInput) (int, error) {
	root, err := s.seriesRoot(ctx, act.OwnerID, after)
	if err != nil {
		return 0, fmt.Errorf("failed to load series root: %w", err)
	}
	cadence := recurrence.Weekly
	if root != nil && root.Pattern != nil {
		cadence = root.Pattern.Type
	}

	rootID := after.SeriesRoot()
	from := before.Date
	targets, err := s.Store.ListAppointments(ctx, booking.AppointmentFilter{
		OwnerID:      act.OwnerID,
		RootSeriesID: rootID,
		From:         &from,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list series occurrences: %w", err)
	}
	if root != nil && root.ID != after.ID && root.Date.AfterOrEqual(from) {
		targets = append(targets, *root)
	}

	dateChanged := !before.Date.Equal(after.Date)
	now := s.Clock.Now()
	count := 0
	var errs []error
	for _, occ := range targets {
		if occ.ID == after.ID || !occ.Status.IsActive() {
			continue
		}
		if in.StartTime != nil {
			occ.StartTime = after.StartTime
		}
		if in.Notes != nil {
			occ.Notes = after.Notes
		}
		if in.Modality != nil {
			occ.Modality = after.Modality
		}
		if in.VideoLink != nil {
			occ.VideoLink = after.VideoLink
		}
		if dateChanged {
			occ.Date = recurrence.Shift(occ.Date, before.Date, after.Date, cadence)
		}
		occ.RecomputeEnd()
		occ.UpdatedAt = now

		if err := s.Store.UpdateAppointment(ctx, &occ); err != nil {
			s.Logger.Warn().Err(err).
				Str("appointment_id", string(occ.ID)).
				Msg("occurrence not updated")
			errs = append(errs, fmt.Errorf("occurrence %s: %w", occ.ID, err))
			continue
		}
		count++
	}

	s.Metrics.Propagated(count)
	s.Logger.Info().
		Str("series", string(rootID)).
		Int("updated", count).
		Int("failed", len(errs)).
		Msg("series edit propagated")
	return count, errors.Join(errs...)
}

// =============================================================================
// EXTENSION - Open-ended series grow one batch at a time
// =============================================================================

// ExtendSeries appends batch occurrences after the last persisted one.
// id may be the root or any occurrence of the series. batch <= 0 uses
// ExtensionBatch.
func (s *Service) ExtendSeries(ctx context.Context, act booking.ActingContext, id booking.AppointmentID, batch int) ([]booking.Appointment, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	a, err := s.Store.GetAppointment(ctx, act.OwnerID, id)
	if err != nil {
		return nil, err
	}
	root, err := s.seriesRoot(ctx, act.OwnerID, a)
	if err != nil {
		return nil, err
	}
	if root == nil || root.Pattern == nil || !root.Pattern.Indeterminate {
		return nil, ErrNotIndeterminate
	}

	last, err := s.lastOccurrence(ctx, root)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	dates := recurrence.Extend(root.Date, last, root.Pattern.Type, s.batch(batch))
	uow := newUnitOfWork(s.Logger)
	created := make([]booking.Appointment, 0, len(dates))
	for _, d := range dates {
		occ := s.occurrence(root, d, now)
		if err := s.insert(ctx, uow, &occ); err != nil {
			return nil, uow.Fail(ctx, err)
		}
		created = append(created, occ)
	}

	prevEnd := root.SeriesEnd
	end := dates[len(dates)-1]
	root.SeriesEnd = &end
	root.UpdatedAt = now
	err = uow.Do(ctx, "update series end",
		func(ctx context.Context) error { return s.Store.UpdateAppointment(ctx, root) },
		nil)
	if err != nil {
		root.SeriesEnd = prevEnd
		return nil, uow.Fail(ctx, err)
	}
	uow.Commit()

	s.Metrics.Extended(len(created))
	s.Logger.Info().
		Str("series", string(root.ID)).
		Str("from", dates[0].String()).
		Str("to", end.String()).
		Int("added", len(created)).
		Str("actor", act.Actor()).
		Msg("series extended")
	return created, nil
}

// lastOccurrence returns the latest persisted date of the series, any status.
func (s *Service) lastOccurrence(ctx context.Context, root *booking.Appointment) (calendar.Date, error) {
	latest, err := s.Store.ListAppointments(ctx, booking.AppointmentFilter{
		OwnerID:      root.OwnerID,
		RootSeriesID: root.ID,
		Order:        booking.OrderDateDesc,
		Limit:        1,
	})
	if err != nil {
		return calendar.Date{}, fmt.Errorf("failed to find last occurrence: %w", err)
	}
	if len(latest) == 0 || latest[0].Date.Before(root.Date) {
		return root.Date, nil
	}
	return latest[0].Date, nil
}

// ExtendDue extends every open-ended series, across owners, whose last
// occurrence falls within horizon of today. It returns the number of
// occurrences created.
func (s *Service) ExtendDue(ctx context.Context, horizon time.Duration) (int, error) {
	roots, err := s.Store.ListAppointments(ctx, booking.AppointmentFilter{Indeterminate: true})
	if err != nil {
		return 0, fmt.Errorf("failed to list open series: %w", err)
	}

	limit := s.Clock.Today().AddDays(int(horizon / (24 * time.Hour)))
	total := 0
	var errs []error
	for i := range roots {
		root := &roots[i]
		if !root.Status.IsActive() {
			continue
		}
		last, err := s.lastOccurrence(ctx, root)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if last.After(limit) {
			continue
		}
		act := booking.ActingContext{OwnerID: root.OwnerID, ActingAsID: "scheduler"}
		created, err := s.ExtendSeries(ctx, act, root.ID, 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("series %s: %w", root.ID, err))
			continue
		}
		total += len(created)
	}
	return total, errors.Join(errs...)
}
