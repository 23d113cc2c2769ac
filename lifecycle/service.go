package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/conflict"
	"github.com/warp/booking-engine/ledger"
	"github.com/warp/booking-engine/messaging"
	"github.com/warp/booking-engine/metrics"
	"github.com/warp/booking-engine/recurrence"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service is the entry point for every appointment mutation. It holds no
// state between calls; everything lives in Store.
type Service struct {
	Store          booking.Store
	Ledger         *ledger.Ledger
	Clock          *calendar.Clock
	Dispatcher     messaging.Dispatcher
	Templates      *messaging.Templates
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
	NewID          func() string
	ExtensionBatch int
}

// New wires a lifecycle service. Messages are discarded until a Dispatcher
// is set.
func New(store booking.Store, l *ledger.Ledger, clock *calendar.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = calendar.NewClock(time.UTC)
	}
	return &Service{
		Store:          store,
		Ledger:         l,
		Clock:          clock,
		Dispatcher:     messaging.Discard,
		Templates:      messaging.MustTemplates(),
		Logger:         logger,
		NewID:          uuid.NewString,
		ExtensionBatch: recurrence.DefaultExtensionBatch,
	}
}

// WithStore returns a copy bound to s, used inside store transactions.
func (s *Service) WithStore(store booking.Store) *Service {
	cp := *s
	cp.Store = store
	if s.Ledger != nil {
		cp.Ledger = s.Ledger.WithStore(store)
	}
	return &cp
}

func (s *Service) Get(ctx context.Context, act booking.ActingContext, id booking.AppointmentID) (*booking.Appointment, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	return s.Store.GetAppointment(ctx, act.OwnerID, id)
}

// List scopes the filter to the acting owner.
func (s *Service) List(ctx context.Context, act booking.ActingContext, f booking.AppointmentFilter) ([]booking.Appointment, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	f.OwnerID = act.OwnerID
	return s.Store.ListAppointments(ctx, f)
}

// =============================================================================
// BOOK
// =============================================================================

// DepositInput is a deposit collected at booking time.
type DepositInput struct {
	Amount decimal.Decimal
	Method string
	Mirror bool
}

type BookInput struct {
	Date          calendar.Date
	StartTime     *calendar.TimeOfDay
	ServiceIDs    []booking.ServiceID
	ClientID      booking.ClientID
	GuestName     string
	ResourceID    booking.ResourceID
	Source        booking.Source
	Modality      booking.Modality
	VideoLink     string
	Notes         string
	InternalNotes string

	Recurrence *recurrence.Pattern
	Deposit    *DepositInput

	// UseCreditFrom transfers the deposits of a cancelled appointment.
	UseCreditFrom booking.AppointmentID

	// AllowOverlap is the explicit override for a conflict warning.
	AllowOverlap bool
}

func (in BookInput) validate() error {
	v := &booking.ValidationError{}
	if in.Date.IsZero() {
		v.Add("date", "required")
	}
	if in.StartTime == nil {
		v.Add("start_time", "select a time slot")
	}
	if len(in.ServiceIDs) == 0 {
		v.Add("services", "select at least one service")
	}
	if in.ClientID == "" && in.GuestName == "" {
		v.Add("client_id", "choose a client or enter a guest name")
	}
	if in.Recurrence != nil {
		if err := in.Recurrence.Validate(); err != nil {
			v.Add("recurrence", err.Error())
		}
	}
	if in.Deposit != nil && !in.Deposit.Amount.IsPositive() {
		v.Add("deposit", "amount must be positive")
	}
	if in.Modality == booking.ModalityVideo && in.VideoLink == "" {
		v.Add("video_link", "required for video appointments")
	}
	return v.OrNil()
}

type BookResult struct {
	Appointment *booking.Appointment
	Occurrences []booking.Appointment
	Conflicts   []booking.Appointment // overlaps accepted through AllowOverlap
	Deposit     *booking.Payment
	Transferred []booking.PaymentID
}

// Book creates an appointment and, for recurring input, the rest of its
// series. Overlaps return *conflict.Warning and write nothing unless
// AllowOverlap is set. Deposit recording and credit transfer run after the
// appointment exists; their failures come back as *booking.PartialFailure
// next to a non-nil result.
func (s *Service) Book(ctx context.Context, act booking.ActingContext, in BookInput) (*BookResult, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	lines, err := s.snapshotServices(ctx, act.OwnerID, in.ServiceIDs)
	if err != nil {
		return nil, err
	}
	if in.ClientID != "" {
		if _, err := s.Store.GetClient(ctx, act.OwnerID, in.ClientID); err != nil {
			return nil, err
		}
	}
	if in.UseCreditFrom != "" {
		if _, err := s.Ledger.CreditFrom(ctx, act, in.ClientID, in.UseCreditFrom); err != nil {
			return nil, err
		}
	}

	now := s.Clock.Now()
	source := in.Source
	if source == "" {
		source = booking.SourceManual
	}
	modality := in.Modality
	if modality == "" {
		modality = booking.ModalityInPerson
	}
	root := &booking.Appointment{
		ID:            booking.AppointmentID(s.NewID()),
		OwnerID:       act.OwnerID,
		Date:          in.Date,
		StartTime:     *in.StartTime,
		Status:        booking.StatusPending,
		Source:        source,
		ClientID:      in.ClientID,
		GuestName:     in.GuestName,
		ResourceID:    in.ResourceID,
		Services:      lines,
		Modality:      modality,
		VideoLink:     in.VideoLink,
		Notes:         in.Notes,
		InternalNotes: in.InternalNotes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	root.RecomputeEnd()

	overlaps, err := s.overlaps(ctx, root, "")
	if err != nil {
		return nil, err
	}
	if len(overlaps) > 0 {
		s.Metrics.Conflict()
		if !in.AllowOverlap {
			return nil, &conflict.Warning{Date: root.Date, Start: root.StartTime, End: root.EndTime, Conflicts: overlaps}
		}
		s.Logger.Info().
			Str("date", root.Date.String()).
			Int("overlaps", len(overlaps)).
			Str("actor", act.Actor()).
			Msg("overlap accepted by override")
	}

	var dates []calendar.Date
	if in.Recurrence != nil {
		p := *in.Recurrence
		root.Pattern = &p
		if p.Indeterminate {
			dates = append([]calendar.Date{root.Date}, recurrence.Extend(root.Date, root.Date, p.Type, s.batch(0))...)
		} else {
			dates = recurrence.Generate(root.Date, p)
		}
		end := dates[len(dates)-1]
		root.SeriesEnd = &end
	}

	uow := newUnitOfWork(s.Logger)
	if err := s.insert(ctx, uow, root); err != nil {
		return nil, uow.Fail(ctx, err)
	}
	result := &BookResult{Appointment: root, Conflicts: overlaps}
	if len(dates) > 1 {
		for _, d := range dates[1:] {
			occ := s.occurrence(root, d, now)
			if err := s.insert(ctx, uow, &occ); err != nil {
				return nil, uow.Fail(ctx, err)
			}
			result.Occurrences = append(result.Occurrences, occ)
		}
	}
	uow.Commit()

	s.Metrics.Transition(string(booking.StatusPending))
	s.Logger.Info().
		Str("appointment_id", string(root.ID)).
		Str("date", root.Date.String()).
		Str("start", root.StartTime.String()).
		Int("occurrences", len(result.Occurrences)).
		Str("source", string(root.Source)).
		Str("actor", act.Actor()).
		Msg("appointment booked")

	var partial []error
	if in.Deposit != nil {
		p, err := s.Ledger.RecordPayment(ctx, act, ledger.PaymentInput{
			AppointmentID: root.ID,
			Kind:          booking.PaymentDeposit,
			Amount:        in.Deposit.Amount,
			Method:        in.Deposit.Method,
			Notes:         "deposit at booking",
			Mirror:        in.Deposit.Mirror,
		})
		result.Deposit = p
		if err != nil {
			partial = append(partial, s.partial("deposit", err))
		}
	}
	if in.UseCreditFrom != "" {
		moved, err := s.Ledger.TransferDeposits(ctx, act, in.UseCreditFrom, root.ID)
		if err != nil {
			partial = append(partial, s.partial("deposit transfer", err))
		}
		result.Transferred = moved
	}
	return result, errors.Join(partial...)
}

// snapshotServices freezes catalog entries into ordered booking lines.
func (s *Service) snapshotServices(ctx context.Context, owner booking.OwnerID, ids []booking.ServiceID) ([]booking.ServiceBooking, error) {
	lines := make([]booking.ServiceBooking, 0, len(ids))
	for i, id := range ids {
		svc, err := s.Store.GetService(ctx, owner, id)
		if err != nil {
			return nil, err
		}
		if !svc.Active {
			return nil, booking.NewValidationError("services", fmt.Sprintf("service %q is not offered", svc.Name))
		}
		lines = append(lines, svc.Snapshot(i))
	}
	return lines, nil
}

// overlaps lists the active bookings on the same day and resource that a
// would intersect.
func (s *Service) overlaps(ctx context.Context, a *booking.Appointment, ignore booking.AppointmentID) ([]booking.Appointment, error) {
	resource := a.ResourceID
	existing, err := s.Store.ListAppointments(ctx, booking.AppointmentFilter{
		OwnerID:    a.OwnerID,
		ResourceID: &resource,
	}.OnDay(a.Date))
	if err != nil {
		return nil, fmt.Errorf("failed to load day bookings: %w", err)
	}
	return conflict.Detect(a.StartTime, a.EndTime, existing, conflict.Options{IgnoreID: ignore}), nil
}

// insert writes the appointment row and its lines, registering the
// compensating delete.
func (s *Service) insert(ctx context.Context, uow *UnitOfWork, a *booking.Appointment) error {
	owner, id := a.OwnerID, a.ID
	for i := range a.Services {
		a.Services[i].AppointmentID = id
	}
	err := uow.Do(ctx, "create appointment "+string(id),
		func(ctx context.Context) error { return s.Store.CreateAppointment(ctx, a) },
		func(ctx context.Context) error { return s.Store.DeleteAppointment(ctx, owner, id) })
	if err != nil {
		return err
	}
	return uow.Do(ctx, "insert service lines "+string(id),
		func(ctx context.Context) error { return s.Store.ReplaceServiceBookings(ctx, id, a.Services) },
		nil)
}

// partial wraps a secondary-step error unless it already is a partial failure.
func (s *Service) partial(step string, err error) error {
	var pf *booking.PartialFailure
	if !errors.As(err, &pf) {
		pf = &booking.PartialFailure{Step: step, Err: err}
	}
	s.Metrics.Partial(pf.Step)
	s.Logger.Warn().Err(pf.Err).Str("step", pf.Step).Msg("secondary step failed after primary write")
	return pf
}

func (s *Service) batch(n int) int {
	if n > 0 {
		return n
	}
	if s.ExtensionBatch > 0 {
		return s.ExtensionBatch
	}
	return recurrence.DefaultExtensionBatch
}

// =============================================================================
// EDIT
// =============================================================================

// EditInput changes only the non-nil fields.
type EditInput struct {
	Date          *calendar.Date
	StartTime     *calendar.TimeOfDay
	ServiceIDs    []booking.ServiceID
	ClientID      *booking.ClientID
	GuestName     *string
	ResourceID    *booking.ResourceID
	Modality      *booking.Modality
	VideoLink     *string
	Notes         *string
	InternalNotes *string

	// Propagate applies start time, notes, modality, video link and date
	// shift to the future active occurrences of the series.
	Propagate    bool
	AllowOverlap bool
}

type EditResult struct {
	Appointment *booking.Appointment
	Conflicts   []booking.Appointment
	Propagated  int
}

// Edit updates one appointment. With Propagate it also updates later
// occurrences; those updates are independent and their failures are joined
// into the returned error next to a non-nil result.
func (s *Service) Edit(ctx context.Context, act booking.ActingContext, id booking.AppointmentID, in EditInput) (*EditResult, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	appt, err := s.Store.GetAppointment(ctx, act.OwnerID, id)
	if err != nil {
		return nil, err
	}
	before := *appt
	before.Services = append([]booking.ServiceBooking(nil), appt.Services...)

	if in.StartTime != nil {
		appt.StartTime = *in.StartTime
	}
	if in.Date != nil {
		appt.Date = *in.Date
	}
	if in.ResourceID != nil {
		appt.ResourceID = *in.ResourceID
	}
	if in.ClientID != nil {
		if *in.ClientID != "" {
			if _, err := s.Store.GetClient(ctx, act.OwnerID, *in.ClientID); err != nil {
				return nil, err
			}
		}
		appt.ClientID = *in.ClientID
	}
	if in.GuestName != nil {
		appt.GuestName = *in.GuestName
	}
	if in.Modality != nil {
		appt.Modality = *in.Modality
	}
	if in.VideoLink != nil {
		appt.VideoLink = *in.VideoLink
	}
	if in.Notes != nil {
		appt.Notes = *in.Notes
	}
	if in.InternalNotes != nil {
		appt.InternalNotes = *in.InternalNotes
	}
	linesChanged := in.ServiceIDs != nil
	if linesChanged {
		if len(in.ServiceIDs) == 0 {
			return nil, booking.NewValidationError("services", "select at least one service")
		}
		lines, err := s.snapshotServices(ctx, act.OwnerID, in.ServiceIDs)
		if err != nil {
			return nil, err
		}
		for i := range lines {
			lines[i].AppointmentID = appt.ID
		}
		appt.Services = lines
	}
	if appt.ClientID == "" && appt.GuestName == "" {
		return nil, booking.NewValidationError("client_id", "choose a client or enter a guest name")
	}
	if appt.Modality == booking.ModalityVideo && appt.VideoLink == "" {
		return nil, booking.NewValidationError("video_link", "required for video appointments")
	}
	appt.RecomputeEnd()
	appt.UpdatedAt = s.Clock.Now()

	result := &EditResult{Appointment: appt}
	moved := !appt.Date.Equal(before.Date) || appt.StartTime != before.StartTime ||
		appt.EndTime != before.EndTime || appt.ResourceID != before.ResourceID
	if moved && appt.Status.IsActive() {
		overlaps, err := s.overlaps(ctx, appt, appt.ID)
		if err != nil {
			return nil, err
		}
		if len(overlaps) > 0 {
			s.Metrics.Conflict()
			if !in.AllowOverlap {
				return nil, &conflict.Warning{Date: appt.Date, Start: appt.StartTime, End: appt.EndTime, Conflicts: overlaps}
			}
			result.Conflicts = overlaps
		}
	}

	uow := newUnitOfWork(s.Logger)
	err = uow.Do(ctx, "update appointment",
		func(ctx context.Context) error { return s.Store.UpdateAppointment(ctx, appt) },
		func(ctx context.Context) error { return s.Store.UpdateAppointment(ctx, &before) })
	if err != nil {
		return nil, uow.Fail(ctx, err)
	}
	if linesChanged {
		err = uow.Do(ctx, "replace service lines",
			func(ctx context.Context) error { return s.Store.ReplaceServiceBookings(ctx, appt.ID, appt.Services) },
			nil)
		if err != nil {
			return nil, uow.Fail(ctx, err)
		}
	}
	uow.Commit()

	s.Logger.Info().
		Str("appointment_id", string(appt.ID)).
		Str("actor", act.Actor()).
		Msg("appointment updated")

	if !in.Propagate || !appt.IsRecurring() {
		return result, nil
	}
	n, err := s.propagate(ctx, act, &before, appt, in)
	result.Propagated = n
	if err != nil {
		return result, s.partial("series propagation", err)
	}
	return result, nil
}
