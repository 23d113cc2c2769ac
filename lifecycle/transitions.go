package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/ledger"
	"github.com/warp/booking-engine/messaging"
)

// =============================================================================
// SIMPLE TRANSITIONS
// =============================================================================

// transition loads, guards, applies mutate and persists.
func (s *Service) transition(ctx context.Context, act booking.ActingContext, id booking.AppointmentID, trig Trigger, mutate func(*booking.Appointment)) (*booking.Appointment, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	appt, err := s.Store.GetAppointment(ctx, act.OwnerID, id)
	if err != nil {
		return nil, err
	}
	to, err := guard(appt, trig)
	if err != nil {
		return nil, err
	}
	if err := s.setStatus(ctx, act, appt, to, mutate); err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) setStatus(ctx context.Context, act booking.ActingContext, appt *booking.Appointment, to booking.Status, mutate func(*booking.Appointment)) error {
	from := appt.Status
	appt.Status = to
	appt.UpdatedAt = s.Clock.Now()
	if mutate != nil {
		mutate(appt)
	}
	if err := s.Store.UpdateAppointment(ctx, appt); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	s.Metrics.Transition(string(to))
	s.Logger.Info().
		Str("appointment_id", string(appt.ID)).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", act.Actor()).
		Msg("appointment status changed")
	return nil
}

// Confirm moves a pending appointment to confirmed and optionally sends the
// confirmation message. A failed message is logged only.
func (s *Service) Confirm(ctx context.Context, act booking.ActingContext, id booking.AppointmentID, notify bool) (*booking.Appointment, error) {
	appt, err := s.transition(ctx, act, id, TriggerConfirm, nil)
	if err != nil {
		return nil, err
	}
	if notify {
		s.notify(ctx, act, appt, messaging.KindConfirmation)
	}
	return appt, nil
}

func (s *Service) Start(ctx context.Context, act booking.ActingContext, id booking.AppointmentID) (*booking.Appointment, error) {
	return s.transition(ctx, act, id, TriggerStart, nil)
}

// NoShow leaves any deposit untouched.
func (s *Service) NoShow(ctx context.Context, act booking.ActingContext, id booking.AppointmentID) (*booking.Appointment, error) {
	return s.transition(ctx, act, id, TriggerNoShow, nil)
}

func (s *Service) Reactivate(ctx context.Context, act booking.ActingContext, id booking.AppointmentID) (*booking.Appointment, error) {
	return s.transition(ctx, act, id, TriggerReactivate, func(a *booking.Appointment) {
		a.CancelledAt = nil
	})
}

// =============================================================================
// COMPLETE
// =============================================================================

// Settlement pays the outstanding balance at completion.
type Settlement struct {
	Method string
	Notes  string
	Mirror bool
}

type CompleteResult struct {
	Appointment *booking.Appointment
	Payment     *booking.Payment // nil when nothing was outstanding
}

// Complete finalizes an appointment. With an outstanding balance a
// settlement is required and a final_payment for the full outstanding amount
// is recorded before the status changes.
func (s *Service) Complete(ctx context.Context, act booking.ActingContext, id booking.AppointmentID, settle *Settlement) (*CompleteResult, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	appt, err := s.Store.GetAppointment(ctx, act.OwnerID, id)
	if err != nil {
		return nil, err
	}
	to, err := guard(appt, TriggerComplete)
	if err != nil {
		return nil, err
	}
	bal, err := s.Ledger.Balance(ctx, act, id)
	if err != nil {
		return nil, err
	}

	result := &CompleteResult{Appointment: appt}
	var partial []error
	uow := newUnitOfWork(s.Logger)
	if outstanding := bal.Outstanding(); outstanding.IsPositive() {
		if settle == nil || settle.Method == "" {
			return nil, &SettlementRequiredError{AppointmentID: id, Outstanding: outstanding}
		}
		err := uow.Do(ctx, "final payment",
			func(ctx context.Context) error {
				p, err := s.Ledger.RecordPayment(ctx, act, ledger.PaymentInput{
					AppointmentID: id,
					Kind:          booking.PaymentFinal,
					Amount:        outstanding,
					Method:        settle.Method,
					Notes:         settle.Notes,
					Mirror:        settle.Mirror,
				})
				if p == nil {
					return err
				}
				result.Payment = p
				if err != nil {
					partial = append(partial, s.partial("final payment mirror", err))
				}
				return nil
			},
			func(ctx context.Context) error { return s.Ledger.RemovePayment(ctx, act, result.Payment.ID) })
		if err != nil {
			return nil, err
		}
	}

	now := s.Clock.Now()
	if err := s.setStatus(ctx, act, appt, to, func(a *booking.Appointment) { a.CompletedAt = &now }); err != nil {
		return nil, uow.Fail(ctx, err)
	}
	uow.Commit()
	return result, errors.Join(partial...)
}

// =============================================================================
// CANCEL
// =============================================================================

type Disposition string

const (
	DispositionRefund     Disposition = "refund"
	DispositionRetain     Disposition = "retain"
	DispositionReschedule Disposition = "reschedule"
)

func (d Disposition) Valid() bool {
	return d == DispositionRefund || d == DispositionRetain || d == DispositionReschedule
}

type CancelInput struct {
	Disposition Disposition

	// Refund
	Method string
	Mirror bool

	// Reschedule. Zero fields default to the cancelled appointment's values.
	Reschedule *BookInput

	Notify bool
}

type CancelResult struct {
	Appointment *booking.Appointment
	Replacement *booking.Appointment
	Refund      *booking.Payment
	Transferred []booking.PaymentID
}

// Cancel cancels an appointment. An appointment holding an unrefunded
// deposit needs a disposition. Reschedule books the replacement, moves the
// deposits to it and then cancels the original; if the final status write
// fails the replacement and refund are compensated.
func (s *Service) Cancel(ctx context.Context, act booking.ActingContext, id booking.AppointmentID, in CancelInput) (*CancelResult, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	appt, err := s.Store.GetAppointment(ctx, act.OwnerID, id)
	if err != nil {
		return nil, err
	}
	to, err := guard(appt, TriggerCancel)
	if err != nil {
		return nil, err
	}
	if in.Disposition != "" && !in.Disposition.Valid() {
		return nil, booking.NewValidationError("disposition", fmt.Sprintf("unknown disposition %q", in.Disposition))
	}

	payments, err := s.Store.ListPayments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	deposit := ledger.SumByKind(payments, booking.PaymentDeposit)
	holdsDeposit := deposit.IsPositive() && !ledger.HasKind(payments, booking.PaymentRefund)
	if holdsDeposit && in.Disposition == "" {
		return nil, &DispositionRequiredError{AppointmentID: id, DepositTotal: deposit}
	}

	result := &CancelResult{Appointment: appt}
	var partial []error
	uow := newUnitOfWork(s.Logger)

	switch in.Disposition {
	case DispositionRefund:
		if !holdsDeposit {
			return nil, booking.NewValidationError("disposition", "appointment has no deposit to refund")
		}
		err := uow.Do(ctx, "refund deposit",
			func(ctx context.Context) error {
				p, err := s.Ledger.Refund(ctx, act, id, in.Method, in.Mirror)
				if p == nil {
					return err
				}
				result.Refund = p
				if err != nil {
					partial = append(partial, s.partial("refund mirror", err))
				}
				return nil
			},
			func(ctx context.Context) error { return s.Ledger.RemovePayment(ctx, act, result.Refund.ID) })
		if err != nil {
			return nil, err
		}

	case DispositionReschedule:
		if in.Reschedule == nil {
			return nil, booking.NewValidationError("reschedule", "new date and time required")
		}
		next := rescheduleInput(appt, *in.Reschedule)
		err := uow.Do(ctx, "book replacement",
			func(ctx context.Context) error {
				booked, err := s.Book(ctx, act, next)
				if booked == nil {
					return err
				}
				result.Replacement = booked.Appointment
				if err != nil {
					partial = append(partial, err)
				}
				return nil
			},
			func(ctx context.Context) error {
				return s.Store.DeleteAppointment(ctx, act.OwnerID, result.Replacement.ID)
			})
		if err != nil {
			return nil, uow.Fail(ctx, err)
		}
		if holdsDeposit {
			newID := result.Replacement.ID
			err := uow.Do(ctx, "transfer deposit",
				func(ctx context.Context) error {
					moved, err := s.Ledger.TransferDeposits(ctx, act, id, newID)
					result.Transferred = moved
					return err
				},
				func(ctx context.Context) error {
					_, err := ledger.TransferDeposits(ctx, s.Store, newID, id)
					return err
				})
			if err != nil {
				partial = append(partial, s.partial("deposit transfer", err))
			}
		}
	}

	now := s.Clock.Now()
	if err := s.setStatus(ctx, act, appt, to, func(a *booking.Appointment) { a.CancelledAt = &now }); err != nil {
		return nil, uow.Fail(ctx, err)
	}
	uow.Commit()

	if in.Notify {
		s.notify(ctx, act, appt, messaging.KindCancellation)
	}
	return result, errors.Join(partial...)
}

// rescheduleInput fills the replacement booking from the original.
func rescheduleInput(orig *booking.Appointment, in BookInput) BookInput {
	if in.Date.IsZero() {
		in.Date = orig.Date
	}
	if in.StartTime == nil {
		start := orig.StartTime
		in.StartTime = &start
	}
	if len(in.ServiceIDs) == 0 {
		for _, l := range orig.Services {
			in.ServiceIDs = append(in.ServiceIDs, l.ServiceID)
		}
	}
	if in.ClientID == "" && in.GuestName == "" {
		in.ClientID = orig.ClientID
		in.GuestName = orig.GuestName
	}
	if in.ResourceID == "" {
		in.ResourceID = orig.ResourceID
	}
	if in.Modality == "" {
		in.Modality = orig.Modality
		if in.VideoLink == "" {
			in.VideoLink = orig.VideoLink
		}
	}
	if in.Notes == "" {
		in.Notes = orig.Notes
	}
	if in.InternalNotes == "" {
		in.InternalNotes = orig.InternalNotes
	}
	if in.Source == "" {
		in.Source = orig.Source
	}
	in.Deposit = nil
	in.UseCreditFrom = ""
	in.Recurrence = nil
	return in
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes an appointment with its lines and payments. Mirrored entries
// of linked payments are removed first, best-effort.
func (s *Service) Delete(ctx context.Context, act booking.ActingContext, id booking.AppointmentID) error {
	if err := act.Validate(); err != nil {
		return err
	}
	if _, err := s.Store.GetAppointment(ctx, act.OwnerID, id); err != nil {
		return err
	}
	payments, err := s.Store.ListPayments(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list payments: %w", err)
	}

	var mirrorErrs []error
	if s.Ledger != nil {
		for _, p := range payments {
			if err := s.Ledger.Mirror.Remove(ctx, p); err != nil {
				mirrorErrs = append(mirrorErrs, err)
			}
		}
	}
	if err := s.Store.DeleteAppointment(ctx, act.OwnerID, id); err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	s.Logger.Info().
		Str("appointment_id", string(id)).
		Int("payments", len(payments)).
		Str("actor", act.Actor()).
		Msg("appointment deleted")

	if len(mirrorErrs) > 0 {
		return s.partial("external ledger delete", errors.Join(mirrorErrs...))
	}
	return nil
}
