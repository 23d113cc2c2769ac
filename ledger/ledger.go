package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/metrics"
)

// =============================================================================
// LEDGER SERVICE - Store-backed payment operations
// =============================================================================

// Ledger records, removes and reconciles appointment payments.
type Ledger struct {
	Store          booking.Store
	Mirror         *Mirror
	Clock          *calendar.Clock
	Logger         zerolog.Logger
	Metrics        *metrics.Metrics
	CreditLookback int
	NewID          func() string
}

// New wires a ledger. external may be nil when no cash ledger is configured.
func New(store booking.Store, external ExternalLedger, clock *calendar.Clock, logger zerolog.Logger, m *metrics.Metrics) *Ledger {
	l := &Ledger{
		Store:          store,
		Clock:          clock,
		Logger:         logger,
		Metrics:        m,
		CreditLookback: DefaultCreditLookback,
		NewID:          uuid.NewString,
	}
	if external != nil {
		l.Mirror = &Mirror{External: external, Store: store, Clock: clock, Logger: logger, Metrics: m}
	}
	return l
}

// WithStore returns a copy bound to s, used inside store transactions.
func (l *Ledger) WithStore(s booking.Store) *Ledger {
	cp := *l
	cp.Store = s
	if l.Mirror != nil {
		mirror := *l.Mirror
		mirror.Store = s
		cp.Mirror = &mirror
	}
	return &cp
}

// PaymentInput describes a payment to record.
type PaymentInput struct {
	AppointmentID booking.AppointmentID
	Kind          booking.PaymentKind
	Amount        decimal.Decimal
	Method        string
	Notes         string
	PaidAt        time.Time // zero means now
	Mirror        bool
}

func (in PaymentInput) validate() error {
	v := &booking.ValidationError{}
	if in.AppointmentID == "" {
		v.Add("appointment_id", "required")
	}
	if !in.Kind.Valid() {
		v.Add("kind", fmt.Sprintf("unknown payment kind %q", in.Kind))
	}
	if !in.Amount.IsPositive() {
		v.Add("amount", "must be positive")
	}
	return v.OrNil()
}

// Balance loads an appointment and computes its balance.
func (l *Ledger) Balance(ctx context.Context, act booking.ActingContext, id booking.AppointmentID) (Balance, error) {
	appt, err := l.Store.GetAppointment(ctx, act.OwnerID, id)
	if err != nil {
		return Balance{}, err
	}
	payments, err := l.Store.ListPayments(ctx, id)
	if err != nil {
		return Balance{}, fmt.Errorf("failed to list payments: %w", err)
	}
	return ComputeBalance(appt.ServiceTotal(), payments), nil
}

// Payments lists an appointment's payments after an ownership check.
func (l *Ledger) Payments(ctx context.Context, act booking.ActingContext, id booking.AppointmentID) ([]booking.Payment, error) {
	if _, err := l.Store.GetAppointment(ctx, act.OwnerID, id); err != nil {
		return nil, err
	}
	return l.Store.ListPayments(ctx, id)
}

// RecordPayment persists a payment and, if asked, mirrors it. A mirror
// failure is returned as *booking.PartialFailure next to the saved payment.
func (l *Ledger) RecordPayment(ctx context.Context, act booking.ActingContext, in PaymentInput) (*booking.Payment, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	appt, err := l.Store.GetAppointment(ctx, act.OwnerID, in.AppointmentID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	p := &booking.Payment{
		ID:            booking.PaymentID(l.NewID()),
		OwnerID:       act.OwnerID,
		AppointmentID: appt.ID,
		Kind:          in.Kind,
		Amount:        in.Amount,
		PaidAt:        paidAt,
		Method:        in.Method,
		Notes:         in.Notes,
		CreatedAt:     now,
	}
	if err := l.Store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	l.Metrics.Payment(string(p.Kind))

	l.Logger.Info().
		Str("appointment_id", string(appt.ID)).
		Str("payment_id", string(p.ID)).
		Str("kind", string(p.Kind)).
		Str("amount", p.Amount.String()).
		Str("actor", act.Actor()).
		Msg("payment recorded")

	if in.Mirror && l.Mirror != nil {
		if err := l.Mirror.Record(ctx, p, l.describe(ctx, act, appt, p.Kind)); err != nil {
			l.Metrics.Partial("external_ledger")
			return p, &booking.PartialFailure{Step: "external ledger mirror", Err: err}
		}
	}
	return p, nil
}

// RemovePayment deletes the mirrored entry (best-effort) and then the payment.
func (l *Ledger) RemovePayment(ctx context.Context, act booking.ActingContext, id booking.PaymentID) error {
	p, err := l.Store.GetPayment(ctx, act.OwnerID, id)
	if err != nil {
		return err
	}
	mirrorErr := l.Mirror.Remove(ctx, *p)
	if err := l.Store.DeletePayment(ctx, id); err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	if mirrorErr != nil {
		l.Metrics.Partial("external_ledger_delete")
		return &booking.PartialFailure{Step: "external ledger delete", Err: mirrorErr}
	}
	return nil
}

// Refund records a refund equal to the appointment's deposit total.
func (l *Ledger) Refund(ctx context.Context, act booking.ActingContext, id booking.AppointmentID, method string, mirror bool) (*booking.Payment, error) {
	payments, err := l.Payments(ctx, act, id)
	if err != nil {
		return nil, err
	}
	deposits := SumByKind(payments, booking.PaymentDeposit)
	if !deposits.IsPositive() {
		return nil, booking.NewValidationError("disposition", "appointment has no deposit to refund")
	}
	return l.RecordPayment(ctx, act, PaymentInput{
		AppointmentID: id,
		Kind:          booking.PaymentRefund,
		Amount:        deposits,
		Method:        method,
		Notes:         "deposit refund",
		Mirror:        mirror,
	})
}

// DepositCredit looks up reusable deposit credit for a returning client.
func (l *Ledger) DepositCredit(ctx context.Context, act booking.ActingContext, client booking.ClientID) (*Credit, error) {
	return FindCredit(ctx, l.Store, act.OwnerID, client, l.CreditLookback)
}

// CreditFrom resolves the credit held by one specific appointment. It must be
// a cancelled appointment of client holding a deposit that was never refunded;
// anything else is a validation error on use_credit_from.
func (l *Ledger) CreditFrom(ctx context.Context, act booking.ActingContext, client booking.ClientID, id booking.AppointmentID) (*Credit, error) {
	a, err := l.Store.GetAppointment(ctx, act.OwnerID, id)
	if err != nil {
		return nil, err
	}
	switch {
	case client == "" || a.ClientID != client:
		return nil, booking.NewValidationError("use_credit_from", "belongs to another client")
	case a.Status != booking.StatusCancelled:
		return nil, booking.NewValidationError("use_credit_from", "appointment is not cancelled")
	}
	payments, err := l.Store.ListPayments(ctx, id)
	if err != nil {
		return nil, err
	}
	credit := unrefundedDeposit(*a, payments)
	if credit == nil {
		return nil, booking.NewValidationError("use_credit_from", "no unrefunded deposit")
	}
	return credit, nil
}

// TransferDeposits moves deposits between two appointments of the same owner.
func (l *Ledger) TransferDeposits(ctx context.Context, act booking.ActingContext, from, to booking.AppointmentID) ([]booking.PaymentID, error) {
	for _, id := range []booking.AppointmentID{from, to} {
		if _, err := l.Store.GetAppointment(ctx, act.OwnerID, id); err != nil {
			return nil, err
		}
	}
	moved, err := TransferDeposits(ctx, l.Store, from, to)
	if err != nil {
		return nil, err
	}
	l.Logger.Info().
		Str("from", string(from)).
		Str("to", string(to)).
		Int("payments", len(moved)).
		Msg("deposit transferred")
	return moved, nil
}

// describe builds the external entry description: who and what.
func (l *Ledger) describe(ctx context.Context, act booking.ActingContext, appt *booking.Appointment, kind booking.PaymentKind) string {
	var client *booking.Client
	if appt.ClientID != "" {
		c, err := l.Store.GetClient(ctx, act.OwnerID, appt.ClientID)
		if err != nil && !errors.Is(err, booking.ErrClientNotFound) {
			l.Logger.Debug().Err(err).Msg("client lookup for entry description failed")
		}
		client = c
	}
	parts := []string{EntryFor(booking.Payment{Kind: kind}, calendar.Date{}, "").Category}
	if name := appt.DisplayName(client); name != "" {
		parts = append(parts, name)
	}
	if names := appt.ServiceNames(); len(names) > 0 {
		parts = append(parts, strings.Join(names, ", "))
	}
	return strings.Join(parts, " - ")
}

func (l *Ledger) now() time.Time {
	if l.Clock == nil {
		return time.Now()
	}
	return l.Clock.Now()
}
