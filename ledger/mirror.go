package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/metrics"
)

// =============================================================================
// EXTERNAL LEDGER - Consumed write contract of the business cash ledger
// =============================================================================

type Direction string

const (
	Income  Direction = "income"
	Expense Direction = "expense"
)

const SourceAppointment = "appointment"

// Category names per payment kind. The adapter looks them up or creates them.
const (
	CategoryDeposit = "Appointment deposit"
	CategoryRefund  = "Deposit refund"
	CategoryPayment = "Appointment payment"
)

// Entry is one cash movement in the external ledger.
type Entry struct {
	OwnerID     string
	Date        calendar.Date
	Direction   Direction
	Category    string
	Amount      decimal.Decimal
	Method      string
	Description string
	SourceType  string
	SourceID    string
}

// ExternalLedger records and deletes cash movements.
type ExternalLedger interface {
	RecordEntry(ctx context.Context, e Entry) (string, error)
	DeleteEntry(ctx context.Context, entryID string) error
}

// EntryFor maps a payment onto its external entry. Refunds are expenses,
// everything else is income.
func EntryFor(p booking.Payment, date calendar.Date, description string) Entry {
	e := Entry{
		OwnerID:     string(p.OwnerID),
		Date:        date,
		Direction:   Income,
		Amount:      p.Amount,
		Method:      p.Method,
		Description: description,
		SourceType:  SourceAppointment,
		SourceID:    string(p.AppointmentID),
	}
	switch p.Kind {
	case booking.PaymentDeposit:
		e.Category = CategoryDeposit
	case booking.PaymentRefund:
		e.Direction = Expense
		e.Category = CategoryRefund
	default:
		e.Category = CategoryPayment
	}
	return e
}

// =============================================================================
// MIRROR - Best-effort copy of payments into the external ledger
// =============================================================================

// Mirror never rolls back the payment it mirrors. On failure the payment
// stays unlinked and the error is returned for the caller to surface.
type Mirror struct {
	External ExternalLedger
	Store    booking.PaymentStore
	Clock    *calendar.Clock
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
}

// Record creates the external entry for p and links it. p is updated in place.
func (m *Mirror) Record(ctx context.Context, p *booking.Payment, description string) error {
	if m == nil || m.External == nil {
		return nil
	}

	var loc *time.Location
	if m.Clock != nil {
		loc = m.Clock.Location()
	}
	date := calendar.DateOf(p.PaidAt, loc)
	entryID, err := m.External.RecordEntry(ctx, EntryFor(*p, date, description))
	if err != nil {
		m.Metrics.MirrorFailure("record")
		m.Logger.Warn().Err(err).
			Str("payment_id", string(p.ID)).
			Str("kind", string(p.Kind)).
			Msg("external ledger entry not created; payment kept unlinked")
		return fmt.Errorf("failed to record external entry: %w", err)
	}

	if err := m.Store.MarkPaymentLinked(ctx, p.ID, entryID); err != nil {
		m.Metrics.MirrorFailure("link")
		m.Logger.Warn().Err(err).
			Str("payment_id", string(p.ID)).
			Str("entry_id", entryID).
			Msg("external entry created but payment link not saved")
		return fmt.Errorf("failed to link payment %s: %w", p.ID, err)
	}

	p.Linked = true
	p.ExternalRef = entryID
	return nil
}

// Remove deletes the mirrored entry of a linked payment.
func (m *Mirror) Remove(ctx context.Context, p booking.Payment) error {
	if m == nil || m.External == nil || !p.Linked || p.ExternalRef == "" {
		return nil
	}
	if err := m.External.DeleteEntry(ctx, p.ExternalRef); err != nil {
		m.Metrics.MirrorFailure("delete")
		m.Logger.Warn().Err(err).
			Str("payment_id", string(p.ID)).
			Str("entry_id", p.ExternalRef).
			Msg("external entry not deleted")
		return fmt.Errorf("failed to delete external entry %s: %w", p.ExternalRef, err)
	}
	return nil
}
