package lifecycle

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
)

var (
	// ErrSettlementRequired: completion with an outstanding balance and no method.
	ErrSettlementRequired = errors.New("settlement method required")

	// ErrDispositionRequired: cancellation of an appointment holding a deposit.
	ErrDispositionRequired = errors.New("deposit disposition required")

	// ErrNotIndeterminate: extension requested for a bounded or non-recurring appointment.
	ErrNotIndeterminate = errors.New("appointment is not part of an indeterminate series")
)

// SettlementRequiredError tells the caller how much must be settled.
type SettlementRequiredError struct {
	AppointmentID booking.AppointmentID
	Outstanding   decimal.Decimal
}

func (e *SettlementRequiredError) Error() string {
	return fmt.Sprintf("appointment %s has %s outstanding; a settlement method is required",
		e.AppointmentID, e.Outstanding.StringFixed(2))
}

func (e *SettlementRequiredError) Unwrap() error { return ErrSettlementRequired }

// DispositionRequiredError tells the caller a deposit must be refunded,
// retained or transferred.
type DispositionRequiredError struct {
	AppointmentID booking.AppointmentID
	DepositTotal  decimal.Decimal
}

func (e *DispositionRequiredError) Error() string {
	return fmt.Sprintf("appointment %s holds a %s deposit; choose refund, retain or reschedule",
		e.AppointmentID, e.DepositTotal.StringFixed(2))
}

func (e *DispositionRequiredError) Unwrap() error { return ErrDispositionRequired }
