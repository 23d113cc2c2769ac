package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
)

// DefaultCreditLookback bounds the deposit-credit scan to the most recent
// cancellations of a client.
const DefaultCreditLookback = 50

var hundred = decimal.NewFromInt(100)

// =============================================================================
// REQUIRED DEPOSIT
// =============================================================================

type Requirement struct {
	Required bool
	Amount   decimal.Decimal
}

// RequiredDeposit accumulates price × percent / 100 over deposit-requiring
// services. A flagged service with a zero percent still marks it required.
func RequiredDeposit(services []booking.Service) Requirement {
	r := Requirement{Amount: decimal.Zero}
	for _, s := range services {
		if !s.RequiresDeposit {
			continue
		}
		r.Required = true
		r.Amount = r.Amount.Add(s.Price.Mul(s.DepositPercent).Div(hundred))
	}
	return r
}

// =============================================================================
// DEPOSIT CREDIT - Reusable deposit from a cancelled appointment
// =============================================================================

type Credit struct {
	AppointmentID booking.AppointmentID
	Amount        decimal.Decimal
	Description   string
	PaymentIDs    []booking.PaymentID
}

// unrefundedDeposit returns the credit held by one appointment's payments,
// or nil when it has no deposit or the deposit was refunded.
func unrefundedDeposit(a booking.Appointment, payments []booking.Payment) *Credit {
	if HasKind(payments, booking.PaymentRefund) {
		return nil
	}
	c := &Credit{
		AppointmentID: a.ID,
		Amount:        decimal.Zero,
		Description:   strings.Join(a.ServiceNames(), ", "),
	}
	for _, p := range payments {
		if p.Kind == booking.PaymentDeposit {
			c.Amount = c.Amount.Add(p.Amount)
			c.PaymentIDs = append(c.PaymentIDs, p.ID)
		}
	}
	if len(c.PaymentIDs) == 0 {
		return nil
	}
	return c
}

// FindCredit scans the client's cancelled appointments newest-first and
// returns the first unrefunded deposit, or nil. At most lookback
// cancellations are inspected.
func FindCredit(ctx context.Context, store booking.Store, owner booking.OwnerID, client booking.ClientID, lookback int) (*Credit, error) {
	if client == "" {
		return nil, nil
	}
	if lookback <= 0 {
		lookback = DefaultCreditLookback
	}

	cancelled, err := store.ListAppointments(ctx, booking.AppointmentFilter{
		OwnerID:  owner,
		ClientID: client,
		Statuses: []booking.Status{booking.StatusCancelled},
		Order:    booking.OrderCancelledDesc,
		Limit:    lookback,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cancelled appointments: %w", err)
	}

	for _, a := range cancelled {
		payments, err := store.ListPayments(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list payments for %s: %w", a.ID, err)
		}
		if c := unrefundedDeposit(a, payments); c != nil {
			return c, nil
		}
	}
	return nil, nil
}

// =============================================================================
// DEPOSIT TRANSFER
// =============================================================================

// TransferDeposits re-points deposit payments from one appointment to another.
// It is a single store call, not atomic with whatever created the destination.
func TransferDeposits(ctx context.Context, store booking.PaymentStore, from, to booking.AppointmentID) ([]booking.PaymentID, error) {
	moved, err := store.ReassignPayments(ctx, from, to, booking.PaymentDeposit)
	if err != nil {
		return nil, fmt.Errorf("failed to transfer deposits from %s to %s: %w", from, to, err)
	}
	return moved, nil
}
