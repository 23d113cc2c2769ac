/*
Package ledger reconciles an appointment's payments against what it costs.

PURPOSE:
  Answers "how much does this appointment still owe?", "how much deposit does
  it require?", "does this client have deposit credit from a cancellation?",
  and moves or mirrors payments when the lifecycle asks it to.

BALANCE FORMULA:
  totalDeposits  = Σ deposit
  totalPaidGross = Σ amount where kind ≠ refund
  totalRefunded  = Σ refund
  effectiveTotal = max(serviceTotal, totalPaidGross)
  pending        = effectiveTotal - totalPaidGross + totalRefunded
  settled        = pending <= 0

  effectiveTotal absorbs ad-hoc surcharges charged above the service list, so
  an overpaid appointment never shows as still owing.

EXAMPLE:
  Service 10000, deposit 3000:
    effectiveTotal = 10000, pending = 7000

  Same appointment, final payment 8000 (2000 tip):
    paidGross = 11000, effectiveTotal = 11000, pending = 0

SEE ALSO:
  - deposit.go: Required deposit and reusable credit
  - mirror.go: External ledger mirroring
  - ledger.go: Ledger service (store-backed operations)
*/
package ledger

import (
	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
)

// =============================================================================
// BALANCE - Pure function of the service total and the payment list
// =============================================================================

type Balance struct {
	ServiceTotal   decimal.Decimal
	TotalDeposits  decimal.Decimal
	TotalPaidGross decimal.Decimal
	TotalRefunded  decimal.Decimal
	EffectiveTotal decimal.Decimal
	Pending        decimal.Decimal
	IsFullySettled bool
}

// ComputeBalance holds no state; the same inputs always give the same result.
func ComputeBalance(serviceTotal decimal.Decimal, payments []booking.Payment) Balance {
	b := Balance{
		ServiceTotal:   serviceTotal,
		TotalDeposits:  decimal.Zero,
		TotalPaidGross: decimal.Zero,
		TotalRefunded:  decimal.Zero,
	}

	for _, p := range payments {
		switch p.Kind {
		case booking.PaymentRefund:
			b.TotalRefunded = b.TotalRefunded.Add(p.Amount)
		case booking.PaymentDeposit:
			b.TotalDeposits = b.TotalDeposits.Add(p.Amount)
			b.TotalPaidGross = b.TotalPaidGross.Add(p.Amount)
		default:
			b.TotalPaidGross = b.TotalPaidGross.Add(p.Amount)
		}
	}

	b.EffectiveTotal = decimal.Max(serviceTotal, b.TotalPaidGross)
	b.Pending = b.EffectiveTotal.Sub(b.TotalPaidGross).Add(b.TotalRefunded)
	b.IsFullySettled = !b.Pending.IsPositive()
	return b
}

// Outstanding is the amount still owed, never negative.
func (b Balance) Outstanding() decimal.Decimal {
	if b.Pending.IsPositive() {
		return b.Pending
	}
	return decimal.Zero
}

// SumByKind totals the payments of one kind.
func SumByKind(payments []booking.Payment, kind booking.PaymentKind) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Kind == kind {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// HasKind reports whether any payment has the given kind.
func HasKind(payments []booking.Payment, kind booking.PaymentKind) bool {
	for _, p := range payments {
		if p.Kind == kind {
			return true
		}
	}
	return false
}
