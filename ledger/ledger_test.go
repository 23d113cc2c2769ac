package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/booking/store"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var act = booking.ActingContext{OwnerID: "owner-1"}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeExternal struct {
	entries map[string]ledger.Entry
	fail    error
	seq     int
}

func newFakeExternal() *fakeExternal {
	return &fakeExternal{entries: make(map[string]ledger.Entry)}
}

func (f *fakeExternal) RecordEntry(_ context.Context, e ledger.Entry) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.seq++
	id := fmt.Sprintf("entry-%d", f.seq)
	f.entries[id] = e
	return id, nil
}

func (f *fakeExternal) DeleteEntry(_ context.Context, id string) error {
	if f.fail != nil {
		return f.fail
	}
	delete(f.entries, id)
	return nil
}

func newTestLedger(t *testing.T, ext ledger.ExternalLedger) (*ledger.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	clock := calendar.FixedClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC), time.UTC)
	seq := 0
	l := ledger.New(mem, ext, clock, zerolog.Nop(), nil)
	l.NewID = func() string { seq++; return fmt.Sprintf("pay-%03d", seq) }
	return l, mem
}

func seedAppointment(t *testing.T, mem *store.Memory, id string, client booking.ClientID, status booking.Status, price string) *booking.Appointment {
	t.Helper()
	ctx := context.Background()
	a := &booking.Appointment{
		ID:        booking.AppointmentID(id),
		OwnerID:   act.OwnerID,
		Date:      calendar.MustParseDate("2025-03-10"),
		StartTime: calendar.MustParseTimeOfDay("10:00"),
		Status:    status,
		ClientID:  client,
	}
	require.NoError(t, mem.CreateAppointment(ctx, a))
	require.NoError(t, mem.ReplaceServiceBookings(ctx, a.ID, []booking.ServiceBooking{
		{ServiceID: "svc-cut", ServiceName: "Haircut", Price: dec(price), DurationMinutes: 30},
	}))
	got, err := mem.GetAppointment(ctx, act.OwnerID, a.ID)
	require.NoError(t, err)
	return got
}

func payment(kind booking.PaymentKind, amount string) booking.Payment {
	return booking.Payment{Kind: kind, Amount: dec(amount)}
}

// =============================================================================
// BALANCE
// =============================================================================

func TestComputeBalance_DepositScenario(t *testing.T) {
	// GIVEN: a 10000 service with a 3000 deposit
	b := ledger.ComputeBalance(dec("10000"), []booking.Payment{payment(booking.PaymentDeposit, "3000")})

	// THEN: 7000 is still pending
	assert.True(t, b.Pending.Equal(dec("7000")), b.Pending.String())
	assert.True(t, b.TotalDeposits.Equal(dec("3000")))
	assert.False(t, b.IsFullySettled)
}

func TestComputeBalance_Idempotent(t *testing.T) {
	payments := []booking.Payment{
		payment(booking.PaymentDeposit, "3000"),
		payment(booking.PaymentFinal, "5000"),
	}
	first := ledger.ComputeBalance(dec("10000"), payments)
	second := ledger.ComputeBalance(dec("10000"), payments)
	assert.True(t, first.Pending.Equal(second.Pending))
	assert.True(t, first.EffectiveTotal.Equal(second.EffectiveTotal))
	assert.True(t, first.TotalPaidGross.Equal(second.TotalPaidGross))
	assert.Equal(t, first.IsFullySettled, second.IsFullySettled)
	assert.True(t, first.Pending.Equal(dec("2000")))
}

func TestComputeBalance_OverpaymentNeverOwes(t *testing.T) {
	totals := []string{"0", "1000", "9999.99", "10000"}
	for _, total := range totals {
		payments := []booking.Payment{
			payment(booking.PaymentDeposit, "3000"),
			payment(booking.PaymentFinal, "8000"),
		}
		b := ledger.ComputeBalance(dec(total), payments)
		assert.False(t, b.Pending.IsPositive(), "total %s pending %s", total, b.Pending)
		assert.True(t, b.IsFullySettled)
		assert.True(t, b.EffectiveTotal.Equal(dec("11000")))
	}
}

func TestComputeBalance_RefundReopensBalance(t *testing.T) {
	b := ledger.ComputeBalance(dec("10000"), []booking.Payment{
		payment(booking.PaymentDeposit, "3000"),
		payment(booking.PaymentRefund, "3000"),
	})
	assert.True(t, b.Pending.Equal(dec("10000")))
	assert.True(t, b.TotalRefunded.Equal(dec("3000")))
	assert.True(t, b.Outstanding().Equal(dec("10000")))
}

// =============================================================================
// REQUIRED DEPOSIT
// =============================================================================

func TestRequiredDeposit(t *testing.T) {
	services := []booking.Service{
		{Name: "Color", Price: dec("10000"), RequiresDeposit: true, DepositPercent: dec("30")},
		{Name: "Wash", Price: dec("2000")},
	}
	r := ledger.RequiredDeposit(services)
	assert.True(t, r.Required)
	assert.True(t, r.Amount.Equal(dec("3000")), r.Amount.String())

	none := ledger.RequiredDeposit(services[1:])
	assert.False(t, none.Required)
	assert.True(t, none.Amount.IsZero())
}

// =============================================================================
// DEPOSIT CREDIT
// =============================================================================

func TestFindCredit_ReturnsUnrefundedDeposit(t *testing.T) {
	l, mem := newTestLedger(t, nil)
	ctx := context.Background()

	// GIVEN: a cancelled appointment holding a 3000 deposit
	a := seedAppointment(t, mem, "appt-1", "client-1", booking.StatusCancelled, "10000")
	_, err := l.RecordPayment(ctx, act, ledger.PaymentInput{AppointmentID: a.ID, Kind: booking.PaymentDeposit, Amount: dec("3000")})
	require.NoError(t, err)

	// WHEN: looking up credit
	credit, err := l.DepositCredit(ctx, act, "client-1")
	require.NoError(t, err)

	// THEN: the 3000 is available
	require.NotNil(t, credit)
	assert.Equal(t, a.ID, credit.AppointmentID)
	assert.True(t, credit.Amount.Equal(dec("3000")))
	assert.Equal(t, "Haircut", credit.Description)

	// WHEN: the deposit is refunded
	_, err = l.Refund(ctx, act, a.ID, "cash", false)
	require.NoError(t, err)

	// THEN: no credit remains
	credit, err = l.DepositCredit(ctx, act, "client-1")
	require.NoError(t, err)
	assert.Nil(t, credit)
}

func TestFindCredit_IgnoresActiveAppointments(t *testing.T) {
	l, mem := newTestLedger(t, nil)
	ctx := context.Background()

	a := seedAppointment(t, mem, "appt-1", "client-1", booking.StatusConfirmed, "10000")
	_, err := l.RecordPayment(ctx, act, ledger.PaymentInput{AppointmentID: a.ID, Kind: booking.PaymentDeposit, Amount: dec("3000")})
	require.NoError(t, err)

	credit, err := l.DepositCredit(ctx, act, "client-1")
	require.NoError(t, err)
	assert.Nil(t, credit)
}

func TestFindCredit_MostRecentCancellationWins(t *testing.T) {
	l, mem := newTestLedger(t, nil)
	ctx := context.Background()

	older := seedAppointment(t, mem, "appt-old", "client-1", booking.StatusCancelled, "5000")
	newer := seedAppointment(t, mem, "appt-new", "client-1", booking.StatusCancelled, "8000")
	t1 := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC)
	older.CancelledAt, newer.CancelledAt = &t1, &t2
	require.NoError(t, mem.UpdateAppointment(ctx, older))
	require.NoError(t, mem.UpdateAppointment(ctx, newer))

	for _, a := range []*booking.Appointment{older, newer} {
		_, err := l.RecordPayment(ctx, act, ledger.PaymentInput{AppointmentID: a.ID, Kind: booking.PaymentDeposit, Amount: dec("1000")})
		require.NoError(t, err)
	}

	credit, err := l.DepositCredit(ctx, act, "client-1")
	require.NoError(t, err)
	require.NotNil(t, credit)
	assert.Equal(t, newer.ID, credit.AppointmentID)
}

func TestFindCredit_LookbackBound(t *testing.T) {
	l, mem := newTestLedger(t, nil)
	ctx := context.Background()
	l.CreditLookback = 1

	// Only the older cancellation carries a deposit.
	older := seedAppointment(t, mem, "appt-old", "client-1", booking.StatusCancelled, "5000")
	newer := seedAppointment(t, mem, "appt-new", "client-1", booking.StatusCancelled, "5000")
	t1 := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 2, 20, 10, 0, 0, 0, time.UTC)
	older.CancelledAt, newer.CancelledAt = &t1, &t2
	require.NoError(t, mem.UpdateAppointment(ctx, older))
	require.NoError(t, mem.UpdateAppointment(ctx, newer))
	_, err := l.RecordPayment(ctx, act, ledger.PaymentInput{AppointmentID: older.ID, Kind: booking.PaymentDeposit, Amount: dec("1000")})
	require.NoError(t, err)

	credit, err := l.DepositCredit(ctx, act, "client-1")
	require.NoError(t, err)
	assert.Nil(t, credit)
}

// =============================================================================
// TRANSFER
// =============================================================================

func TestTransferDeposits_MovesOnlyDeposits(t *testing.T) {
	l, mem := newTestLedger(t, nil)
	ctx := context.Background()

	src := seedAppointment(t, mem, "appt-src", "client-1", booking.StatusPending, "10000")
	dst := seedAppointment(t, mem, "appt-dst", "client-1", booking.StatusPending, "10000")
	_, err := l.RecordPayment(ctx, act, ledger.PaymentInput{AppointmentID: src.ID, Kind: booking.PaymentDeposit, Amount: dec("3000")})
	require.NoError(t, err)
	_, err = l.RecordPayment(ctx, act, ledger.PaymentInput{AppointmentID: src.ID, Kind: booking.PaymentFinal, Amount: dec("500")})
	require.NoError(t, err)

	moved, err := l.TransferDeposits(ctx, act, src.ID, dst.ID)
	require.NoError(t, err)
	assert.Len(t, moved, 1)

	srcPayments, _ := mem.ListPayments(ctx, src.ID)
	dstPayments, _ := mem.ListPayments(ctx, dst.ID)
	assert.False(t, ledger.HasKind(srcPayments, booking.PaymentDeposit))
	assert.True(t, ledger.HasKind(srcPayments, booking.PaymentFinal))
	require.Len(t, dstPayments, 1)
	assert.True(t, dstPayments[0].Amount.Equal(dec("3000")))
}

// =============================================================================
// MIRRORING
// =============================================================================

func TestRecordPayment_MirrorsIncomeAndExpense(t *testing.T) {
	ext := newFakeExternal()
	l, mem := newTestLedger(t, ext)
	ctx := context.Background()
	a := seedAppointment(t, mem, "appt-1", "", booking.StatusPending, "10000")

	dep, err := l.RecordPayment(ctx, act, ledger.PaymentInput{AppointmentID: a.ID, Kind: booking.PaymentDeposit, Amount: dec("3000"), Mirror: true})
	require.NoError(t, err)
	assert.True(t, dep.Linked)

	ref, err := l.Refund(ctx, act, a.ID, "transfer", true)
	require.NoError(t, err)
	assert.True(t, ref.Linked)

	depEntry := ext.entries[dep.ExternalRef]
	assert.Equal(t, ledger.Income, depEntry.Direction)
	assert.Equal(t, ledger.CategoryDeposit, depEntry.Category)
	assert.Equal(t, ledger.SourceAppointment, depEntry.SourceType)
	assert.Equal(t, "appt-1", depEntry.SourceID)

	refEntry := ext.entries[ref.ExternalRef]
	assert.Equal(t, ledger.Expense, refEntry.Direction)
	assert.Equal(t, ledger.CategoryRefund, refEntry.Category)

	stored, err := mem.GetPayment(ctx, act.OwnerID, dep.ID)
	require.NoError(t, err)
	assert.True(t, stored.Linked)
}

func TestRecordPayment_MirrorFailureKeepsPayment(t *testing.T) {
	ext := newFakeExternal()
	ext.fail = errors.New("ledger offline")
	l, mem := newTestLedger(t, ext)
	ctx := context.Background()
	a := seedAppointment(t, mem, "appt-1", "", booking.StatusPending, "10000")

	p, err := l.RecordPayment(ctx, act, ledger.PaymentInput{AppointmentID: a.ID, Kind: booking.PaymentFinal, Amount: dec("10000"), Mirror: true})

	// THEN: partial failure, payment exists unlinked
	require.Error(t, err)
	assert.True(t, booking.IsPartial(err))
	require.NotNil(t, p)
	stored, getErr := mem.GetPayment(ctx, act.OwnerID, p.ID)
	require.NoError(t, getErr)
	assert.False(t, stored.Linked)
}

func TestRemovePayment_DeletesExternalEntry(t *testing.T) {
	ext := newFakeExternal()
	l, mem := newTestLedger(t, ext)
	ctx := context.Background()
	a := seedAppointment(t, mem, "appt-1", "", booking.StatusPending, "10000")

	p, err := l.RecordPayment(ctx, act, ledger.PaymentInput{AppointmentID: a.ID, Kind: booking.PaymentDeposit, Amount: dec("3000"), Mirror: true})
	require.NoError(t, err)
	require.Len(t, ext.entries, 1)

	require.NoError(t, l.RemovePayment(ctx, act, p.ID))
	assert.Empty(t, ext.entries)
	_, err = mem.GetPayment(ctx, act.OwnerID, p.ID)
	assert.ErrorIs(t, err, booking.ErrPaymentNotFound)
}

func TestRecordPayment_Validation(t *testing.T) {
	l, mem := newTestLedger(t, nil)
	a := seedAppointment(t, mem, "appt-1", "", booking.StatusPending, "10000")

	_, err := l.RecordPayment(context.Background(), act, ledger.PaymentInput{AppointmentID: a.ID, Kind: booking.PaymentDeposit, Amount: dec("-5")})
	var v *booking.ValidationError
	require.ErrorAs(t, err, &v)
	assert.Contains(t, v.FieldErrors, "amount")

	_, err = l.Refund(context.Background(), act, a.ID, "cash", false)
	assert.ErrorIs(t, err, booking.ErrValidation)
}

func TestRecordPayment_OtherOwnerNotFound(t *testing.T) {
	l, mem := newTestLedger(t, nil)
	a := seedAppointment(t, mem, "appt-1", "", booking.StatusPending, "10000")

	other := booking.ActingContext{OwnerID: "owner-2"}
	_, err := l.RecordPayment(context.Background(), other, ledger.PaymentInput{AppointmentID: a.ID, Kind: booking.PaymentDeposit, Amount: dec("1")})
	assert.ErrorIs(t, err, booking.ErrAppointmentNotFound)
}
