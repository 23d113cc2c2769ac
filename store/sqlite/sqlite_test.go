package sqlite

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
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/cashbook"
	"github.com/warp/booking-engine/ledger"
	"github.com/warp/booking-engine/lifecycle"
	"github.com/warp/booking-engine/publiclink"
	"github.com/warp/booking-engine/recurrence"
)

const owner = booking.OwnerID("owner-1")

var act = booking.ActingContext{OwnerID: owner}

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func date(s string) calendar.Date { return calendar.MustParseDate(s) }

func tod(s string) calendar.TimeOfDay { return calendar.MustParseTimeOfDay(s) }

var created = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func appointment(id, day, start string) *booking.Appointment {
	a := &booking.Appointment{
		ID:        booking.AppointmentID(id),
		OwnerID:   owner,
		Date:      date(day),
		StartTime: tod(start),
		Status:    booking.StatusPending,
		Source:    booking.SourceManual,
		ClientID:  "cli-1",
		Modality:  booking.ModalityInPerson,
		Services: []booking.ServiceBooking{
			{ServiceID: "svc-cut", ServiceName: "Haircut", Price: decimal.NewFromInt(10000), DurationMinutes: 30},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
	a.RecomputeEnd()
	return a
}

func create(t *testing.T, s booking.Store, a *booking.Appointment) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateAppointment(ctx, a))
	require.NoError(t, s.ReplaceServiceBookings(ctx, a.ID, a.Services))
}

func payment(id, appt string, kind booking.PaymentKind, amount int64) *booking.Payment {
	return &booking.Payment{
		ID:            booking.PaymentID(id),
		OwnerID:       owner,
		AppointmentID: booking.AppointmentID(appt),
		Kind:          kind,
		Amount:        decimal.NewFromInt(amount),
		PaidAt:        created,
		Method:        "cash",
		CreatedAt:     created,
	}
}

// =============================================================================
// APPOINTMENTS
// =============================================================================

func TestAppointment_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	end := date("2025-06-30")
	a := appointment("appt-1", "2025-03-10", "10:00")
	a.Pattern = &recurrence.Pattern{Type: recurrence.Monthly, EndDate: &end}
	a.SeriesEnd = &end
	a.Notes = "bring photos"
	a.Modality = booking.ModalityVideo
	a.VideoLink = "https://meet.example/abc"
	create(t, s, a)

	got, err := s.GetAppointment(ctx, owner, "appt-1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", got.Date.String())
	assert.Equal(t, "10:30", got.EndTime.String())
	assert.Equal(t, booking.ModalityVideo, got.Modality)
	assert.Equal(t, "https://meet.example/abc", got.VideoLink)
	require.NotNil(t, got.Pattern)
	assert.Equal(t, recurrence.Monthly, got.Pattern.Type)
	assert.Equal(t, "2025-06-30", got.Pattern.EndDate.String())
	assert.Equal(t, "2025-06-30", got.SeriesEnd.String())
	require.Len(t, got.Services, 1)
	assert.True(t, got.Services[0].Price.Equal(decimal.NewFromInt(10000)))
	assert.True(t, got.CreatedAt.Equal(created))

	_, err = s.GetAppointment(ctx, "owner-2", "appt-1")
	assert.ErrorIs(t, err, booking.ErrAppointmentNotFound)
}

func TestUpdateAppointment(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := appointment("appt-1", "2025-03-10", "10:00")
	create(t, s, a)

	cancelledAt := created.Add(time.Hour)
	a.Status = booking.StatusCancelled
	a.CancelledAt = &cancelledAt
	require.NoError(t, s.UpdateAppointment(ctx, a))

	got, err := s.GetAppointment(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, got.Status)
	require.NotNil(t, got.CancelledAt)
	assert.True(t, got.CancelledAt.Equal(cancelledAt))

	a.OwnerID = "owner-2"
	assert.ErrorIs(t, s.UpdateAppointment(ctx, a), booking.ErrAppointmentNotFound)
}

func TestListAppointments_FilterPushdown(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	create(t, s, appointment("a1", "2025-03-10", "10:00"))
	create(t, s, appointment("a2", "2025-03-10", "09:00"))
	chair := appointment("a3", "2025-03-10", "09:00")
	chair.ResourceID = "chair-2"
	create(t, s, chair)
	cancelled := appointment("a4", "2025-03-11", "09:00")
	cancelled.Status = booking.StatusCancelled
	create(t, s, cancelled)
	root := appointment("a5", "2025-03-12", "09:00")
	root.Pattern = &recurrence.Pattern{Type: recurrence.Weekly, Indeterminate: true}
	create(t, s, root)
	other := appointment("a6", "2025-03-10", "09:00")
	other.OwnerID = "owner-2"
	create(t, s, other)

	defaultResource := booking.ResourceID("")
	day, err := s.ListAppointments(ctx, booking.AppointmentFilter{OwnerID: owner, ResourceID: &defaultResource}.OnDay(date("2025-03-10")))
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, booking.AppointmentID("a2"), day[0].ID)
	assert.Equal(t, booking.AppointmentID("a1"), day[1].ID)
	assert.Len(t, day[0].Services, 1)

	active, err := s.ListAppointments(ctx, booking.AppointmentFilter{
		OwnerID:  owner,
		Statuses: []booking.Status{booking.StatusCancelled},
	})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, booking.AppointmentID("a4"), active[0].ID)

	roots, err := s.ListAppointments(ctx, booking.AppointmentFilter{Indeterminate: true})
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, booking.AppointmentID("a5"), roots[0].ID)

	last, err := s.ListAppointments(ctx, booking.AppointmentFilter{OwnerID: owner, Order: booking.OrderDateDesc, Limit: 1})
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, booking.AppointmentID("a5"), last[0].ID)
}

func TestDeleteAppointment_Cascades(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	create(t, s, appointment("appt-1", "2025-03-10", "10:00"))
	require.NoError(t, s.CreatePayment(ctx, payment("pay-1", "appt-1", booking.PaymentDeposit, 3000)))

	require.NoError(t, s.DeleteAppointment(ctx, owner, "appt-1"))

	_, err := s.GetPayment(ctx, owner, "pay-1")
	assert.ErrorIs(t, err, booking.ErrPaymentNotFound)
	var lines int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM service_bookings`).Scan(&lines))
	assert.Zero(t, lines)
	assert.ErrorIs(t, s.DeleteAppointment(ctx, owner, "appt-1"), booking.ErrAppointmentNotFound)
}

func TestLegacyRowsAreNormalized(t *testing.T) {
	// GIVEN: Rows written by an older version: "canceled", a timestamp date,
	// a service line with no snapshotted name and a negative refund amount
	// WHEN: They are read back
	// THEN: The canonical shapes come out
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveService(ctx, &booking.Service{
		ID: "svc-cut", OwnerID: owner, Name: "Haircut", Price: decimal.NewFromInt(10000),
		DurationMinutes: 30, Active: true, CreatedAt: created,
	}))
	_, err := s.db.Exec(`
		INSERT INTO appointments (id, owner_id, date, start_time, end_time, status, created_at, updated_at)
		VALUES ('old-1', 'owner-1', '2024-11-05T00:00:00Z', '10:00:00', '10:30:00', 'canceled',
			'2024-11-01T10:00:00Z', '2024-11-01T10:00:00Z')
	`)
	require.NoError(t, err)
	_, err = s.db.Exec(`
		INSERT INTO service_bookings (appointment_id, position, service_id, service_name, price, duration_minutes)
		VALUES ('old-1', 0, 'svc-cut', NULL, '8000', 30)
	`)
	require.NoError(t, err)
	_, err = s.db.Exec(`
		INSERT INTO payments (id, owner_id, appointment_id, kind, amount, paid_at, created_at)
		VALUES ('old-pay', 'owner-1', 'old-1', 'refund', '-3000', '2024-11-02T10:00:00Z', '2024-11-02T10:00:00Z')
	`)
	require.NoError(t, err)

	a, err := s.GetAppointment(ctx, owner, "old-1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, a.Status)
	assert.Equal(t, "2024-11-05", a.Date.String())
	assert.Equal(t, booking.ModalityInPerson, a.Modality)
	assert.Equal(t, []string{"Haircut"}, a.ServiceNames())
	assert.True(t, a.ServiceTotal().Equal(decimal.NewFromInt(8000)))

	payments, err := s.ListPayments(ctx, "old-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Amount.Equal(decimal.NewFromInt(3000)))
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestCreatePayment_RequiresAppointment(t *testing.T) {
	err := newStore(t).CreatePayment(context.Background(), payment("pay-1", "missing", booking.PaymentDeposit, 3000))
	assert.ErrorIs(t, err, booking.ErrAppointmentNotFound)
}

func TestReassignPayments_MovesOnlyKind(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	create(t, s, appointment("from", "2025-03-10", "10:00"))
	create(t, s, appointment("to", "2025-03-12", "10:00"))
	require.NoError(t, s.CreatePayment(ctx, payment("pay-1", "from", booking.PaymentDeposit, 3000)))
	require.NoError(t, s.CreatePayment(ctx, payment("pay-2", "from", booking.PaymentFinal, 7000)))

	moved, err := s.ReassignPayments(ctx, "from", "to", booking.PaymentDeposit)
	require.NoError(t, err)
	assert.Equal(t, []booking.PaymentID{"pay-1"}, moved)

	left, err := s.ListPayments(ctx, "from")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, booking.PaymentFinal, left[0].Kind)

	_, err = s.ReassignPayments(ctx, "to", "missing", booking.PaymentDeposit)
	assert.ErrorIs(t, err, booking.ErrAppointmentNotFound)
}

func TestMarkPaymentLinked(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	create(t, s, appointment("appt-1", "2025-03-10", "10:00"))
	require.NoError(t, s.CreatePayment(ctx, payment("pay-1", "appt-1", booking.PaymentDeposit, 3000)))

	require.NoError(t, s.MarkPaymentLinked(ctx, "pay-1", "entry-9"))
	p, err := s.GetPayment(ctx, owner, "pay-1")
	require.NoError(t, err)
	assert.True(t, p.Linked)
	assert.Equal(t, "entry-9", p.ExternalRef)

	assert.ErrorIs(t, s.MarkPaymentLinked(ctx, "nope", "x"), booking.ErrPaymentNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	err := s.WithTx(ctx, func(tx booking.Store) error {
		create(t, tx, appointment("appt-1", "2025-03-10", "10:00"))
		return errors.New("boom")
	})
	require.Error(t, err)

	_, err = s.GetAppointment(ctx, owner, "appt-1")
	assert.ErrorIs(t, err, booking.ErrAppointmentNotFound)

	require.NoError(t, s.WithTx(ctx, func(tx booking.Store) error {
		create(t, tx, appointment("appt-2", "2025-03-10", "10:00"))
		return nil
	}))
	_, err = s.GetAppointment(ctx, owner, "appt-2")
	assert.NoError(t, err)
}

// =============================================================================
// OFFERS & CASH BOOK
// =============================================================================

func TestOffer_RoundTripAndRedeemOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	o := &publiclink.Offer{
		ID:         "offer-1",
		OwnerID:    owner,
		ClientID:   "cli-1",
		ServiceIDs: []booking.ServiceID{"svc-cut"},
		Availability: map[calendar.Date][]calendar.TimeOfDay{
			date("2025-03-10"): {tod("09:00"), tod("09:30")},
		},
		CreatedAt: created,
		ExpiresAt: created.Add(48 * time.Hour),
	}
	require.NoError(t, s.SaveOffer(ctx, o))

	got, err := s.GetOffer(ctx, "offer-1")
	require.NoError(t, err)
	assert.True(t, got.Offers(date("2025-03-10"), tod("09:30")))
	assert.False(t, got.Offers(date("2025-03-10"), tod("10:00")))
	assert.Equal(t, []booking.ServiceID{"svc-cut"}, got.ServiceIDs)
	assert.Nil(t, got.RedeemedAt)

	require.NoError(t, s.MarkRedeemed(ctx, "offer-1", created, "appt-1"))
	assert.ErrorIs(t, s.MarkRedeemed(ctx, "offer-1", created, "appt-2"), publiclink.ErrOfferRedeemed)
	assert.ErrorIs(t, s.MarkRedeemed(ctx, "missing", created, "appt-2"), booking.ErrOfferNotFound)

	got, err = s.GetOffer(ctx, "offer-1")
	require.NoError(t, err)
	assert.Equal(t, booking.AppointmentID("appt-1"), got.AppointmentID)
}

func TestCashBook_OnSQLite(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	book := cashbook.New(s, zerolog.Nop())

	p := booking.Payment{OwnerID: owner, AppointmentID: "appt-1", Kind: booking.PaymentDeposit, Amount: decimal.NewFromInt(3000)}
	id, err := book.RecordEntry(ctx, ledger.EntryFor(p, date("2025-03-10"), "Ana - Haircut"))
	require.NoError(t, err)
	p.Kind = booking.PaymentRefund
	_, err = book.RecordEntry(ctx, ledger.EntryFor(p, date("2025-03-11"), "Ana - Haircut"))
	require.NoError(t, err)

	entries, err := book.Entries(ctx, string(owner), date("2025-03-01"), date("2025-03-31"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	totals := cashbook.Summarize(entries)
	assert.True(t, totals.Net.IsZero())

	require.NoError(t, book.DeleteEntry(ctx, id))
	assert.ErrorIs(t, book.DeleteEntry(ctx, id), cashbook.ErrEntryNotFound)
}

// =============================================================================
// END TO END ON SQLITE
// =============================================================================

type engine struct {
	store    *Store
	bookings *lifecycle.Service
	links    *publiclink.Service
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	ctx := context.Background()
	s := newStore(t)
	clock := calendar.FixedClock(created, time.UTC)
	book := cashbook.New(s, zerolog.Nop())

	bookings := lifecycle.New(s, ledger.New(s, book, clock, zerolog.Nop(), nil), clock, zerolog.Nop())
	seq := 0
	bookings.NewID = func() string { seq++; return fmt.Sprintf("appt-%03d", seq) }

	require.NoError(t, s.SaveService(ctx, &booking.Service{
		ID: "svc-cut", OwnerID: owner, Name: "Haircut", Price: decimal.NewFromInt(10000),
		DurationMinutes: 30, RequiresDeposit: true, DepositPercent: decimal.NewFromInt(30),
		Active: true, CreatedAt: created,
	}))
	require.NoError(t, s.SaveClient(ctx, &booking.Client{ID: "cli-1", OwnerID: owner, Name: "Ana", CreatedAt: created}))

	window := calendar.NewSlotRange(tod("09:00"), tod("12:00"), 30*time.Minute)
	links := publiclink.New(s, bookings, []byte("secret"), window, zerolog.Nop())
	return &engine{store: s, bookings: bookings, links: links}
}

func TestEngine_RescheduleTransfersDepositOnSQLite(t *testing.T) {
	// GIVEN: A booking with a mirrored 3000 deposit
	// WHEN: It is cancelled with reschedule-and-transfer
	// THEN: The deposit row now points at the replacement
	ctx := context.Background()
	e := newEngine(t)
	start := tod("10:00")
	res, err := e.bookings.Book(ctx, act, lifecycle.BookInput{
		Date: date("2025-03-10"), StartTime: &start, ClientID: "cli-1",
		ServiceIDs: []booking.ServiceID{"svc-cut"},
		Deposit:    &lifecycle.DepositInput{Amount: decimal.NewFromInt(3000), Method: "cash", Mirror: true},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Deposit)
	assert.True(t, res.Deposit.Linked)

	newStart := tod("11:00")
	cancel, err := e.bookings.Cancel(ctx, act, res.Appointment.ID, lifecycle.CancelInput{
		Disposition: lifecycle.DispositionReschedule,
		Reschedule:  &lifecycle.BookInput{Date: date("2025-03-12"), StartTime: &newStart},
	})
	require.NoError(t, err)
	require.NotNil(t, cancel.Replacement)

	left, err := e.store.ListPayments(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
	moved, err := e.store.ListPayments(ctx, cancel.Replacement.ID)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, res.Deposit.ID, moved[0].ID)
}

func TestEngine_PublicRedeemRunsInOneTransaction(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	o, err := e.links.Issue(ctx, act, publiclink.IssueInput{
		ClientID:   "cli-1",
		ServiceIDs: []booking.ServiceID{"svc-cut"},
		From:       date("2025-03-10"),
		Days:       1,
	})
	require.NoError(t, err)

	appt, err := e.links.Redeem(ctx, o.Token, publiclink.RedeemInput{Date: date("2025-03-10"), StartTime: tod("09:30")})
	require.NoError(t, err)
	assert.Equal(t, booking.SourcePublicLink, appt.Source)

	stored, err := e.store.GetOffer(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, stored.AppointmentID)

	_, err = e.links.Redeem(ctx, o.Token, publiclink.RedeemInput{Date: date("2025-03-10"), StartTime: tod("10:00")})
	assert.ErrorIs(t, err, publiclink.ErrOfferRedeemed)
}
