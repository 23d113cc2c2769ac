package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
)

func appt(id booking.AppointmentID, owner booking.OwnerID, date string) *booking.Appointment {
	return &booking.Appointment{
		ID:        id,
		OwnerID:   owner,
		Date:      calendar.MustParseDate(date),
		StartTime: calendar.MustParseTimeOfDay("10:00"),
		EndTime:   calendar.MustParseTimeOfDay("10:30"),
		Status:    booking.StatusPending,
	}
}

func TestMemory_OwnerScoping(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateAppointment(ctx, appt("a1", "owner-1", "2025-03-12")))

	_, err := m.GetAppointment(ctx, "owner-2", "a1")
	assert.ErrorIs(t, err, booking.ErrAppointmentNotFound)

	list, err := m.ListAppointments(ctx, booking.AppointmentFilter{OwnerID: "owner-2"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemory_DeleteCascades(t *testing.T) {
	// GIVEN: An appointment with a service line and a payment
	// WHEN: Deleting the appointment
	// THEN: Lines and payments go with it
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateAppointment(ctx, appt("a1", "owner-1", "2025-03-12")))
	require.NoError(t, m.ReplaceServiceBookings(ctx, "a1", []booking.ServiceBooking{
		{AppointmentID: "a1", ServiceID: "cut", Price: decimal.NewFromInt(10000), DurationMinutes: 30},
	}))
	require.NoError(t, m.CreatePayment(ctx, &booking.Payment{
		ID: "p1", OwnerID: "owner-1", AppointmentID: "a1", Kind: booking.PaymentDeposit, Amount: decimal.NewFromInt(3000),
	}))

	got, err := m.GetAppointment(ctx, "owner-1", "a1")
	require.NoError(t, err)
	assert.Len(t, got.Services, 1)

	require.NoError(t, m.DeleteAppointment(ctx, "owner-1", "a1"))
	payments, err := m.ListPayments(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, payments)
	_, err = m.GetPayment(ctx, "owner-1", "p1")
	assert.ErrorIs(t, err, booking.ErrPaymentNotFound)
}

func TestMemory_ReassignPayments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.CreateAppointment(ctx, appt("old", "owner-1", "2025-03-12")))
	require.NoError(t, m.CreateAppointment(ctx, appt("new", "owner-1", "2025-03-19")))
	for _, p := range []booking.Payment{
		{ID: "d1", OwnerID: "owner-1", AppointmentID: "old", Kind: booking.PaymentDeposit, Amount: decimal.NewFromInt(3000)},
		{ID: "f1", OwnerID: "owner-1", AppointmentID: "old", Kind: booking.PaymentFinal, Amount: decimal.NewFromInt(1000)},
	} {
		p := p
		require.NoError(t, m.CreatePayment(ctx, &p))
	}

	moved, err := m.ReassignPayments(ctx, "old", "new", booking.PaymentDeposit)
	require.NoError(t, err)
	assert.Equal(t, []booking.PaymentID{"d1"}, moved)

	left, _ := m.ListPayments(ctx, "old")
	assert.Len(t, left, 1)
	assert.Equal(t, booking.PaymentFinal, left[0].Kind)
}

func TestTxMemory_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	tm := NewTxMemory()
	require.NoError(t, tm.CreateAppointment(ctx, appt("keep", "owner-1", "2025-03-12")))

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(tx booking.Store) error {
		require.NoError(t, tx.CreateAppointment(ctx, appt("drop", "owner-1", "2025-03-13")))
		require.NoError(t, tx.DeleteAppointment(ctx, "owner-1", "keep"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = tm.GetAppointment(ctx, "owner-1", "keep")
	assert.NoError(t, err)
	_, err = tm.GetAppointment(ctx, "owner-1", "drop")
	assert.ErrorIs(t, err, booking.ErrAppointmentNotFound)
}

func TestMemory_Reset(t *testing.T) {
	ctx := context.Background()
	tm := NewTxMemory()
	require.NoError(t, tm.CreateAppointment(ctx, appt("a1", "owner-1", "2025-03-12")))
	require.NoError(t, tm.SaveClient(ctx, &booking.Client{ID: "c1", OwnerID: "owner-1", Name: "Ana"}))

	require.NoError(t, tm.Reset(ctx))

	list, _ := tm.ListAppointments(ctx, booking.AppointmentFilter{OwnerID: "owner-1"})
	assert.Empty(t, list)
	clients, _ := tm.ListClients(ctx, "owner-1")
	assert.Empty(t, clients)
}
