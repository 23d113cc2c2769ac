package booking

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/calendar"
)

func TestParseStatus_NormalizesLegacySpellings(t *testing.T) {
	cases := map[string]Status{
		"pending":     StatusPending,
		" Confirmed ": StatusConfirmed,
		"canceled":    StatusCancelled,
		"no-show":     StatusNoShow,
		"in-progress": StatusInProgress,
		"done":        StatusCompleted,
		"":            StatusPending,
	}
	for in, want := range cases {
		got, err := ParseStatus(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseStatus("archived")
	assert.Error(t, err)
}

func TestParsePaymentKind_NormalizesLegacySpellings(t *testing.T) {
	for in, want := range map[string]PaymentKind{
		"deposit":       PaymentDeposit,
		"seña":          PaymentDeposit,
		"SENA":          PaymentDeposit,
		"payment":       PaymentFinal,
		"final_payment": PaymentFinal,
		"refund":        PaymentRefund,
	} {
		got, err := ParsePaymentKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePaymentKind("tip")
	assert.Error(t, err)
}

func TestStatus_ActiveAndTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsActive(), "completed still occupies its slot")
	assert.False(t, StatusCancelled.IsActive())
	assert.False(t, StatusNoShow.IsActive())

	assert.True(t, StatusNoShow.IsTerminal())
	assert.False(t, StatusCancelled.IsTerminal(), "cancelled can be reactivated")
}

func TestActingContext(t *testing.T) {
	assert.Equal(t, "owner-1", ActingContext{OwnerID: "owner-1"}.Actor())
	assert.Equal(t, "staff-7", ActingContext{OwnerID: "owner-1", ActingAsID: "staff-7"}.Actor())

	err := ActingContext{}.Validate()
	assert.True(t, IsClientError(err))
}

func TestAppointment_Derived(t *testing.T) {
	a := &Appointment{
		ID:        "a1",
		StartTime: calendar.MustParseTimeOfDay("10:00"),
		Services: []ServiceBooking{
			{ServiceID: "cut", Price: decimal.NewFromInt(10000), DurationMinutes: 30},
			{ServiceID: "beard", Price: decimal.NewFromInt(5000), DurationMinutes: 20},
		},
	}
	a.RecomputeEnd()

	assert.Equal(t, 50, a.DurationMinutes())
	assert.Equal(t, "10:50", a.EndTime.String())
	assert.True(t, decimal.NewFromInt(15000).Equal(a.ServiceTotal()))
	assert.Equal(t, AppointmentID("a1"), a.SeriesRoot())
	assert.False(t, a.IsRecurring())

	a.RootSeriesID = "root"
	assert.Equal(t, AppointmentID("root"), a.SeriesRoot())
	assert.True(t, a.IsRecurring())
}

func TestErrors_Taxonomy(t *testing.T) {
	v := &ValidationError{}
	assert.NoError(t, v.OrNil())
	v.Add("date", "required")
	v.Add("amount", "must be positive")
	err := v.OrNil()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "validation failed: amount: must be positive; date: required", err.Error())

	terr := fmt.Errorf("confirm: %w", &TransitionError{AppointmentID: "a1", From: StatusCompleted, To: StatusConfirmed})
	assert.True(t, errors.Is(terr, ErrInvalidTransition))
	assert.True(t, IsClientError(terr))

	cause := errors.New("smtp down")
	perr := errors.Join(&PartialFailure{Step: "notify", Err: cause})
	assert.True(t, IsPartial(perr))
	assert.True(t, errors.Is(perr, cause))
	assert.False(t, IsPartial(cause))

	assert.True(t, IsNotFound(fmt.Errorf("load: %w", ErrPaymentNotFound)))
}
