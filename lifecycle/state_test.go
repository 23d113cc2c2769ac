package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/booking"
)

func TestNext_TransitionTable(t *testing.T) {
	tests := []struct {
		from booking.Status
		trig Trigger
		to   booking.Status
		ok   bool
	}{
		{booking.StatusPending, TriggerConfirm, booking.StatusConfirmed, true},
		{booking.StatusConfirmed, TriggerConfirm, "", false},
		{booking.StatusConfirmed, TriggerStart, booking.StatusInProgress, true},
		{booking.StatusInProgress, TriggerComplete, booking.StatusCompleted, true},
		{booking.StatusPending, TriggerCancel, booking.StatusCancelled, true},
		{booking.StatusInProgress, TriggerNoShow, booking.StatusNoShow, true},
		{booking.StatusCancelled, TriggerReactivate, booking.StatusPending, true},
		{booking.StatusCompleted, TriggerCancel, "", false},
		{booking.StatusNoShow, TriggerReactivate, "", false},
		{booking.StatusPending, Trigger("archive"), "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.trig), func(t *testing.T) {
			to, ok := Next(tt.from, tt.trig)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.to, to)
		})
	}
}

func TestAvailable(t *testing.T) {
	assert.Equal(t, []Trigger{TriggerConfirm, TriggerStart, TriggerComplete, TriggerCancel, TriggerNoShow},
		Available(booking.StatusPending))
	assert.Equal(t, []Trigger{TriggerReactivate}, Available(booking.StatusCancelled))
	assert.Empty(t, Available(booking.StatusCompleted))
}

func TestUnitOfWork_RollsBackNewestFirst(t *testing.T) {
	ctx := context.Background()
	uow := newUnitOfWork(zerolog.Nop())
	var undone []string
	step := func(name string) func(context.Context) error {
		return func(context.Context) error { undone = append(undone, name); return nil }
	}
	noop := func(context.Context) error { return nil }

	require.NoError(t, uow.Do(ctx, "a", noop, step("a")))
	require.NoError(t, uow.Do(ctx, "b", noop, nil))
	require.NoError(t, uow.Do(ctx, "c", noop, step("c")))

	cause := errors.New("boom")
	err := uow.Do(ctx, "d", func(context.Context) error { return cause }, step("d"))
	require.ErrorIs(t, err, cause)

	err = uow.Fail(ctx, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{"c", "a"}, undone)
}

func TestUnitOfWork_ReportsCompensationFailures(t *testing.T) {
	ctx := context.Background()
	uow := newUnitOfWork(zerolog.Nop())
	undoErr := errors.New("cannot delete")
	ran := false

	require.NoError(t, uow.Do(ctx, "first", func(context.Context) error { return nil },
		func(context.Context) error { ran = true; return nil }))
	require.NoError(t, uow.Do(ctx, "second", func(context.Context) error { return nil },
		func(context.Context) error { return undoErr }))

	cause := errors.New("third failed")
	err := uow.Fail(ctx, cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, undoErr)
	assert.True(t, ran)
}

func TestUnitOfWork_CommitForgetsCompensations(t *testing.T) {
	ctx := context.Background()
	uow := newUnitOfWork(zerolog.Nop())
	ran := false
	require.NoError(t, uow.Do(ctx, "x", func(context.Context) error { return nil },
		func(context.Context) error { ran = true; return nil }))

	uow.Commit()
	require.NoError(t, uow.Rollback(ctx))
	assert.False(t, ran)
}
