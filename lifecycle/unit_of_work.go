package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// UnitOfWork records a compensating action per completed step so a failed
// compound write can be undone in reverse order.
type UnitOfWork struct {
	logger zerolog.Logger
	steps  []compensation
}

type compensation struct {
	name string
	undo func(context.Context) error
}

func newUnitOfWork(logger zerolog.Logger) *UnitOfWork {
	return &UnitOfWork{logger: logger}
}

// Do runs one step. undo may be nil for steps with nothing to compensate.
func (u *UnitOfWork) Do(ctx context.Context, name string, do, undo func(context.Context) error) error {
	if err := do(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if undo != nil {
		u.steps = append(u.steps, compensation{name: name, undo: undo})
	}
	return nil
}

// Rollback runs the compensations newest-first. Every compensation is
// attempted even if an earlier one fails.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	var errs []error
	for i := len(u.steps) - 1; i >= 0; i-- {
		step := u.steps[i]
		if err := step.undo(ctx); err != nil {
			u.logger.Error().Err(err).Str("step", step.name).Msg("compensation failed")
			errs = append(errs, fmt.Errorf("undo %s: %w", step.name, err))
			continue
		}
		u.logger.Warn().Str("step", step.name).Msg("step compensated")
	}
	u.steps = nil
	return errors.Join(errs...)
}

// Fail rolls back and returns cause joined with any compensation errors.
func (u *UnitOfWork) Fail(ctx context.Context, cause error) error {
	if rbErr := u.Rollback(ctx); rbErr != nil {
		return errors.Join(cause, rbErr)
	}
	return cause
}

// Commit forgets the compensations.
func (u *UnitOfWork) Commit() { u.steps = nil }
