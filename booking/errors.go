/*
errors.go - Centralized error types for the booking engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Lower layers return (value, error); the lifecycle and ledger layers either
  compensate or pass errors upward unmodified.

ERROR CATEGORIES:
  1. Validation errors - Missing selections, malformed input. Never partially applied.
  2. Conflict warnings - Slot overlaps. Non-fatal, need an explicit override.
  3. Partial failures  - A secondary step failed after the primary write committed.
  4. Store errors      - Missing records, database failures.

USAGE:
  if errors.Is(err, booking.ErrAppointmentNotFound) { ... 404 ... }

  var pf *booking.PartialFailure
  if errors.As(err, &pf) { ... primary write succeeded, report pf.Step ... }

SEE ALSO:
  - conflict/conflict.go: Warning (wraps ErrSlotConflict)
  - lifecycle/errors.go: settlement and disposition prompts
*/
package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrClientNotFound      = errors.New("client not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrOfferNotFound       = errors.New("booking offer not found")

	// ErrValidation is the root of every ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrSlotConflict is wrapped by conflict warnings.
	ErrSlotConflict = errors.New("time slot conflicts with an existing booking")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPartialFailure marks a multi-step operation whose primary write succeeded.
	ErrPartialFailure = errors.New("operation partially applied")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError lists per-field problems.
type ValidationError struct {
	FieldErrors map[string]string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{FieldErrors: map[string]string{field: msg}}
}

func (e *ValidationError) Add(field, msg string) {
	if e.FieldErrors == nil {
		e.FieldErrors = make(map[string]string)
	}
	e.FieldErrors[field] = msg
}

// OrNil returns nil when no field errors were recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.FieldErrors) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.FieldErrors))
	for f := range e.FieldErrors {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + e.FieldErrors[f]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError reports a rejected status change.
type TransitionError struct {
	AppointmentID AppointmentID
	From          Status
	To            Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("appointment %s cannot move from %s to %s", e.AppointmentID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// PartialFailure reports that Step failed after the primary write committed.
// The primary result is still valid and is returned alongside this error.
type PartialFailure struct {
	Step string
	Err  error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("%s failed after primary write: %v", e.Step, e.Err)
}

func (e *PartialFailure) Unwrap() []error { return []error{ErrPartialFailure, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAppointmentNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrServiceNotFound) ||
		errors.Is(err, ErrOfferNotFound)
}

// IsPartial returns true if the primary write succeeded despite err.
func IsPartial(err error) bool {
	return errors.Is(err, ErrPartialFailure)
}
