package calendar

import (
	"iter"
	"time"
)

// DefaultSlotStep is the booking grid granularity.
const DefaultSlotStep = 30 * time.Minute

// SlotRange enumerates start times in [From, To) every Step.
// It holds no cursor, so ranging over All twice yields the same sequence.
type SlotRange struct {
	From TimeOfDay
	To   TimeOfDay
	Step time.Duration
}

// NewSlotRange builds a range with the default step when step is zero.
func NewSlotRange(from, to TimeOfDay, step time.Duration) SlotRange {
	if step <= 0 {
		step = DefaultSlotStep
	}
	return SlotRange{From: from, To: to, Step: step}
}

// All yields each slot start.
func (r SlotRange) All() iter.Seq[TimeOfDay] {
	step := r.Step
	if step < time.Minute {
		step = DefaultSlotStep
	}
	return func(yield func(TimeOfDay) bool) {
		for t := r.From; t < r.To; t = t.Add(step) {
			if !yield(t) {
				return
			}
		}
	}
}

// Strings yields each slot as HH:MM.
func (r SlotRange) Strings() iter.Seq[string] {
	return func(yield func(string) bool) {
		for t := range r.All() {
			if !yield(t.String()) {
				return
			}
		}
	}
}

// Len returns the number of slots without enumerating them.
func (r SlotRange) Len() int {
	if r.To <= r.From {
		return 0
	}
	step := int(r.Step / time.Minute)
	if step <= 0 {
		step = int(DefaultSlotStep / time.Minute)
	}
	span := int(r.To - r.From)
	return (span + step - 1) / step
}
