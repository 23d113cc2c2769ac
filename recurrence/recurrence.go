/*
Package recurrence expands a start date and repetition pattern into the
ordered dates of an appointment series.

PATTERNS:
  weekly:    +7 days per step
  biweekly:  +14 days per step
  monthly:   same day-of-month each month, clamped to the month's last day

MONTHLY ANCHORING:
  Every monthly step is computed from the ORIGINAL start day, never from the
  previous (possibly clamped) occurrence:

    start 2025-01-31, count 4
      → 2025-01-31, 2025-02-28, 2025-03-31, 2025-04-30

BOUNDS:
  count:    total occurrences including the first
  endDate:  inclusive; generation stops before exceeding it
  neither:  MaxOccurrences (also caps the other two)

INDETERMINATE SERIES:
  Open series are created with an initial batch and later extended one batch
  at a time from one step past the last persisted occurrence. The generator
  does not deduplicate against persisted dates; callers pass the true last date.

SEE ALSO:
  - calendar/date.go: AddMonthsClamped
  - lifecycle/series.go: Persisting and extending series
*/
package recurrence

import (
	"fmt"

	"github.com/warp/booking-engine/calendar"
)

// MaxOccurrences guarantees termination when neither bound is given.
const MaxOccurrences = 52

// DefaultExtensionBatch is how many occurrences one extension adds.
const DefaultExtensionBatch = 12

// =============================================================================
// PATTERN
// =============================================================================

type Type string

const (
	Weekly   Type = "weekly"
	Biweekly Type = "biweekly"
	Monthly  Type = "monthly"
)

func (t Type) Valid() bool {
	switch t {
	case Weekly, Biweekly, Monthly:
		return true
	}
	return false
}

// Pattern is a value object persisted inline on the series root.
type Pattern struct {
	Type          Type
	Count         int            // includes the first occurrence; 0 = unbounded
	EndDate       *calendar.Date // inclusive
	Indeterminate bool
}

// Validate checks the pattern shape. Indeterminate patterns carry no bound.
func (p Pattern) Validate() error {
	if !p.Type.Valid() {
		return fmt.Errorf("unknown recurrence type %q", p.Type)
	}
	if p.Count < 0 {
		return fmt.Errorf("recurrence count must not be negative")
	}
	if p.Indeterminate && (p.Count > 0 || p.EndDate != nil) {
		return fmt.Errorf("indeterminate series cannot have a count or end date")
	}
	return nil
}

// =============================================================================
// GENERATION
// =============================================================================

// Step returns the i-th occurrence after start (i=0 is start itself).
func Step(start calendar.Date, t Type, i int) calendar.Date {
	switch t {
	case Weekly:
		return start.AddDays(7 * i)
	case Biweekly:
		return start.AddDays(14 * i)
	case Monthly:
		return start.AddMonthsClamped(i, start.Day())
	default:
		return start
	}
}

// Generate returns the series dates, first element equal to start.
func Generate(start calendar.Date, p Pattern) []calendar.Date {
	limit := MaxOccurrences
	if p.Count > 0 && p.Count < limit {
		limit = p.Count
	}

	dates := []calendar.Date{start}
	for i := 1; len(dates) < limit; i++ {
		next := Step(start, p.Type, i)
		if p.EndDate != nil && next.After(*p.EndDate) {
			break
		}
		dates = append(dates, next)
	}
	return dates
}

// Extend returns batch new dates following last. root anchors monthly
// series to the original day-of-month; weekly series step from last.
func Extend(root, last calendar.Date, t Type, batch int) []calendar.Date {
	if batch <= 0 {
		batch = DefaultExtensionBatch
	}

	out := make([]calendar.Date, 0, batch)
	switch t {
	case Monthly:
		offset := root.MonthsUntil(last)
		for i := 1; i <= batch; i++ {
			out = append(out, Step(root, Monthly, offset+i))
		}
	default:
		for i := 1; i <= batch; i++ {
			out = append(out, Step(last, t, i))
		}
	}
	return out
}

// Shift moves d by the same cadence delta that moved from to to.
// Monthly occurrences are re-derived from to as the new anchor, so a date
// clamped to a short month regains its day once the month allows it.
// Weekly ones keep the day-of-week relationship.
func Shift(d, from, to calendar.Date, t Type) calendar.Date {
	if t == Monthly {
		return to.AddMonthsClamped(from.MonthsUntil(d), to.Day())
	}
	return d.AddDays(from.DaysUntil(to))
}
