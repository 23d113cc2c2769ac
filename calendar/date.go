/*
Package calendar provides the business calendar used by the booking engine.

PURPOSE:
  Every date in the engine is a plain civil date (no time-of-day) in the
  business's single fixed timezone. Times of day are minute-granular and
  independent of the date they are attached to.

KEY CONCEPTS:
  Date:       A civil calendar date (year, month, day)
  TimeOfDay:  Minutes since midnight, printed as HH:MM
  Clock:      Resolves "now" and "today" in the business timezone
  SlotRange:  Lazy, restartable enumeration of HH:MM start times

MONTH ARITHMETIC:
  AddMonthsClamped re-derives the day from an anchor day-of-month and clamps
  it to the last valid day of the target month. Callers generating a series
  always pass the ORIGINAL day so the 31st never degrades to the 28th.

  Jan 31 + 1 month (anchor 31) = Feb 28
  Jan 31 + 2 months (anchor 31) = Mar 31

SEE ALSO:
  - clock.go: Clock and today resolution
  - slots.go: Time slot enumeration
  - recurrence/: Series generation built on Date arithmetic
*/
package calendar

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Civil date in the business timezone
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a civil calendar date. The zero value is "no date".
// Internally stored as midnight UTC so arithmetic never crosses DST edges.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the civil date of t as seen in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc != nil {
		t = t.In(loc)
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for literals in tests and fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }
func (d Date) Compare(o Date) int        { return d.t.Compare(o.t) }

// Properties
func (d Date) Year() int              { return d.t.Year() }
func (d Date) Month() time.Month      { return d.t.Month() }
func (d Date) Day() int               { return d.t.Day() }
func (d Date) Weekday() time.Weekday  { return d.t.Weekday() }
func (d Date) IsZero() bool           { return d.t.IsZero() }
func (d Date) String() string         { return d.t.Format(dateLayout) }
func (d Date) Time() time.Time        { return d.t }
func (d Date) AddDays(n int) Date     { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) DaysUntil(o Date) int   { return int(o.t.Sub(d.t).Hours() / 24) }

// At combines the date with a time of day in loc.
func (d Date) At(tod TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), tod.Hour(), tod.Minute(), 0, 0, loc)
}

// AddMonthsClamped moves n months forward (or back) landing on anchorDay,
// clamped to the last day of the target month.
func (d Date) AddMonthsClamped(n, anchorDay int) Date {
	first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	day := anchorDay
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return NewDate(first.Year(), first.Month(), day)
}

// MonthsUntil returns the number of whole calendar months from d's month to o's month.
func (d Date) MonthsUntil(o Date) int {
	return (o.Year()-d.Year())*12 + int(o.Month()) - int(d.Month())
}

// MarshalText and UnmarshalText make Date usable directly in JSON DTOs.
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// MONTH BOUNDARIES
// =============================================================================

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func StartOfMonth(year int, month time.Month) Date { return NewDate(year, month, 1) }

func EndOfMonth(year int, month time.Month) Date {
	return NewDate(year, month, DaysIn(year, month))
}

// IsLastDayOfMonth reports whether d is the final day of its month.
func (d Date) IsLastDayOfMonth() bool { return d.Day() == DaysIn(d.Year(), d.Month()) }
