package recurrence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/recurrence"
)

func dates(ds []calendar.Date) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

func TestGenerate_MonthlyFrom31st(t *testing.T) {
	// GIVEN: a monthly series starting Jan 31
	start := calendar.MustParseDate("2025-01-31")

	// WHEN: generating three occurrences
	got := recurrence.Generate(start, recurrence.Pattern{Type: recurrence.Monthly, Count: 3})

	// THEN: February clamps, March returns to the 31st
	assert.Equal(t, []string{"2025-01-31", "2025-02-28", "2025-03-31"}, dates(got))
}

func TestGenerate_MonthlyNeverDrifts(t *testing.T) {
	start := calendar.MustParseDate("2025-01-31")
	got := recurrence.Generate(start, recurrence.Pattern{Type: recurrence.Monthly, Count: 12})

	require.Len(t, got, 12)
	for _, d := range got {
		assert.True(t, d.Day() == 31 || d.IsLastDayOfMonth(), "drifted: %s", d)
	}
	assert.Equal(t, "2025-12-31", got[11].String())
}

func TestGenerate_CountProperties(t *testing.T) {
	starts := []string{"2025-01-01", "2025-02-28", "2024-02-29", "2025-08-31"}
	types := []recurrence.Type{recurrence.Weekly, recurrence.Biweekly, recurrence.Monthly}

	for _, s := range starts {
		for _, typ := range types {
			for _, n := range []int{1, 2, 7, 52} {
				start := calendar.MustParseDate(s)
				got := recurrence.Generate(start, recurrence.Pattern{Type: typ, Count: n})

				require.Len(t, got, n, "%s %s %d", s, typ, n)
				assert.True(t, got[0].Equal(start))
				for i := 1; i < len(got); i++ {
					assert.True(t, got[i].After(got[i-1]), "%s %s not increasing at %d", s, typ, i)
				}
			}
		}
	}
}

func TestGenerate_WeeklyAndBiweekly(t *testing.T) {
	start := calendar.MustParseDate("2025-03-03")

	weekly := recurrence.Generate(start, recurrence.Pattern{Type: recurrence.Weekly, Count: 3})
	assert.Equal(t, []string{"2025-03-03", "2025-03-10", "2025-03-17"}, dates(weekly))

	biweekly := recurrence.Generate(start, recurrence.Pattern{Type: recurrence.Biweekly, Count: 3})
	assert.Equal(t, []string{"2025-03-03", "2025-03-17", "2025-03-31"}, dates(biweekly))
}

func TestGenerate_EndDateInclusive(t *testing.T) {
	start := calendar.MustParseDate("2025-03-03")
	end := calendar.MustParseDate("2025-03-24")

	got := recurrence.Generate(start, recurrence.Pattern{Type: recurrence.Weekly, EndDate: &end})
	assert.Equal(t, []string{"2025-03-03", "2025-03-10", "2025-03-17", "2025-03-24"}, dates(got))

	end = calendar.MustParseDate("2025-03-23")
	got = recurrence.Generate(start, recurrence.Pattern{Type: recurrence.Weekly, EndDate: &end})
	assert.Len(t, got, 3)
}

func TestGenerate_SafetyCap(t *testing.T) {
	start := calendar.MustParseDate("2025-01-01")

	unbounded := recurrence.Generate(start, recurrence.Pattern{Type: recurrence.Weekly})
	assert.Len(t, unbounded, recurrence.MaxOccurrences)

	huge := recurrence.Generate(start, recurrence.Pattern{Type: recurrence.Weekly, Count: 500})
	assert.Len(t, huge, recurrence.MaxOccurrences)

	farEnd := calendar.NewDate(2040, time.January, 1)
	farBound := recurrence.Generate(start, recurrence.Pattern{Type: recurrence.Monthly, EndDate: &farEnd})
	assert.Len(t, farBound, recurrence.MaxOccurrences)
}

func TestExtend_StartsOneStepPastLast(t *testing.T) {
	root := calendar.MustParseDate("2025-03-03")
	last := calendar.MustParseDate("2025-05-26")

	got := recurrence.Extend(root, last, recurrence.Weekly, 3)
	assert.Equal(t, []string{"2025-06-02", "2025-06-09", "2025-06-16"}, dates(got))
}

func TestExtend_MonthlyKeepsRootAnchor(t *testing.T) {
	// GIVEN: a 31st-anchored series whose last persisted date is clamped
	root := calendar.MustParseDate("2025-01-31")
	last := calendar.MustParseDate("2025-04-30")

	got := recurrence.Extend(root, last, recurrence.Monthly, 3)

	// THEN: extension returns to the 31st whenever possible
	assert.Equal(t, []string{"2025-05-31", "2025-06-30", "2025-07-31"}, dates(got))
}

func TestExtend_DefaultBatch(t *testing.T) {
	root := calendar.MustParseDate("2025-01-06")
	got := recurrence.Extend(root, root, recurrence.Biweekly, 0)
	assert.Len(t, got, recurrence.DefaultExtensionBatch)
}

func TestShift_PreservesCadence(t *testing.T) {
	// Weekly occurrence moved Monday -> Wednesday moves the future ones too.
	from := calendar.MustParseDate("2025-03-03")
	to := calendar.MustParseDate("2025-03-05")
	future := calendar.MustParseDate("2025-03-17")

	shifted := recurrence.Shift(future, from, to, recurrence.Weekly)
	assert.Equal(t, "2025-03-19", shifted.String())
	assert.Equal(t, time.Wednesday, shifted.Weekday())

	// Monthly occurrence moved from the 10th to the 12th.
	mFrom := calendar.MustParseDate("2025-01-10")
	mTo := calendar.MustParseDate("2025-01-12")
	mFuture := calendar.MustParseDate("2025-02-10")
	assert.Equal(t, "2025-02-12", recurrence.Shift(mFuture, mFrom, mTo, recurrence.Monthly).String())

	// Month-end series moved from the 31st to the 30th lands where a fresh
	// series from the 30th would, not on clamped day minus one.
	endFrom := calendar.MustParseDate("2025-01-31")
	endTo := calendar.MustParseDate("2025-01-30")
	fresh := recurrence.Generate(endTo, recurrence.Pattern{Type: recurrence.Monthly, Count: 4})
	for i, occ := range []string{"2025-02-28", "2025-03-31", "2025-04-30"} {
		got := recurrence.Shift(calendar.MustParseDate(occ), endFrom, endTo, recurrence.Monthly)
		assert.Equal(t, fresh[i+1].String(), got.String(), occ)
	}
	assert.Equal(t, "2025-03-30", fresh[2].String())
}

func TestPattern_Validate(t *testing.T) {
	assert.NoError(t, recurrence.Pattern{Type: recurrence.Weekly, Count: 4}.Validate())
	assert.NoError(t, recurrence.Pattern{Type: recurrence.Monthly, Indeterminate: true}.Validate())
	assert.Error(t, recurrence.Pattern{Type: "daily"}.Validate())
	assert.Error(t, recurrence.Pattern{Type: recurrence.Weekly, Count: -1}.Validate())
	assert.Error(t, recurrence.Pattern{Type: recurrence.Weekly, Count: 3, Indeterminate: true}.Validate())
}
