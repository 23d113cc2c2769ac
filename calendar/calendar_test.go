package calendar_test

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/calendar"
)

func TestAddMonthsClamped_RederivesFromAnchor(t *testing.T) {
	jan31 := calendar.NewDate(2025, time.January, 31)

	assert.Equal(t, "2025-02-28", jan31.AddMonthsClamped(1, 31).String())
	assert.Equal(t, "2025-03-31", jan31.AddMonthsClamped(2, 31).String())
	assert.Equal(t, "2025-04-30", jan31.AddMonthsClamped(3, 31).String())
	assert.Equal(t, "2024-02-29", calendar.NewDate(2024, time.January, 31).AddMonthsClamped(1, 31).String())
}

func TestAddMonthsClamped_CrossesYear(t *testing.T) {
	nov15 := calendar.NewDate(2025, time.November, 15)
	assert.Equal(t, "2026-01-15", nov15.AddMonthsClamped(2, 15).String())
}

func TestDate_ParseAndCompare(t *testing.T) {
	a, err := calendar.ParseDate("2025-03-10")
	require.NoError(t, err)
	b := a.AddDays(7)

	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.BeforeOrEqual(a))
	assert.Equal(t, 7, a.DaysUntil(b))
	assert.Equal(t, a.Weekday(), b.Weekday())

	_, err = calendar.ParseDate("10/03/2025")
	assert.Error(t, err)
}

func TestEndOfMonth(t *testing.T) {
	assert.Equal(t, "2025-02-28", calendar.EndOfMonth(2025, time.February).String())
	assert.True(t, calendar.NewDate(2025, time.April, 30).IsLastDayOfMonth())
	assert.False(t, calendar.NewDate(2025, time.April, 29).IsLastDayOfMonth())
}

func TestClock_TodayUsesBusinessZone(t *testing.T) {
	// GIVEN: 02:00 UTC on March 10, which is still March 9 three hours west
	loc := time.FixedZone("UTC-3", -3*60*60)
	at := time.Date(2025, time.March, 10, 2, 0, 0, 0, time.UTC)

	clock := calendar.FixedClock(at, loc)

	// THEN: today resolves in the business zone
	assert.Equal(t, "2025-03-09", clock.Today().String())
	assert.Equal(t, loc, clock.Now().Location())
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := calendar.ParseTimeOfDay("09:45")
	require.NoError(t, err)
	assert.Equal(t, 585, tod.Minutes())
	assert.Equal(t, "09:45", tod.String())

	tod, err = calendar.ParseTimeOfDay("18:30:00")
	require.NoError(t, err)
	assert.Equal(t, "18:30", tod.String())

	for _, bad := range []string{"", "25:00", "10:61", "ten:30", "10"} {
		_, err := calendar.ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestSlotRange_LazyAndRestartable(t *testing.T) {
	r := calendar.NewSlotRange(calendar.MustParseTimeOfDay("09:00"), calendar.MustParseTimeOfDay("11:00"), 0)

	first := slices.Collect(r.Strings())
	second := slices.Collect(r.Strings())

	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 4, r.Len())
}

func TestSlotRange_EarlyStop(t *testing.T) {
	r := calendar.NewSlotRange(calendar.MustParseTimeOfDay("08:00"), calendar.MustParseTimeOfDay("20:00"), 15*time.Minute)

	var got []string
	for s := range r.Strings() {
		got = append(got, s)
		if len(got) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"08:00", "08:15", "08:30"}, got)
}

func TestSlotRange_Empty(t *testing.T) {
	r := calendar.NewSlotRange(calendar.MustParseTimeOfDay("12:00"), calendar.MustParseTimeOfDay("12:00"), 0)
	assert.Empty(t, slices.Collect(r.All()))
	assert.Equal(t, 0, r.Len())
}

func TestFormatDuration(t *testing.T) {
	cases := map[int]string{
		0:   "",
		-5:  "",
		45:  "45min",
		60:  "1h",
		90:  "1h 30min",
		150: "2h 30min",
	}
	for in, want := range cases {
		assert.Equal(t, want, calendar.FormatDuration(in), "minutes=%d", in)
	}
}
