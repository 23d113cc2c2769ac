/*
scenarios_test.go - Tests for demo scenarios

PURPOSE:
	Each scenario must load through the API and leave the calendar in the
	state its description promises. The salon-week scenario also runs against
	SQLite so the demo data exercises a real schema.
*/
package api

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/ledger"
	"github.com/warp/booking-engine/lifecycle"
	"github.com/warp/booking-engine/store/sqlite"
)

func statuses(list []any) map[string]int {
	out := make(map[string]int)
	for _, a := range list {
		out[a.(map[string]any)["status"].(string)]++
	}
	return out
}

func TestScenarios_List(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.request(http.MethodGet, "/api/scenarios", "", map[string]string{HeaderOwner: owner})
	require.Equal(t, http.StatusOK, rec.Code)
	for _, s := range scenarios {
		assert.Contains(t, rec.Body.String(), s.ID)
	}
}

func TestScenarios_UnknownIsRejected(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"nope"}`, http.StatusBadRequest)
}

func TestScenarios_SalonWeek(t *testing.T) {
	// GIVEN: An empty calendar
	// WHEN: Loading salon-week
	// THEN: Seven bookings across the statuses the scenario describes
	ts := newTestServer(t)
	ts.bookCut(t, "2025-03-20", "10:00")

	ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"salon-week"}`, http.StatusOK)

	out := ts.do(t, http.MethodGet, "/api/appointments", "", http.StatusOK)
	list := out["appointments"].([]any)
	assert.Len(t, list, 7, "previous bookings are wiped")
	counts := statuses(list)
	assert.Equal(t, 1, counts["completed"])
	assert.Equal(t, 1, counts["confirmed"])
	assert.Equal(t, 5, counts["pending"])

	current := ts.do(t, http.MethodGet, "/api/scenarios/current", "", http.StatusOK)
	assert.Equal(t, "salon-week", current["id"])

	clients := ts.request(http.MethodGet, "/api/clients", "", map[string]string{HeaderOwner: owner})
	assert.Contains(t, clients.Body.String(), "cli-006")
}

func TestScenarios_WeeklyRegulars(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"weekly-regulars"}`, http.StatusOK)

	out := ts.do(t, http.MethodGet, "/api/appointments", "", http.StatusOK)
	// 1 root + 12 weekly occurrences, plus 6 biweekly visits.
	assert.Len(t, out["appointments"], 19)
}

func TestScenarios_DepositCredit(t *testing.T) {
	// GIVEN: The deposit-credit scenario
	// WHEN: Asking for the first client's credit
	// THEN: The retained 7500 deposit is available
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"deposit-credit"}`, http.StatusOK)

	credit := ts.do(t, http.MethodGet, "/api/clients/cli-001/deposit-credit", "", http.StatusOK)
	require.NotNil(t, credit["credit"])
	assert.Equal(t, "7500", credit["credit"].(map[string]any)["amount"])

	out := ts.do(t, http.MethodGet, "/api/appointments", "", http.StatusOK)
	counts := statuses(out["appointments"].([]any))
	assert.Equal(t, 1, counts["cancelled"])
	assert.Equal(t, 1, counts["no_show"])
}

func TestScenarios_SalonWeekOnSQLite(t *testing.T) {
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := calendar.FixedClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), time.UTC)
	l := ledger.New(st, nil, clock, zerolog.Nop(), nil)
	bookings := lifecycle.New(st, l, clock, zerolog.Nop())
	h := NewHandler(bookings, nil, calendar.NewSlotRange(calendar.MustParseTimeOfDay("09:00"), calendar.MustParseTimeOfDay("19:00"), 0), zerolog.Nop())
	ts := &testServer{router: NewRouter(h, DefaultRouterOptions()), handler: h, bookings: bookings}

	ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"salon-week"}`, http.StatusOK)
	// Loading twice resets rather than duplicating.
	ts.do(t, http.MethodPost, "/api/scenarios/load", `{"scenario_id":"salon-week"}`, http.StatusOK)

	out := ts.do(t, http.MethodGet, "/api/appointments", "", http.StatusOK)
	assert.Len(t, out["appointments"], 7)

	first := out["appointments"].([]any)[0].(map[string]any)
	bal := ts.do(t, http.MethodGet, fmt.Sprintf("/api/appointments/%s/balance", first["id"]), "", http.StatusOK)
	assert.Contains(t, bal, "pending")
}
