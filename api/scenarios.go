/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Populates the store with a realistic calendar for demos and manual
	testing. Each scenario wipes the store, then creates a catalog, clients
	and bookings through the same lifecycle calls the API uses, so the data
	obeys every booking and payment rule.

AVAILABLE SCENARIOS:

	salon-week:      a week of bookings with deposits, a completed visit and
	                 an outstanding balance
	weekly-regulars: an open-ended weekly series and a bounded biweekly one
	deposit-credit:  a cancelled booking whose retained deposit is available
	                 as credit, plus a no-show

DATA:

	Client names, phones and addresses come from gofakeit with a fixed seed,
	so a scenario always produces the same people.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "salon-week"}

NOTE:

	Scenarios reset the store for every owner. Only use in development.

SEE ALSO:
  - handlers.go: the endpoints these loaders mirror
  - cmd/seed/main.go: seeds without the HTTP server
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/ledger"
	"github.com/warp/booking-engine/lifecycle"
	"github.com/warp/booking-engine/recurrence"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "salon-week",
		Name:        "Salon Week",
		Description: "A week of bookings with deposits, one completed visit and one outstanding balance",
	},
	{
		ID:          "weekly-regulars",
		Name:        "Weekly Regulars",
		Description: "An open-ended weekly series and a bounded biweekly series",
	},
	{
		ID:          "deposit-credit",
		Name:        "Deposit Credit",
		Description: "A cancelled booking whose retained deposit can be reused, and a no-show",
	},
}

const scenarioSeed = 20250310

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the loaded scenario, or null.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a scenario for the acting owner.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	load, ok := map[string]func(context.Context, booking.ActingContext) error{
		"salon-week":      h.loadSalonWeek,
		"weekly-regulars": h.loadWeeklyRegulars,
		"deposit-credit":  h.loadDepositCredit,
	}[req.ScenarioID]
	if !ok {
		h.fail(w, r, booking.NewValidationError("scenario_id", "unknown scenario"))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	if err := load(ctx, actingContext(r)); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) reset(ctx context.Context) error {
	rs, ok := h.Store.(interface{ Reset(context.Context) error })
	if !ok {
		return fmt.Errorf("store %T cannot be reset", h.Store)
	}
	return rs.Reset(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// demoCatalog is the service list shared by every scenario.
func (h *Handler) demoCatalog(ctx context.Context, act booking.ActingContext) (map[string]booking.ServiceID, error) {
	catalog := []booking.Service{
		{ID: "svc-cut", Name: "Haircut", Price: decimal.NewFromInt(10000), DurationMinutes: 30},
		{ID: "svc-color", Name: "Color", Price: decimal.NewFromInt(25000), DurationMinutes: 90,
			RequiresDeposit: true, DepositPercent: decimal.NewFromInt(30)},
		{ID: "svc-nails", Name: "Manicure", Price: decimal.NewFromInt(8000), DurationMinutes: 45},
		{ID: "svc-beard", Name: "Beard trim", Price: decimal.NewFromInt(5000), DurationMinutes: 20},
	}
	ids := make(map[string]booking.ServiceID, len(catalog))
	for i := range catalog {
		s := &catalog[i]
		s.OwnerID = act.OwnerID
		s.Active = true
		s.CreatedAt = h.Bookings.Clock.Now()
		if err := h.Store.SaveService(ctx, s); err != nil {
			return nil, err
		}
		ids[s.Name] = s.ID
	}
	return ids, nil
}

// demoClients creates n clients with generated contact details.
func (h *Handler) demoClients(ctx context.Context, act booking.ActingContext, n int) ([]booking.ClientID, error) {
	faker := gofakeit.New(scenarioSeed)
	ids := make([]booking.ClientID, 0, n)
	for i := 0; i < n; i++ {
		c := &booking.Client{
			ID:        booking.ClientID(fmt.Sprintf("cli-%03d", i+1)),
			OwnerID:   act.OwnerID,
			Name:      faker.Name(),
			Phone:     faker.Phone(),
			Email:     faker.Email(),
			Street:    faker.Street(),
			City:      faker.City(),
			Province:  faker.State(),
			PostCode:  faker.Zip(),
			CreatedAt: h.Bookings.Clock.Now(),
		}
		if err := h.Store.SaveClient(ctx, c); err != nil {
			return nil, err
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (h *Handler) book(ctx context.Context, act booking.ActingContext, in lifecycle.BookInput) (*booking.Appointment, error) {
	in.AllowOverlap = true
	res, err := h.Bookings.Book(ctx, act, in)
	if err != nil && !booking.IsPartial(err) {
		return nil, err
	}
	return res.Appointment, nil
}

func at(s string) *calendar.TimeOfDay {
	t := calendar.MustParseTimeOfDay(s)
	return &t
}

func (h *Handler) loadSalonWeek(ctx context.Context, act booking.ActingContext) error {
	svc, err := h.demoCatalog(ctx, act)
	if err != nil {
		return err
	}
	clients, err := h.demoClients(ctx, act, 6)
	if err != nil {
		return err
	}
	today := h.Bookings.Clock.Today()

	// Yesterday's haircut, completed and paid.
	done, err := h.book(ctx, act, lifecycle.BookInput{
		Date: today.AddDays(-1), StartTime: at("10:00"), ClientID: clients[0],
		ServiceIDs: []booking.ServiceID{svc["Haircut"]},
	})
	if err != nil {
		return err
	}
	if _, err := h.Bookings.Complete(ctx, act, done.ID, &lifecycle.Settlement{Method: "cash"}); err != nil && !booking.IsPartial(err) {
		return err
	}

	// Color with its deposit collected at booking.
	if _, err := h.book(ctx, act, lifecycle.BookInput{
		Date: today.AddDays(1), StartTime: at("11:00"), ClientID: clients[1],
		ServiceIDs: []booking.ServiceID{svc["Color"], svc["Haircut"]},
		Deposit:    &lifecycle.DepositInput{Amount: decimal.NewFromInt(7500), Method: "transfer"},
	}); err != nil {
		return err
	}

	// A confirmed manicure with a partial payment.
	nails, err := h.book(ctx, act, lifecycle.BookInput{
		Date: today.AddDays(2), StartTime: at("15:30"), ClientID: clients[2],
		ServiceIDs: []booking.ServiceID{svc["Manicure"]},
	})
	if err != nil {
		return err
	}
	if _, err := h.Bookings.Confirm(ctx, act, nails.ID, false); err != nil {
		return err
	}
	if _, err := h.Ledger.RecordPayment(ctx, act, ledger.PaymentInput{
		AppointmentID: nails.ID, Kind: booking.PaymentFinal, Amount: decimal.NewFromInt(3000), Method: "cash",
	}); err != nil && !booking.IsPartial(err) {
		return err
	}

	// The rest of the week: one booking per remaining client.
	starts := []string{"09:00", "12:00", "17:00"}
	for i, c := range clients[3:] {
		if _, err := h.book(ctx, act, lifecycle.BookInput{
			Date: today.AddDays(3 + i), StartTime: at(starts[i%len(starts)]), ClientID: c,
			ServiceIDs: []booking.ServiceID{svc["Haircut"], svc["Beard trim"]},
		}); err != nil {
			return err
		}
	}

	// A walk-in guest today.
	_, err = h.book(ctx, act, lifecycle.BookInput{
		Date: today, StartTime: at("18:00"), GuestName: "Walk-in",
		ServiceIDs: []booking.ServiceID{svc["Beard trim"]}, Source: booking.SourceQuickBook,
	})
	return err
}

func (h *Handler) loadWeeklyRegulars(ctx context.Context, act booking.ActingContext) error {
	svc, err := h.demoCatalog(ctx, act)
	if err != nil {
		return err
	}
	clients, err := h.demoClients(ctx, act, 2)
	if err != nil {
		return err
	}
	today := h.Bookings.Clock.Today()

	if _, err := h.book(ctx, act, lifecycle.BookInput{
		Date: today.AddDays(1), StartTime: at("09:30"), ClientID: clients[0],
		ServiceIDs: []booking.ServiceID{svc["Haircut"]},
		Recurrence: &recurrence.Pattern{Type: recurrence.Weekly, Indeterminate: true},
	}); err != nil {
		return err
	}
	_, err = h.book(ctx, act, lifecycle.BookInput{
		Date: today.AddDays(2), StartTime: at("16:00"), ClientID: clients[1],
		ServiceIDs: []booking.ServiceID{svc["Manicure"]},
		Recurrence: &recurrence.Pattern{Type: recurrence.Biweekly, Count: 6},
	})
	return err
}

func (h *Handler) loadDepositCredit(ctx context.Context, act booking.ActingContext) error {
	svc, err := h.demoCatalog(ctx, act)
	if err != nil {
		return err
	}
	clients, err := h.demoClients(ctx, act, 2)
	if err != nil {
		return err
	}
	today := h.Bookings.Clock.Today()

	held, err := h.book(ctx, act, lifecycle.BookInput{
		Date: today.AddDays(2), StartTime: at("10:00"), ClientID: clients[0],
		ServiceIDs: []booking.ServiceID{svc["Color"]},
		Deposit:    &lifecycle.DepositInput{Amount: decimal.NewFromInt(7500), Method: "transfer"},
	})
	if err != nil {
		return err
	}
	if _, err := h.Bookings.Cancel(ctx, act, held.ID, lifecycle.CancelInput{Disposition: lifecycle.DispositionRetain}); err != nil && !booking.IsPartial(err) {
		return err
	}

	missed, err := h.book(ctx, act, lifecycle.BookInput{
		Date: today.AddDays(-2), StartTime: at("14:00"), ClientID: clients[1],
		ServiceIDs: []booking.ServiceID{svc["Haircut"]},
	})
	if err != nil {
		return err
	}
	_, err = h.Bookings.NoShow(ctx, act, missed.ID)
	return err
}
