/*
handlers.go - HTTP handlers for the booking engine

PURPOSE:
  Exposes the lifecycle, ledger and public-link services over REST. Handlers
  parse and validate the request, build the acting context, call exactly one
  service operation and serialize the result.

ENDPOINTS:
  Catalog:
    GET/POST /api/clients                  List / create clients
    GET      /api/clients/{id}             Client details
    GET      /api/clients/{id}/deposit-credit  Reusable deposit, if any
    GET/POST /api/services                 List / create services

  Appointments:
    GET/POST          /api/appointments     List (from, to, client_id, resource_id, status) / book
    GET/PUT/DELETE    /api/appointments/{id}
    POST /api/appointments/{id}/confirm|start|complete|cancel|no-show|reactivate|reminder
    GET  /api/appointments/{id}/balance
    GET/POST /api/appointments/{id}/payments
    DELETE   /api/payments/{id}
    POST     /api/series/{id}/extend
    GET      /api/slots                    Free start times for a date

  Public links:
    POST /api/links                        Issue an offer (authenticated)
    GET  /public/links/{token}             Offer availability
    POST /public/links/{token}/redeem      Book an offered slot

ACTING CONTEXT:
  Every /api route requires X-Owner-ID; X-Acting-As names the staff member
  acting on the owner's behalf. Public routes act as the offer's owner.

ERROR HANDLING:
  - 400: validation errors, with per-field messages
  - 404: unknown appointment, payment, client, service or offer
  - 409: overlap warning (with the conflicting bookings), invalid transition,
         offer already redeemed
  - 410: expired offer
  - 422: settlement or deposit disposition required
  - 500: anything else
  A secondary step that failed after the primary write (external ledger,
  deposit transfer, series propagation) returns the normal 2xx body with a
  "warnings" array.

SEE ALSO:
  - dto.go: request/response bodies
  - server.go: routes and middleware
  - lifecycle/service.go: the operations called here
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/cashbook"
	"github.com/warp/booking-engine/conflict"
	"github.com/warp/booking-engine/ledger"
	"github.com/warp/booking-engine/lifecycle"
	"github.com/warp/booking-engine/metrics"
	"github.com/warp/booking-engine/publiclink"
)

const (
	HeaderOwner    = "X-Owner-ID"
	HeaderActingAs = "X-Acting-As"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the services the routes call.
type Handler struct {
	Store    booking.Store
	Bookings *lifecycle.Service
	Ledger   *ledger.Ledger
	Links    *publiclink.Service
	Cash     *cashbook.Book // nil when no cash ledger is configured
	Window   calendar.SlotRange
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	NewID    func() string

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires handlers around a lifecycle service. links may be nil,
// which disables the public-link routes.
func NewHandler(bookings *lifecycle.Service, links *publiclink.Service, window calendar.SlotRange, logger zerolog.Logger) *Handler {
	return &Handler{
		Store:    bookings.Store,
		Bookings: bookings,
		Ledger:   bookings.Ledger,
		Links:    links,
		Window:   window,
		Logger:   logger,
		Metrics:  bookings.Metrics,
		NewID:    uuid.NewString,
		validate: newValidator(),
	}
}

type actKey struct{}

// RequireOwner resolves the acting context from headers. It is the only
// place the API decides whose calendar a request touches.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		act := booking.ActingContext{
			OwnerID:    booking.OwnerID(strings.TrimSpace(r.Header.Get(HeaderOwner))),
			ActingAsID: strings.TrimSpace(r.Header.Get(HeaderActingAs)),
		}
		if act.OwnerID == "" {
			writeError(w, http.StatusUnauthorized, "Missing "+HeaderOwner+" header", nil)
			return
		}
		hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("owner_id", string(act.OwnerID)).Str("actor", act.Actor())
		})
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actKey{}, act)))
	})
}

func actingContext(r *http.Request) booking.ActingContext {
	act, _ := r.Context().Value(actKey{}).(booking.ActingContext)
	return act
}

// bind decodes and validates a JSON body. An empty body decodes to the
// zero value, which is then validated like any other.
func (h *Handler) bind(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return booking.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := h.validate.Struct(dst); err != nil {
		return fieldErrors(err)
	}
	return nil
}

// =============================================================================
// CLIENT & SERVICE CATALOG
// =============================================================================

// ListClients returns the owner's clients by name.
// GET /api/clients
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context(), actingContext(r).OwnerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ClientDTO, len(clients))
	for i := range clients {
		dtos[i] = toClientDTO(&clients[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": dtos})
}

// CreateClient creates or replaces a client.
// POST /api/clients
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req ClientRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c := &booking.Client{
		ID:        booking.ClientID(req.ID),
		OwnerID:   actingContext(r).OwnerID,
		Name:      strings.TrimSpace(req.Name),
		Phone:     req.Phone,
		Handle:    req.Handle,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Street:    req.Street,
		City:      req.City,
		Province:  req.Province,
		PostCode:  req.PostCode,
		Notes:     req.Notes,
		CreatedAt: h.Bookings.Clock.Now(),
	}
	if c.ID == "" {
		c.ID = booking.ClientID(h.NewID())
	}
	if err := h.Store.SaveClient(r.Context(), c); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientDTO(c))
}

// GET /api/clients/{id}
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetClient(r.Context(), actingContext(r).OwnerID, booking.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(c))
}

// GetDepositCredit reports a deposit from a cancelled appointment the client
// can reuse. The credit is null when none exists.
// GET /api/clients/{id}/deposit-credit
func (h *Handler) GetDepositCredit(w http.ResponseWriter, r *http.Request) {
	act := actingContext(r)
	id := booking.ClientID(chi.URLParam(r, "id"))
	if _, err := h.Store.GetClient(r.Context(), act.OwnerID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	credit, err := h.Ledger.DepositCredit(r.Context(), act, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var dto *CreditDTO
	if credit != nil {
		dto = &CreditDTO{
			AppointmentID: string(credit.AppointmentID),
			Amount:        credit.Amount,
			Description:   credit.Description,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"credit": dto})
}

// GET /api/services
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.Store.ListServices(r.Context(), actingContext(r).OwnerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ServiceDTO, len(services))
	for i := range services {
		dtos[i] = toServiceDTO(&services[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": dtos})
}

// POST /api/services
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req ServiceRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.RequiresDeposit && !req.DepositPercent.IsPositive() {
		h.fail(w, r, booking.NewValidationError("deposit_percent", "required when a deposit is required"))
		return
	}
	s := &booking.Service{
		ID:              booking.ServiceID(req.ID),
		OwnerID:         actingContext(r).OwnerID,
		Name:            strings.TrimSpace(req.Name),
		Price:           req.Price,
		DurationMinutes: req.DurationMinutes,
		RequiresDeposit: req.RequiresDeposit,
		DepositPercent:  req.DepositPercent,
		Active:          req.Active == nil || *req.Active,
		CreatedAt:       h.Bookings.Clock.Now(),
	}
	if s.ID == "" {
		s.ID = booking.ServiceID(h.NewID())
	}
	if err := h.Store.SaveService(r.Context(), s); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toServiceDTO(s))
}

// =============================================================================
// APPOINTMENTS
// =============================================================================

// ListAppointments filters the owner's calendar.
// GET /api/appointments?from=&to=&client_id=&resource_id=&status=a,b&series=
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := booking.AppointmentFilter{
		ClientID:     booking.ClientID(q.Get("client_id")),
		RootSeriesID: booking.AppointmentID(q.Get("series")),
	}
	v := &booking.ValidationError{}
	for _, p := range []struct {
		name string
		dst  **calendar.Date
	}{{"from", &f.From}, {"to", &f.To}} {
		if s := q.Get(p.name); s != "" {
			d, err := calendar.ParseDate(s)
			if err != nil {
				v.Add(p.name, "use YYYY-MM-DD")
				continue
			}
			*p.dst = &d
		}
	}
	if q.Has("resource_id") {
		res := booking.ResourceID(q.Get("resource_id"))
		f.ResourceID = &res
	}
	if s := q.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			st, err := booking.ParseStatus(part)
			if err != nil {
				v.Add("status", err.Error())
				continue
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if err := v.OrNil(); err != nil {
		h.fail(w, r, err)
		return
	}

	list, err := h.Bookings.List(r.Context(), actingContext(r), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toAppointmentDTOs(list)})
}

// CreateAppointment books a single or recurring appointment.
// POST /api/appointments
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.Bookings.Book(r.Context(), actingContext(r), in)
	warnings, err := h.partial(r, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := BookResponse{
		Appointment: toAppointmentDTO(res.Appointment),
		Occurrences: toAppointmentDTOs(res.Occurrences),
		Conflicts:   toAppointmentDTOs(res.Conflicts),
		Deposit:     toPaymentDTO(res.Deposit),
		Warnings:    warnings,
	}
	for _, id := range res.Transferred {
		resp.Transferred = append(resp.Transferred, string(id))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GET /api/appointments/{id}
func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.Bookings.Get(r.Context(), actingContext(r), appointmentID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentDTO(appt))
}

// UpdateAppointment edits one appointment, optionally propagating to the
// rest of its series.
// PUT /api/appointments/{id}
func (h *Handler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var req UpdateAppointmentRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Bookings.Edit(r.Context(), actingContext(r), appointmentID(r), in)
	warnings, err := h.partial(r, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EditResponse{
		Appointment: toAppointmentDTO(res.Appointment),
		Conflicts:   toAppointmentDTOs(res.Conflicts),
		Propagated:  res.Propagated,
		Warnings:    warnings,
	})
}

// DeleteAppointment is the administrative delete: lines and payments go
// with it.
// DELETE /api/appointments/{id}
func (h *Handler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	err := h.Bookings.Delete(r.Context(), actingContext(r), appointmentID(r))
	warnings, err := h.partial(r, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "warnings": warnings})
}

// ===== TRANSITIONS =====

// POST /api/appointments/{id}/confirm
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondAppointment(w, r)(h.Bookings.Confirm(r.Context(), actingContext(r), appointmentID(r), req.Notify))
}

// POST /api/appointments/{id}/start
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.respondAppointment(w, r)(h.Bookings.Start(r.Context(), actingContext(r), appointmentID(r)))
}

// POST /api/appointments/{id}/no-show
func (h *Handler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.respondAppointment(w, r)(h.Bookings.NoShow(r.Context(), actingContext(r), appointmentID(r)))
}

// POST /api/appointments/{id}/reactivate
func (h *Handler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.respondAppointment(w, r)(h.Bookings.Reactivate(r.Context(), actingContext(r), appointmentID(r)))
}

// SendReminder hands the reminder to the messaging dispatcher.
// POST /api/appointments/{id}/reminder
func (h *Handler) SendReminder(w http.ResponseWriter, r *http.Request) {
	var req ReminderRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondAppointment(w, r)(h.Bookings.SendReminder(r.Context(), actingContext(r), appointmentID(r), req.ConfirmURL))
}

// Complete settles any outstanding balance and completes the appointment.
// Without a method and with money owed it answers 422 with the amount.
// POST /api/appointments/{id}/complete
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	var settle *lifecycle.Settlement
	if req.Method != "" {
		settle = &lifecycle.Settlement{Method: req.Method, Notes: req.Notes, Mirror: req.Mirror}
	}
	res, err := h.Bookings.Complete(r.Context(), actingContext(r), appointmentID(r), settle)
	warnings, err := h.partial(r, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CompleteResponse{
		Appointment: toAppointmentDTO(res.Appointment),
		Payment:     toPaymentDTO(res.Payment),
		Warnings:    warnings,
	})
}

// Cancel cancels with a deposit disposition: refund, retain or reschedule.
// POST /api/appointments/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Bookings.Cancel(r.Context(), actingContext(r), appointmentID(r), in)
	warnings, err := h.partial(r, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := CancelResponse{
		Appointment: toAppointmentDTO(res.Appointment),
		Refund:      toPaymentDTO(res.Refund),
		Warnings:    warnings,
	}
	if res.Replacement != nil {
		dto := toAppointmentDTO(res.Replacement)
		resp.Replacement = &dto
	}
	for _, id := range res.Transferred {
		resp.Transferred = append(resp.Transferred, string(id))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExtendSeries appends the next batch of occurrences to an open-ended series.
// POST /api/series/{id}/extend
func (h *Handler) ExtendSeries(w http.ResponseWriter, r *http.Request) {
	var req ExtendRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.Bookings.ExtendSeries(r.Context(), actingContext(r), appointmentID(r), req.Batch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"occurrences": toAppointmentDTOs(created)})
}

// ListSlots returns free start times on a date.
// GET /api/slots?date=&resource_id=&duration=
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	d, err := calendar.ParseDate(q.Get("date"))
	if err != nil {
		h.fail(w, r, booking.NewValidationError("date", "use YYYY-MM-DD"))
		return
	}
	duration := 0
	if s := q.Get("duration"); s != "" {
		if duration, err = strconv.Atoi(s); err != nil || duration <= 0 {
			h.fail(w, r, booking.NewValidationError("duration", "must be a positive number of minutes"))
			return
		}
	}
	slots, err := h.Bookings.AvailableSlots(r.Context(), actingContext(r), lifecycle.SlotQuery{
		Date:            d,
		ResourceID:      booking.ResourceID(q.Get("resource_id")),
		DurationMinutes: duration,
		Window:          h.Window,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.String()
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": d.String(), "slots": out})
}

// =============================================================================
// PAYMENTS
// =============================================================================

// GET /api/appointments/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := appointmentID(r)
	bal, err := h.Ledger.Balance(r.Context(), actingContext(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(id, bal))
}

// GET /api/appointments/{id}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Ledger.Payments(r.Context(), actingContext(r), appointmentID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]*PaymentDTO, len(payments))
	for i := range payments {
		dtos[i] = toPaymentDTO(&payments[i])
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": dtos})
}

// RecordPayment records a movement and answers with the new balance.
// POST /api/appointments/{id}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	kind, err := booking.ParsePaymentKind(req.Kind)
	if err != nil {
		h.fail(w, r, booking.NewValidationError("kind", err.Error()))
		return
	}
	act := actingContext(r)
	id := appointmentID(r)
	in := ledger.PaymentInput{
		AppointmentID: id,
		Kind:          kind,
		Amount:        req.Amount,
		Method:        req.Method,
		Notes:         req.Notes,
		Mirror:        req.Mirror,
	}
	if req.PaidAt != nil {
		in.PaidAt = *req.PaidAt
	}

	p, err := h.Ledger.RecordPayment(r.Context(), act, in)
	warnings, err := h.partial(r, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bal, err := h.Ledger.Balance(r.Context(), act, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, PaymentResponse{
		Payment:  toPaymentDTO(p),
		Balance:  toBalanceDTO(id, bal),
		Warnings: warnings,
	})
}

// DeletePayment removes a payment and its mirrored cash entry.
// DELETE /api/payments/{id}
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	err := h.Ledger.RemovePayment(r.Context(), actingContext(r), booking.PaymentID(chi.URLParam(r, "id")))
	warnings, err := h.partial(r, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "warnings": warnings})
}

// GetCashbook lists the owner's mirrored cash movements with totals.
// GET /api/cashbook?from=&to=
func (h *Handler) GetCashbook(w http.ResponseWriter, r *http.Request) {
	if h.Cash == nil {
		writeError(w, http.StatusNotFound, "No cash ledger configured", nil)
		return
	}
	today := h.Bookings.Clock.Today()
	from := calendar.StartOfMonth(today.Year(), today.Month())
	to := calendar.EndOfMonth(today.Year(), today.Month())
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *calendar.Date
	}{{"from", &from}, {"to", &to}} {
		if s := q.Get(p.name); s != "" {
			d, err := calendar.ParseDate(s)
			if err != nil {
				h.fail(w, r, booking.NewValidationError(p.name, "use YYYY-MM-DD"))
				return
			}
			*p.dst = d
		}
	}
	entries, err := h.Cash.Entries(r.Context(), string(actingContext(r).OwnerID), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCashbookDTO(entries))
}

// =============================================================================
// PUBLIC LINKS
// =============================================================================

// IssueLink publishes a time-boxed offer for a client.
// POST /api/links
func (h *Handler) IssueLink(w http.ResponseWriter, r *http.Request) {
	var req IssueLinkRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := publiclink.IssueInput{
		ClientID:   booking.ClientID(req.ClientID),
		ServiceIDs: serviceIDs(req.ServiceIDs),
		ResourceID: booking.ResourceID(req.ResourceID),
		Days:       req.Days,
	}
	if req.From != "" {
		d, err := calendar.ParseDate(req.From)
		if err != nil {
			h.fail(w, r, booking.NewValidationError("from", err.Error()))
			return
		}
		in.From = d
	}
	o, err := h.Links.Issue(r.Context(), actingContext(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOfferDTO(o))
}

// GET /public/links/{token}
func (h *Handler) GetPublicLink(w http.ResponseWriter, r *http.Request) {
	o, err := h.Links.Lookup(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dto := toOfferDTO(o)
	dto.Token = ""
	writeJSON(w, http.StatusOK, dto)
}

// RedeemPublicLink books an offered slot for the offer's client.
// POST /public/links/{token}/redeem
func (h *Handler) RedeemPublicLink(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := h.bind(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	d, err := calendar.ParseDate(req.Date)
	if err != nil {
		h.fail(w, r, booking.NewValidationError("date", err.Error()))
		return
	}
	start, err := calendar.ParseTimeOfDay(req.StartTime)
	if err != nil {
		h.fail(w, r, booking.NewValidationError("start_time", err.Error()))
		return
	}
	appt, err := h.Links.Redeem(r.Context(), chi.URLParam(r, "token"), publiclink.RedeemInput{
		Date:       d,
		StartTime:  start,
		ServiceIDs: serviceIDs(req.ServiceIDs),
		Notes:      req.Notes,
	})
	warnings, err := h.partial(r, err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"appointment": toAppointmentDTO(appt),
		"warnings":    warnings,
	})
}

// Health reports store reachability.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func appointmentID(r *http.Request) booking.AppointmentID {
	return booking.AppointmentID(chi.URLParam(r, "id"))
}

// respondAppointment writes the result of a plain status transition.
func (h *Handler) respondAppointment(w http.ResponseWriter, r *http.Request) func(*booking.Appointment, error) {
	return func(appt *booking.Appointment, err error) {
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentDTO(appt))
	}
}

// partial splits secondary-step failures off err. It returns the warning
// messages and whatever error is left for fail.
func (h *Handler) partial(r *http.Request, err error) ([]string, error) {
	if err == nil || !booking.IsPartial(err) {
		return nil, err
	}
	var warnings []string
	var walk func(error)
	walk = func(e error) {
		if pf, ok := e.(*booking.PartialFailure); ok {
			warnings = append(warnings, pf.Error())
			return
		}
		if j, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range j.Unwrap() {
				walk(inner)
			}
			return
		}
		warnings = append(warnings, e.Error())
	}
	walk(err)
	hlog.FromRequest(r).Warn().Strs("warnings", warnings).Msg("operation partially applied")
	return warnings, nil
}

// fail maps a domain error to its HTTP status.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr    *booking.ValidationError
		warning *conflict.Warning
		settle  *lifecycle.SettlementRequiredError
		dispose *lifecycle.DispositionRequiredError
	)
	switch {
	case errors.As(err, &warning):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "Time slot overlaps an existing booking; resend with allow_overlap to accept",
			Details:   warning.Error(),
			Conflicts: toAppointmentDTOs(warning.Conflicts),
		})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: verr.FieldErrors})
	case errors.As(err, &settle):
		outstanding := settle.Outstanding
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "Settlement required", Details: settle.Error(), Outstanding: &outstanding,
		})
	case errors.As(err, &dispose):
		deposit := dispose.DepositTotal
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: "Deposit disposition required", Details: dispose.Error(), Deposit: &deposit,
		})
	case booking.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, publiclink.ErrOfferExpired):
		writeError(w, http.StatusGone, "Offer expired", err)
	case errors.Is(err, publiclink.ErrOfferRedeemed):
		writeError(w, http.StatusConflict, "Offer already redeemed", err)
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrSlotConflict):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, lifecycle.ErrNotIndeterminate), booking.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
