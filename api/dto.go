/*
dto.go - Request and response bodies for the HTTP API

PURPOSE:
  Decouples the JSON contract from the booking model. Request bodies are
  checked with struct tags (go-playground/validator) before any domain call;
  the domain still re-validates what only it can know (unknown ids, overlaps,
  transitions).

NAMING CONVENTION:
  - *DTO:     response bodies
  - *Request: request bodies

NORMALIZATION:
  Dates travel as YYYY-MM-DD, times of day as HH:MM, money as decimal
  strings. Legacy spellings of payment kinds ("seña", "payment") are
  accepted on input and never emitted.

SEE ALSO:
  - handlers.go: uses these types
  - booking/types.go: the model they map to
*/
package api

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/cashbook"
	"github.com/warp/booking-engine/ledger"
	"github.com/warp/booking-engine/lifecycle"
	"github.com/warp/booking-engine/publiclink"
	"github.com/warp/booking-engine/recurrence"
)

// =============================================================================
// VALIDATION
// =============================================================================

// newValidator reports fields by their json names and compares decimals as
// numbers, so `gt=0` works on money.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

var fieldMessages = map[string]string{
	"required":         "required",
	"required_without": "required",
	"required_if":      "required",
	"email":            "invalid email format",
	"url":              "invalid URL",
	"datetime":         "invalid format",
	"oneof":            "unsupported value",
	"gt":               "must be positive",
	"gte":              "must not be negative",
	"min":              "value is too small",
	"max":              "value is too large",
}

// fieldErrors converts validator output into the booking validation error.
func fieldErrors(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return booking.NewValidationError("body", err.Error())
	}
	v := &booking.ValidationError{}
	for _, fe := range verrs {
		msg := fieldMessages[fe.Tag()]
		if msg == "" {
			msg = "failed " + fe.Tag()
		}
		if fe.Tag() == "datetime" {
			msg += ", use " + fe.Param()
		}
		v.Add(fe.Field(), msg)
	}
	return v.OrNil()
}

// =============================================================================
// REQUESTS
// =============================================================================

type ClientRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"max=40"`
	Handle   string `json:"handle" validate:"max=100"`
	Email    string `json:"email" validate:"omitempty,email"`
	Street   string `json:"street"`
	City     string `json:"city"`
	Province string `json:"province"`
	PostCode string `json:"post_code"`
	Notes    string `json:"notes" validate:"max=2000"`
}

type ServiceRequest struct {
	ID              string          `json:"id"`
	Name            string          `json:"name" validate:"required,max=200"`
	Price           decimal.Decimal `json:"price" validate:"gte=0"`
	DurationMinutes int             `json:"duration_minutes" validate:"required,min=1,max=1440"`
	RequiresDeposit bool            `json:"requires_deposit"`
	DepositPercent  decimal.Decimal `json:"deposit_percent" validate:"gte=0,lte=100"`
	Active          *bool           `json:"active"`
}

type RecurrenceRequest struct {
	Type          string `json:"type" validate:"required,oneof=weekly biweekly monthly"`
	Count         int    `json:"count" validate:"min=0,max=52"`
	EndDate       string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Indeterminate bool   `json:"indeterminate"`
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Method string          `json:"method" validate:"required"`
	Mirror bool            `json:"mirror"`
}

type CreateAppointmentRequest struct {
	Date          string             `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime     string             `json:"start_time" validate:"required,datetime=15:04"`
	ServiceIDs    []string           `json:"service_ids" validate:"required,min=1,dive,required"`
	ClientID      string             `json:"client_id"`
	GuestName     string             `json:"guest_name" validate:"required_without=ClientID,max=200"`
	ResourceID    string             `json:"resource_id"`
	Source        string             `json:"source" validate:"omitempty,oneof=manual quick_book"`
	Modality      string             `json:"modality" validate:"omitempty,oneof=in_person at_home video"`
	VideoLink     string             `json:"video_link" validate:"required_if=Modality video,omitempty,url"`
	Notes         string             `json:"notes" validate:"max=2000"`
	InternalNotes string             `json:"internal_notes" validate:"max=2000"`
	Recurrence    *RecurrenceRequest `json:"recurrence"`
	Deposit       *DepositRequest    `json:"deposit"`
	UseCreditFrom string             `json:"use_credit_from"`
	AllowOverlap  bool               `json:"allow_overlap"`
}

// toInput assumes the request passed validation.
func (r CreateAppointmentRequest) toInput() (lifecycle.BookInput, error) {
	d, err := calendar.ParseDate(r.Date)
	if err != nil {
		return lifecycle.BookInput{}, booking.NewValidationError("date", err.Error())
	}
	start, err := calendar.ParseTimeOfDay(r.StartTime)
	if err != nil {
		return lifecycle.BookInput{}, booking.NewValidationError("start_time", err.Error())
	}
	in := lifecycle.BookInput{
		Date:          d,
		StartTime:     &start,
		ServiceIDs:    serviceIDs(r.ServiceIDs),
		ClientID:      booking.ClientID(r.ClientID),
		GuestName:     strings.TrimSpace(r.GuestName),
		ResourceID:    booking.ResourceID(r.ResourceID),
		Source:        booking.Source(r.Source),
		Modality:      booking.Modality(r.Modality),
		VideoLink:     r.VideoLink,
		Notes:         r.Notes,
		InternalNotes: r.InternalNotes,
		UseCreditFrom: booking.AppointmentID(r.UseCreditFrom),
		AllowOverlap:  r.AllowOverlap,
	}
	if r.Recurrence != nil {
		p := recurrence.Pattern{
			Type:          recurrence.Type(r.Recurrence.Type),
			Count:         r.Recurrence.Count,
			Indeterminate: r.Recurrence.Indeterminate,
		}
		if r.Recurrence.EndDate != "" {
			end, err := calendar.ParseDate(r.Recurrence.EndDate)
			if err != nil {
				return lifecycle.BookInput{}, booking.NewValidationError("end_date", err.Error())
			}
			p.EndDate = &end
		}
		in.Recurrence = &p
	}
	if r.Deposit != nil {
		in.Deposit = &lifecycle.DepositInput{
			Amount: r.Deposit.Amount,
			Method: r.Deposit.Method,
			Mirror: r.Deposit.Mirror,
		}
	}
	return in, nil
}

type UpdateAppointmentRequest struct {
	Date          *string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime     *string  `json:"start_time" validate:"omitempty,datetime=15:04"`
	ServiceIDs    []string `json:"service_ids" validate:"omitempty,min=1,dive,required"`
	ClientID      *string  `json:"client_id"`
	GuestName     *string  `json:"guest_name" validate:"omitempty,max=200"`
	ResourceID    *string  `json:"resource_id"`
	Modality      *string  `json:"modality" validate:"omitempty,oneof=in_person at_home video"`
	VideoLink     *string  `json:"video_link" validate:"omitempty,url"`
	Notes         *string  `json:"notes" validate:"omitempty,max=2000"`
	InternalNotes *string  `json:"internal_notes" validate:"omitempty,max=2000"`
	Propagate     bool     `json:"propagate"`
	AllowOverlap  bool     `json:"allow_overlap"`
}

func (r UpdateAppointmentRequest) toInput() (lifecycle.EditInput, error) {
	in := lifecycle.EditInput{
		ServiceIDs:    serviceIDs(r.ServiceIDs),
		GuestName:     r.GuestName,
		VideoLink:     r.VideoLink,
		Notes:         r.Notes,
		InternalNotes: r.InternalNotes,
		Propagate:     r.Propagate,
		AllowOverlap:  r.AllowOverlap,
	}
	if r.Date != nil {
		d, err := calendar.ParseDate(*r.Date)
		if err != nil {
			return in, booking.NewValidationError("date", err.Error())
		}
		in.Date = &d
	}
	if r.StartTime != nil {
		t, err := calendar.ParseTimeOfDay(*r.StartTime)
		if err != nil {
			return in, booking.NewValidationError("start_time", err.Error())
		}
		in.StartTime = &t
	}
	if r.ClientID != nil {
		id := booking.ClientID(*r.ClientID)
		in.ClientID = &id
	}
	if r.ResourceID != nil {
		id := booking.ResourceID(*r.ResourceID)
		in.ResourceID = &id
	}
	if r.Modality != nil {
		m := booking.Modality(*r.Modality)
		in.Modality = &m
	}
	return in, nil
}

type ConfirmRequest struct {
	Notify bool `json:"notify"`
}

type CompleteRequest struct {
	Method string `json:"method"`
	Notes  string `json:"notes" validate:"max=2000"`
	Mirror bool   `json:"mirror"`
}

type RescheduleRequest struct {
	Date         string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime    string   `json:"start_time" validate:"omitempty,datetime=15:04"`
	ServiceIDs   []string `json:"service_ids" validate:"omitempty,dive,required"`
	ResourceID   string   `json:"resource_id"`
	Notes        string   `json:"notes" validate:"max=2000"`
	AllowOverlap bool     `json:"allow_overlap"`
}

type CancelRequest struct {
	Disposition string             `json:"disposition" validate:"omitempty,oneof=refund retain reschedule"`
	Method      string             `json:"method" validate:"required_if=Disposition refund"`
	Mirror      bool               `json:"mirror"`
	Notify      bool               `json:"notify"`
	Reschedule  *RescheduleRequest `json:"reschedule" validate:"required_if=Disposition reschedule"`
}

func (r CancelRequest) toInput() (lifecycle.CancelInput, error) {
	in := lifecycle.CancelInput{
		Disposition: lifecycle.Disposition(r.Disposition),
		Method:      r.Method,
		Mirror:      r.Mirror,
		Notify:      r.Notify,
	}
	if r.Reschedule == nil {
		return in, nil
	}
	rs := &lifecycle.BookInput{
		ServiceIDs:   serviceIDs(r.Reschedule.ServiceIDs),
		ResourceID:   booking.ResourceID(r.Reschedule.ResourceID),
		Notes:        r.Reschedule.Notes,
		AllowOverlap: r.Reschedule.AllowOverlap,
	}
	if r.Reschedule.Date != "" {
		d, err := calendar.ParseDate(r.Reschedule.Date)
		if err != nil {
			return in, booking.NewValidationError("reschedule.date", err.Error())
		}
		rs.Date = d
	}
	if r.Reschedule.StartTime != "" {
		t, err := calendar.ParseTimeOfDay(r.Reschedule.StartTime)
		if err != nil {
			return in, booking.NewValidationError("reschedule.start_time", err.Error())
		}
		rs.StartTime = &t
	}
	in.Reschedule = rs
	return in, nil
}

type ReminderRequest struct {
	ConfirmURL string `json:"confirm_url" validate:"omitempty,url"`
}

type PaymentRequest struct {
	Kind   string          `json:"kind" validate:"required"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Method string          `json:"method" validate:"max=50"`
	Notes  string          `json:"notes" validate:"max=2000"`
	PaidAt *time.Time      `json:"paid_at"`
	Mirror bool            `json:"mirror"`
}

type ExtendRequest struct {
	Batch int `json:"batch" validate:"omitempty,min=1,max=52"`
}

type IssueLinkRequest struct {
	ClientID   string   `json:"client_id" validate:"required"`
	ServiceIDs []string `json:"service_ids" validate:"required,min=1,dive,required"`
	ResourceID string   `json:"resource_id"`
	From       string   `json:"from" validate:"omitempty,datetime=2006-01-02"`
	Days       int      `json:"days" validate:"omitempty,min=1,max=31"`
}

type RedeemRequest struct {
	Date       string   `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string   `json:"start_time" validate:"required,datetime=15:04"`
	ServiceIDs []string `json:"service_ids" validate:"omitempty,dive,required"`
	Notes      string   `json:"notes" validate:"max=500"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

func serviceIDs(ids []string) []booking.ServiceID {
	if len(ids) == 0 {
		return nil
	}
	out := make([]booking.ServiceID, len(ids))
	for i, id := range ids {
		out[i] = booking.ServiceID(strings.TrimSpace(id))
	}
	return out
}

// =============================================================================
// RESPONSES
// =============================================================================

type ServiceLineDTO struct {
	ServiceID       string          `json:"service_id"`
	ServiceName     string          `json:"service_name"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"duration_minutes"`
}

type RecurrenceDTO struct {
	Type          string  `json:"type"`
	Count         int     `json:"count,omitempty"`
	EndDate       *string `json:"end_date,omitempty"`
	Indeterminate bool    `json:"indeterminate"`
}

type AppointmentDTO struct {
	ID             string           `json:"id"`
	Date           string           `json:"date"`
	StartTime      string           `json:"start_time"`
	EndTime        string           `json:"end_time"`
	Duration       string           `json:"duration"`
	Status         string           `json:"status"`
	Source         string           `json:"source"`
	ClientID       string           `json:"client_id,omitempty"`
	GuestName      string           `json:"guest_name,omitempty"`
	ResourceID     string           `json:"resource_id,omitempty"`
	Services       []ServiceLineDTO `json:"services"`
	ServiceTotal   decimal.Decimal  `json:"service_total"`
	Modality       string           `json:"modality"`
	VideoLink      string           `json:"video_link,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	InternalNotes  string           `json:"internal_notes,omitempty"`
	RootSeriesID   string           `json:"root_series_id,omitempty"`
	Recurrence     *RecurrenceDTO   `json:"recurrence,omitempty"`
	SeriesEnd      *string          `json:"series_end,omitempty"`
	ReminderSent   bool             `json:"reminder_sent"`
	ReminderSentAt *time.Time       `json:"reminder_sent_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	CancelledAt    *time.Time       `json:"cancelled_at,omitempty"`
	Actions        []string         `json:"actions"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func toAppointmentDTO(a *booking.Appointment) AppointmentDTO {
	dto := AppointmentDTO{
		ID:             string(a.ID),
		Date:           a.Date.String(),
		StartTime:      a.StartTime.String(),
		EndTime:        a.EndTime.String(),
		Duration:       calendar.FormatDuration(a.DurationMinutes()),
		Status:         string(a.Status),
		Source:         string(a.Source),
		ClientID:       string(a.ClientID),
		GuestName:      a.GuestName,
		ResourceID:     string(a.ResourceID),
		Services:       make([]ServiceLineDTO, 0, len(a.Services)),
		ServiceTotal:   a.ServiceTotal(),
		Modality:       string(a.Modality),
		VideoLink:      a.VideoLink,
		Notes:          a.Notes,
		InternalNotes:  a.InternalNotes,
		RootSeriesID:   string(a.RootSeriesID),
		ReminderSent:   a.ReminderSent,
		ReminderSentAt: a.ReminderSentAt,
		CompletedAt:    a.CompletedAt,
		CancelledAt:    a.CancelledAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
	for _, l := range a.Services {
		dto.Services = append(dto.Services, ServiceLineDTO{
			ServiceID:       string(l.ServiceID),
			ServiceName:     l.ServiceName,
			Price:           l.Price,
			DurationMinutes: l.DurationMinutes,
		})
	}
	if a.Pattern != nil {
		dto.Recurrence = &RecurrenceDTO{
			Type:          string(a.Pattern.Type),
			Count:         a.Pattern.Count,
			EndDate:       dateString(a.Pattern.EndDate),
			Indeterminate: a.Pattern.Indeterminate,
		}
	}
	dto.SeriesEnd = dateString(a.SeriesEnd)
	for _, t := range lifecycle.Available(a.Status) {
		dto.Actions = append(dto.Actions, string(t))
	}
	if dto.Actions == nil {
		dto.Actions = []string{}
	}
	return dto
}

func toAppointmentDTOs(list []booking.Appointment) []AppointmentDTO {
	out := make([]AppointmentDTO, len(list))
	for i := range list {
		out[i] = toAppointmentDTO(&list[i])
	}
	return out
}

func dateString(d *calendar.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

type PaymentDTO struct {
	ID            string          `json:"id"`
	AppointmentID string          `json:"appointment_id"`
	Kind          string          `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        time.Time       `json:"paid_at"`
	Method        string          `json:"method,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Linked        bool            `json:"linked"`
	ExternalRef   string          `json:"external_ref,omitempty"`
}

func toPaymentDTO(p *booking.Payment) *PaymentDTO {
	if p == nil {
		return nil
	}
	return &PaymentDTO{
		ID:            string(p.ID),
		AppointmentID: string(p.AppointmentID),
		Kind:          string(p.Kind),
		Amount:        p.Amount,
		PaidAt:        p.PaidAt,
		Method:        p.Method,
		Notes:         p.Notes,
		Linked:        p.Linked,
		ExternalRef:   p.ExternalRef,
	}
}

type BalanceDTO struct {
	AppointmentID  string          `json:"appointment_id"`
	ServiceTotal   decimal.Decimal `json:"service_total"`
	TotalDeposits  decimal.Decimal `json:"total_deposits"`
	TotalPaidGross decimal.Decimal `json:"total_paid_gross"`
	TotalRefunded  decimal.Decimal `json:"total_refunded"`
	EffectiveTotal decimal.Decimal `json:"effective_total"`
	Pending        decimal.Decimal `json:"pending"`
	IsFullySettled bool            `json:"is_fully_settled"`
}

func toBalanceDTO(id booking.AppointmentID, b ledger.Balance) BalanceDTO {
	return BalanceDTO{
		AppointmentID:  string(id),
		ServiceTotal:   b.ServiceTotal,
		TotalDeposits:  b.TotalDeposits,
		TotalPaidGross: b.TotalPaidGross,
		TotalRefunded:  b.TotalRefunded,
		EffectiveTotal: b.EffectiveTotal,
		Pending:        b.Pending,
		IsFullySettled: b.IsFullySettled,
	}
}

type ClientDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Handle    string    `json:"handle,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toClientDTO(c *booking.Client) ClientDTO {
	return ClientDTO{
		ID:        string(c.ID),
		Name:      c.Name,
		Phone:     c.Phone,
		Handle:    c.Handle,
		Email:     c.Email,
		Address:   c.Address(),
		Notes:     c.Notes,
		CreatedAt: c.CreatedAt,
	}
}

type ServiceDTO struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Price           decimal.Decimal `json:"price"`
	DurationMinutes int             `json:"duration_minutes"`
	Duration        string          `json:"duration"`
	RequiresDeposit bool            `json:"requires_deposit"`
	DepositPercent  decimal.Decimal `json:"deposit_percent"`
	Active          bool            `json:"active"`
}

func toServiceDTO(s *booking.Service) ServiceDTO {
	return ServiceDTO{
		ID:              string(s.ID),
		Name:            s.Name,
		Price:           s.Price,
		DurationMinutes: s.DurationMinutes,
		Duration:        calendar.FormatDuration(s.DurationMinutes),
		RequiresDeposit: s.RequiresDeposit,
		DepositPercent:  s.DepositPercent,
		Active:          s.Active,
	}
}

type CreditDTO struct {
	AppointmentID string          `json:"appointment_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
}

type BookResponse struct {
	Appointment AppointmentDTO   `json:"appointment"`
	Occurrences []AppointmentDTO `json:"occurrences,omitempty"`
	Conflicts   []AppointmentDTO `json:"conflicts,omitempty"`
	Deposit     *PaymentDTO      `json:"deposit,omitempty"`
	Transferred []string         `json:"transferred,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
}

type EditResponse struct {
	Appointment AppointmentDTO   `json:"appointment"`
	Conflicts   []AppointmentDTO `json:"conflicts,omitempty"`
	Propagated  int              `json:"propagated"`
	Warnings    []string         `json:"warnings,omitempty"`
}

type CompleteResponse struct {
	Appointment AppointmentDTO `json:"appointment"`
	Payment     *PaymentDTO    `json:"payment,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
}

type CancelResponse struct {
	Appointment AppointmentDTO  `json:"appointment"`
	Replacement *AppointmentDTO `json:"replacement,omitempty"`
	Refund      *PaymentDTO     `json:"refund,omitempty"`
	Transferred []string        `json:"transferred,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
}

type PaymentResponse struct {
	Payment  *PaymentDTO `json:"payment"`
	Balance  BalanceDTO  `json:"balance"`
	Warnings []string    `json:"warnings,omitempty"`
}

type OfferDTO struct {
	ID           string              `json:"id"`
	Token        string              `json:"token,omitempty"`
	ClientID     string              `json:"client_id"`
	ServiceIDs   []string            `json:"service_ids"`
	Availability map[string][]string `json:"availability"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

func toOfferDTO(o *publiclink.Offer) OfferDTO {
	dto := OfferDTO{
		ID:           o.ID,
		Token:        o.Token,
		ClientID:     string(o.ClientID),
		ServiceIDs:   make([]string, len(o.ServiceIDs)),
		Availability: make(map[string][]string, len(o.Availability)),
		ExpiresAt:    o.ExpiresAt,
	}
	for i, id := range o.ServiceIDs {
		dto.ServiceIDs[i] = string(id)
	}
	for _, d := range o.Dates() {
		slots := make([]string, len(o.Availability[d]))
		for i, t := range o.Availability[d] {
			slots[i] = t.String()
		}
		dto.Availability[d.String()] = slots
	}
	return dto
}

type CashEntryDTO struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Direction   string          `json:"direction"`
	CategoryID  string          `json:"category_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method,omitempty"`
	Description string          `json:"description"`
	SourceID    string          `json:"source_id,omitempty"`
}

type CashbookDTO struct {
	Entries []CashEntryDTO  `json:"entries"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

func toCashbookDTO(entries []cashbook.Entry) CashbookDTO {
	totals := cashbook.Summarize(entries)
	dto := CashbookDTO{
		Entries: make([]CashEntryDTO, len(entries)),
		Income:  totals.Income,
		Expense: totals.Expense,
		Net:     totals.Net,
	}
	for i, e := range entries {
		dto.Entries[i] = CashEntryDTO{
			ID:          e.ID,
			Date:        e.Date.String(),
			Direction:   string(e.Direction),
			CategoryID:  e.CategoryID,
			Amount:      e.Amount,
			Method:      e.Method,
			Description: e.Description,
			SourceID:    e.SourceID,
		}
	}
	return dto
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error       string            `json:"error"`
	Details     string            `json:"details,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Conflicts   []AppointmentDTO  `json:"conflicts,omitempty"`
	Outstanding *decimal.Decimal  `json:"outstanding,omitempty"`
	Deposit     *decimal.Decimal  `json:"deposit,omitempty"`
}
