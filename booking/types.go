/*
Package booking holds the canonical entities of the appointment engine and
the storage contracts they travel through.

PURPOSE:
  One tagged representation per entity. Stores normalize whatever shape the
  backing database returns into these types exactly once, at the I/O edge;
  business logic never re-reads raw rows or guesses at nested shapes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Appointment:     A booked time range on one date, with snapshotted services
  - ServiceBooking:  A service line on an appointment (price/duration frozen)
  - Payment:         Deposit, final payment or refund attached to an appointment
  - Client, Service: Directory and catalog records referenced by bookings
  - ActingContext:   Who owns the calendar and who is acting on it

DESIGN PRINCIPLES:
  1. Precision: money is decimal.Decimal, never float
  2. Snapshots: historical appointments keep the price they were booked at
  3. Derived end: EndTime = StartTime + Σ service durations, always recomputed

SEE ALSO:
  - store.go: Persistence interfaces
  - errors.go: Error taxonomy
  - lifecycle/: Status transitions over these types
*/
package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/recurrence"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AppointmentID string
type PaymentID string
type ClientID string
type ServiceID string
type ResourceID string
type OwnerID string

// =============================================================================
// ACTING CONTEXT - Explicit, never resolved ambiently
// =============================================================================

// ActingContext identifies whose calendar an operation touches and who is
// performing it. ActingAsID is set when staff act on the owner's behalf.
type ActingContext struct {
	OwnerID    OwnerID
	ActingAsID string
}

// Actor returns the id to record as the performer.
func (a ActingContext) Actor() string {
	if a.ActingAsID != "" {
		return a.ActingAsID
	}
	return string(a.OwnerID)
}

func (a ActingContext) Validate() error {
	if a.OwnerID == "" {
		return &ValidationError{FieldErrors: map[string]string{"owner_id": "acting context has no owner"}}
	}
	return nil
}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// IsActive reports whether the appointment still occupies its slot.
// Completed bookings are active for conflict purposes.
func (s Status) IsActive() bool {
	return s != StatusCancelled && s != StatusNoShow
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusNoShow
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// legacyStatuses maps spellings found in older rows and clients.
var legacyStatuses = map[string]Status{
	"":            StatusPending,
	"canceled":    StatusCancelled,
	"no-show":     StatusNoShow,
	"noshow":      StatusNoShow,
	"in-progress": StatusInProgress,
	"done":        StatusCompleted,
}

// ParseStatus normalizes a stored or submitted status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st.Valid() {
		return st, nil
	}
	if legacy, ok := legacyStatuses[string(st)]; ok {
		return legacy, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

// Source records which booking path created an appointment.
type Source string

const (
	SourceManual     Source = "manual"
	SourceQuickBook  Source = "quick_book"
	SourcePublicLink Source = "public_link"
)

// Modality is where the service is delivered.
type Modality string

const (
	ModalityInPerson Modality = "in_person"
	ModalityAtHome   Modality = "at_home"
	ModalityVideo    Modality = "video"
)

// =============================================================================
// APPOINTMENT
// =============================================================================

type Appointment struct {
	ID         AppointmentID
	OwnerID    OwnerID
	Date       calendar.Date
	StartTime  calendar.TimeOfDay
	EndTime    calendar.TimeOfDay
	Status     Status
	Source     Source
	ClientID   ClientID // empty for guest bookings
	GuestName  string
	ResourceID ResourceID
	Services   []ServiceBooking

	Modality      Modality
	VideoLink     string
	Notes         string // customer-visible
	InternalNotes string

	// Recurrence. RootSeriesID is empty on the root itself.
	RootSeriesID AppointmentID
	Pattern      *recurrence.Pattern
	SeriesEnd    *calendar.Date

	ReminderSent   bool
	ReminderSentAt *time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRecurring reports whether the appointment belongs to a series.
func (a *Appointment) IsRecurring() bool {
	return a.Pattern != nil || a.RootSeriesID != ""
}

// SeriesRoot returns the id shared by every occurrence of the series.
func (a *Appointment) SeriesRoot() AppointmentID {
	if a.RootSeriesID != "" {
		return a.RootSeriesID
	}
	return a.ID
}

// DurationMinutes is the sum of booked service durations.
func (a *Appointment) DurationMinutes() int {
	total := 0
	for _, s := range a.Services {
		total += s.DurationMinutes
	}
	return total
}

// ServiceTotal is the sum of snapshotted prices.
func (a *Appointment) ServiceTotal() decimal.Decimal {
	total := decimal.Zero
	for _, s := range a.Services {
		total = total.Add(s.Price)
	}
	return total
}

// RecomputeEnd enforces EndTime = StartTime + Σ durations.
func (a *Appointment) RecomputeEnd() {
	a.EndTime = a.StartTime.Add(time.Duration(a.DurationMinutes()) * time.Minute)
}

// DisplayName is the client name or the guest name.
func (a *Appointment) DisplayName(c *Client) string {
	if c != nil && c.Name != "" {
		return c.Name
	}
	return a.GuestName
}

// ServiceNames joins the booked service names in order.
func (a *Appointment) ServiceNames() []string {
	names := make([]string, 0, len(a.Services))
	for _, s := range a.Services {
		names = append(names, s.ServiceName)
	}
	return names
}

// =============================================================================
// SERVICE BOOKING - Snapshotted service line
// =============================================================================

type ServiceBooking struct {
	AppointmentID   AppointmentID
	ServiceID       ServiceID
	ServiceName     string
	Price           decimal.Decimal
	DurationMinutes int
	Position        int
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentKind string

const (
	PaymentDeposit PaymentKind = "deposit"
	PaymentFinal   PaymentKind = "final_payment"
	PaymentRefund  PaymentKind = "refund"
)

func (k PaymentKind) Valid() bool {
	return k == PaymentDeposit || k == PaymentFinal || k == PaymentRefund
}

var legacyKinds = map[string]PaymentKind{
	"seña":    PaymentDeposit,
	"sena":    PaymentDeposit,
	"payment": PaymentFinal,
	"final":   PaymentFinal,
}

// ParsePaymentKind normalizes a stored or submitted payment kind.
func ParsePaymentKind(s string) (PaymentKind, error) {
	k := PaymentKind(strings.ToLower(strings.TrimSpace(s)))
	if k.Valid() {
		return k, nil
	}
	if legacy, ok := legacyKinds[string(k)]; ok {
		return legacy, nil
	}
	return "", fmt.Errorf("unknown payment kind %q", s)
}

type Payment struct {
	ID            PaymentID
	OwnerID       OwnerID
	AppointmentID AppointmentID
	Kind          PaymentKind
	Amount        decimal.Decimal // always positive
	PaidAt        time.Time
	Method        string
	Notes         string

	// External ledger mirror
	Linked      bool
	ExternalRef string

	CreatedAt time.Time
}

// =============================================================================
// CLIENT & SERVICE CATALOG
// =============================================================================

type Client struct {
	ID       ClientID
	OwnerID  OwnerID
	Name     string
	Phone    string
	Handle   string // messaging handle
	Email    string
	Street   string
	City     string
	Province string
	PostCode string
	Notes    string

	CreatedAt time.Time
}

// Address formats the physical address for at-home modality.
func (c *Client) Address() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{c.Street, c.City, c.Province, c.PostCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type Service struct {
	ID              ServiceID
	OwnerID         OwnerID
	Name            string
	Price           decimal.Decimal
	DurationMinutes int
	RequiresDeposit bool
	DepositPercent  decimal.Decimal // 0..100
	Active          bool

	CreatedAt time.Time
}

// Snapshot freezes the catalog entry into a booking line.
func (s *Service) Snapshot(position int) ServiceBooking {
	return ServiceBooking{
		ServiceID:       s.ID,
		ServiceName:     s.Name,
		Price:           s.Price,
		DurationMinutes: s.DurationMinutes,
		Position:        position,
	}
}
