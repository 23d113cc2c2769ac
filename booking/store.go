/*
store.go - Persistence interfaces for appointments, payments, clients and services

PURPOSE:
  Defines the boundary between engine logic and the database. Implementations
  translate rows into the canonical types in types.go and nothing else; any
  legacy or drifted shape is normalized inside the implementation.

KEY INTERFACES:
  AppointmentStore: Appointment rows + their service bookings
  PaymentStore:     Payments, re-pointing (deposit transfer), mirror linking
  ClientStore:      Client directory
  CatalogStore:     Service catalog
  Store:            All of the above
  TxStore:          Store + WithTx for callers that want database atomicity

CASCADES:
  DeleteAppointment removes the appointment's service bookings and payments.

OWNERSHIP:
  Every read is scoped by OwnerID. A record owned by someone else is reported
  as not found.

IMPLEMENTATIONS:
  - booking/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL (pgx)

SEE ALSO:
  - lifecycle/unit_of_work.go: Compensation when no TxStore is available
*/
package booking

import (
	"context"

	"github.com/warp/booking-engine/calendar"
)

// =============================================================================
// FILTERS
// =============================================================================

type Order int

const (
	OrderDateAsc Order = iota
	OrderDateDesc
	OrderCancelledDesc
)

// AppointmentFilter selects appointments. Zero-valued fields do not filter.
type AppointmentFilter struct {
	OwnerID      OwnerID
	From         *calendar.Date // inclusive
	To           *calendar.Date // inclusive
	ClientID     ClientID
	ResourceID   *ResourceID // nil = any resource; pointer to "" = default calendar
	RootSeriesID AppointmentID
	Statuses     []Status
	Order        Order
	Limit        int

	// Indeterminate selects only roots of open-ended series.
	Indeterminate bool
}

// OnDay narrows the filter to a single date.
func (f AppointmentFilter) OnDay(d calendar.Date) AppointmentFilter {
	f.From, f.To = &d, &d
	return f
}

// Matches applies the filter in memory. Stores with a query language should
// push these predicates down instead.
func (f AppointmentFilter) Matches(a *Appointment) bool {
	if f.OwnerID != "" && a.OwnerID != f.OwnerID {
		return false
	}
	if f.From != nil && a.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && a.Date.After(*f.To) {
		return false
	}
	if f.ClientID != "" && a.ClientID != f.ClientID {
		return false
	}
	if f.ResourceID != nil && a.ResourceID != *f.ResourceID {
		return false
	}
	if f.RootSeriesID != "" && a.RootSeriesID != f.RootSeriesID {
		return false
	}
	if f.Indeterminate && (a.Pattern == nil || !a.Pattern.Indeterminate) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if a.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

type AppointmentStore interface {
	// CreateAppointment inserts the appointment row only; service lines are
	// written by ReplaceServiceBookings.
	CreateAppointment(ctx context.Context, a *Appointment) error

	// GetAppointment loads the appointment with its service lines.
	GetAppointment(ctx context.Context, owner OwnerID, id AppointmentID) (*Appointment, error)

	// UpdateAppointment overwrites the appointment row (last write wins).
	UpdateAppointment(ctx context.Context, a *Appointment) error

	// DeleteAppointment removes the appointment, its service lines and payments.
	DeleteAppointment(ctx context.Context, owner OwnerID, id AppointmentID) error

	// ListAppointments returns matches with service lines populated.
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)

	// ReplaceServiceBookings deletes then reinserts all service lines.
	ReplaceServiceBookings(ctx context.Context, id AppointmentID, lines []ServiceBooking) error
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, owner OwnerID, id PaymentID) (*Payment, error)

	// ListPayments returns an appointment's payments ordered by PaidAt.
	ListPayments(ctx context.Context, id AppointmentID) ([]Payment, error)

	// MarkPaymentLinked records the external ledger entry id.
	MarkPaymentLinked(ctx context.Context, id PaymentID, externalRef string) error

	// ReassignPayments re-points every payment of kind from one appointment
	// to another and returns the moved ids.
	ReassignPayments(ctx context.Context, from, to AppointmentID, kind PaymentKind) ([]PaymentID, error)

	DeletePayment(ctx context.Context, id PaymentID) error
}

type ClientStore interface {
	SaveClient(ctx context.Context, c *Client) error
	GetClient(ctx context.Context, owner OwnerID, id ClientID) (*Client, error)
	ListClients(ctx context.Context, owner OwnerID) ([]Client, error)
}

type CatalogStore interface {
	SaveService(ctx context.Context, s *Service) error
	GetService(ctx context.Context, owner OwnerID, id ServiceID) (*Service, error)
	ListServices(ctx context.Context, owner OwnerID) ([]Service, error)
}

// Store is the full backing store the engine consumes.
type Store interface {
	AppointmentStore
	PaymentStore
	ClientStore
	CatalogStore
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic compound writes
// =============================================================================

// TxStore wraps Store with transaction support.
// If fn returns an error the transaction is rolled back.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
