// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/booking-engine/booking"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	appointments map[booking.AppointmentID]booking.Appointment
	lines        map[booking.AppointmentID][]booking.ServiceBooking
	payments     map[booking.PaymentID]booking.Payment
	clients      map[booking.ClientID]booking.Client
	services     map[booking.ServiceID]booking.Service
}

func NewMemory() *Memory {
	return &Memory{
		appointments: make(map[booking.AppointmentID]booking.Appointment),
		lines:        make(map[booking.AppointmentID][]booking.ServiceBooking),
		payments:     make(map[booking.PaymentID]booking.Payment),
		clients:      make(map[booking.ClientID]booking.Client),
		services:     make(map[booking.ServiceID]booking.Service),
	}
}

// Reset drops every record.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fresh := NewMemory()
	m.appointments, m.lines, m.payments = fresh.appointments, fresh.lines, fresh.payments
	m.clients, m.services = fresh.clients, fresh.services
	return nil
}

// ===== APPOINTMENTS =====

func (m *Memory) CreateAppointment(_ context.Context, a *booking.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createAppointmentLocked(a)
}

func (m *Memory) createAppointmentLocked(a *booking.Appointment) error {
	row := *a
	row.Services = nil
	m.appointments[a.ID] = row
	return nil
}

func (m *Memory) GetAppointment(_ context.Context, owner booking.OwnerID, id booking.AppointmentID) (*booking.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAppointmentLocked(owner, id)
}

func (m *Memory) getAppointmentLocked(owner booking.OwnerID, id booking.AppointmentID) (*booking.Appointment, error) {
	a, ok := m.appointments[id]
	if !ok || a.OwnerID != owner {
		return nil, booking.ErrAppointmentNotFound
	}
	a.Services = append([]booking.ServiceBooking(nil), m.lines[id]...)
	return &a, nil
}

func (m *Memory) UpdateAppointment(_ context.Context, a *booking.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateAppointmentLocked(a)
}

func (m *Memory) updateAppointmentLocked(a *booking.Appointment) error {
	existing, ok := m.appointments[a.ID]
	if !ok || existing.OwnerID != a.OwnerID {
		return booking.ErrAppointmentNotFound
	}
	return m.createAppointmentLocked(a)
}

func (m *Memory) DeleteAppointment(_ context.Context, owner booking.OwnerID, id booking.AppointmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteAppointmentLocked(owner, id)
}

func (m *Memory) deleteAppointmentLocked(owner booking.OwnerID, id booking.AppointmentID) error {
	a, ok := m.appointments[id]
	if !ok || a.OwnerID != owner {
		return booking.ErrAppointmentNotFound
	}
	delete(m.appointments, id)
	delete(m.lines, id)
	for pid, p := range m.payments {
		if p.AppointmentID == id {
			delete(m.payments, pid)
		}
	}
	return nil
}

func (m *Memory) ListAppointments(_ context.Context, f booking.AppointmentFilter) ([]booking.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAppointmentsLocked(f), nil
}

func (m *Memory) listAppointmentsLocked(f booking.AppointmentFilter) []booking.Appointment {
	var out []booking.Appointment
	for _, a := range m.appointments {
		if !f.Matches(&a) {
			continue
		}
		a.Services = append([]booking.ServiceBooking(nil), m.lines[a.ID]...)
		out = append(out, a)
	}
	sortAppointments(out, f.Order)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func sortAppointments(as []booking.Appointment, order booking.Order) {
	sort.SliceStable(as, func(i, j int) bool {
		a, b := as[i], as[j]
		switch order {
		case booking.OrderDateDesc:
			if !a.Date.Equal(b.Date) {
				return a.Date.After(b.Date)
			}
			return a.StartTime > b.StartTime
		case booking.OrderCancelledDesc:
			ai, bi := a.CancelledAt, b.CancelledAt
			if ai != nil && bi != nil && !ai.Equal(*bi) {
				return ai.After(*bi)
			}
			if (ai == nil) != (bi == nil) {
				return ai != nil
			}
			return a.Date.After(b.Date)
		default:
			if !a.Date.Equal(b.Date) {
				return a.Date.Before(b.Date)
			}
			if a.StartTime != b.StartTime {
				return a.StartTime < b.StartTime
			}
			return a.ID < b.ID
		}
	})
}

func (m *Memory) ReplaceServiceBookings(_ context.Context, id booking.AppointmentID, lines []booking.ServiceBooking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaceLinesLocked(id, lines)
}

func (m *Memory) replaceLinesLocked(id booking.AppointmentID, lines []booking.ServiceBooking) error {
	if _, ok := m.appointments[id]; !ok {
		return booking.ErrAppointmentNotFound
	}
	copied := make([]booking.ServiceBooking, len(lines))
	for i, l := range lines {
		l.AppointmentID = id
		l.Position = i
		copied[i] = l
	}
	m.lines[id] = copied
	return nil
}

// ===== PAYMENTS =====

func (m *Memory) CreatePayment(_ context.Context, p *booking.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createPaymentLocked(p)
}

func (m *Memory) createPaymentLocked(p *booking.Payment) error {
	if _, ok := m.appointments[p.AppointmentID]; !ok {
		return booking.ErrAppointmentNotFound
	}
	m.payments[p.ID] = *p
	return nil
}

func (m *Memory) GetPayment(_ context.Context, owner booking.OwnerID, id booking.PaymentID) (*booking.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.payments[id]
	if !ok || p.OwnerID != owner {
		return nil, booking.ErrPaymentNotFound
	}
	return &p, nil
}

func (m *Memory) ListPayments(_ context.Context, id booking.AppointmentID) ([]booking.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPaymentsLocked(id), nil
}

func (m *Memory) listPaymentsLocked(id booking.AppointmentID) []booking.Payment {
	var out []booking.Payment
	for _, p := range m.payments {
		if p.AppointmentID == id {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PaidAt.Equal(out[j].PaidAt) {
			return out[i].PaidAt.Before(out[j].PaidAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) MarkPaymentLinked(_ context.Context, id booking.PaymentID, externalRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return booking.ErrPaymentNotFound
	}
	p.Linked = true
	p.ExternalRef = externalRef
	m.payments[id] = p
	return nil
}

func (m *Memory) ReassignPayments(_ context.Context, from, to booking.AppointmentID, kind booking.PaymentKind) ([]booking.PaymentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reassignLocked(from, to, kind)
}

func (m *Memory) reassignLocked(from, to booking.AppointmentID, kind booking.PaymentKind) ([]booking.PaymentID, error) {
	if _, ok := m.appointments[to]; !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	var moved []booking.PaymentID
	for id, p := range m.payments {
		if p.AppointmentID == from && p.Kind == kind {
			p.AppointmentID = to
			m.payments[id] = p
			moved = append(moved, id)
		}
	}
	sort.Slice(moved, func(i, j int) bool { return moved[i] < moved[j] })
	return moved, nil
}

func (m *Memory) DeletePayment(_ context.Context, id booking.PaymentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[id]; !ok {
		return booking.ErrPaymentNotFound
	}
	delete(m.payments, id)
	return nil
}

// ===== CLIENTS & CATALOG =====

func (m *Memory) SaveClient(_ context.Context, c *booking.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = *c
	return nil
}

func (m *Memory) GetClient(_ context.Context, owner booking.OwnerID, id booking.ClientID) (*booking.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok || c.OwnerID != owner {
		return nil, booking.ErrClientNotFound
	}
	return &c, nil
}

func (m *Memory) ListClients(_ context.Context, owner booking.OwnerID) ([]booking.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []booking.Client
	for _, c := range m.clients {
		if c.OwnerID == owner {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) SaveService(_ context.Context, s *booking.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = *s
	return nil
}

func (m *Memory) GetService(_ context.Context, owner booking.OwnerID, id booking.ServiceID) (*booking.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok || s.OwnerID != owner {
		return nil, booking.ErrServiceNotFound
	}
	return &s, nil
}

func (m *Memory) ListServices(_ context.Context, owner booking.OwnerID) ([]booking.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []booking.Service
	for _, s := range m.services {
		if s.OwnerID == owner {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{m: tm.Memory}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	appointments map[booking.AppointmentID]booking.Appointment
	lines        map[booking.AppointmentID][]booking.ServiceBooking
	payments     map[booking.PaymentID]booking.Payment
	clients      map[booking.ClientID]booking.Client
	services     map[booking.ServiceID]booking.Service
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		appointments: make(map[booking.AppointmentID]booking.Appointment, len(tm.appointments)),
		lines:        make(map[booking.AppointmentID][]booking.ServiceBooking, len(tm.lines)),
		payments:     make(map[booking.PaymentID]booking.Payment, len(tm.payments)),
		clients:      make(map[booking.ClientID]booking.Client, len(tm.clients)),
		services:     make(map[booking.ServiceID]booking.Service, len(tm.services)),
	}
	for k, v := range tm.appointments {
		s.appointments[k] = v
	}
	for k, v := range tm.lines {
		s.lines[k] = append([]booking.ServiceBooking(nil), v...)
	}
	for k, v := range tm.payments {
		s.payments[k] = v
	}
	for k, v := range tm.clients {
		s.clients[k] = v
	}
	for k, v := range tm.services {
		s.services[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.appointments = s.appointments
	tm.lines = s.lines
	tm.payments = s.payments
	tm.clients = s.clients
	tm.services = s.services
}

// txMemoryView runs against the parent maps without re-acquiring its lock.
type txMemoryView struct {
	m *Memory
}

func (v *txMemoryView) CreateAppointment(_ context.Context, a *booking.Appointment) error {
	return v.m.createAppointmentLocked(a)
}

func (v *txMemoryView) GetAppointment(_ context.Context, owner booking.OwnerID, id booking.AppointmentID) (*booking.Appointment, error) {
	return v.m.getAppointmentLocked(owner, id)
}

func (v *txMemoryView) UpdateAppointment(_ context.Context, a *booking.Appointment) error {
	return v.m.updateAppointmentLocked(a)
}

func (v *txMemoryView) DeleteAppointment(_ context.Context, owner booking.OwnerID, id booking.AppointmentID) error {
	return v.m.deleteAppointmentLocked(owner, id)
}

func (v *txMemoryView) ListAppointments(_ context.Context, f booking.AppointmentFilter) ([]booking.Appointment, error) {
	return v.m.listAppointmentsLocked(f), nil
}

func (v *txMemoryView) ReplaceServiceBookings(_ context.Context, id booking.AppointmentID, lines []booking.ServiceBooking) error {
	return v.m.replaceLinesLocked(id, lines)
}

func (v *txMemoryView) CreatePayment(_ context.Context, p *booking.Payment) error {
	return v.m.createPaymentLocked(p)
}

func (v *txMemoryView) GetPayment(_ context.Context, owner booking.OwnerID, id booking.PaymentID) (*booking.Payment, error) {
	p, ok := v.m.payments[id]
	if !ok || p.OwnerID != owner {
		return nil, booking.ErrPaymentNotFound
	}
	return &p, nil
}

func (v *txMemoryView) ListPayments(_ context.Context, id booking.AppointmentID) ([]booking.Payment, error) {
	return v.m.listPaymentsLocked(id), nil
}

func (v *txMemoryView) MarkPaymentLinked(_ context.Context, id booking.PaymentID, externalRef string) error {
	p, ok := v.m.payments[id]
	if !ok {
		return booking.ErrPaymentNotFound
	}
	p.Linked, p.ExternalRef = true, externalRef
	v.m.payments[id] = p
	return nil
}

func (v *txMemoryView) ReassignPayments(_ context.Context, from, to booking.AppointmentID, kind booking.PaymentKind) ([]booking.PaymentID, error) {
	return v.m.reassignLocked(from, to, kind)
}

func (v *txMemoryView) DeletePayment(_ context.Context, id booking.PaymentID) error {
	if _, ok := v.m.payments[id]; !ok {
		return booking.ErrPaymentNotFound
	}
	delete(v.m.payments, id)
	return nil
}

func (v *txMemoryView) SaveClient(_ context.Context, c *booking.Client) error {
	v.m.clients[c.ID] = *c
	return nil
}

func (v *txMemoryView) GetClient(_ context.Context, owner booking.OwnerID, id booking.ClientID) (*booking.Client, error) {
	c, ok := v.m.clients[id]
	if !ok || c.OwnerID != owner {
		return nil, booking.ErrClientNotFound
	}
	return &c, nil
}

func (v *txMemoryView) ListClients(_ context.Context, owner booking.OwnerID) ([]booking.Client, error) {
	var out []booking.Client
	for _, c := range v.m.clients {
		if c.OwnerID == owner {
			out = append(out, c)
		}
	}
	return out, nil
}

func (v *txMemoryView) SaveService(_ context.Context, s *booking.Service) error {
	v.m.services[s.ID] = *s
	return nil
}

func (v *txMemoryView) GetService(_ context.Context, owner booking.OwnerID, id booking.ServiceID) (*booking.Service, error) {
	s, ok := v.m.services[id]
	if !ok || s.OwnerID != owner {
		return nil, booking.ErrServiceNotFound
	}
	return &s, nil
}

func (v *txMemoryView) ListServices(_ context.Context, owner booking.OwnerID) ([]booking.Service, error) {
	var out []booking.Service
	for _, s := range v.m.services {
		if s.OwnerID == owner {
			out = append(out, s)
		}
	}
	return out, nil
}
