package publiclink

import (
	"context"
	"sync"
	"time"

	"github.com/warp/booking-engine/booking"
)

// MemoryStore keeps offers in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	offers map[string]Offer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{offers: make(map[string]Offer)}
}

func (m *MemoryStore) SaveOffer(_ context.Context, o *Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	cp.Token = ""
	m.offers[o.ID] = cp
	return nil
}

func (m *MemoryStore) GetOffer(_ context.Context, id string) (*Offer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, booking.ErrOfferNotFound
	}
	return &o, nil
}

func (m *MemoryStore) MarkRedeemed(_ context.Context, id string, at time.Time, appt booking.AppointmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return booking.ErrOfferNotFound
	}
	if o.RedeemedAt != nil {
		return ErrOfferRedeemed
	}
	o.RedeemedAt = &at
	o.AppointmentID = appt
	m.offers[id] = o
	return nil
}
