package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/publiclink"
)

// =============================================================================
// OFFER STORE (publiclink.Store interface)
// =============================================================================

func (q *queries) SaveOffer(ctx context.Context, o *publiclink.Offer) error {
	services, err := json.Marshal(o.ServiceIDs)
	if err != nil {
		return err
	}
	availability, err := json.Marshal(o.Availability)
	if err != nil {
		return err
	}
	_, err = q.q.ExecContext(ctx, `
		INSERT INTO offers (id, owner_id, client_id, service_ids, resource_id, availability,
			created_at, expires_at, redeemed_at, appointment_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, string(o.OwnerID), string(o.ClientID), string(services), string(o.ResourceID),
		string(availability), formatTime(o.CreatedAt), formatTime(o.ExpiresAt),
		nullTime(o.RedeemedAt), nullString(string(o.AppointmentID)))
	if err != nil {
		return fmt.Errorf("failed to insert offer: %w", err)
	}
	return nil
}

func (q *queries) GetOffer(ctx context.Context, id string) (*publiclink.Offer, error) {
	var (
		o                                                             publiclink.Offer
		owner, client, services, resource, availability, created, exp string
		redeemed, appt                                                sql.NullString
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT id, owner_id, client_id, service_ids, resource_id, availability,
			created_at, expires_at, redeemed_at, appointment_id
		FROM offers WHERE id = ?
	`, id).Scan(&o.ID, &owner, &client, &services, &resource, &availability, &created, &exp, &redeemed, &appt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}

	o.OwnerID = booking.OwnerID(owner)
	o.ClientID = booking.ClientID(client)
	o.ResourceID = booking.ResourceID(resource)
	o.AppointmentID = booking.AppointmentID(appt.String)
	if err := json.Unmarshal([]byte(services), &o.ServiceIDs); err != nil {
		return nil, fmt.Errorf("offer %s: invalid service list: %w", id, err)
	}
	o.Availability = make(map[calendar.Date][]calendar.TimeOfDay)
	if err := json.Unmarshal([]byte(availability), &o.Availability); err != nil {
		return nil, fmt.Errorf("offer %s: invalid availability: %w", id, err)
	}
	if o.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if o.ExpiresAt, err = parseTime(exp); err != nil {
		return nil, err
	}
	if o.RedeemedAt, err = parseNullTime(redeemed); err != nil {
		return nil, err
	}
	return &o, nil
}

// MarkRedeemed succeeds once per offer.
func (q *queries) MarkRedeemed(ctx context.Context, id string, at time.Time, appt booking.AppointmentID) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE offers SET redeemed_at = ?, appointment_id = ?
		WHERE id = ? AND redeemed_at IS NULL
	`, formatTime(at), string(appt), id)
	if err != nil {
		return fmt.Errorf("failed to redeem offer: %w", err)
	}
	if err := affected(res, publiclink.ErrOfferRedeemed); err == nil {
		return nil
	}
	if _, err := q.GetOffer(ctx, id); err != nil {
		return err
	}
	return publiclink.ErrOfferRedeemed
}
