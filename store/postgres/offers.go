package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/cashbook"
	"github.com/warp/booking-engine/ledger"
	"github.com/warp/booking-engine/publiclink"
)

// =============================================================================
// OFFERS
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
	_, err = q.q.Exec(ctx, `
		INSERT INTO offers (id, owner_id, client_id, service_ids, resource_id, availability,
			created_at, expires_at, redeemed_at, appointment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, o.ID, string(o.OwnerID), string(o.ClientID), services, string(o.ResourceID), availability,
		o.CreatedAt, o.ExpiresAt, o.RedeemedAt, optional(string(o.AppointmentID)))
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (q *queries) GetOffer(ctx context.Context, id string) (*publiclink.Offer, error) {
	var (
		o                       publiclink.Offer
		owner, client, resource string
		services, availability  []byte
		appt                    *string
	)
	err := q.q.QueryRow(ctx, `
		SELECT id, owner_id, client_id, service_ids, resource_id, availability,
			created_at, expires_at, redeemed_at, appointment_id
		FROM offers WHERE id = $1
	`, id).Scan(&o.ID, &owner, &client, &services, &resource, &availability,
		&o.CreatedAt, &o.ExpiresAt, &o.RedeemedAt, &appt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	o.OwnerID = booking.OwnerID(owner)
	o.ClientID = booking.ClientID(client)
	o.ResourceID = booking.ResourceID(resource)
	o.AppointmentID = booking.AppointmentID(deref(appt))
	o.CreatedAt, o.ExpiresAt, o.RedeemedAt = o.CreatedAt.UTC(), o.ExpiresAt.UTC(), utc(o.RedeemedAt)
	if err := json.Unmarshal(services, &o.ServiceIDs); err != nil {
		return nil, fmt.Errorf("offer %s: service list: %w", id, err)
	}
	o.Availability = make(map[calendar.Date][]calendar.TimeOfDay)
	if err := json.Unmarshal(availability, &o.Availability); err != nil {
		return nil, fmt.Errorf("offer %s: availability: %w", id, err)
	}
	return &o, nil
}

// MarkRedeemed succeeds once per offer.
func (q *queries) MarkRedeemed(ctx context.Context, id string, at time.Time, appt booking.AppointmentID) error {
	tag, err := q.q.Exec(ctx, `
		UPDATE offers SET redeemed_at = $2, appointment_id = $3
		WHERE id = $1 AND redeemed_at IS NULL
	`, id, at, string(appt))
	if err != nil {
		return fmt.Errorf("redeem offer: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := q.GetOffer(ctx, id); err != nil {
		return err
	}
	return publiclink.ErrOfferRedeemed
}

// =============================================================================
// CASH BOOK
// =============================================================================

func (q *queries) FindCategory(ctx context.Context, owner, name string, dir ledger.Direction) (*cashbook.Category, error) {
	var (
		c         cashbook.Category
		direction string
	)
	err := q.q.QueryRow(ctx, `
		SELECT id, owner_id, name, direction, created_at
		FROM cash_categories WHERE owner_id = $1 AND name = $2 AND direction = $3
	`, owner, name, string(dir)).Scan(&c.ID, &c.OwnerID, &c.Name, &direction, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cashbook.ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Direction = ledger.Direction(direction)
	return &c, nil
}

func (q *queries) CreateCategory(ctx context.Context, c *cashbook.Category) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO cash_categories (id, owner_id, name, direction, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.OwnerID, c.Name, string(c.Direction), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create category %q: %w", c.Name, err)
	}
	return nil
}

func (q *queries) CreateEntry(ctx context.Context, e *cashbook.Entry) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO cash_entries (id, owner_id, category_id, date, direction, amount, method,
			description, source_type, source_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.OwnerID, e.CategoryID, e.Date.String(), string(e.Direction), e.Amount.String(),
		optional(e.Method), optional(e.Description), optional(e.SourceType), optional(e.SourceID), e.CreatedAt)
	if isForeignKeyError(err) {
		return cashbook.ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("create cash entry: %w", err)
	}
	return nil
}

func (q *queries) DeleteEntry(ctx context.Context, id string) error {
	tag, err := q.q.Exec(ctx, `DELETE FROM cash_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cash entry: %w", err)
	}
	return affected(tag, cashbook.ErrEntryNotFound)
}

func (q *queries) ListEntries(ctx context.Context, owner string, from, to calendar.Date) ([]cashbook.Entry, error) {
	rows, err := q.q.Query(ctx, `
		SELECT id, owner_id, category_id, date::text, direction, amount::text, method,
			description, source_type, source_id, created_at
		FROM cash_entries
		WHERE owner_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, created_at
	`, owner, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list cash entries: %w", err)
	}
	defer rows.Close()

	var out []cashbook.Entry
	for rows.Next() {
		var (
			e                                   cashbook.Entry
			date, direction, amount             string
			method, description, srcType, srcID *string
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.CategoryID, &date, &direction, &amount,
			&method, &description, &srcType, &srcID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Direction = ledger.Direction(direction)
		e.Method, e.Description = deref(method), deref(description)
		e.SourceType, e.SourceID = deref(srcType), deref(srcID)
		if e.Date, err = calendar.ParseDate(date); err != nil {
			return nil, err
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("cash entry %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
