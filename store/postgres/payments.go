package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
)

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentSelect = `
	SELECT id, owner_id, appointment_id, kind, amount::text, paid_at, method, notes,
		linked, external_ref, created_at
	FROM payments`

func (q *queries) CreatePayment(ctx context.Context, p *booking.Payment) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO payments (id, owner_id, appointment_id, kind, amount, paid_at, method, notes,
			linked, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, string(p.ID), string(p.OwnerID), string(p.AppointmentID), string(p.Kind), p.Amount.String(),
		p.PaidAt, optional(p.Method), optional(p.Notes), p.Linked, optional(p.ExternalRef), p.CreatedAt)
	if isForeignKeyError(err) {
		return booking.ErrAppointmentNotFound
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (q *queries) GetPayment(ctx context.Context, owner booking.OwnerID, id booking.PaymentID) (*booking.Payment, error) {
	return scanPayment(q.q.QueryRow(ctx, paymentSelect+` WHERE id = $1 AND owner_id = $2`, string(id), string(owner)))
}

func (q *queries) ListPayments(ctx context.Context, id booking.AppointmentID) ([]booking.Payment, error) {
	rows, err := q.q.Query(ctx, paymentSelect+` WHERE appointment_id = $1 ORDER BY paid_at, id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []booking.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (q *queries) MarkPaymentLinked(ctx context.Context, id booking.PaymentID, externalRef string) error {
	tag, err := q.q.Exec(ctx, `UPDATE payments SET linked = TRUE, external_ref = $2 WHERE id = $1`, string(id), externalRef)
	if err != nil {
		return fmt.Errorf("link payment: %w", err)
	}
	return affected(tag, booking.ErrPaymentNotFound)
}

// ReassignPayments moves the rows in one statement and returns their ids.
func (q *queries) ReassignPayments(ctx context.Context, from, to booking.AppointmentID, kind booking.PaymentKind) ([]booking.PaymentID, error) {
	var exists bool
	if err := q.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, string(to)).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, booking.ErrAppointmentNotFound
	}

	rows, err := q.q.Query(ctx, `
		UPDATE payments SET appointment_id = $2
		WHERE appointment_id = $1 AND kind = $3
		RETURNING id
	`, string(from), string(to), string(kind))
	if err != nil {
		return nil, fmt.Errorf("move payments: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("move payments: %w", err)
	}
	moved := make([]booking.PaymentID, len(ids))
	for i, id := range ids {
		moved[i] = booking.PaymentID(id)
	}
	slices.Sort(moved)
	return moved, nil
}

func (q *queries) DeletePayment(ctx context.Context, id booking.PaymentID) error {
	tag, err := q.q.Exec(ctx, `DELETE FROM payments WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return affected(tag, booking.ErrPaymentNotFound)
}

func scanPayment(row pgx.Row) (*booking.Payment, error) {
	var (
		id, owner, appt, kind, amount string
		method, notes, ref            *string
		linked                        bool
		paidAt, createdAt             time.Time
	)
	err := row.Scan(&id, &owner, &appt, &kind, &amount, &paidAt, &method, &notes, &linked, &ref, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}

	p := &booking.Payment{
		ID:            booking.PaymentID(id),
		OwnerID:       booking.OwnerID(owner),
		AppointmentID: booking.AppointmentID(appt),
		PaidAt:        paidAt.UTC(),
		Method:        deref(method),
		Notes:         deref(notes),
		Linked:        linked,
		ExternalRef:   deref(ref),
		CreatedAt:     createdAt.UTC(),
	}
	if p.Kind, err = booking.ParsePaymentKind(kind); err != nil {
		return nil, fmt.Errorf("payment %s: %w", id, err)
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("payment %s: %w", id, err)
	}
	p.Amount = amt.Abs()
	return p, nil
}

// =============================================================================
// CLIENTS & CATALOG
// =============================================================================

const clientSelect = `
	SELECT id, owner_id, name, phone, handle, email, street, city, province, post_code,
		notes, created_at
	FROM clients`

func (q *queries) SaveClient(ctx context.Context, c *booking.Client) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO clients (id, owner_id, name, phone, handle, email, street, city, province,
			post_code, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, phone = EXCLUDED.phone, handle = EXCLUDED.handle,
			email = EXCLUDED.email, street = EXCLUDED.street, city = EXCLUDED.city,
			province = EXCLUDED.province, post_code = EXCLUDED.post_code, notes = EXCLUDED.notes
	`, string(c.ID), string(c.OwnerID), c.Name, optional(c.Phone), optional(c.Handle), optional(c.Email),
		optional(c.Street), optional(c.City), optional(c.Province), optional(c.PostCode),
		optional(c.Notes), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("save client: %w", err)
	}
	return nil
}

func (q *queries) GetClient(ctx context.Context, owner booking.OwnerID, id booking.ClientID) (*booking.Client, error) {
	return scanClient(q.q.QueryRow(ctx, clientSelect+` WHERE id = $1 AND owner_id = $2`, string(id), string(owner)))
}

func (q *queries) ListClients(ctx context.Context, owner booking.OwnerID) ([]booking.Client, error) {
	rows, err := q.q.Query(ctx, clientSelect+` WHERE owner_id = $1 ORDER BY name`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []booking.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanClient(row pgx.Row) (*booking.Client, error) {
	var (
		c                                                          booking.Client
		id, owner                                                  string
		phone, handle, email, street, city, province, post, notes *string
	)
	err := row.Scan(&id, &owner, &c.Name, &phone, &handle, &email, &street, &city, &province, &post, &notes, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrClientNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ID = booking.ClientID(id)
	c.OwnerID = booking.OwnerID(owner)
	c.Phone, c.Handle, c.Email = deref(phone), deref(handle), deref(email)
	c.Street, c.City, c.Province, c.PostCode = deref(street), deref(city), deref(province), deref(post)
	c.Notes = deref(notes)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

const serviceSelect = `
	SELECT id, owner_id, name, price::text, duration_minutes, requires_deposit,
		deposit_percent::text, active, created_at
	FROM services`

func (q *queries) SaveService(ctx context.Context, s *booking.Service) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO services (id, owner_id, name, price, duration_minutes, requires_deposit,
			deposit_percent, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, price = EXCLUDED.price,
			duration_minutes = EXCLUDED.duration_minutes,
			requires_deposit = EXCLUDED.requires_deposit,
			deposit_percent = EXCLUDED.deposit_percent, active = EXCLUDED.active
	`, string(s.ID), string(s.OwnerID), s.Name, s.Price.String(), s.DurationMinutes,
		s.RequiresDeposit, s.DepositPercent.String(), s.Active, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("save service: %w", err)
	}
	return nil
}

func (q *queries) GetService(ctx context.Context, owner booking.OwnerID, id booking.ServiceID) (*booking.Service, error) {
	return scanService(q.q.QueryRow(ctx, serviceSelect+` WHERE id = $1 AND owner_id = $2`, string(id), string(owner)))
}

func (q *queries) ListServices(ctx context.Context, owner booking.OwnerID) ([]booking.Service, error) {
	rows, err := q.q.Query(ctx, serviceSelect+` WHERE owner_id = $1 ORDER BY name`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []booking.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanService(row pgx.Row) (*booking.Service, error) {
	var (
		s                     booking.Service
		id, owner             string
		price, depositPercent string
	)
	err := row.Scan(&id, &owner, &s.Name, &price, &s.DurationMinutes, &s.RequiresDeposit,
		&depositPercent, &s.Active, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	s.ID = booking.ServiceID(id)
	s.OwnerID = booking.OwnerID(owner)
	s.CreatedAt = s.CreatedAt.UTC()
	if s.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("service %s: %w", id, err)
	}
	if s.DepositPercent, err = decimal.NewFromString(depositPercent); err != nil {
		return nil, fmt.Errorf("service %s: %w", id, err)
	}
	return &s, nil
}
