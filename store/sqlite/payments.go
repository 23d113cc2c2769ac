package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
)

// =============================================================================
// PAYMENT STORE (booking.PaymentStore interface)
// =============================================================================

const paymentColumns = `id, owner_id, appointment_id, kind, amount, paid_at, method, notes,
	linked, external_ref, created_at`

// CreatePayment inserts a payment. The appointment must exist.
func (q *queries) CreatePayment(ctx context.Context, p *booking.Payment) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (`+placeholders(11)+`)
	`, string(p.ID), string(p.OwnerID), string(p.AppointmentID), string(p.Kind), p.Amount.String(),
		formatTime(p.PaidAt), nullString(p.Method), nullString(p.Notes),
		boolInt(p.Linked), nullString(p.ExternalRef), formatTime(p.CreatedAt))
	if isForeignKeyError(err) {
		return booking.ErrAppointmentNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (q *queries) GetPayment(ctx context.Context, owner booking.OwnerID, id booking.PaymentID) (*booking.Payment, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE id = ? AND owner_id = ?
	`, string(id), string(owner))
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrPaymentNotFound
	}
	return p, err
}

// ListPayments returns an appointment's payments ordered by PaidAt.
func (q *queries) ListPayments(ctx context.Context, id booking.AppointmentID) ([]booking.Payment, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE appointment_id = ?
		ORDER BY paid_at, id
	`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
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
	res, err := q.q.ExecContext(ctx, `
		UPDATE payments SET linked = 1, external_ref = ? WHERE id = ?
	`, externalRef, string(id))
	if err != nil {
		return fmt.Errorf("failed to link payment: %w", err)
	}
	return affected(res, booking.ErrPaymentNotFound)
}

// ReassignPayments re-points every payment of kind and returns the moved ids.
func (q *queries) ReassignPayments(ctx context.Context, from, to booking.AppointmentID, kind booking.PaymentKind) ([]booking.PaymentID, error) {
	var exists int
	err := q.q.QueryRowContext(ctx, `SELECT 1 FROM appointments WHERE id = ?`, string(to)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.q.QueryContext(ctx, `
		SELECT id FROM payments WHERE appointment_id = ? AND kind = ? ORDER BY id
	`, string(from), string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to select payments to move: %w", err)
	}
	var moved []booking.PaymentID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		moved = append(moved, booking.PaymentID(id))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(moved) == 0 {
		return nil, nil
	}

	args := []any{string(to)}
	for _, id := range moved {
		args = append(args, string(id))
	}
	if _, err := q.q.ExecContext(ctx, `
		UPDATE payments SET appointment_id = ? WHERE id IN (`+placeholders(len(moved))+`)
	`, args...); err != nil {
		return nil, fmt.Errorf("failed to move payments: %w", err)
	}
	return moved, nil
}

func (q *queries) DeletePayment(ctx context.Context, id booking.PaymentID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return affected(res, booking.ErrPaymentNotFound)
}

func scanPayment(row scanner) (*booking.Payment, error) {
	var (
		id, owner, appt, kind, amount, paidAt, createdAt string
		method, notes, ref                               sql.NullString
		linked                                           int
	)
	if err := row.Scan(&id, &owner, &appt, &kind, &amount, &paidAt, &method, &notes,
		&linked, &ref, &createdAt); err != nil {
		return nil, err
	}

	p := &booking.Payment{
		ID:            booking.PaymentID(id),
		OwnerID:       booking.OwnerID(owner),
		AppointmentID: booking.AppointmentID(appt),
		Method:        method.String,
		Notes:         notes.String,
		Linked:        linked != 0,
		ExternalRef:   ref.String,
	}
	var err error
	if p.Kind, err = booking.ParsePaymentKind(kind); err != nil {
		return nil, fmt.Errorf("payment %s: %w", id, err)
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("payment %s: invalid amount %q: %w", id, amount, err)
	}
	// Amounts are positive; the kind carries the sign.
	p.Amount = p.Amount.Abs()
	if p.PaidAt, err = parseTime(paidAt); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return p, nil
}

// =============================================================================
// CLIENTS & CATALOG (booking.ClientStore, booking.CatalogStore)
// =============================================================================

const clientColumns = `id, owner_id, name, phone, handle, email, street, city, province,
	post_code, notes, created_at`

// SaveClient inserts or updates a client.
func (q *queries) SaveClient(ctx context.Context, c *booking.Client) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (`+placeholders(12)+`)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			handle = excluded.handle,
			email = excluded.email,
			street = excluded.street,
			city = excluded.city,
			province = excluded.province,
			post_code = excluded.post_code,
			notes = excluded.notes
	`, string(c.ID), string(c.OwnerID), c.Name, nullString(c.Phone), nullString(c.Handle),
		nullString(c.Email), nullString(c.Street), nullString(c.City), nullString(c.Province),
		nullString(c.PostCode), nullString(c.Notes), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

func (q *queries) GetClient(ctx context.Context, owner booking.OwnerID, id booking.ClientID) (*booking.Client, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE id = ? AND owner_id = ?
	`, string(id), string(owner))
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrClientNotFound
	}
	return c, err
}

func (q *queries) ListClients(ctx context.Context, owner booking.OwnerID) ([]booking.Client, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+clientColumns+` FROM clients WHERE owner_id = ? ORDER BY name
	`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
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

func scanClient(row scanner) (*booking.Client, error) {
	var (
		id, owner, name, createdAt                                 string
		phone, handle, email, street, city, province, post, notes sql.NullString
	)
	if err := row.Scan(&id, &owner, &name, &phone, &handle, &email, &street, &city,
		&province, &post, &notes, &createdAt); err != nil {
		return nil, err
	}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &booking.Client{
		ID:        booking.ClientID(id),
		OwnerID:   booking.OwnerID(owner),
		Name:      name,
		Phone:     phone.String,
		Handle:    handle.String,
		Email:     email.String,
		Street:    street.String,
		City:      city.String,
		Province:  province.String,
		PostCode:  post.String,
		Notes:     notes.String,
		CreatedAt: created,
	}, nil
}

const serviceColumns = `id, owner_id, name, price, duration_minutes, requires_deposit,
	deposit_percent, active, created_at`

// SaveService inserts or updates a catalog entry. Existing bookings keep
// their snapshots.
func (q *queries) SaveService(ctx context.Context, s *booking.Service) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO services (`+serviceColumns+`)
		VALUES (`+placeholders(9)+`)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			duration_minutes = excluded.duration_minutes,
			requires_deposit = excluded.requires_deposit,
			deposit_percent = excluded.deposit_percent,
			active = excluded.active
	`, string(s.ID), string(s.OwnerID), s.Name, s.Price.String(), s.DurationMinutes,
		boolInt(s.RequiresDeposit), s.DepositPercent.String(), boolInt(s.Active), formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save service: %w", err)
	}
	return nil
}

func (q *queries) GetService(ctx context.Context, owner booking.OwnerID, id booking.ServiceID) (*booking.Service, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+serviceColumns+` FROM services WHERE id = ? AND owner_id = ?
	`, string(id), string(owner))
	s, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrServiceNotFound
	}
	return s, err
}

func (q *queries) ListServices(ctx context.Context, owner booking.OwnerID) ([]booking.Service, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+serviceColumns+` FROM services WHERE owner_id = ? ORDER BY name
	`, string(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
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

func scanService(row scanner) (*booking.Service, error) {
	var (
		id, owner, name, price, percent, createdAt string
		duration, requires, active                 int
	)
	if err := row.Scan(&id, &owner, &name, &price, &duration, &requires, &percent, &active, &createdAt); err != nil {
		return nil, err
	}
	s := &booking.Service{
		ID:              booking.ServiceID(id),
		OwnerID:         booking.OwnerID(owner),
		Name:            name,
		DurationMinutes: duration,
		RequiresDeposit: requires != 0,
		Active:          active != 0,
	}
	var err error
	if s.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("service %s: invalid price %q: %w", id, price, err)
	}
	if s.DepositPercent, err = decimal.NewFromString(percent); err != nil {
		return nil, fmt.Errorf("service %s: invalid deposit percent %q: %w", id, percent, err)
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return s, nil
}
