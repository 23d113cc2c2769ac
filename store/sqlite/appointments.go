package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/recurrence"
)

// =============================================================================
// APPOINTMENT STORE (booking.AppointmentStore interface)
// =============================================================================

const appointmentColumns = `id, owner_id, date, start_time, end_time, status, source,
	client_id, guest_name, resource_id, modality, video_link, notes, internal_notes,
	root_series_id, pattern_type, pattern_count, pattern_end_date, pattern_indeterminate,
	series_end_date, reminder_sent, reminder_sent_at, completed_at, cancelled_at,
	created_at, updated_at`

// CreateAppointment inserts the appointment row.
func (q *queries) CreateAppointment(ctx context.Context, a *booking.Appointment) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (`+placeholders(26)+`)
	`, appointmentArgs(a)...)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	return nil
}

// UpdateAppointment overwrites every column of the row.
func (q *queries) UpdateAppointment(ctx context.Context, a *booking.Appointment) error {
	cols := appointmentArgs(a)
	args := append(append([]any{}, cols[2:]...), cols[0], cols[1])
	res, err := q.q.ExecContext(ctx, `
		UPDATE appointments SET
			date = ?, start_time = ?, end_time = ?, status = ?, source = ?,
			client_id = ?, guest_name = ?, resource_id = ?, modality = ?, video_link = ?,
			notes = ?, internal_notes = ?, root_series_id = ?, pattern_type = ?,
			pattern_count = ?, pattern_end_date = ?, pattern_indeterminate = ?,
			series_end_date = ?, reminder_sent = ?, reminder_sent_at = ?,
			completed_at = ?, cancelled_at = ?, created_at = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	return affected(res, booking.ErrAppointmentNotFound)
}

// GetAppointment loads one appointment with its service lines.
func (q *queries) GetAppointment(ctx context.Context, owner booking.OwnerID, id booking.AppointmentID) (*booking.Appointment, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+appointmentColumns+` FROM appointments WHERE id = ? AND owner_id = ?
	`, string(id), string(owner))
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	lines, err := q.serviceLines(ctx, []booking.AppointmentID{a.ID})
	if err != nil {
		return nil, err
	}
	a.Services = lines[a.ID]
	return a, nil
}

// DeleteAppointment removes the row; service lines and payments cascade.
func (q *queries) DeleteAppointment(ctx context.Context, owner booking.OwnerID, id booking.AppointmentID) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM appointments WHERE id = ? AND owner_id = ?`, string(id), string(owner))
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	return affected(res, booking.ErrAppointmentNotFound)
}

// ListAppointments pushes the filter down to SQL.
func (q *queries) ListAppointments(ctx context.Context, f booking.AppointmentFilter) ([]booking.Appointment, error) {
	where, args := filterClause(f)
	query := `SELECT ` + appointmentColumns + ` FROM appointments` + where + orderClause(f.Order)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	var out []booking.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *a)
	}
	// Rows must be closed before the next query: ":memory:" has a single
	// connection.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]booking.AppointmentID, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	lines, err := q.serviceLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Services = lines[out[i].ID]
	}
	return out, nil
}

func filterClause(f booking.AppointmentFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, a ...any) {
		conds = append(conds, cond)
		args = append(args, a...)
	}

	if f.OwnerID != "" {
		add("owner_id = ?", string(f.OwnerID))
	}
	if f.From != nil {
		add("date >= ?", f.From.String())
	}
	if f.To != nil {
		add("date <= ?", f.To.String())
	}
	if f.ClientID != "" {
		add("client_id = ?", string(f.ClientID))
	}
	if f.ResourceID != nil {
		add("resource_id = ?", string(*f.ResourceID))
	}
	if f.RootSeriesID != "" {
		add("root_series_id = ?", string(f.RootSeriesID))
	}
	if f.Indeterminate {
		add("pattern_type IS NOT NULL AND pattern_indeterminate = 1")
	}
	if len(f.Statuses) > 0 {
		in := make([]any, len(f.Statuses))
		for i, s := range f.Statuses {
			in[i] = string(s)
		}
		add("status IN ("+placeholders(len(in))+")", in...)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderClause(o booking.Order) string {
	switch o {
	case booking.OrderDateDesc:
		return " ORDER BY date DESC, start_time DESC, id DESC"
	case booking.OrderCancelledDesc:
		return " ORDER BY cancelled_at IS NULL, cancelled_at DESC, date DESC"
	default:
		return " ORDER BY date ASC, start_time ASC, id ASC"
	}
}

// ReplaceServiceBookings deletes then reinserts all service lines.
func (q *queries) ReplaceServiceBookings(ctx context.Context, id booking.AppointmentID, lines []booking.ServiceBooking) error {
	var exists int
	err := q.q.QueryRowContext(ctx, `SELECT 1 FROM appointments WHERE id = ?`, string(id)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.ErrAppointmentNotFound
	}
	if err != nil {
		return err
	}

	if _, err := q.q.ExecContext(ctx, `DELETE FROM service_bookings WHERE appointment_id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to clear service lines: %w", err)
	}
	for i, l := range lines {
		_, err := q.q.ExecContext(ctx, `
			INSERT INTO service_bookings (appointment_id, position, service_id, service_name, price, duration_minutes)
			VALUES (?, ?, ?, ?, ?, ?)
		`, string(id), i, string(l.ServiceID), nullString(l.ServiceName), l.Price.String(), l.DurationMinutes)
		if err != nil {
			return fmt.Errorf("failed to insert service line %d: %w", i, err)
		}
	}
	return nil
}

// serviceLines loads the lines of several appointments in one query.
func (q *queries) serviceLines(ctx context.Context, ids []booking.AppointmentID) (map[booking.AppointmentID][]booking.ServiceBooking, error) {
	out := make(map[booking.AppointmentID][]booking.ServiceBooking, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}

	rows, err := q.q.QueryContext(ctx, `
		SELECT sb.appointment_id, sb.position, sb.service_id,
			COALESCE(NULLIF(sb.service_name, ''), s.name, ''),
			sb.price, sb.duration_minutes
		FROM service_bookings sb
		LEFT JOIN services s ON s.id = sb.service_id
		WHERE sb.appointment_id IN (`+placeholders(len(ids))+`)
		ORDER BY sb.appointment_id, sb.position
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load service lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l                        booking.ServiceBooking
			apptID, serviceID, price string
		)
		if err := rows.Scan(&apptID, &l.Position, &serviceID, &l.ServiceName, &price, &l.DurationMinutes); err != nil {
			return nil, err
		}
		l.AppointmentID = booking.AppointmentID(apptID)
		l.ServiceID = booking.ServiceID(serviceID)
		if l.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("service line %s/%d: invalid price %q: %w", apptID, l.Position, price, err)
		}
		out[l.AppointmentID] = append(out[l.AppointmentID], l)
	}
	return out, rows.Err()
}

// =============================================================================
// ROW MAPPING
// =============================================================================

func appointmentArgs(a *booking.Appointment) []any {
	var (
		patternType   sql.NullString
		patternCount  int
		patternEnd    sql.NullString
		indeterminate bool
	)
	if p := a.Pattern; p != nil {
		patternType = nullString(string(p.Type))
		patternCount = p.Count
		patternEnd = nullDate(p.EndDate)
		indeterminate = p.Indeterminate
	}
	return []any{
		string(a.ID), string(a.OwnerID), a.Date.String(), a.StartTime.String(), a.EndTime.String(),
		string(a.Status), string(a.Source),
		nullString(string(a.ClientID)), nullString(a.GuestName), string(a.ResourceID),
		string(a.Modality), nullString(a.VideoLink), nullString(a.Notes), nullString(a.InternalNotes),
		nullString(string(a.RootSeriesID)), patternType, patternCount, patternEnd, boolInt(indeterminate),
		nullDate(a.SeriesEnd), boolInt(a.ReminderSent), nullTime(a.ReminderSentAt),
		nullTime(a.CompletedAt), nullTime(a.CancelledAt),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row scanner) (*booking.Appointment, error) {
	var (
		id, owner, date, start, end, status, source, resource, modality string
		client, guest, video, notes, internal, root                    sql.NullString
		patternType, patternEnd, seriesEnd                              sql.NullString
		patternCount, indeterminate, reminderSent                       int
		reminderAt, completedAt, cancelledAt                            sql.NullString
		createdAt, updatedAt                                            string
	)
	if err := row.Scan(&id, &owner, &date, &start, &end, &status, &source,
		&client, &guest, &resource, &modality, &video, &notes, &internal,
		&root, &patternType, &patternCount, &patternEnd, &indeterminate,
		&seriesEnd, &reminderSent, &reminderAt, &completedAt, &cancelledAt,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}

	a := &booking.Appointment{
		ID:            booking.AppointmentID(id),
		OwnerID:       booking.OwnerID(owner),
		Source:        booking.Source(source),
		ClientID:      booking.ClientID(client.String),
		GuestName:     guest.String,
		ResourceID:    booking.ResourceID(resource),
		Modality:      booking.Modality(modality),
		VideoLink:     video.String,
		Notes:         notes.String,
		InternalNotes: internal.String,
		RootSeriesID:  booking.AppointmentID(root.String),
		ReminderSent:  reminderSent != 0,
	}
	if a.Modality == "" {
		a.Modality = booking.ModalityInPerson
	}

	var err error
	if a.Status, err = booking.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	if a.Date, err = parseDate(date); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	if a.StartTime, err = calendar.ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	if a.EndTime, err = calendar.ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	if a.SeriesEnd, err = parseNullDate(seriesEnd); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	if patternType.Valid && patternType.String != "" {
		p := &recurrence.Pattern{
			Type:          recurrence.Type(patternType.String),
			Count:         patternCount,
			Indeterminate: indeterminate != 0,
		}
		if p.EndDate, err = parseNullDate(patternEnd); err != nil {
			return nil, fmt.Errorf("appointment %s: %w", id, err)
		}
		a.Pattern = p
	}
	if a.ReminderSentAt, err = parseNullTime(reminderAt); err != nil {
		return nil, err
	}
	if a.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if a.CancelledAt, err = parseNullTime(cancelledAt); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return a, nil
}
