package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/recurrence"
)

// =============================================================================
// APPOINTMENTS
// =============================================================================

const appointmentSelect = `
	SELECT id, owner_id, date::text, start_time::text, end_time::text, status, source,
		client_id, guest_name, resource_id, modality, video_link, notes, internal_notes,
		root_series_id, pattern_type, pattern_count, pattern_end_date::text,
		pattern_indeterminate, series_end_date::text, reminder_sent, reminder_sent_at,
		completed_at, cancelled_at, created_at, updated_at
	FROM appointments`

func (q *queries) CreateAppointment(ctx context.Context, a *booking.Appointment) error {
	_, err := q.q.Exec(ctx, `
		INSERT INTO appointments (id, owner_id, date, start_time, end_time, status, source,
			client_id, guest_name, resource_id, modality, video_link, notes, internal_notes,
			root_series_id, pattern_type, pattern_count, pattern_end_date, pattern_indeterminate,
			series_end_date, reminder_sent, reminder_sent_at, completed_at, cancelled_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26)
	`, appointmentArgs(a)...)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (q *queries) UpdateAppointment(ctx context.Context, a *booking.Appointment) error {
	tag, err := q.q.Exec(ctx, `
		UPDATE appointments SET
			date = $3, start_time = $4, end_time = $5, status = $6, source = $7,
			client_id = $8, guest_name = $9, resource_id = $10, modality = $11, video_link = $12,
			notes = $13, internal_notes = $14, root_series_id = $15, pattern_type = $16,
			pattern_count = $17, pattern_end_date = $18, pattern_indeterminate = $19,
			series_end_date = $20, reminder_sent = $21, reminder_sent_at = $22,
			completed_at = $23, cancelled_at = $24, created_at = $25, updated_at = $26
		WHERE id = $1 AND owner_id = $2
	`, appointmentArgs(a)...)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return affected(tag, booking.ErrAppointmentNotFound)
}

func (q *queries) GetAppointment(ctx context.Context, owner booking.OwnerID, id booking.AppointmentID) (*booking.Appointment, error) {
	row := q.q.QueryRow(ctx, appointmentSelect+` WHERE id = $1 AND owner_id = $2`, string(id), string(owner))
	a, err := scanAppointment(row)
	if err != nil {
		return nil, err
	}
	lines, err := q.serviceLines(ctx, []string{string(a.ID)})
	if err != nil {
		return nil, err
	}
	a.Services = lines[a.ID]
	return a, nil
}

func (q *queries) DeleteAppointment(ctx context.Context, owner booking.OwnerID, id booking.AppointmentID) error {
	tag, err := q.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1 AND owner_id = $2`, string(id), string(owner))
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	return affected(tag, booking.ErrAppointmentNotFound)
}

func (q *queries) ListAppointments(ctx context.Context, f booking.AppointmentFilter) ([]booking.Appointment, error) {
	where, params := filterClause(f)
	query := appointmentSelect + where + orderClause(f.Order)
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := q.q.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	var out []booking.Appointment
	var ids []string
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *a)
		ids = append(ids, string(a.ID))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
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
	var (
		conds []string
		p     args
	)
	if f.OwnerID != "" {
		conds = append(conds, "owner_id = "+p.add(string(f.OwnerID)))
	}
	if f.From != nil {
		conds = append(conds, "date >= "+p.add(f.From.String()))
	}
	if f.To != nil {
		conds = append(conds, "date <= "+p.add(f.To.String()))
	}
	if f.ClientID != "" {
		conds = append(conds, "client_id = "+p.add(string(f.ClientID)))
	}
	if f.ResourceID != nil {
		conds = append(conds, "resource_id = "+p.add(string(*f.ResourceID)))
	}
	if f.RootSeriesID != "" {
		conds = append(conds, "root_series_id = "+p.add(string(f.RootSeriesID)))
	}
	if f.Indeterminate {
		conds = append(conds, "pattern_type IS NOT NULL AND pattern_indeterminate")
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		conds = append(conds, "status = ANY("+p.add(statuses)+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), p
}

func orderClause(o booking.Order) string {
	switch o {
	case booking.OrderDateDesc:
		return " ORDER BY date DESC, start_time DESC, id DESC"
	case booking.OrderCancelledDesc:
		return " ORDER BY cancelled_at DESC NULLS LAST, date DESC"
	default:
		return " ORDER BY date, start_time, id"
	}
}

func (q *queries) ReplaceServiceBookings(ctx context.Context, id booking.AppointmentID, lines []booking.ServiceBooking) error {
	var exists bool
	if err := q.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, string(id)).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return booking.ErrAppointmentNotFound
	}

	if _, err := q.q.Exec(ctx, `DELETE FROM service_bookings WHERE appointment_id = $1`, string(id)); err != nil {
		return fmt.Errorf("clear service lines: %w", err)
	}
	for i, l := range lines {
		_, err := q.q.Exec(ctx, `
			INSERT INTO service_bookings (appointment_id, position, service_id, service_name, price, duration_minutes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, string(id), i, string(l.ServiceID), optional(l.ServiceName), l.Price.String(), l.DurationMinutes)
		if err != nil {
			return fmt.Errorf("insert service line %d: %w", i, err)
		}
	}
	return nil
}

func (q *queries) serviceLines(ctx context.Context, ids []string) (map[booking.AppointmentID][]booking.ServiceBooking, error) {
	out := make(map[booking.AppointmentID][]booking.ServiceBooking, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.q.Query(ctx, `
		SELECT sb.appointment_id, sb.position, sb.service_id,
			COALESCE(NULLIF(sb.service_name, ''), s.name, ''),
			sb.price::text, sb.duration_minutes
		FROM service_bookings sb
		LEFT JOIN services s ON s.id = sb.service_id
		WHERE sb.appointment_id = ANY($1)
		ORDER BY sb.appointment_id, sb.position
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("load service lines: %w", err)
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
			return nil, fmt.Errorf("service line %s/%d: %w", apptID, l.Position, err)
		}
		out[l.AppointmentID] = append(out[l.AppointmentID], l)
	}
	return out, rows.Err()
}

func appointmentArgs(a *booking.Appointment) []any {
	var (
		patternType   *string
		patternCount  int
		patternEnd    *string
		indeterminate bool
	)
	if p := a.Pattern; p != nil {
		patternType = optional(string(p.Type))
		patternCount = p.Count
		patternEnd = optionalDate(p.EndDate)
		indeterminate = p.Indeterminate
	}
	return []any{
		string(a.ID), string(a.OwnerID), a.Date.String(), a.StartTime.String(), a.EndTime.String(),
		string(a.Status), string(a.Source),
		optional(string(a.ClientID)), optional(a.GuestName), string(a.ResourceID),
		string(a.Modality), optional(a.VideoLink), optional(a.Notes), optional(a.InternalNotes),
		optional(string(a.RootSeriesID)), patternType, patternCount, patternEnd, indeterminate,
		optionalDate(a.SeriesEnd), a.ReminderSent, a.ReminderSentAt, a.CompletedAt, a.CancelledAt,
		a.CreatedAt, a.UpdatedAt,
	}
}

func optionalDate(d *calendar.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseOptionalDate(s *string) (*calendar.Date, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := calendar.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanAppointment(row pgx.Row) (*booking.Appointment, error) {
	var (
		id, owner, date, start, end, status, source, resource, modality string
		client, guest, video, notes, internal, root                    *string
		patternType, patternEnd, seriesEnd                              *string
		patternCount                                                    int
		indeterminate, reminderSent                                     bool
		reminderAt, completedAt, cancelledAt                            *time.Time
		createdAt, updatedAt                                            time.Time
	)
	err := row.Scan(&id, &owner, &date, &start, &end, &status, &source,
		&client, &guest, &resource, &modality, &video, &notes, &internal,
		&root, &patternType, &patternCount, &patternEnd, &indeterminate,
		&seriesEnd, &reminderSent, &reminderAt, &completedAt, &cancelledAt,
		&createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, booking.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}

	a := &booking.Appointment{
		ID:             booking.AppointmentID(id),
		OwnerID:        booking.OwnerID(owner),
		Source:         booking.Source(source),
		ClientID:       booking.ClientID(deref(client)),
		GuestName:      deref(guest),
		ResourceID:     booking.ResourceID(resource),
		Modality:       booking.Modality(modality),
		VideoLink:      deref(video),
		Notes:          deref(notes),
		InternalNotes:  deref(internal),
		RootSeriesID:   booking.AppointmentID(deref(root)),
		ReminderSent:   reminderSent,
		ReminderSentAt: utc(reminderAt),
		CompletedAt:    utc(completedAt),
		CancelledAt:    utc(cancelledAt),
		CreatedAt:      createdAt.UTC(),
		UpdatedAt:      updatedAt.UTC(),
	}
	if a.Modality == "" {
		a.Modality = booking.ModalityInPerson
	}
	if a.Status, err = booking.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	if a.Date, err = calendar.ParseDate(date); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	if a.StartTime, err = calendar.ParseTimeOfDay(start); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	if a.EndTime, err = calendar.ParseTimeOfDay(end); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	if a.SeriesEnd, err = parseOptionalDate(seriesEnd); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", id, err)
	}
	if patternType != nil && *patternType != "" {
		p := &recurrence.Pattern{Type: recurrence.Type(*patternType), Count: patternCount, Indeterminate: indeterminate}
		if p.EndDate, err = parseOptionalDate(patternEnd); err != nil {
			return nil, fmt.Errorf("appointment %s: %w", id, err)
		}
		a.Pattern = p
	}
	return a, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
