package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/messaging"
)

var subjects = map[messaging.Kind]string{
	messaging.KindConfirmation: "Your appointment is confirmed",
	messaging.KindReminder:     "Appointment reminder",
	messaging.KindCancellation: "Your appointment was cancelled",
}

// compose renders a message for the appointment's client.
func (s *Service) compose(ctx context.Context, act booking.ActingContext, appt *booking.Appointment, kind messaging.Kind, confirmURL string) (messaging.Message, error) {
	if appt.ClientID == "" {
		return messaging.Message{}, messaging.ErrNoContact
	}
	client, err := s.Store.GetClient(ctx, act.OwnerID, appt.ClientID)
	if err != nil {
		return messaging.Message{}, err
	}
	channel, to, err := messaging.Address(client)
	if err != nil {
		return messaging.Message{}, err
	}

	data := messaging.TemplateData{
		ClientName: appt.DisplayName(client),
		Date:       appt.Date.String(),
		Time:       appt.StartTime.String(),
		Services:   strings.Join(appt.ServiceNames(), ", "),
		Duration:   calendar.FormatDuration(appt.DurationMinutes()),
		ConfirmURL: confirmURL,
	}
	switch appt.Modality {
	case booking.ModalityVideo:
		data.VideoLink = appt.VideoLink
	case booking.ModalityAtHome:
		data.Address = client.Address()
	}

	body, err := s.Templates.Render(kind, data)
	if err != nil {
		return messaging.Message{}, err
	}
	return messaging.Message{
		Channel:       channel,
		Kind:          kind,
		To:            to,
		Subject:       subjects[kind],
		Body:          body,
		OwnerID:       string(act.OwnerID),
		AppointmentID: string(appt.ID),
	}, nil
}

func (s *Service) send(ctx context.Context, m messaging.Message) error {
	err := s.Dispatcher.Dispatch(ctx, m)
	s.Metrics.Message(string(m.Channel), err)
	return err
}

// notify is fire-and-forget: failures are logged.
func (s *Service) notify(ctx context.Context, act booking.ActingContext, appt *booking.Appointment, kind messaging.Kind) {
	m, err := s.compose(ctx, act, appt, kind, "")
	if err == nil {
		err = s.send(ctx, m)
	}
	if err != nil {
		s.Logger.Warn().Err(err).
			Str("appointment_id", string(appt.ID)).
			Str("kind", string(kind)).
			Msg("message not sent")
	}
}

// SendReminder sends the reminder and marks the appointment. The flag is
// only set once the dispatcher accepted the message.
func (s *Service) SendReminder(ctx context.Context, act booking.ActingContext, id booking.AppointmentID, confirmURL string) (*booking.Appointment, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	appt, err := s.Store.GetAppointment(ctx, act.OwnerID, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != booking.StatusPending && appt.Status != booking.StatusConfirmed {
		return nil, booking.NewValidationError("status", fmt.Sprintf("no reminder for a %s appointment", appt.Status))
	}

	m, err := s.compose(ctx, act, appt, messaging.KindReminder, confirmURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build reminder: %w", err)
	}
	if err := s.send(ctx, m); err != nil {
		s.Logger.Warn().Err(err).Str("appointment_id", string(id)).Msg("reminder not delivered")
		return nil, fmt.Errorf("failed to send reminder: %w", err)
	}

	now := s.Clock.Now()
	appt.ReminderSent = true
	appt.ReminderSentAt = &now
	appt.UpdatedAt = now
	if err := s.Store.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return appt, nil
}
