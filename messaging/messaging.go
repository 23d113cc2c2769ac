/*
Package messaging hands outbound client messages to delivery channels.

PURPOSE:
  Confirmation and reminder texts are rendered from templates and passed to a
  Dispatcher. Delivery is fire-and-forget from the engine's point of view: a
  failed dispatch is logged by the caller and never fails a booking.

CHANNELS:
  whatsapp: builds a wa.me hand-off link (the professional sends it)
  email:    SMTP via gomail
  event:    appointment events on Redis pub/sub or Kafka for other consumers

COMPOSITION:
  Router picks a Dispatcher per channel; Fanout sends to several (e.g. the
  client channel plus the event bus). Event publishers are wrapped in
  BestEffort so only the client channel decides whether a send succeeded.

SEE ALSO:
  - template.go: Message templates
  - lifecycle/notify.go: When messages are sent
*/
package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/metrics"
)

type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
	ChannelEvent    Channel = "event"
)

type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindReminder     Kind = "reminder"
	KindCancellation Kind = "cancellation"
)

// Message is a rendered outbound message.
type Message struct {
	Channel       Channel `json:"channel"`
	Kind          Kind    `json:"kind"`
	To            string  `json:"to"`
	Subject       string  `json:"subject,omitempty"`
	Body          string  `json:"body"`
	OwnerID       string  `json:"owner_id"`
	AppointmentID string  `json:"appointment_id"`
}

// Dispatcher delivers or hands off one message.
type Dispatcher interface {
	Dispatch(ctx context.Context, m Message) error
}

var ErrNoRoute = errors.New("no dispatcher for channel")

// ErrNoContact is returned when a client has no usable destination.
var ErrNoContact = errors.New("client has no phone or email")

// Address picks the destination for a client: phone first, then email.
func Address(c *booking.Client) (Channel, string, error) {
	switch {
	case c == nil:
		return "", "", ErrNoContact
	case c.Phone != "":
		return ChannelWhatsApp, c.Phone, nil
	case c.Handle != "":
		return ChannelWhatsApp, c.Handle, nil
	case c.Email != "":
		return ChannelEmail, c.Email, nil
	}
	return "", "", ErrNoContact
}

// =============================================================================
// ROUTER / FANOUT
// =============================================================================

// Router dispatches by channel.
type Router map[Channel]Dispatcher

func (r Router) Dispatch(ctx context.Context, m Message) error {
	d, ok := r[m.Channel]
	if !ok || d == nil {
		return fmt.Errorf("%w: %s", ErrNoRoute, m.Channel)
	}
	return d.Dispatch(ctx, m)
}

// Fanout sends every message to all dispatchers and joins their errors.
type Fanout []Dispatcher

func (f Fanout) Dispatch(ctx context.Context, m Message) error {
	var errs []error
	for _, d := range f {
		if err := d.Dispatch(ctx, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort wraps a secondary dispatcher. Its failures are logged and
// counted but never returned.
type BestEffort struct {
	Name       string
	Dispatcher Dispatcher
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

func (b *BestEffort) Dispatch(ctx context.Context, m Message) error {
	err := b.Dispatcher.Dispatch(ctx, m)
	b.Metrics.Message(b.Name, err)
	if err != nil {
		b.Logger.Warn().
			Err(err).
			Str("publisher", b.Name).
			Str("kind", string(m.Kind)).
			Str("appointment", string(m.AppointmentID)).
			Msg("event publish failed")
	}
	return nil
}

// DispatcherFunc adapts a function.
type DispatcherFunc func(ctx context.Context, m Message) error

func (f DispatcherFunc) Dispatch(ctx context.Context, m Message) error { return f(ctx, m) }

// Discard drops every message.
var Discard Dispatcher = DispatcherFunc(func(context.Context, Message) error { return nil })
