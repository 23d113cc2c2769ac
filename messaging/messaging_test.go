package messaging_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/messaging"
	"github.com/warp/booking-engine/metrics"
)

func TestRender_Confirmation(t *testing.T) {
	tmpl := messaging.MustTemplates()

	body, err := tmpl.Render(messaging.KindConfirmation, messaging.TemplateData{
		ClientName: "Ana",
		Date:       "2025-03-10",
		Time:       "10:00",
		Services:   "Haircut, Color",
		Duration:   "1h 30min",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(body, "Hi Ana!"))
	assert.Contains(t, body, "2025-03-10 at 10:00")
	assert.Contains(t, body, "Haircut, Color")
	assert.Contains(t, body, "(1h 30min)")
	assert.NotContains(t, body, "Join:")
}

func TestRender_ReminderWithConfirmLink(t *testing.T) {
	tmpl := messaging.MustTemplates()

	body, err := tmpl.Render(messaging.KindReminder, messaging.TemplateData{
		ClientName: "Ana",
		Date:       "2025-03-10",
		Time:       "10:00",
		ConfirmURL: "https://example.test/c/abc",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "https://example.test/c/abc")
}

func TestNewTemplates_Override(t *testing.T) {
	tmpl, err := messaging.NewTemplates(map[messaging.Kind]string{
		messaging.KindReminder: "See you {{.Date}}",
	})
	require.NoError(t, err)

	body, err := tmpl.Render(messaging.KindReminder, messaging.TemplateData{Date: "tomorrow"})
	require.NoError(t, err)
	assert.Equal(t, "See you tomorrow", body)

	_, err = messaging.NewTemplates(map[messaging.Kind]string{messaging.KindReminder: "{{.Broken"})
	assert.Error(t, err)
}

func TestWhatsAppLink(t *testing.T) {
	link := messaging.WhatsAppLink("+54 9 11 5555-1234", "Hola Ana & co")

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "wa.me", u.Host)
	assert.Equal(t, "/5491155551234", u.Path)
	assert.Equal(t, "Hola Ana & co", u.Query().Get("text"))
}

func TestWhatsApp_Handoff(t *testing.T) {
	var got string
	w := &messaging.WhatsApp{Handoff: func(_ context.Context, _ messaging.Message, link string) error {
		got = link
		return nil
	}}

	err := w.Dispatch(context.Background(), messaging.Message{To: "123", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "https://wa.me/123?text=hi", got)
}

func TestAddress_PrefersPhone(t *testing.T) {
	ch, to, err := messaging.Address(&booking.Client{Phone: "123", Email: "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, messaging.ChannelWhatsApp, ch)
	assert.Equal(t, "123", to)

	ch, to, err = messaging.Address(&booking.Client{Email: "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, messaging.ChannelEmail, ch)
	assert.Equal(t, "a@b.c", to)

	_, _, err = messaging.Address(&booking.Client{})
	assert.ErrorIs(t, err, messaging.ErrNoContact)
}

func TestRouterAndFanout(t *testing.T) {
	var calls []string
	record := func(name string, err error) messaging.Dispatcher {
		return messaging.DispatcherFunc(func(context.Context, messaging.Message) error {
			calls = append(calls, name)
			return err
		})
	}

	router := messaging.Router{messaging.ChannelEmail: record("email", nil)}
	require.NoError(t, router.Dispatch(context.Background(), messaging.Message{Channel: messaging.ChannelEmail}))
	err := router.Dispatch(context.Background(), messaging.Message{Channel: messaging.ChannelWhatsApp})
	assert.ErrorIs(t, err, messaging.ErrNoRoute)

	boom := errors.New("boom")
	fan := messaging.Fanout{record("a", nil), record("b", boom), record("c", nil)}
	err = fan.Dispatch(context.Background(), messaging.Message{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"email", "a", "b", "c"}, calls)
}

func TestFanout_BestEffortPublisherDoesNotFailSend(t *testing.T) {
	// GIVEN: A client channel that succeeds and an event bus that is down
	// WHEN: A message fans out to both
	// THEN: The send succeeds, the bus was still tried and its failure counted
	var calls []string
	m := metrics.New("messaging_test")
	client := messaging.DispatcherFunc(func(context.Context, messaging.Message) error {
		calls = append(calls, "client")
		return nil
	})
	bus := messaging.DispatcherFunc(func(context.Context, messaging.Message) error {
		calls = append(calls, "bus")
		return errors.New("redis: connection refused")
	})

	fan := messaging.Fanout{client, &messaging.BestEffort{Name: "redis", Dispatcher: bus, Logger: zerolog.Nop(), Metrics: m}}
	err := fan.Dispatch(context.Background(), messaging.Message{Kind: messaging.KindReminder})

	require.NoError(t, err)
	assert.Equal(t, []string{"client", "bus"}, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues("redis", "error")))

	// The client channel still decides.
	failing := messaging.Fanout{
		messaging.DispatcherFunc(func(context.Context, messaging.Message) error { return messaging.ErrNoContact }),
		&messaging.BestEffort{Name: "kafka", Dispatcher: messaging.Discard, Logger: zerolog.Nop()},
	}
	assert.ErrorIs(t, failing.Dispatch(context.Background(), messaging.Message{}), messaging.ErrNoContact)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, messaging.SplitBrokers(" k1:9092, ,k2:9092 "))
	assert.Nil(t, messaging.SplitBrokers(""))
}
