package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"gopkg.in/gomail.v2"
)

// =============================================================================
// WHATSAPP - Hand-off link, the professional presses send
// =============================================================================

// WhatsAppLink builds a wa.me link with the text prefilled. Non-digits are
// stripped from the phone number.
func WhatsAppLink(phone, text string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	return "https://wa.me/" + digits + "?text=" + url.QueryEscape(text)
}

// WhatsApp turns messages into hand-off links and passes them to Handoff.
type WhatsApp struct {
	Handoff func(ctx context.Context, m Message, link string) error
	Logger  zerolog.Logger
}

func (w *WhatsApp) Dispatch(ctx context.Context, m Message) error {
	link := WhatsAppLink(m.To, m.Body)
	if w.Handoff != nil {
		return w.Handoff(ctx, m, link)
	}
	w.Logger.Info().
		Str("appointment_id", m.AppointmentID).
		Str("kind", string(m.Kind)).
		Str("link", link).
		Msg("whatsapp hand-off link ready")
	return nil
}

// =============================================================================
// EMAIL - SMTP via gomail
// =============================================================================

type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer(host string, port int, username, password, from string) *Mailer {
	return &Mailer{dialer: gomail.NewDialer(host, port, username, password), from: from}
}

func (m *Mailer) Dispatch(_ context.Context, msg Message) error {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	subject := msg.Subject
	if subject == "" {
		subject = "Your appointment"
	}
	gm.SetHeader("Subject", subject)
	gm.SetBody("text/plain", msg.Body)

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}

// =============================================================================
// EVENT BUS - Redis pub/sub and Kafka
// =============================================================================

// RedisPublisher publishes messages as JSON on a pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = "booking.messages"
	}
	return &RedisPublisher{client: client, channel: channel}
}

// NewRedisPublisherFromURL parses a redis:// URL.
func NewRedisPublisherFromURL(rawURL, channel string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisPublisher(redis.NewClient(opts), channel), nil
}

func (p *RedisPublisher) Dispatch(ctx context.Context, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis %s: %w", p.channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error { return p.client.Close() }

// KafkaPublisher writes messages keyed by appointment id so one
// appointment's messages stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Dispatch(ctx context.Context, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.AppointmentID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(m.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// SplitBrokers parses a comma-separated broker list.
func SplitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
