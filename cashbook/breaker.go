package cashbook

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/warp/booking-engine/ledger"
)

// BreakerSettings tunes when the breaker opens and how long it stays open.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		Name:             "cashbook",
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// Breaker fails fast while the wrapped ledger keeps failing. Calls made
// while open return gobreaker.ErrOpenState.
type Breaker struct {
	next ledger.ExternalLedger
	cb   *gobreaker.CircuitBreaker
}

var _ ledger.ExternalLedger = (*Breaker)(nil)

func NewBreaker(next ledger.ExternalLedger, s BreakerSettings, logger zerolog.Logger) *Breaker {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return &Breaker{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        s.Name,
			MaxRequests: 1,
			Timeout:     s.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("external ledger breaker state changed")
			},
		}),
	}
}

func (b *Breaker) RecordEntry(ctx context.Context, e ledger.Entry) (string, error) {
	id, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.RecordEntry(ctx, e)
	})
	if err != nil {
		return "", err
	}
	return id.(string), nil
}

func (b *Breaker) DeleteEntry(ctx context.Context, id string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.DeleteEntry(ctx, id)
	})
	return err
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }
