/*
scheduler.go - Background extension of open-ended series

PURPOSE:
  Indeterminate recurring appointments are materialized in batches. This
  scheduler periodically asks the lifecycle service to append the next batch
  to every series whose last occurrence is within the horizon, so the
  calendar never runs dry.

DESIGN:
  - One goroutine with a ticker; the first pass runs at start
  - Each series is extended independently; one failure does not stop the rest
  - Disabled by default; the extend endpoint covers manual use

CONFIGURATION:
  - Interval: how often to check (default: 1 hour)
  - Horizon:  how far ahead the last occurrence must reach (default: 14 days)

USAGE:
  s := NewSeriesScheduler(bookings, logger)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - lifecycle/series.go: ExtendDue, ExtendSeries
  - handlers.go: ExtendSeries endpoint
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/lifecycle"
)

// SeriesScheduler keeps indeterminate series materialized ahead of today.
type SeriesScheduler struct {
	Bookings *lifecycle.Service
	Interval time.Duration
	Horizon  time.Duration
	Enabled  bool
	Logger   zerolog.Logger

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun time.Time
}

func NewSeriesScheduler(bookings *lifecycle.Service, logger zerolog.Logger) *SeriesScheduler {
	return &SeriesScheduler{
		Bookings: bookings,
		Interval: time.Hour,
		Horizon:  14 * 24 * time.Hour,
		Enabled:  true,
		Logger:   logger,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *SeriesScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info().Msg("series scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.Logger.Info().Dur("interval", s.Interval).Dur("horizon", s.Horizon).Msg("series scheduler started")
}

// Stop waits for an in-flight pass to finish.
func (s *SeriesScheduler) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.mu.Unlock()

	// RunNow takes mu, so wait outside it.
	s.wg.Wait()
	s.Logger.Info().Msg("series scheduler stopped")
}

func (s *SeriesScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	s.RunNow(context.Background())
	for {
		select {
		case <-ticker.C:
			s.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one pass and returns the number of occurrences created.
func (s *SeriesScheduler) RunNow(ctx context.Context) int {
	created, err := s.Bookings.ExtendDue(ctx, s.Horizon)
	if err != nil {
		s.Logger.Warn().Err(err).Int("created", created).Msg("series extension finished with errors")
	} else if created > 0 {
		s.Logger.Info().Int("created", created).Msg("series extended")
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()
	return created
}

// NextRunTime estimates when the next pass will run.
func (s *SeriesScheduler) NextRunTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun.IsZero() {
		return time.Now()
	}
	return s.lastRun.Add(s.Interval)
}
