/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the booking engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, BOOKING_* environment, flags)
  2. Open the store (SQLite or PostgreSQL)
  3. Wire the cash book, ledger, lifecycle and public link services
  4. Wire outbound messaging (WhatsApp hand-off, SMTP, Redis, Kafka)
  5. Configure the HTTP router and start the series scheduler
  6. Serve with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: booking.db)
              Use ":memory:" for in-memory database
  -driver     sqlite or postgres
  -scheduler  extend open-ended series in the background
  -log-level  debug, info, warn or error

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close publishers and the database connection

EXAMPLES:
  ./server -db=":memory:" -log-level=debug
  BOOKING_DRIVER=postgres BOOKING_POSTGRES_DSN=postgres://localhost/booking ./server

SEE ALSO:
  - config/config.go: every setting and its environment variable
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/warp/booking-engine/api"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/cashbook"
	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/ledger"
	"github.com/warp/booking-engine/lifecycle"
	"github.com/warp/booking-engine/logging"
	"github.com/warp/booking-engine/messaging"
	"github.com/warp/booking-engine/metrics"
	"github.com/warp/booking-engine/publiclink"
	"github.com/warp/booking-engine/store/postgres"
	"github.com/warp/booking-engine/store/sqlite"
)

// backend is what both SQL stores provide.
type backend interface {
	booking.Store
	cashbook.Store
	publiclink.Store
	io.Closer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Service: "booking-engine"})
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Driver).Msg("failed to initialize store")
	}
	defer store.Close()

	clock, err := calendar.LoadClock(cfg.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", cfg.Timezone).Msg("unknown timezone")
	}
	dayStart, err := calendar.ParseTimeOfDay(cfg.DayStart)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid DAY_START")
	}
	dayEnd, err := calendar.ParseTimeOfDay(cfg.DayEnd)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid DAY_END")
	}
	window := calendar.NewSlotRange(dayStart, dayEnd, cfg.SlotStep)

	m := metrics.New("booking")

	// Payments are mirrored into the cash book behind a circuit breaker.
	book := cashbook.New(store, logger)
	breaker := cashbook.NewBreaker(book, cashbook.BreakerSettings{
		Name:             "cashbook",
		FailureThreshold: cfg.BreakerThreshold,
		OpenTimeout:      cfg.BreakerTimeout,
	}, logger)

	l := ledger.New(store, breaker, clock, logger, m)
	l.CreditLookback = cfg.CreditLookback

	bookings := lifecycle.New(store, l, clock, logger)
	bookings.Metrics = m
	bookings.ExtensionBatch = cfg.ExtensionBatch

	dispatcher, closers := wireMessaging(cfg, logger, m)
	for _, c := range closers {
		defer c.Close()
	}
	bookings.Dispatcher = dispatcher

	links := publiclink.New(store, bookings, cfg.Secret(), window, logger)
	links.TTL = cfg.OfferTTL

	handler := api.NewHandler(bookings, links, window, logger)
	handler.Cash = book

	opts := api.DefaultRouterOptions()
	opts.PublicRate = rate.Limit(cfg.PublicRateLimit)
	opts.PublicBurst = cfg.PublicRateBurst
	router := api.NewRouter(handler, opts)

	scheduler := api.NewSeriesScheduler(bookings, logger)
	scheduler.Enabled = cfg.SchedulerEnabled
	scheduler.Interval = cfg.SchedulerInterval
	scheduler.Horizon = time.Duration(cfg.ExtensionHorizon) * 24 * time.Hour
	scheduler.Start()

	server := api.NewServer(fmt.Sprintf(":%d", cfg.HTTPPort), router, logger)

	go func() {
		logger.Info().
			Int("port", cfg.HTTPPort).
			Str("driver", cfg.Driver).
			Str("timezone", cfg.Timezone).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	logger.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (backend, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(ctx, cfg.PostgresDSN)
	default:
		return sqlite.New(cfg.SQLitePath)
	}
}

// wireMessaging routes client messages by channel and copies every message
// onto the configured event streams. Stream failures never fail a client send.
func wireMessaging(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics) (messaging.Dispatcher, []io.Closer) {
	router := messaging.Router{
		messaging.ChannelWhatsApp: &messaging.WhatsApp{Logger: logger},
	}
	if cfg.SMTPHost != "" {
		router[messaging.ChannelEmail] = messaging.NewMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	}

	fanout := messaging.Fanout{router}
	var closers []io.Closer
	if cfg.RedisURL != "" {
		p, err := messaging.NewRedisPublisherFromURL(cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			logger.Warn().Err(err).Msg("redis publisher disabled")
		} else {
			fanout = append(fanout, &messaging.BestEffort{Name: "redis", Dispatcher: p, Logger: logger, Metrics: m})
			closers = append(closers, p)
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		p := messaging.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		fanout = append(fanout, &messaging.BestEffort{Name: "kafka", Dispatcher: p, Logger: logger, Metrics: m})
		closers = append(closers, p)
	}
	logger.Info().
		Bool("email", cfg.SMTPHost != "").
		Bool("redis", cfg.RedisURL != "").
		Bool("kafka", len(cfg.KafkaBrokers) > 0).
		Msg("messaging wired")
	return fanout, closers
}
