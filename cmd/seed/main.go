/*
main.go - Seed a calendar with generated clients and bookings

PURPOSE:
  Fills the configured store with a service catalog, fake clients and a
  few weeks of bookings for one owner. Bookings go through the lifecycle
  service, so overlaps are skipped rather than forced.

FLAGS:
  -owner    owner id to seed (default: demo-owner)
  -clients  number of clients (default: 40)
  -days     days ahead to fill (default: 21)
  -per-day  bookings attempted per day (default: 6)
  -seed     random seed; 0 uses the clock

The store comes from the same configuration as the server (BOOKING_*
environment, .env, -driver and -db flags).
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/calendar"
	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/conflict"
	"github.com/warp/booking-engine/ledger"
	"github.com/warp/booking-engine/lifecycle"
	"github.com/warp/booking-engine/logging"
	"github.com/warp/booking-engine/store/postgres"
	"github.com/warp/booking-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	owner := flag.String("owner", "demo-owner", "owner id to seed")
	clients := flag.Int("clients", 40, "number of clients")
	days := flag.Int("days", 21, "days ahead to fill")
	perDay := flag.Int("per-day", 6, "bookings attempted per day")
	seed := flag.Int64("seed", 0, "random seed; 0 uses the clock")
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: true, Service: "seed"})
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	gofakeit.Seed(*seed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var store booking.Store
	switch cfg.Driver {
	case "postgres":
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect postgres")
		}
		defer pg.Close()
		store = pg
	default:
		lite, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("open sqlite")
		}
		defer lite.Close()
		store = lite
	}

	clock, err := calendar.LoadClock(cfg.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Msg("load timezone")
	}
	l := ledger.New(store, nil, clock, logger, nil)
	bookings := lifecycle.New(store, l, clock, logger)
	act := booking.ActingContext{OwnerID: booking.OwnerID(*owner), ActingAsID: "seed"}

	services, err := seedServices(ctx, store, act, clock)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed services")
	}
	clientIDs, err := seedClients(ctx, store, act, clock, *clients)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed clients")
	}

	booked, skipped := 0, 0
	today := clock.Today()
	for d := 0; d < *days; d++ {
		date := today.AddDays(d)
		for i := 0; i < *perDay; i++ {
			start := calendar.NewTimeOfDay(gofakeit.Number(9, 18), 30*gofakeit.Number(0, 1))
			svc := services[gofakeit.Number(0, len(services)-1)]
			in := lifecycle.BookInput{
				Date:       date,
				StartTime:  &start,
				ServiceIDs: []booking.ServiceID{svc.ID},
				ClientID:   clientIDs[gofakeit.Number(0, len(clientIDs)-1)],
			}
			if svc.RequiresDeposit {
				amount := svc.Price.Mul(svc.DepositPercent).Div(decimal.NewFromInt(100))
				in.Deposit = &lifecycle.DepositInput{Amount: amount, Method: "transfer"}
			}
			_, err := bookings.Book(ctx, act, in)
			var warning *conflict.Warning
			switch {
			case errors.As(err, &warning):
				skipped++
			case err != nil && !booking.IsPartial(err):
				logger.Fatal().Err(err).Str("date", date.String()).Msg("book")
			default:
				booked++
			}
		}
	}

	logger.Info().
		Str("owner", *owner).
		Int("services", len(services)).
		Int("clients", len(clientIDs)).
		Int("booked", booked).
		Int("skipped_overlaps", skipped).
		Msg("seed complete")
}

func seedServices(ctx context.Context, store booking.Store, act booking.ActingContext, clock *calendar.Clock) ([]booking.Service, error) {
	catalog := []booking.Service{
		{ID: "svc-cut", Name: "Haircut", Price: decimal.NewFromInt(10000), DurationMinutes: 30},
		{ID: "svc-color", Name: "Color", Price: decimal.NewFromInt(25000), DurationMinutes: 90,
			RequiresDeposit: true, DepositPercent: decimal.NewFromInt(30)},
		{ID: "svc-nails", Name: "Manicure", Price: decimal.NewFromInt(8000), DurationMinutes: 45},
		{ID: "svc-brows", Name: "Brow design", Price: decimal.NewFromInt(6000), DurationMinutes: 30},
	}
	for i := range catalog {
		s := &catalog[i]
		s.OwnerID = act.OwnerID
		s.Active = true
		s.CreatedAt = clock.Now()
		if err := store.SaveService(ctx, s); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func seedClients(ctx context.Context, store booking.Store, act booking.ActingContext, clock *calendar.Clock, n int) ([]booking.ClientID, error) {
	ids := make([]booking.ClientID, 0, n)
	for i := 0; i < n; i++ {
		c := &booking.Client{
			ID:        booking.ClientID(fmt.Sprintf("seed-%04d", i+1)),
			OwnerID:   act.OwnerID,
			Name:      gofakeit.Name(),
			Email:     gofakeit.Email(),
			CreatedAt: clock.Now(),
		}
		// A third of clients only leave an email.
		if gofakeit.Number(0, 2) > 0 {
			c.Phone = gofakeit.Phone()
		}
		if err := store.SaveClient(ctx, c); err != nil {
			return nil, err
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}
