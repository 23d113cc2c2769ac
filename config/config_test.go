package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, 30*time.Minute, cfg.SlotStep)
	assert.Equal(t, 48*time.Hour, cfg.OfferTTL)
	assert.Equal(t, 50, cfg.CreditLookback)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvironmentAndFlags(t *testing.T) {
	t.Setenv("BOOKING_HTTP_PORT", "9000")
	t.Setenv("BOOKING_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("BOOKING_SLOT_STEP", "15m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Minute, cfg.SlotStep)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-db", ":memory:"}))
	assert.Equal(t, ":memory:", cfg.SQLitePath)
	assert.Equal(t, 9000, cfg.HTTPPort)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Env: "prod", Driver: "postgres", SlotStep: time.Minute}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
	assert.Contains(t, err.Error(), "OFFER_SECRET")
}

func TestValidate_SchedulerInterval(t *testing.T) {
	// GIVEN: A valid dev config with the scheduler on and no interval
	// WHEN: Validating
	// THEN: Rejected; the same interval with the scheduler off is fine
	cfg := &Config{Env: "dev", Driver: "sqlite", SQLitePath: "booking.db", SlotStep: time.Minute, SchedulerEnabled: true}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCHEDULER_INTERVAL")

	cfg.SchedulerInterval = -time.Minute
	assert.Error(t, cfg.Validate())

	cfg.SchedulerEnabled = false
	assert.NoError(t, cfg.Validate())

	cfg.SchedulerEnabled = true
	cfg.SchedulerInterval = time.Hour
	assert.NoError(t, cfg.Validate())
}
