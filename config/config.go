/*
Package config loads server configuration.

SOURCES (later wins):
  1. Defaults in the struct tags
  2. .env in the working directory, if present (never overrides the real
     environment)
  3. Environment variables with the BOOKING_ prefix, e.g. BOOKING_HTTP_PORT
  4. Command-line flags registered by BindFlags

EXAMPLES:
  BOOKING_DRIVER=postgres BOOKING_POSTGRES_DSN=postgres://... ./server
  ./server -port=3000 -db=":memory:"
*/
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const Prefix = "BOOKING"

type Config struct {
	Env      string `envconfig:"ENV" default:"dev"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`

	// Storage
	Driver      string `envconfig:"DRIVER" default:"sqlite"` // sqlite | postgres
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"booking.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	// Calendar
	Timezone string        `envconfig:"TIMEZONE" default:"America/Argentina/Buenos_Aires"`
	SlotStep time.Duration `envconfig:"SLOT_STEP" default:"30m"`
	DayStart string        `envconfig:"DAY_START" default:"09:00"`
	DayEnd   string        `envconfig:"DAY_END" default:"20:00"`

	// Public booking links
	OfferTTL        time.Duration `envconfig:"OFFER_TTL" default:"48h"`
	OfferSecret     string        `envconfig:"OFFER_SECRET"`
	PublicRateLimit float64       `envconfig:"PUBLIC_RATE_LIMIT" default:"2"`
	PublicRateBurst int           `envconfig:"PUBLIC_RATE_BURST" default:"5"`

	// Series & ledger
	ExtensionBatch    int           `envconfig:"EXTENSION_BATCH" default:"12"`
	ExtensionHorizon  int           `envconfig:"EXTENSION_HORIZON_DAYS" default:"14"`
	SchedulerEnabled  bool          `envconfig:"SCHEDULER_ENABLED" default:"false"`
	SchedulerInterval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"1h"`
	CreditLookback    int           `envconfig:"CREDIT_LOOKBACK" default:"50"`
	BreakerThreshold  uint32        `envconfig:"BREAKER_THRESHOLD" default:"5"`
	BreakerTimeout    time.Duration `envconfig:"BREAKER_TIMEOUT" default:"30s"`

	// Messaging; every channel is optional
	RedisURL     string   `envconfig:"REDIS_URL"`
	RedisChannel string   `envconfig:"REDIS_CHANNEL" default:"booking.messages"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"booking.messages"`
	SMTPHost     string   `envconfig:"SMTP_HOST"`
	SMTPPort     int      `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string   `envconfig:"SMTP_USER"`
	SMTPPassword string   `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string   `envconfig:"SMTP_FROM"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	return &cfg, nil
}

// BindFlags registers the flags the server has always accepted. Their
// defaults are the values already loaded, so an unset flag changes nothing.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.HTTPPort, "port", c.HTTPPort, "HTTP server port")
	fs.StringVar(&c.SQLitePath, "db", c.SQLitePath, `SQLite database path (":memory:" for in-memory)`)
	fs.StringVar(&c.Driver, "driver", c.Driver, "storage driver: sqlite or postgres")
	fs.BoolVar(&c.SchedulerEnabled, "scheduler", c.SchedulerEnabled, "extend open-ended series in the background")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var problems []string
	switch c.Driver {
	case "sqlite":
		if c.SQLitePath == "" {
			problems = append(problems, "sqlite driver needs SQLITE_PATH")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			problems = append(problems, "postgres driver needs POSTGRES_DSN")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown driver %q", c.Driver))
	}
	if c.Env != "dev" && c.OfferSecret == "" {
		problems = append(problems, "OFFER_SECRET is required outside dev")
	}
	if c.SlotStep <= 0 {
		problems = append(problems, "SLOT_STEP must be positive")
	}
	if c.SchedulerEnabled && c.SchedulerInterval <= 0 {
		problems = append(problems, "SCHEDULER_INTERVAL must be positive when the scheduler is enabled")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Secret returns the offer signing key, with a fixed key in dev.
func (c *Config) Secret() []byte {
	if c.OfferSecret == "" {
		return []byte("dev-only-offer-secret")
	}
	return []byte(c.OfferSecret)
}
