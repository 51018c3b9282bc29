package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"signalwatch/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Feeds         FeedsConfig
	Novelty       NoveltyConfig
	Alerts        AlertsConfig
	Dashboard     DashboardConfig
	Settings      SettingsConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"signalwatch"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type HTTPConfig struct {
	Port         int           `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
}

// FeedsConfig holds the poller settings and the baked-in feed defaults
type FeedsConfig struct {
	FetchTimeout     time.Duration `envconfig:"FEED_FETCH_TIMEOUT" default:"10s"`
	UserAgent        string        `envconfig:"FEED_USER_AGENT" default:"signalwatch/1.0"`
	UnreachableAfter int           `envconfig:"FEED_UNREACHABLE_AFTER" default:"3"`
	DefaultMidpoint  float64       `envconfig:"FEED_DEFAULT_MIDPOINT" default:"0.5"`
	File             string        `envconfig:"FEEDS_FILE"` // optional YAML list of feed sources

	PanicURL      string        `envconfig:"PANIC_FEED_URL" default:"http://127.0.0.1:5000/api/panic"`
	PanicInterval time.Duration `envconfig:"PANIC_FEED_INTERVAL" default:"30s"`
	QueryURL      string        `envconfig:"QUERY_FEED_URL" default:"http://127.0.0.1:5000/api/query"`
	QueryInterval time.Duration `envconfig:"QUERY_FEED_INTERVAL" default:"10m"`

	ShutdownTimeout time.Duration `envconfig:"SCHEDULER_SHUTDOWN_TIMEOUT" default:"15s"`
}

type NoveltyConfig struct {
	Horizon time.Duration `envconfig:"NOVELTY_HORIZON" default:"24h"`
	Cap     int           `envconfig:"NOVELTY_CAP" default:"1000"`
}

type AlertsConfig struct {
	PulseDuration time.Duration `envconfig:"ALERT_PULSE_DURATION" default:"10s"`
	ToneEvery     time.Duration `envconfig:"ALERT_TONE_EVERY" default:"1s"`
	PreviewLimit  int           `envconfig:"ALERT_PREVIEW_LIMIT" default:"8"`
}

type DashboardConfig struct {
	RecentLimit int `envconfig:"DASHBOARD_RECENT_LIMIT" default:"10"`
}

// SettingsConfig selects the key-value store behind persisted feed settings
type SettingsConfig struct {
	Backend     string `envconfig:"SETTINGS_BACKEND" default:"sqlite"` // sqlite|postgres|redis|memory
	SQLitePath  string `envconfig:"SETTINGS_SQLITE_PATH" default:"signalwatch.db"`
	PostgresDSN string `envconfig:"SETTINGS_POSTGRES_DSN"`
	MaxConns    int    `envconfig:"SETTINGS_MAX_CONNS" default:"4"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers    []string `envconfig:"KAFKA_BROKERS"` // empty disables publishing
	AlertTopic string   `envconfig:"KAFKA_ALERT_TOPIC" default:"signals.alerts"`
}

// Enabled reports whether alert publishing to Kafka is configured
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type TelegramConfig struct {
	BotToken   string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID     int64   `envconfig:"TELEGRAM_CHAT_ID"`
	RatePerSec float64 `envconfig:"TELEGRAM_RATE_PER_SEC" default:"1"`
}

// Enabled reports whether alert delivery to Telegram is configured
func (c TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != 0
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express
func (c *Config) Validate() error {
	var errs errors.MultiError

	if c.Feeds.FetchTimeout <= 0 {
		errs.Add(errors.NewValidationError("FEED_FETCH_TIMEOUT", "must be positive", c.Feeds.FetchTimeout))
	}
	if c.Feeds.UnreachableAfter < 1 {
		errs.Add(errors.NewValidationError("FEED_UNREACHABLE_AFTER", "must be at least 1", c.Feeds.UnreachableAfter))
	}
	if c.Novelty.Horizon <= 0 {
		errs.Add(errors.NewValidationError("NOVELTY_HORIZON", "must be positive", c.Novelty.Horizon))
	}
	if c.Novelty.Cap < 1 {
		errs.Add(errors.NewValidationError("NOVELTY_CAP", "must be at least 1", c.Novelty.Cap))
	}
	if c.Alerts.PulseDuration <= 0 || c.Alerts.ToneEvery <= 0 {
		errs.Add(errors.NewValidationError("ALERT_PULSE_DURATION", "pulse and tone period must be positive", c.Alerts.PulseDuration))
	}
	if c.Alerts.PreviewLimit < 1 {
		errs.Add(errors.NewValidationError("ALERT_PREVIEW_LIMIT", "must be at least 1", c.Alerts.PreviewLimit))
	}
	switch c.Settings.Backend {
	case "sqlite", "redis", "memory":
	case "postgres":
		if c.Settings.PostgresDSN == "" {
			errs.Add(errors.NewValidationError("SETTINGS_POSTGRES_DSN", "required for postgres backend", ""))
		}
	default:
		errs.Add(errors.NewValidationError("SETTINGS_BACKEND", "unknown backend", c.Settings.Backend))
	}

	if errs.HasErrors() {
		return errors.Wrap(errs.ToError(), "invalid config")
	}
	return nil
}
