package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/domain"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/logger"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/planner"
	"github.com/FightTheStroke/MirrorSmoker-sub002/internal/scheduler"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken    string `envconfig:"BOT_TOKEN" required:"true"`
	OwnerChatID int64  `envconfig:"OWNER_CHAT_ID" required:"true"` // the single user
	DBPath      string `envconfig:"DB_PATH" default:"./data/coach.db"`
	TZ          string `envconfig:"TZ" default:"Europe/Moscow"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`  // debug|info|warn|error
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"` // healthz + metrics

	EvalSchedule    string        `envconfig:"EVAL_SCHEDULE" default:"@every 15m"`
	MaxPerDay       int           `envconfig:"MAX_NOTIFICATIONS_PER_DAY" default:"3"`
	QuietHours      string        `envconfig:"QUIET_HOURS" default:"22-6"`
	MinInterval     time.Duration `envconfig:"MIN_INTERVAL" default:"2h"`
	RiskThreshold   float64       `envconfig:"RISK_THRESHOLD" default:"0.5"`
	DeliveryTimeout time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"10s"`
}

// Load reads environment variables into Config and validates them.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the values envconfig cannot.
func (c Config) Validate() error {
	if c.OwnerChatID == 0 {
		return errors.New("OWNER_CHAT_ID must be non-zero")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if _, err := domain.ValidateTZ(c.TZ); err != nil {
		return fmt.Errorf("TZ: %w", err)
	}
	if err := scheduler.ValidateSpec(c.EvalSchedule); err != nil {
		return fmt.Errorf("EVAL_SCHEDULE: %w", err)
	}
	if _, err := c.Limits(); err != nil {
		return err
	}
	if c.RiskThreshold <= 0 || c.RiskThreshold > 1 {
		return fmt.Errorf("RISK_THRESHOLD must be in (0,1], got %v", c.RiskThreshold)
	}
	if c.DeliveryTimeout <= 0 {
		return errors.New("DELIVERY_TIMEOUT must be positive")
	}
	return nil
}

// Location loads the configured time zone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.TZ)
}

// Limits builds the planner's initial notification limits.
func (c Config) Limits() (planner.Limits, error) {
	quiet, err := domain.ParseQuietHours(c.QuietHours)
	if err != nil {
		return planner.Limits{}, fmt.Errorf("QUIET_HOURS: %w", err)
	}
	l := planner.Limits{
		MaxPerDay:   c.MaxPerDay,
		Quiet:       quiet,
		MinInterval: c.MinInterval,
	}
	if err := l.Validate(); err != nil {
		return planner.Limits{}, err
	}
	return l, nil
}
