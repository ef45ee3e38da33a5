// Package config reads sportorg runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/roach88/sportorg/internal/engine"
	"github.com/roach88/sportorg/internal/model"
)

// Config holds the settings of a sportorg process. Empty MQTTBroker or
// NATSURL disables that exporter.
type Config struct {
	DBPath      string
	LogLevel    string
	Listen      string // TCP address for reader connections
	HTTPAddr    string
	MQTTBroker  string
	NATSURL     string
	Retention   time.Duration
	Tick        time.Duration
	ZeroTime    time.Duration // time of day of event time zero
	HasZeroTime bool
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Config {
	return Config{
		DBPath:    "sportorg.db",
		LogLevel:  "info",
		Listen:    ":10001",
		HTTPAddr:  ":8080",
		Retention: engine.DefaultUnresolvedRetention,
		Tick:      engine.DefaultTickInterval,
	}
}

// Load reads a .env file from the working directory when one exists, then
// the SPORTORG_* environment variables.
func Load(logger zerolog.Logger) (Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Unset or empty variables
// keep their default.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Defaults()
	get := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	cfg.DBPath = get("SPORTORG_DB", cfg.DBPath)
	cfg.LogLevel = get("SPORTORG_LOG_LEVEL", cfg.LogLevel)
	cfg.Listen = get("SPORTORG_LISTEN", cfg.Listen)
	cfg.HTTPAddr = get("SPORTORG_HTTP", cfg.HTTPAddr)
	cfg.MQTTBroker = get("SPORTORG_MQTT_BROKER", "")
	cfg.NATSURL = get("SPORTORG_NATS_URL", "")

	var err error
	if v := getenv("SPORTORG_RETENTION"); v != "" {
		if cfg.Retention, err = parsePositive("SPORTORG_RETENTION", v); err != nil {
			return Config{}, err
		}
	}
	if v := getenv("SPORTORG_TICK"); v != "" {
		if cfg.Tick, err = parsePositive("SPORTORG_TICK", v); err != nil {
			return Config{}, err
		}
	}
	if v := getenv("SPORTORG_ZERO_TIME"); v != "" {
		zt, err := model.ParseTime(v)
		if err != nil {
			return Config{}, fmt.Errorf("SPORTORG_ZERO_TIME: %w", err)
		}
		if zt >= 24*time.Hour {
			return Config{}, fmt.Errorf("SPORTORG_ZERO_TIME: %s is not a time of day", v)
		}
		cfg.ZeroTime, cfg.HasZeroTime = zt, true
	}
	return cfg, nil
}

func parsePositive(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, v)
	}
	return d, nil
}

// ZeroTimeOn returns the wall-clock instant of event time zero on the day
// of now, in now's location.
func ZeroTimeOn(now time.Time, zero time.Duration) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Add(zero)
}

// EngineConfig converts the settings to an engine configuration. The zero
// time is resolved against the day of now; without one the engine uses its
// creation time.
func (c Config) EngineConfig(now time.Time) engine.Config {
	ec := engine.Config{
		UnresolvedRetention: c.Retention,
		TickInterval:        c.Tick,
	}
	if c.HasZeroTime {
		ec.ZeroTime = ZeroTimeOn(now, c.ZeroTime)
	}
	return ec
}
