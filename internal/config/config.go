// Package config loads the service configuration from config.yml and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jusunglee/wmata-go/internal/feed"
)

// DefaultPath is read when no config file is named. It may be absent.
const DefaultPath = "config.yml"

// FeedsConfig contains the GTFS-RT endpoints
type FeedsConfig struct {
	TripUpdatesURL      string `yaml:"trip_updates_url" validate:"required,url"`
	VehiclePositionsURL string `yaml:"vehicle_positions_url" validate:"omitempty,url"`
	AlertsURL           string `yaml:"alerts_url" validate:"omitempty,url"`
}

// Config is the root configuration structure
type Config struct {
	APIKey              string      `yaml:"api_key" validate:"required"`
	StationsFile        string      `yaml:"stations_file" validate:"required"`
	CacheSeconds        int         `yaml:"cache_seconds" validate:"gt=0"`
	MaxTrains           int         `yaml:"max_trains" validate:"gt=0"`
	MaxMinutes          float64     `yaml:"max_minutes" validate:"gte=0"`
	FetchTimeoutSeconds int         `yaml:"fetch_timeout_seconds" validate:"gt=0"`
	Port                int         `yaml:"port" validate:"gt=0,lte=65535"`
	CrossOrigin         string      `yaml:"cross_origin"`
	Debug               bool        `yaml:"debug"`
	LogLevel            string      `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Feeds               FeedsConfig `yaml:"feeds"`
}

// Default returns the configuration used for keys missing from the file
func Default() Config {
	urls := feed.DefaultURLs()
	return Config{
		StationsFile:        "stations.json",
		CacheSeconds:        60,
		MaxTrains:           10,
		MaxMinutes:          30,
		FetchTimeoutSeconds: 10,
		Port:                5000,
		LogLevel:            "info",
		Feeds: FeedsConfig{
			TripUpdatesURL:      urls.TripUpdates,
			VehiclePositionsURL: urls.VehiclePositions,
			AlertsURL:           urls.Alerts,
		},
	}
}

// Load reads path over the defaults and then applies environment overrides.
// A missing file is only an error when path is not DefaultPath.
// The result is not validated; call Validate once flags are applied.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	if cfg.Debug && cfg.CrossOrigin == "" {
		cfg.CrossOrigin = "*"
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("env %s: %w", key, err)
			}
			*dst = n
		}
		return nil
	}

	str("WMATA_API_KEY", &c.APIKey)
	str("STATIONS_FILE", &c.StationsFile)
	str("CROSS_ORIGIN", &c.CrossOrigin)
	str("LOG_LEVEL", &c.LogLevel)

	if err := integer("PORT", &c.Port); err != nil {
		return err
	}
	if err := integer("CACHE_SECONDS", &c.CacheSeconds); err != nil {
		return err
	}
	if err := integer("MAX_TRAINS", &c.MaxTrains); err != nil {
		return err
	}
	if v, ok := lookup("MAX_MINUTES"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("env MAX_MINUTES: %w", err)
		}
		c.MaxMinutes = f
	}
	if v, ok := lookup("DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("env DEBUG: %w", err)
		}
		c.Debug = b
	}
	return nil
}

// Validate checks the struct tags
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// CacheInterval is the time between refresh cycles
func (c Config) CacheInterval() time.Duration {
	return time.Duration(c.CacheSeconds) * time.Second
}

// SetCacheInterval sets cache_seconds from a duration such as the -update-interval flag
func (c *Config) SetCacheInterval(d time.Duration) error {
	if d < time.Second || d%time.Second != 0 {
		return fmt.Errorf("update interval %s must be a whole number of seconds, at least 1s", d)
	}
	c.CacheSeconds = int(d / time.Second)
	return nil
}

// FetchTimeout bounds one fetch of all feeds
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// FeedURLs returns the endpoints in the form the fetcher takes
func (c Config) FeedURLs() feed.URLs {
	return feed.URLs{
		TripUpdates:      c.Feeds.TripUpdatesURL,
		VehiclePositions: c.Feeds.VehiclePositionsURL,
		Alerts:           c.Feeds.AlertsURL,
	}
}

// SlogLevel maps log_level to a slog level; debug mode forces debug logging
func (c Config) SlogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
