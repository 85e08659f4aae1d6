// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"chanqueue-bot/internal/storage"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds the application configuration.
type Config struct {
	AppEnv          string
	Debug           bool
	Version         string
	LogLevel        string
	BotToken        string
	ChannelID       string
	AllowedUsers    []int64
	SentryDSN       string
	Timezone        string
	Location        *time.Location
	DefaultLanguage string

	Storage storage.Config

	SettingsSeedFile   string
	Port               string
	MediaGroupDelay    time.Duration
	SlotTolerance      time.Duration
	MaxPublishAttempts int
	DigestSchedule     string
}

// LoadConfig loads configuration from environment variables.
// A .env file is read if present; variables already set in the environment win.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, relying on environment variables")
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds the configuration from lookup, which has the signature of os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string { return getEnv(lookup, key, def) }

	debug, _ := strconv.ParseBool(get("DEBUG", "false"))

	allowed, err := parseUsers(lookup)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:          get("APP_ENV", "development"),
		Debug:           debug,
		Version:         get("VERSION", "dev"),
		LogLevel:        get("LOG_LEVEL", ""),
		BotToken:        get("TELEGRAM_BOT_TOKEN", ""),
		ChannelID:       strings.TrimSpace(get("CHANNEL_ID", "")),
		AllowedUsers:    allowed,
		SentryDSN:       get("SENTRY_DSN", ""),
		Timezone:        get("TIMEZONE", "Europe/Prague"),
		DefaultLanguage: get("DEFAULT_LANGUAGE", "en"),
		Storage: storage.Config{
			Driver:        get("STORAGE_DRIVER", "file"),
			Path:          get("STORAGE_PATH", "data"),
			SQLitePath:    get("SQLITE_PATH", "data/chanqueue.db"),
			MongoURI:      get("MONGODB_URI", ""),
			MongoDatabase: get("MONGODB_DATABASE", "chanqueue"),
			ValkeyAddr:    get("VALKEY_ADDR", "localhost:6379"),
			GCSBucket:     get("GCS_BUCKET", ""),
			KeyPrefix:     get("STORAGE_KEY_PREFIX", "chanqueue"),
		},
		SettingsSeedFile: get("SETTINGS_SEED_FILE", ""),
		Port:             get("PORT", "8080"),
		DigestSchedule:   get("DIGEST_SCHEDULE", ""),
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
		if cfg.Debug {
			cfg.LogLevel = "debug"
		}
	}

	if cfg.MediaGroupDelay, err = parseDuration(get("MEDIA_GROUP_DELAY", "1s"), "MEDIA_GROUP_DELAY"); err != nil {
		return nil, err
	}
	if cfg.SlotTolerance, err = parseDuration(get("SLOT_TOLERANCE", "60s"), "SLOT_TOLERANCE"); err != nil {
		return nil, err
	}
	if cfg.MaxPublishAttempts, err = strconv.Atoi(get("MAX_PUBLISH_ATTEMPTS", "5")); err != nil {
		return nil, fmt.Errorf("invalid MAX_PUBLISH_ATTEMPTS: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if cfg.SentryDSN == "" {
		log.Warn().Msg("SENTRY_DSN is not set, error tracking disabled")
	}
	if len(cfg.AllowedUsers) == 0 {
		log.Warn().Msg("no allowed users configured, every operator command will be rejected")
	}
	return cfg, nil
}

// Validate checks required variables and driver-specific settings.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BotToken, validation.Required.Error("TELEGRAM_BOT_TOKEN is required")),
		validation.Field(&c.Timezone, validation.Required),
		validation.Field(&c.MediaGroupDelay, validation.Min(100*time.Millisecond)),
		validation.Field(&c.SlotTolerance, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxPublishAttempts, validation.Min(0)),
		validation.Field(&c.Storage, validation.By(validateStorage)),
	)
}

func validateStorage(value interface{}) error {
	sc, _ := value.(storage.Config)
	return validation.ValidateStruct(&sc,
		validation.Field(&sc.Driver, validation.In("file", "sqlite", "sqlite3", "mongo", "mongodb", "valkey", "redis", "gcs", "memory")),
		validation.Field(&sc.MongoURI, validation.When(sc.Driver == "mongo" || sc.Driver == "mongodb", validation.Required.Error("MONGODB_URI is required for the mongo driver"))),
		validation.Field(&sc.GCSBucket, validation.When(sc.Driver == "gcs", validation.Required.Error("GCS_BUCKET is required for the gcs driver"))),
	)
}

// parseUsers reads ALLOWED_USERS (comma separated) plus the legacy ALLOWED_USER_1..3 variables.
func parseUsers(lookup func(string) (string, bool)) ([]int64, error) {
	var raw []string
	raw = append(raw, strings.Split(getEnv(lookup, "ALLOWED_USERS", ""), ",")...)
	for i := 1; i <= 3; i++ {
		raw = append(raw, getEnv(lookup, fmt.Sprintf("ALLOWED_USER_%d", i), ""))
	}

	seen := make(map[int64]struct{})
	var users []int64
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		id, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed user id %q: %w", r, err)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}
	return users, nil
}

func parseDuration(text, name string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(text))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(lookup func(string) (string, bool), key, defaultValue string) string {
	if value, exists := lookup(key); exists {
		return value
	}
	return defaultValue
}
