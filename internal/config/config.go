package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration from environment variables.
type Config struct {
	Port        int    `validate:"gt=0,lte=65535"`
	DatabaseDSN string `validate:"required"`
	LogLevel    slog.Level
	Location    *time.Location `validate:"-"` // wall clock used for commute plan recurrence

	RecurrenceInterval time.Duration `validate:"gt=0"`
	CatalogTTL         time.Duration `validate:"gte=0"` // 0 = build once, keep forever
	ArrivalsTTL        time.Duration `validate:"gte=0"`
	ProviderTimeout    time.Duration `validate:"gt=0"`

	ProvidersFile string     // optional YAML provider registry
	Providers     []Provider `validate:"-"`

	NATSURL     string // empty = log-only push sender
	PushSubject string `validate:"required"`
	MetricsAddr string // dedicated metrics listener, empty disables it

	GeocoderURL       string // Nominatim base URL, empty disables geocoding
	GeocoderUserAgent string
	GeocoderCountry   string
}

// Load reads .env (if present) and then configuration from environment
// variables with defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               envInt("GOCOMMUTE_PORT", 8080),
		DatabaseDSN:        envStr("GOCOMMUTE_DB", "sqlite:./gocommute.db"),
		RecurrenceInterval: envDuration("GOCOMMUTE_RECURRENCE_INTERVAL", 60*time.Second),
		CatalogTTL:         envDuration("GOCOMMUTE_CATALOG_TTL", 0),
		ArrivalsTTL:        envDuration("GOCOMMUTE_ARRIVALS_TTL", 30*time.Second),
		ProviderTimeout:    envDuration("GOCOMMUTE_PROVIDER_TIMEOUT", 10*time.Second),
		ProvidersFile:      envStr("GOCOMMUTE_PROVIDERS_FILE", ""),
		NATSURL:            envStr("NATS_URL", ""),
		PushSubject:        envStr("GOCOMMUTE_PUSH_SUBJECT", "push.fcm"),
		MetricsAddr:        envStr("METRICS_ADDR", ""),
		GeocoderURL:        envStr("GEOCODER_URL", ""),
		GeocoderUserAgent:  envStr("GEOCODER_USER_AGENT", "gocommute/1.0"),
		GeocoderCountry:    envStr("GEOCODER_COUNTRY", "sg"),
	}

	level, err := parseLevel(envStr("GOCOMMUTE_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	tzName := envStr("TZ", "Asia/Singapore")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TZ %q: %w", tzName, err)
	}
	cfg.Location = loc

	return cfg, nil
}

// LoadProviders fills cfg.Providers from ProvidersFile when set, otherwise
// from the LTA_*, NUS_* and GTFSRT_* environment variables. Call it after
// flag overrides have been applied.
func (c *Config) LoadProviders() error {
	if c.ProvidersFile != "" {
		providers, err := LoadProvidersFile(c.ProvidersFile)
		if err != nil {
			return err
		}
		c.Providers = providers
		return nil
	}
	c.Providers = providersFromEnv()
	return validateProviders(c.Providers)
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func providersFromEnv() []Provider {
	var out []Provider
	if key := envStr("LTA_ACCOUNT_KEY", ""); key != "" {
		out = append(out, Provider{
			ID:         "LTA",
			Kind:       KindLTA,
			BaseURL:    envStr("LTA_BASE_URL", "https://datamall2.mytransport.sg/ltaodataservice"),
			AccountKey: key,
			Enabled:    true,
		})
	}
	if user := envStr("NUS_USERNAME", ""); user != "" {
		out = append(out, Provider{
			ID:       "NUS",
			Kind:     KindNUS,
			BaseURL:  envStr("NUS_BASE_URL", "https://nnextbus.nus.edu.sg"),
			Username: user,
			Password: envStr("NUS_PASSWORD", ""),
			Enabled:  true,
		})
	}
	if tu := envStr("GTFSRT_TRIP_UPDATES_URL", ""); tu != "" {
		out = append(out, Provider{
			ID:             envStr("GTFSRT_ID", "GTFSRT"),
			Kind:           KindGTFSRT,
			StopsURL:       envStr("GTFSRT_STOPS_URL", ""),
			TripUpdatesURL: tu,
			Enabled:        true,
		})
	}
	return out
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("90s") or plain seconds ("90").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
