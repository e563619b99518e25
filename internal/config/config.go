// Package config loads zipcast configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// OpenWeatherAPIKey is the provider credential sent as appid.
	OpenWeatherAPIKey  string `validate:"required"`
	OpenWeatherBaseURL string `validate:"required,url"`

	Port        string `validate:"required,numeric"`
	Environment string `validate:"required"`
	LogLevel    string `validate:"required,oneof=trace debug info warn error fatal panic disabled"`

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool

	OTelEnabled     bool
	OTLPEndpoint    string  `validate:"required"`
	OTelSampleRatio float64 `validate:"gte=0,lte=1"`

	// ForecastTimezone names the zone used to split forecasts into days.
	// "Local" uses the process time zone.
	ForecastTimezone string `validate:"required"`
	ForecastDays     int    `validate:"gte=1,lte=5"`

	ProviderTimeout time.Duration `validate:"gt=0"`
	ProviderRPS     float64       `validate:"gte=0"`
	ProviderBurst   int           `validate:"gte=1"`

	// The provider circuit opens once BreakerMinRequests calls have been
	// counted and BreakerFailureRatio of them failed. It stays open for
	// BreakerCooldown.
	BreakerMinRequests  int           `validate:"gte=1"`
	BreakerFailureRatio float64       `validate:"gt=0,lte=1"`
	BreakerCooldown     time.Duration `validate:"gt=0"`

	SessionIdleTTL time.Duration `validate:"gt=0"`

	GeolocationURL string `validate:"required,url"`
}

// Load reads optional .env files and then the process environment.
// Variables already present in the environment take precedence.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	return FromEnv()
}

// FromEnv builds a Config from environment variables and validates it.
func FromEnv() (Config, error) {
	p := &parser{}

	cfg := Config{
		OpenWeatherAPIKey:   os.Getenv("OPENWEATHER_API_KEY"),
		OpenWeatherBaseURL:  getEnvOrDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5"),
		Port:                getEnvOrDefault("APP_PORT", "8080"),
		Environment:         getEnvOrDefault("APP_ENV", "development"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		RequireTLS:          p.bool("REQUIRE_TLS", false),
		OTelEnabled:         p.bool("OTEL_ENABLED", false),
		OTLPEndpoint:        getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelSampleRatio:     p.float("OTEL_SAMPLE_RATIO", 1),
		ForecastTimezone:    getEnvOrDefault("FORECAST_TIMEZONE", "Local"),
		ForecastDays:        p.int("FORECAST_DAYS", 5),
		ProviderTimeout:     p.duration("PROVIDER_TIMEOUT", 10*time.Second),
		ProviderRPS:         p.float("PROVIDER_RPS", 1),
		ProviderBurst:       p.int("PROVIDER_BURST", 5),
		BreakerMinRequests:  p.int("PROVIDER_BREAKER_MIN_REQUESTS", 5),
		BreakerFailureRatio: p.float("PROVIDER_BREAKER_FAILURE_RATIO", 0.5),
		BreakerCooldown:     p.duration("PROVIDER_BREAKER_COOLDOWN", time.Minute),
		SessionIdleTTL:      p.duration("SESSION_IDLE_TTL", 30*time.Minute),
		GeolocationURL:      getEnvOrDefault("GEOLOCATION_URL", "http://ip-api.com/json/"),
	}

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Location resolves ForecastTimezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ForecastTimezone)
	if err != nil {
		return nil, fmt.Errorf("FORECAST_TIMEZONE: %w", err)
	}
	return loc, nil
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) bool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
