package weather

import (
	"context"
	"time"
)

// Provider defines the interface for weather data providers.
type Provider interface {
	// CurrentConditions fetches current weather for a location.
	CurrentConditions(ctx context.Context, q Query) (*CurrentConditions, error)

	// Forecast fetches the multi-day forecast for a location.
	Forecast(ctx context.Context, q Query) (*Forecast, error)

	// Name returns the provider name for logging.
	Name() string
}

// RequestRecorder receives the outcome of provider calls.
type RequestRecorder interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
}

// NopRecorder discards all recordings.
type NopRecorder struct{}

// RecordRequest implements RequestRecorder.
func (NopRecorder) RecordRequest(string, string, time.Duration, error) {}
