package openweathermap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zipcast/zipcast/internal/provider/resilience"
	"github.com/zipcast/zipcast/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

	currentPath  = "/weather"
	forecastPath = "/forecast"

	tracerName = "github.com/zipcast/zipcast/internal/weather/openweathermap"
)

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// APIKey is the OpenWeatherMap API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to OpenWeatherMap API).
	BaseURL string

	// Country is appended to postal code queries (optional, defaults to US).
	Country string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Recorder receives per-request outcomes (optional).
	Recorder weather.RequestRecorder

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenWeatherMap API client.
type Client struct {
	apiKey     string
	baseURL    string
	country    string
	httpClient *resilience.Client
	recorder   weather.RequestRecorder
	tracer     trace.Tracer
	logger     zerolog.Logger
}

var _ weather.Provider = (*Client)(nil)

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	country := cfg.Country
	if country == "" {
		country = weather.DefaultCountry
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	recorder := cfg.Recorder
	if recorder == nil {
		recorder = weather.NopRecorder{}
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		country:    country,
		httpClient: httpClient,
		recorder:   recorder,
		tracer:     otel.Tracer(tracerName),
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// CurrentConditions fetches current weather for a location.
func (c *Client) CurrentConditions(ctx context.Context, q weather.Query) (*weather.CurrentConditions, error) {
	var current weather.CurrentConditions
	if err := c.get(ctx, "current", currentPath, q, &current); err != nil {
		return nil, err
	}
	return &current, nil
}

// Forecast fetches the 5 day / 3 hour forecast for a location.
func (c *Client) Forecast(ctx context.Context, q weather.Query) (*weather.Forecast, error) {
	var fc weather.Forecast
	if err := c.get(ctx, "forecast", forecastPath, q, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

// RequestURL returns the request target for path and q. Both endpoints share
// the same query parameters.
func (c *Client) RequestURL(path string, q weather.Query) (string, error) {
	params := url.Values{}

	switch q.Location.Kind {
	case weather.LocationPostalCode:
		params.Set("zip", q.Location.PostalCode+","+c.country)
	case weather.LocationCoordinates:
		params.Set("lat", weather.FormatCoordinate(q.Location.Lat))
		params.Set("lon", weather.FormatCoordinate(q.Location.Lon))
	default:
		return "", weather.ErrNoLocation
	}

	units := q.Units
	if !units.Valid() {
		units = weather.DefaultUnits
	}

	params.Set("appid", c.apiKey)
	params.Set("units", string(units))

	return c.baseURL + path + "?" + params.Encode(), nil
}

func (c *Client) get(ctx context.Context, operation, path string, q weather.Query, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "openweathermap."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("weather.location", q.Location.String()),
			attribute.String("weather.units", string(q.Units)),
		),
	)
	start := time.Now()
	defer func() {
		c.recorder.RecordRequest(ProviderName, operation, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	target, err := c.RequestURL(path, q)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The query string carries the API key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = c.baseURL + path
		}
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug().
			Str("operation", operation).
			Int("status", resp.StatusCode).
			Msg("provider returned non-success status")
		return fmt.Errorf("%w: unexpected status code: %d", weather.ErrResponseNotOK, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", weather.ErrResponseNotOK, err)
	}

	return nil
}
