package geolocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zipcast/zipcast/internal/provider/resilience"
)

const (
	// IPProviderName identifies the IP geolocation provider.
	IPProviderName = "ip-api"

	// DefaultIPEndpoint is the IP geolocation lookup URL.
	DefaultIPEndpoint = "http://ip-api.com/json/"
)

// ErrLookupFailed is returned when the IP geolocation endpoint cannot
// resolve a position.
var ErrLookupFailed = errors.New("ip geolocation lookup failed")

// IPLocatorConfig holds configuration for the IP based locator.
type IPLocatorConfig struct {
	// Endpoint is the lookup URL (optional, defaults to ip-api.com).
	Endpoint string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *resilience.Client

	// Logger for locator operations.
	Logger zerolog.Logger
}

// IPLocator approximates the caller's position from its public IP address.
type IPLocator struct {
	endpoint   string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

var _ Locator = (*IPLocator)(nil)

// NewIPLocator creates a new IP based locator.
func NewIPLocator(cfg IPLocatorConfig) *IPLocator {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultIPEndpoint
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(IPProviderName))
	}

	return &IPLocator{
		endpoint:   endpoint,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

type ipResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	City    string  `json:"city"`
}

// Locate implements Locator.
func (l *IPLocator) Locate(ctx context.Context) (Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint, http.NoBody)
	if err != nil {
		return Position{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return Position{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Position{}, fmt.Errorf("%w: unexpected status code: %d", ErrLookupFailed, resp.StatusCode)
	}

	var body ipResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Position{}, fmt.Errorf("%w: decoding response: %w", ErrLookupFailed, err)
	}

	if body.Status != "success" {
		msg := body.Message
		if msg == "" {
			msg = body.Status
		}
		return Position{}, fmt.Errorf("%w: %s", ErrLookupFailed, msg)
	}

	l.logger.Debug().
		Str("city", body.City).
		Float64("lat", body.Lat).
		Float64("lon", body.Lon).
		Msg("resolved position from ip")

	return Position{Latitude: body.Lat, Longitude: body.Lon}, nil
}
