// Package session coordinates weather requests for a single viewer and keeps
// the live sessions of the API.
package session

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/zipcast/zipcast/internal/forecast"
	"github.com/zipcast/zipcast/internal/geolocation"
	"github.com/zipcast/zipcast/internal/weather"
)

// User facing error messages.
const (
	MessageGeolocationUnsupported = "Geolocation is not supported by your browser."
	MessageGeolocationFailed      = "Unable to retrieve your location. "
)

const tracerName = "github.com/zipcast/zipcast/internal/session"

// CoordinatorConfig holds configuration for a Coordinator.
type CoordinatorConfig struct {
	// Provider serves current conditions and forecasts (required).
	Provider weather.Provider

	// Locator reads the device position. Nil means the platform has no
	// geolocation capability.
	Locator geolocation.Locator

	// Aggregator reduces forecasts to daily summaries (optional).
	Aggregator *forecast.Aggregator

	// Units is the initial unit system (optional, defaults to imperial).
	Units weather.UnitSystem

	// Logger for coordinator operations.
	Logger zerolog.Logger

	// Now returns the current time (optional).
	Now func() time.Time
}

// Coordinator owns the state of one session and issues the paired current
// and forecast requests whenever its inputs change. All methods are safe for
// concurrent use. Operations that trigger a fetch block until it completes.
type Coordinator struct {
	provider   weather.Provider
	locator    geolocation.Locator
	aggregator *forecast.Aggregator
	logger     zerolog.Logger
	tracer     trace.Tracer
	now        func() time.Time

	mu         sync.Mutex
	postalCode string
	selector   weather.Location
	units      weather.UnitSystem
	pending    int
	lastError  string
	current    *weather.CurrentConditions
	forecast   []weather.ForecastSample
	result     weather.Query
	issued     uint64
	applied    uint64
	updatedAt  time.Time
}

// NewCoordinator creates a new Coordinator with empty state.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	units := cfg.Units
	if !units.Valid() {
		units = weather.DefaultUnits
	}

	agg := cfg.Aggregator
	if agg == nil {
		agg = forecast.NewAggregator(forecast.AggregatorConfig{})
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Coordinator{
		provider:   cfg.Provider,
		locator:    cfg.Locator,
		aggregator: agg,
		logger:     cfg.Logger,
		tracer:     otel.Tracer(tracerName),
		now:        now,
		units:      units,
	}
}

// SetPostalCode stores the postal code input. A fetch is issued only when the
// stored value changes to a complete postal code.
func (c *Coordinator) SetPostalCode(ctx context.Context, code string) Snapshot {
	c.mu.Lock()
	if code == c.postalCode {
		c.mu.Unlock()
		return c.Snapshot()
	}

	c.postalCode = code
	c.selector = weather.PostalCodeLocation(code)
	if !weather.IsCompletePostalCode(code) {
		c.mu.Unlock()
		return c.Snapshot()
	}

	q := weather.Query{Location: c.selector, Units: c.units}
	seq := c.beginPairLocked()
	c.mu.Unlock()

	c.fetchPair(ctx, seq, q, false)
	return c.Snapshot()
}

// LocateCurrentPosition reads the device position with the configured
// locator and fetches weather for it.
func (c *Coordinator) LocateCurrentPosition(ctx context.Context) Snapshot {
	return c.LocateWith(ctx, c.locator)
}

// LocateWith is LocateCurrentPosition with an explicit locator, used when the
// position is read on the client's device.
func (c *Coordinator) LocateWith(ctx context.Context, locator geolocation.Locator) Snapshot {
	if locator == nil {
		c.fail(MessageGeolocationUnsupported)
		return c.Snapshot()
	}

	c.mu.Lock()
	c.pending++
	c.mu.Unlock()

	// A position read cannot be abandoned once requested.
	pos, err := locator.Locate(context.WithoutCancel(ctx))

	c.mu.Lock()
	c.pending--
	if err != nil {
		if errors.Is(err, geolocation.ErrUnsupported) {
			c.lastError = MessageGeolocationUnsupported
		} else {
			c.lastError = MessageGeolocationFailed + err.Error()
		}
		c.mu.Unlock()

		c.logger.Debug().Err(err).Msg("geolocation failed")
		return c.Snapshot()
	}

	// The selector switches to coordinates only once the pair succeeds.
	q := weather.Query{Location: pos.Location(), Units: c.units}
	seq := c.beginPairLocked()
	c.mu.Unlock()

	c.fetchPair(ctx, seq, q, true)
	return c.Snapshot()
}

// SetUnits changes the unit system. If a location has been fetched
// successfully before, the pair is re-issued for that location.
func (c *Coordinator) SetUnits(ctx context.Context, units weather.UnitSystem) (Snapshot, error) {
	if !units.Valid() {
		return c.Snapshot(), weather.ErrInvalidUnits
	}

	c.mu.Lock()
	if units == c.units {
		c.mu.Unlock()
		return c.Snapshot(), nil
	}

	c.units = units
	if c.result.Location.IsZero() {
		c.mu.Unlock()
		return c.Snapshot(), nil
	}

	q := weather.Query{Location: c.result.Location, Units: units}
	seq := c.beginPairLocked()
	c.mu.Unlock()

	c.fetchPair(ctx, seq, q, false)
	return c.Snapshot(), nil
}

// Snapshot returns a read-only copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{
		PostalCode:     c.postalCode,
		Location:       c.selector,
		Units:          c.units,
		Loading:        c.pending > 0,
		Error:          c.lastError,
		Current:        c.current,
		Forecast:       c.forecast,
		ResultLocation: c.result.Location,
		ResultUnits:    c.result.Units,
		Sequence:       c.applied,
		UpdatedAt:      c.updatedAt,
	}
	c.mu.Unlock()

	s.Daily = c.aggregator.Daily(s.Forecast)
	return s
}

func (c *Coordinator) fail(msg string) {
	c.mu.Lock()
	c.lastError = msg
	c.mu.Unlock()
}

// beginPairLocked marks a new pair as in flight and returns its sequence
// number. c.mu must be held.
func (c *Coordinator) beginPairLocked() uint64 {
	c.issued++
	c.pending++
	c.lastError = ""
	return c.issued
}

// fetchPair issues the current and forecast requests concurrently, waits for
// both and applies the outcome unless a newer pair already has. A located
// pair replaces the selector with its coordinates when it succeeds.
func (c *Coordinator) fetchPair(ctx context.Context, seq uint64, q weather.Query, located bool) {
	ctx, span := c.tracer.Start(context.WithoutCancel(ctx), "session.fetchPair",
		trace.WithAttributes(
			attribute.Int64("session.sequence", int64(seq)),
			attribute.String("weather.location", q.Location.String()),
			attribute.String("weather.units", string(q.Units)),
		),
	)
	defer span.End()

	var (
		current       *weather.CurrentConditions
		fc            *weather.Forecast
		curErr, fcErr error
		g             errgroup.Group
	)
	g.Go(func() error {
		current, curErr = c.provider.CurrentConditions(ctx, q)
		return curErr
	})
	g.Go(func() error {
		fc, fcErr = c.provider.Forecast(ctx, q)
		return fcErr
	})

	var err error
	if g.Wait() != nil {
		err = pairError(curErr, fcErr)
	}

	if err != nil {
		span.SetStatus(codes.Error, failureMessage(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending--
	if seq < c.applied {
		c.logger.Debug().
			Uint64("sequence", seq).
			Uint64("applied", c.applied).
			Msg("discarding stale fetch result")
		span.SetAttributes(attribute.Bool("session.stale", true))
		return
	}
	c.applied = seq

	if err != nil {
		c.lastError = failureMessage(err)
		c.logger.Warn().
			Str("error", c.lastError).
			Str("location", q.Location.String()).
			Msg("weather fetch failed")
		return
	}

	c.current = current
	c.forecast = fc.Samples()
	c.result = q
	c.lastError = ""
	c.updatedAt = c.now()
	if located {
		c.selector = q.Location
		c.postalCode = ""
	}

	c.logger.Debug().
		Uint64("sequence", seq).
		Str("location", q.Location.String()).
		Str("units", string(q.Units)).
		Int("samples", len(c.forecast)).
		Msg("weather updated")
}

// pairError picks the error reported for a failed pair. A request that never
// got a response outranks one that got a non-ok status, whichever finished
// first.
func pairError(curErr, fcErr error) error {
	for _, err := range []error{curErr, fcErr} {
		if err != nil && !errors.Is(err, weather.ErrResponseNotOK) {
			return err
		}
	}
	if curErr != nil {
		return curErr
	}
	return fcErr
}

// failureMessage converts a pair failure into the message shown to the user.
// Transport errors lose their request URL since it carries the credential.
func failureMessage(err error) string {
	if errors.Is(err, weather.ErrResponseNotOK) {
		return weather.ErrResponseNotOK.Error()
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
