// Package geolocation provides one-shot position lookups for the session
// coordinator.
package geolocation

import (
	"context"
	"errors"

	"github.com/zipcast/zipcast/internal/weather"
)

// ErrUnsupported is returned when the platform has no geolocation capability.
var ErrUnsupported = errors.New("geolocation is not supported")

// Position is a device position reported by a Locator.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Location converts the position into a coordinates selector.
func (p Position) Location() weather.Location {
	return weather.CoordinatesLocation(p.Latitude, p.Longitude)
}

// Locator performs a single position read. Every call yields exactly one
// outcome: a position or an error describing why none is available.
type Locator interface {
	Locate(ctx context.Context) (Position, error)
}

// LocatorFunc adapts a function to the Locator interface.
type LocatorFunc func(ctx context.Context) (Position, error)

// Locate implements Locator.
func (f LocatorFunc) Locate(ctx context.Context) (Position, error) {
	return f(ctx)
}

// Static always reports the same position.
type Static Position

// Locate implements Locator.
func (s Static) Locate(context.Context) (Position, error) {
	p := Position(s)
	if err := weather.ValidateCoordinates(p.Latitude, p.Longitude); err != nil {
		return Position{}, err
	}
	return p, nil
}

// Reported replays an outcome that the client obtained on its own device,
// either a position or the platform's failure message.
type Reported struct {
	Position *Position
	Message  string
}

// reportedError carries a platform diagnostic verbatim.
type reportedError string

func (e reportedError) Error() string { return string(e) }

// Locate implements Locator.
func (r Reported) Locate(context.Context) (Position, error) {
	if r.Position == nil {
		msg := r.Message
		if msg == "" {
			msg = "position unavailable"
		}
		return Position{}, reportedError(msg)
	}
	if err := weather.ValidateCoordinates(r.Position.Latitude, r.Position.Longitude); err != nil {
		return Position{}, err
	}
	return *r.Position, nil
}
