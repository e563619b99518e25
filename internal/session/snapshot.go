package session

import (
	"time"

	"github.com/zipcast/zipcast/internal/forecast"
	"github.com/zipcast/zipcast/internal/weather"
)

// Snapshot is a read-only copy of a session's state. The result values are
// shared with the coordinator and must not be modified.
type Snapshot struct {
	// PostalCode is the pending postal code input, complete or not.
	PostalCode string

	// Location is the active selector.
	Location weather.Location

	// Units is the unit system used for the next request.
	Units weather.UnitSystem

	// Loading is true while a geolocation read or a fetch pair is outstanding.
	Loading bool

	// Error is the last error message, empty when the last outcome succeeded.
	Error string

	// Current and Forecast are the results of the last successful pair.
	Current  *weather.CurrentConditions
	Forecast []weather.ForecastSample

	// Daily is Forecast reduced to one representative sample per day.
	Daily []forecast.DailySummary

	// ResultLocation and ResultUnits describe the query that produced the
	// stored results.
	ResultLocation weather.Location
	ResultUnits    weather.UnitSystem

	// Sequence is the number of the pair whose outcome was applied last.
	Sequence uint64

	// UpdatedAt is when the results were last replaced.
	UpdatedAt time.Time
}

// HasResults reports whether a successful pair has been applied.
func (s Snapshot) HasResults() bool {
	return s.Current != nil
}
