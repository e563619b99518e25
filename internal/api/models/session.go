package models

import "github.com/zipcast/zipcast/internal/weather"

// CreateSessionRequest is the body of POST /v1/sessions. The body is optional.
type CreateSessionRequest struct {
	Units string `json:"units" validate:"omitempty,oneof=imperial metric"`
}

// PostalCodeRequest is the body of PUT /v1/sessions/{sessionId}/postal-code.
// Incomplete codes are accepted and stored without fetching.
type PostalCodeRequest struct {
	PostalCode string `json:"postalCode" validate:"max=5"`
}

// PositionRequest is the body of POST /v1/sessions/{sessionId}/position. It
// carries the outcome of a geolocation read performed on the client device.
type PositionRequest struct {
	// Supported is false when the device has no geolocation capability.
	Supported *bool `json:"supported"`

	// Latitude and Longitude are set together when a position was obtained.
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`

	// Error is the device's failure message when no position was obtained.
	Error string `json:"error" validate:"max=256"`
}

// UnitsRequest is the body of PUT /v1/sessions/{sessionId}/units.
type UnitsRequest struct {
	Units string `json:"units" validate:"required,oneof=imperial metric"`
}

// Session is the read model of a live session.
type Session struct {
	ID         string            `json:"id"`
	CreatedAt  Timestamp         `json:"createdAt"`
	PostalCode string            `json:"postalCode"`
	Location   *weather.Location `json:"location,omitempty"`
	Units      string            `json:"units"`
	Loading    bool              `json:"loading"`
	Error      *string           `json:"error"`
	Sequence   uint64            `json:"sequence"`
	UpdatedAt  *Timestamp        `json:"updatedAt,omitempty"`

	// Current is the provider's current conditions, passed through unchanged.
	Current *weather.CurrentConditions `json:"current"`

	// Display holds values derived from Current for rendering.
	Display *Display `json:"display,omitempty"`

	// Daily holds one representative forecast sample per day.
	Daily []DailySummary `json:"daily"`
}

// Display holds presentation values derived from the current conditions in
// the units the results were fetched with.
type Display struct {
	Units            string `json:"units"`
	TemperatureLabel string `json:"temperatureLabel"`
	SpeedLabel       string `json:"speedLabel"`
	Visibility       string `json:"visibility"`
	Description      string `json:"description,omitempty"`
	IconURL          string `json:"iconUrl,omitempty"`
	Sunrise          string `json:"sunrise"`
	Sunset           string `json:"sunset"`
	Sky              string `json:"sky"`
	Night            bool   `json:"night"`
}

// DailySummary is one day of the aggregated forecast.
type DailySummary struct {
	Date    string                 `json:"date"`
	IconURL string                 `json:"iconUrl,omitempty"`
	Sample  weather.ForecastSample `json:"sample"`
}
