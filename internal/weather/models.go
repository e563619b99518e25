package weather

import (
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"
)

// Weather errors.
var (
	// ErrResponseNotOK is returned when the provider answers with a non-2xx
	// status or a body that cannot be decoded.
	ErrResponseNotOK = errors.New("Network response was not ok") //nolint:staticcheck // user-facing message

	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidUnits       = errors.New("invalid unit system")
	ErrNoLocation         = errors.New("no location selected")
)

// PostalCodeLength is the number of characters a postal code needs before it
// is used to query the provider.
const PostalCodeLength = 5

// DefaultCountry is appended to postal code queries.
const DefaultCountry = "US"

// LocationKind identifies the active variant of a Location.
type LocationKind string

const (
	LocationNone        LocationKind = ""
	LocationPostalCode  LocationKind = "postalCode"
	LocationCoordinates LocationKind = "coordinates"
)

// Location selects the place weather is fetched for. Exactly one of the
// postal code or the coordinates is meaningful, depending on Kind.
type Location struct {
	Kind       LocationKind `json:"kind"`
	PostalCode string       `json:"postalCode,omitempty"`
	Lat        float64      `json:"lat,omitempty"`
	Lon        float64      `json:"lon,omitempty"`
}

// PostalCodeLocation returns a postal code selector.
func PostalCodeLocation(code string) Location {
	return Location{Kind: LocationPostalCode, PostalCode: code}
}

// CoordinatesLocation returns a coordinates selector.
func CoordinatesLocation(lat, lon float64) Location {
	return Location{Kind: LocationCoordinates, Lat: lat, Lon: lon}
}

// IsZero reports whether no location has been selected.
func (l Location) IsZero() bool {
	return l.Kind == LocationNone
}

// Actionable reports whether the selector is complete enough to query.
func (l Location) Actionable() bool {
	switch l.Kind {
	case LocationPostalCode:
		return IsCompletePostalCode(l.PostalCode)
	case LocationCoordinates:
		return ValidateCoordinates(l.Lat, l.Lon) == nil
	default:
		return false
	}
}

// String renders the selector for logs.
func (l Location) String() string {
	switch l.Kind {
	case LocationPostalCode:
		return "zip:" + l.PostalCode
	case LocationCoordinates:
		return fmt.Sprintf("coord:%.4f,%.4f", l.Lat, l.Lon)
	default:
		return "none"
	}
}

// IsCompletePostalCode reports whether code has exactly PostalCodeLength characters.
func IsCompletePostalCode(code string) bool {
	return utf8.RuneCountInString(code) == PostalCodeLength
}

// ValidateCoordinates checks if coordinates are valid.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// UnitSystem is the measurement convention used for queries and display.
type UnitSystem string

const (
	Imperial UnitSystem = "imperial"
	Metric   UnitSystem = "metric"
)

// DefaultUnits is the unit system new sessions start with.
const DefaultUnits = Imperial

// ParseUnitSystem parses "imperial" or "metric".
func ParseUnitSystem(s string) (UnitSystem, error) {
	switch UnitSystem(s) {
	case Imperial, Metric:
		return UnitSystem(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidUnits, s)
	}
}

// Valid reports whether u is a known unit system.
func (u UnitSystem) Valid() bool {
	return u == Imperial || u == Metric
}

// Query is the input of a provider call.
type Query struct {
	Location Location
	Units    UnitSystem
}

// Coord is a provider coordinate pair.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Condition is one entry of the provider's weather condition list.
type Condition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// MainBlock holds the primary measurements of a sample.
type MainBlock struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  float64 `json:"pressure"`
	Humidity  float64 `json:"humidity"`
}

// Wind holds wind speed (mph or m/s depending on units) and direction in degrees.
type Wind struct {
	Speed float64 `json:"speed"`
	Deg   float64 `json:"deg"`
	Gust  float64 `json:"gust,omitempty"`
}

// Sys holds country and sun events as epoch seconds.
type Sys struct {
	Country string `json:"country"`
	Sunrise int64  `json:"sunrise"`
	Sunset  int64  `json:"sunset"`
}

// CurrentConditions is the provider's current weather record, passed through
// unchanged.
type CurrentConditions struct {
	Coord      Coord       `json:"coord"`
	Weather    []Condition `json:"weather"`
	Main       MainBlock   `json:"main"`
	Visibility int         `json:"visibility"`
	Wind       Wind        `json:"wind"`
	Sys        Sys         `json:"sys"`
	Dt         int64       `json:"dt"`
	Timezone   int         `json:"timezone"`
	Name       string      `json:"name"`
}

// PrimaryCondition returns the first condition entry, if any.
func (c *CurrentConditions) PrimaryCondition() (Condition, bool) {
	if c == nil || len(c.Weather) == 0 {
		return Condition{}, false
	}
	return c.Weather[0], true
}

// IsNight reports whether the sample time falls outside sunrise..sunset.
func (c *CurrentConditions) IsNight() bool {
	return c.Dt > c.Sys.Sunset || c.Dt < c.Sys.Sunrise
}

// ForecastSample is one entry of the provider's forecast list.
type ForecastSample struct {
	Dt      int64       `json:"dt"`
	Main    MainBlock   `json:"main"`
	Weather []Condition `json:"weather"`
	Wind    Wind        `json:"wind"`
	Pop     float64     `json:"pop"`
	DtTxt   string      `json:"dt_txt,omitempty"`
}

// Time returns the sample time.
func (s ForecastSample) Time() time.Time {
	return time.Unix(s.Dt, 0)
}

// City describes the forecast location.
type City struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Coord    Coord  `json:"coord"`
	Country  string `json:"country"`
	Timezone int    `json:"timezone"`
	Sunrise  int64  `json:"sunrise"`
	Sunset   int64  `json:"sunset"`
}

// Forecast is the provider's 5 day / 3 hour forecast.
type Forecast struct {
	Cnt  int              `json:"cnt"`
	List []ForecastSample `json:"list"`
	City City             `json:"city"`
}

// Samples returns the forecast list, or nil for a nil forecast.
func (f *Forecast) Samples() []ForecastSample {
	if f == nil {
		return nil
	}
	return f.List
}

// FormatCoordinate renders a coordinate for a provider query.
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
