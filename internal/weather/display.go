package weather

import (
	"fmt"
	"time"
)

// IconBaseURL serves the provider's condition icons.
const IconBaseURL = "https://openweathermap.org/img/wn/"

// Meters per display unit of visibility.
const (
	metersPerMile      = 1609
	metersPerKilometer = 1000
)

// TemperatureLabel returns the temperature suffix for the unit system.
func (u UnitSystem) TemperatureLabel() string {
	if u == Imperial {
		return "°F"
	}
	return "°C"
}

// SpeedLabel returns the wind speed suffix for the unit system.
func (u UnitSystem) SpeedLabel() string {
	if u == Imperial {
		return "mph"
	}
	return "m/s"
}

// FormatVisibility converts a visibility in meters to miles or kilometers.
func (u UnitSystem) FormatVisibility(meters int) string {
	if u == Imperial {
		return fmt.Sprintf("%.1f mi", float64(meters)/metersPerMile)
	}
	return fmt.Sprintf("%.1f km", float64(meters)/metersPerKilometer)
}

// IconURL returns the 2x icon URL for a condition icon code.
func IconURL(icon string) string {
	if icon == "" {
		return ""
	}
	return IconBaseURL + icon + "@2x.png"
}

// FormatClock renders an epoch timestamp as HH:MM in loc.
func FormatClock(epoch int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(epoch, 0).In(loc).Format("15:04")
}

// Sky classifies current conditions for choosing a background.
type Sky string

const (
	SkyUnknown      Sky = "unknown"
	SkyNight        Sky = "night"
	SkyThunderstorm Sky = "thunderstorm"
	SkyRain         Sky = "rain"
	SkySnow         Sky = "snow"
	SkyAtmosphere   Sky = "atmosphere"
	SkyClear        Sky = "clear"
	SkyClouds       Sky = "clouds"
)

// SkyFor classifies current conditions. Night wins over the condition id.
func SkyFor(c *CurrentConditions) Sky {
	if c == nil {
		return SkyUnknown
	}
	cond, ok := c.PrimaryCondition()
	if !ok {
		return SkyUnknown
	}

	if c.IsNight() {
		return SkyNight
	}

	id := cond.ID
	switch {
	case id >= 200 && id < 300:
		return SkyThunderstorm
	case id >= 300 && id < 600:
		return SkyRain
	case id >= 600 && id < 700:
		return SkySnow
	case id >= 700 && id < 800:
		return SkyAtmosphere
	case id == 800:
		return SkyClear
	case id > 800:
		return SkyClouds
	default:
		return SkyUnknown
	}
}
