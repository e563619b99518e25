// Package forecast reduces provider forecast samples to daily summaries.
package forecast

import (
	"time"

	"github.com/zipcast/zipcast/internal/weather"
)

// DefaultMaxDays is the number of daily summaries produced by default.
const DefaultMaxDays = 5

// representativeHour is the local hour a daily summary should be closest to.
const representativeHour = 12

// DailySummary is the forecast sample chosen to represent one calendar day.
type DailySummary struct {
	// Date is local midnight of the represented day.
	Date   time.Time              `json:"date"`
	Sample weather.ForecastSample `json:"sample"`
}

// AggregatorConfig holds configuration for the aggregator.
type AggregatorConfig struct {
	// Location is the time zone calendar days are computed in.
	// Default: time.Local
	Location *time.Location

	// MaxDays bounds the number of summaries.
	// Default: DefaultMaxDays
	MaxDays int
}

// Aggregator picks one sample per calendar day, the one nearest to noon.
type Aggregator struct {
	loc     *time.Location
	maxDays int
}

// NewAggregator creates a new Aggregator.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	maxDays := cfg.MaxDays
	if maxDays <= 0 {
		maxDays = DefaultMaxDays
	}
	return &Aggregator{loc: loc, maxDays: maxDays}
}

// Location returns the time zone used for calendar days.
func (a *Aggregator) Location() *time.Location {
	return a.loc
}

type dateKey struct {
	year  int
	month time.Month
	day   int
}

type pick struct {
	date     time.Time
	sample   weather.ForecastSample
	distance int
}

// Daily reduces samples to at most MaxDays summaries. Days appear in the order
// they are first encountered in samples, which is not necessarily
// chronological when samples are unsorted. Within a day the first sample with
// the smallest distance to noon wins. A nil slice yields an empty result.
func (a *Aggregator) Daily(samples []weather.ForecastSample) []DailySummary {
	order := make([]dateKey, 0, a.maxDays)
	picks := make(map[dateKey]*pick)

	for _, s := range samples {
		t := s.Time().In(a.loc)
		y, m, d := t.Date()
		key := dateKey{year: y, month: m, day: d}
		dist := hourDistance(t.Hour())

		p, seen := picks[key]
		if !seen {
			picks[key] = &pick{
				date:     time.Date(y, m, d, 0, 0, 0, 0, a.loc),
				sample:   s,
				distance: dist,
			}
			order = append(order, key)
			continue
		}
		if dist < p.distance {
			p.sample = s
			p.distance = dist
		}
	}

	if len(order) > a.maxDays {
		order = order[:a.maxDays]
	}

	summaries := make([]DailySummary, 0, len(order))
	for _, key := range order {
		p := picks[key]
		summaries = append(summaries, DailySummary{Date: p.date, Sample: p.sample})
	}
	return summaries
}

// Samples returns only the chosen samples of summaries.
func Samples(summaries []DailySummary) []weather.ForecastSample {
	out := make([]weather.ForecastSample, len(summaries))
	for i, s := range summaries {
		out[i] = s.Sample
	}
	return out
}

func hourDistance(hour int) int {
	d := hour - representativeHour
	if d < 0 {
		return -d
	}
	return d
}
