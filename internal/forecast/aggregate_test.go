package forecast_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipcast/zipcast/internal/forecast"
	"github.com/zipcast/zipcast/internal/weather"
)

func sampleAt(t time.Time, temp float64) weather.ForecastSample {
	return weather.ForecastSample{
		Dt:   t.Unix(),
		Main: weather.MainBlock{Temp: temp},
		Weather: []weather.Condition{
			{ID: 800, Main: "Clear", Description: "clear sky", Icon: "01d"},
		},
	}
}

func utcAggregator() *forecast.Aggregator {
	return forecast.NewAggregator(forecast.AggregatorConfig{Location: time.UTC})
}

func TestAggregator_Daily_Empty(t *testing.T) {
	agg := utcAggregator()

	assert.Empty(t, agg.Daily(nil))
	assert.NotNil(t, agg.Daily(nil))
	assert.Empty(t, agg.Daily([]weather.ForecastSample{}))
}

func TestAggregator_Daily_PicksClosestToNoon(t *testing.T) {
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	samples := []weather.ForecastSample{
		sampleAt(day.Add(14*time.Hour), 14),
		sampleAt(day.Add(11*time.Hour), 11),
	}

	got := utcAggregator().Daily(samples)
	require.Len(t, got, 1)
	assert.Equal(t, 11.0, got[0].Sample.Main.Temp)
	assert.Equal(t, day, got[0].Date)
}

func TestAggregator_Daily_TieKeepsFirst(t *testing.T) {
	day := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("earlier hour first", func(t *testing.T) {
		samples := []weather.ForecastSample{
			sampleAt(day.Add(10*time.Hour), 10),
			sampleAt(day.Add(14*time.Hour), 14),
		}
		got := utcAggregator().Daily(samples)
		require.Len(t, got, 1)
		assert.Equal(t, 10.0, got[0].Sample.Main.Temp)
	})

	t.Run("later hour first", func(t *testing.T) {
		samples := []weather.ForecastSample{
			sampleAt(day.Add(14*time.Hour), 14),
			sampleAt(day.Add(10*time.Hour), 10),
		}
		got := utcAggregator().Daily(samples)
		require.Len(t, got, 1)
		assert.Equal(t, 14.0, got[0].Sample.Main.Temp)
	})
}

func TestAggregator_Daily_TruncatesToFiveDays(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	var samples []weather.ForecastSample
	for d := 0; d < 7; d++ {
		for h := 0; h < 24; h += 3 {
			samples = append(samples, sampleAt(start.AddDate(0, 0, d).Add(time.Duration(h)*time.Hour), float64(d)))
		}
	}

	got := utcAggregator().Daily(samples)
	require.Len(t, got, 5)
	for i, s := range got {
		assert.Equal(t, start.AddDate(0, 0, i), s.Date)
		assert.Equal(t, float64(i), s.Sample.Main.Temp)
		assert.Equal(t, 12, s.Sample.Time().UTC().Hour())
	}
}

func TestAggregator_Daily_FirstEncounteredOrder(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	// Dates in the order 7, 1, 2, 3, 4, 5, 6: the seventh day is kept and the
	// sixth is dropped because it was encountered last.
	samples := []weather.ForecastSample{sampleAt(start.AddDate(0, 0, 6), 6)}
	for d := 0; d < 6; d++ {
		samples = append(samples, sampleAt(start.AddDate(0, 0, d), float64(d)))
	}

	got := utcAggregator().Daily(samples)
	require.Len(t, got, 5)

	temps := make([]float64, 0, len(got))
	for _, s := range forecast.Samples(got) {
		temps = append(temps, s.Main.Temp)
	}
	assert.Equal(t, []float64{6, 0, 1, 2, 3}, temps)
}

func TestAggregator_Daily_FewerThanMaxDays(t *testing.T) {
	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	samples := []weather.ForecastSample{
		sampleAt(start, 1),
		sampleAt(start.AddDate(0, 0, 1), 2),
	}

	got := utcAggregator().Daily(samples)
	assert.Len(t, got, 2)
}

func TestAggregator_Daily_UsesConfiguredTimeZone(t *testing.T) {
	// 2024-06-02 02:00 UTC is still 2024-06-01 in New York.
	ny := time.FixedZone("EDT", -4*60*60)
	samples := []weather.ForecastSample{
		sampleAt(time.Date(2024, 6, 1, 16, 0, 0, 0, time.UTC), 1), // 12:00 EDT
		sampleAt(time.Date(2024, 6, 2, 2, 0, 0, 0, time.UTC), 2),  // 22:00 EDT
	}

	inUTC := utcAggregator().Daily(samples)
	assert.Len(t, inUTC, 2)

	inNY := forecast.NewAggregator(forecast.AggregatorConfig{Location: ny}).Daily(samples)
	require.Len(t, inNY, 1)
	assert.Equal(t, 1.0, inNY[0].Sample.Main.Temp)
	assert.Equal(t, 1, inNY[0].Date.Day())
}

func TestAggregator_Daily_Deterministic(t *testing.T) {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var samples []weather.ForecastSample
	for h := 0; h < 72; h += 3 {
		samples = append(samples, sampleAt(start.Add(time.Duration(h)*time.Hour), float64(h)))
	}

	agg := utcAggregator()
	assert.Equal(t, agg.Daily(samples), agg.Daily(samples))
}

func TestNewAggregator_Defaults(t *testing.T) {
	agg := forecast.NewAggregator(forecast.AggregatorConfig{})
	assert.Equal(t, time.Local, agg.Location())

	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	var samples []weather.ForecastSample
	for d := 0; d < 10; d++ {
		samples = append(samples, sampleAt(start.AddDate(0, 0, d), float64(d)))
	}
	assert.Len(t, agg.Daily(samples), forecast.DefaultMaxDays)

	three := forecast.NewAggregator(forecast.AggregatorConfig{MaxDays: 3})
	assert.Len(t, three.Daily(samples), 3)
}
