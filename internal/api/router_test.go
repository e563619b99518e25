package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipcast/zipcast/internal/api"
	"github.com/zipcast/zipcast/internal/api/models"
	"github.com/zipcast/zipcast/internal/forecast"
	"github.com/zipcast/zipcast/internal/provider/resilience"
	"github.com/zipcast/zipcast/internal/session"
	"github.com/zipcast/zipcast/internal/weather/openweathermap"
)

const currentJSON = `{
	"coord": {"lat": 34.09, "lon": -118.41},
	"weather": [{"id": 800, "main": "Clear", "description": "clear sky", "icon": "01d"}],
	"main": {"temp": %s, "feels_like": 74, "temp_min": 70, "temp_max": 80, "pressure": 1012, "humidity": 40},
	"visibility": 16090,
	"wind": {"speed": 5.75, "deg": 270},
	"sys": {"country": "US", "sunrise": 1717244400, "sunset": 1717295400},
	"dt": 1717270000,
	"timezone": -25200,
	"name": "%s"
}`

// 2024-06-01 09:00, 12:00, 15:00 and 2024-06-02 12:00 UTC.
const forecastJSON = `{
	"cnt": 4,
	"list": [
		{"dt": 1717232400, "main": {"temp": 60}, "weather": [{"id": 801, "icon": "02d"}], "wind": {"speed": 3}, "pop": 0},
		{"dt": 1717243200, "main": {"temp": 65}, "weather": [{"id": 800, "icon": "01d"}], "wind": {"speed": 3}, "pop": 0},
		{"dt": 1717254000, "main": {"temp": 70}, "weather": [{"id": 500, "icon": "10d"}], "wind": {"speed": 3}, "pop": 0.4},
		{"dt": 1717329600, "main": {"temp": 68}, "weather": [{"id": 802, "icon": "03d"}], "wind": {"speed": 4}, "pop": 0.1}
	],
	"city": {"name": "Beverly Hills", "country": "US", "timezone": -25200}
}`

type testEnv struct {
	router   http.Handler
	registry *resilience.Registry
	calls    atomic.Int32
	queries  chan string
}

// newTestEnv wires the real provider client to a fake OpenWeatherMap server.
// Postal code 00000 makes the provider fail.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{queries: make(chan string, 64)}

	owm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.calls.Add(1)
		q := r.URL.Query()
		env.queries <- r.URL.Path + "?" + q.Encode()

		if strings.HasPrefix(q.Get("zip"), "00000") {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch r.URL.Path {
		case "/weather":
			temp, name := "75.2", "Beverly Hills"
			if q.Get("units") == "metric" {
				temp = "24.0"
			}
			if q.Has("lat") {
				name = "Somewhere"
			}
			fmt.Fprintf(w, currentJSON, temp, name)
		case "/forecast":
			_, _ = io.WriteString(w, forecastJSON)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(owm.Close)

	env.registry = resilience.NewRegistry()
	httpCfg := resilience.DefaultClientConfig(openweathermap.ProviderName)
	httpCfg.RequestsPerSecond = 0
	httpCfg.Registry = env.registry

	provider := openweathermap.NewClient(openweathermap.ClientConfig{
		APIKey:     "test-key",
		BaseURL:    owm.URL,
		HTTPClient: resilience.NewClient(httpCfg),
		Logger:     zerolog.Nop(),
	})

	manager := session.NewManager(session.ManagerConfig{
		Provider:   provider,
		Aggregator: forecast.NewAggregator(forecast.AggregatorConfig{Location: time.UTC}),
		Logger:     zerolog.Nop(),
	})

	env.router = api.NewRouter(api.RouterConfig{
		Version:   "test",
		BuildTime: "2024-01-01T00:00:00Z",
		Logger:    zerolog.New(io.Discard),
		Sessions:  manager,
		Registry:  env.registry,
	})
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) models.Session {
	t.Helper()
	var s models.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s), rec.Body.String())
	return s
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func (env *testEnv) createSession(t *testing.T, body string) models.Session {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/v1/sessions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeSession(t, rec)
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/ops/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/ops/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t)
	env.createSession(t, "")
	env.createSession(t, "")

	rec := env.do(t, http.MethodGet, "/v1/ops/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.Equal(t, 2, status.ActiveSessions)
	require.Len(t, status.Providers, 1)
	assert.Equal(t, openweathermap.ProviderName, status.Providers[0].Provider)
	assert.Equal(t, "closed", status.Providers[0].CircuitState)
}

func TestRouter_CreateSession(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/v1/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)

	s := decodeSession(t, rec)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "/v1/sessions/"+s.ID, rec.Header().Get("Location"))
	assert.Equal(t, "imperial", s.Units)
	assert.False(t, s.Loading)
	assert.Nil(t, s.Error)
	assert.Nil(t, s.Current)
	assert.Nil(t, s.Location)
	assert.Empty(t, s.Daily)
	assert.Equal(t, int32(0), env.calls.Load())
}

func TestRouter_CreateSession_WithUnits(t *testing.T) {
	env := newTestEnv(t)

	s := env.createSession(t, `{"units":"metric"}`)
	assert.Equal(t, "metric", s.Units)
}

func TestRouter_CreateSession_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
		wantField   string
	}{
		{"unknown units", `{"units":"kelvin"}`, "application/json", http.StatusBadRequest, "units"},
		{"malformed json", `{"units":`, "application/json", http.StatusBadRequest, ""},
		{"unknown field", `{"unit":"metric"}`, "application/json", http.StatusBadRequest, ""},
		{"wrong content type", `units=metric`, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			p := decodeProblem(t, rec)
			if tt.wantField != "" {
				require.Len(t, p.Errors, 1)
				assert.Equal(t, tt.wantField, p.Errors[0].Field)
				assert.Equal(t, "ONEOF", p.Errors[0].Code)
			}
		})
	}
}

func TestRouter_UnknownSession(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/v1/sessions/missing", ""},
		{http.MethodDelete, "/v1/sessions/missing", ""},
		{http.MethodPut, "/v1/sessions/missing/postal-code", `{"postalCode":"90210"}`},
		{http.MethodPost, "/v1/sessions/missing/position", `{"latitude":1,"longitude":2}`},
		{http.MethodPut, "/v1/sessions/missing/units", `{"units":"metric"}`},
	} {
		rec := env.do(t, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusNotFound, rec.Code, "%s %s", tc.method, tc.path)
		p := decodeProblem(t, rec)
		assert.Equal(t, models.ProblemTypeNotFound, p.Type)
	}
}

func TestRouter_PostalCode_IncompleteDoesNotFetch(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "")

	for _, code := range []string{"9", "90", "902", "9021"} {
		rec := env.do(t, http.MethodPut, "/v1/sessions/"+s.ID+"/postal-code", `{"postalCode":"`+code+`"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		view := decodeSession(t, rec)
		assert.Equal(t, code, view.PostalCode)
		require.NotNil(t, view.Location)
		assert.Equal(t, code, view.Location.PostalCode)
		assert.Nil(t, view.Current)
	}

	assert.Equal(t, int32(0), env.calls.Load())
}

func TestRouter_PostalCode_FetchesWeather(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "")

	rec := env.do(t, http.MethodPut, "/v1/sessions/"+s.ID+"/postal-code", `{"postalCode":"90210"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeSession(t, rec)
	assert.False(t, view.Loading)
	assert.Nil(t, view.Error)
	assert.Equal(t, uint64(1), view.Sequence)
	assert.NotNil(t, view.UpdatedAt)

	require.NotNil(t, view.Current)
	assert.Equal(t, "Beverly Hills", view.Current.Name)
	assert.InDelta(t, 75.2, view.Current.Main.Temp, 0.001)

	require.NotNil(t, view.Display)
	assert.Equal(t, "°F", view.Display.TemperatureLabel)
	assert.Equal(t, "mph", view.Display.SpeedLabel)
	assert.Equal(t, "10.0 mi", view.Display.Visibility)
	assert.Equal(t, "05:20", view.Display.Sunrise)
	assert.Equal(t, "19:30", view.Display.Sunset)
	assert.Equal(t, "clear", view.Display.Sky)
	assert.False(t, view.Display.Night)
	assert.Equal(t, "clear sky", view.Display.Description)
	assert.Equal(t, "https://openweathermap.org/img/wn/01d@2x.png", view.Display.IconURL)

	require.Len(t, view.Daily, 2)
	assert.Equal(t, "2024-06-01", view.Daily[0].Date)
	assert.Equal(t, int64(1717243200), view.Daily[0].Sample.Dt)
	assert.Equal(t, "https://openweathermap.org/img/wn/01d@2x.png", view.Daily[0].IconURL)
	assert.Equal(t, "2024-06-02", view.Daily[1].Date)

	assert.Equal(t, int32(2), env.calls.Load())
	got := []string{<-env.queries, <-env.queries}
	assert.ElementsMatch(t, []string{
		"/weather?appid=test-key&units=imperial&zip=90210%2CUS",
		"/forecast?appid=test-key&units=imperial&zip=90210%2CUS",
	}, got)

	// The same code again is a no-op.
	rec = env.do(t, http.MethodPut, "/v1/sessions/"+s.ID+"/postal-code", `{"postalCode":"90210"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(2), env.calls.Load())
}

func TestRouter_PostalCode_TooLong(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "")

	rec := env.do(t, http.MethodPut, "/v1/sessions/"+s.ID+"/postal-code", `{"postalCode":"902101"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	p := decodeProblem(t, rec)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "postalCode", p.Errors[0].Field)
}

func TestRouter_ProviderFailureKeepsResults(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "")

	rec := env.do(t, http.MethodPut, "/v1/sessions/"+s.ID+"/postal-code", `{"postalCode":"90210"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/sessions/"+s.ID+"/postal-code", `{"postalCode":"00000"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeSession(t, rec)
	require.NotNil(t, view.Error)
	assert.Equal(t, "Network response was not ok", *view.Error)
	require.NotNil(t, view.Current)
	assert.Equal(t, "Beverly Hills", view.Current.Name)
	assert.Equal(t, "00000", view.PostalCode)
}

func TestRouter_SetUnits_RefetchesSameLocation(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "")

	rec := env.do(t, http.MethodPut, "/v1/sessions/"+s.ID+"/postal-code", `{"postalCode":"90210"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	<-env.queries
	<-env.queries

	rec = env.do(t, http.MethodPut, "/v1/sessions/"+s.ID+"/units", `{"units":"metric"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeSession(t, rec)
	assert.Equal(t, "metric", view.Units)
	require.NotNil(t, view.Display)
	assert.Equal(t, "°C", view.Display.TemperatureLabel)
	assert.Equal(t, "m/s", view.Display.SpeedLabel)
	assert.Equal(t, "16.1 km", view.Display.Visibility)
	assert.InDelta(t, 24.0, view.Current.Main.Temp, 0.001)

	got := []string{<-env.queries, <-env.queries}
	assert.ElementsMatch(t, []string{
		"/weather?appid=test-key&units=metric&zip=90210%2CUS",
		"/forecast?appid=test-key&units=metric&zip=90210%2CUS",
	}, got)
}

func TestRouter_SetUnits_WithoutLocationDoesNotFetch(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "")

	rec := env.do(t, http.MethodPut, "/v1/sessions/"+s.ID+"/units", `{"units":"metric"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metric", decodeSession(t, rec).Units)
	assert.Equal(t, int32(0), env.calls.Load())

	rec = env.do(t, http.MethodPut, "/v1/sessions/"+s.ID+"/units", `{"units":"rankine"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ReportPosition(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "")

	rec := env.do(t, http.MethodPut, "/v1/sessions/"+s.ID+"/postal-code", `{"postalCode":"902"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+s.ID+"/position", `{"latitude":40.7128,"longitude":-74.006}`)
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeSession(t, rec)
	assert.Nil(t, view.Error)
	assert.Empty(t, view.PostalCode)
	require.NotNil(t, view.Location)
	assert.InDelta(t, 40.7128, view.Location.Lat, 1e-9)
	require.NotNil(t, view.Current)
	assert.Equal(t, "Somewhere", view.Current.Name)

	got := []string{<-env.queries, <-env.queries}
	assert.ElementsMatch(t, []string{
		"/weather?appid=test-key&lat=40.7128&lon=-74.006&units=imperial",
		"/forecast?appid=test-key&lat=40.7128&lon=-74.006&units=imperial",
	}, got)
}

func TestRouter_ReportPosition_Failures(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantError string
	}{
		{
			name:      "unsupported",
			body:      `{"supported":false}`,
			wantError: session.MessageGeolocationUnsupported,
		},
		{
			name:      "denied",
			body:      `{"error":"User denied Geolocation"}`,
			wantError: "Unable to retrieve your location. User denied Geolocation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			s := env.createSession(t, "")

			rec := env.do(t, http.MethodPost, "/v1/sessions/"+s.ID+"/position", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)

			view := decodeSession(t, rec)
			require.NotNil(t, view.Error)
			assert.Equal(t, tt.wantError, *view.Error)
			assert.False(t, view.Loading)
			assert.Equal(t, int32(0), env.calls.Load())
		})
	}
}

func TestRouter_ReportPosition_Invalid(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "")

	for _, body := range []string{
		`{"latitude":40.7}`,
		`{"latitude":91,"longitude":0}`,
		`{"latitude":0,"longitude":-181}`,
	} {
		rec := env.do(t, http.MethodPost, "/v1/sessions/"+s.ID+"/position", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, int32(0), env.calls.Load())
}

func TestRouter_DeleteSession(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, "")

	rec := env.do(t, http.MethodDelete, "/v1/sessions/"+s.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+s.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_GetSession(t *testing.T) {
	env := newTestEnv(t)
	s := env.createSession(t, `{"units":"metric"}`)

	rec := env.do(t, http.MethodGet, "/v1/sessions/"+s.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	view := decodeSession(t, rec)
	assert.Equal(t, s.ID, view.ID)
	assert.Equal(t, "metric", view.Units)
}

func TestRouter_SecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/ops/health", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
