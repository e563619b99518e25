package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zipcast/zipcast/internal/api/middleware"
	"github.com/zipcast/zipcast/internal/api/models"
	"github.com/zipcast/zipcast/internal/api/response"
	"github.com/zipcast/zipcast/internal/forecast"
	"github.com/zipcast/zipcast/internal/geolocation"
	"github.com/zipcast/zipcast/internal/session"
	"github.com/zipcast/zipcast/internal/weather"
)

// SessionHandler handles the weather session endpoints.
type SessionHandler struct {
	manager *session.Manager
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(manager *session.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// CreateSession handles POST /v1/sessions.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	units := weather.DefaultUnits
	if req.Units != "" {
		units = weather.UnitSystem(req.Units)
	}

	s := h.manager.Create(units)
	response.Created(w, r, "/v1/sessions/"+s.ID, toSessionView(s, s.Snapshot()))
}

// GetSession handles GET /v1/sessions/{sessionId}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, toSessionView(s, s.Snapshot()))
}

// DeleteSession handles DELETE /v1/sessions/{sessionId}.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(chi.URLParam(r, middleware.SessionIDParam)); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			response.NotFound(w, r, "session")
			return
		}
		response.InternalError(w, r, "internal server error")
		return
	}
	response.NoContent(w, r)
}

// SetPostalCode handles PUT /v1/sessions/{sessionId}/postal-code. The call
// returns once the fetch it triggered, if any, has completed.
func (h *SessionHandler) SetPostalCode(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req models.PostalCodeRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	snap := s.SetPostalCode(r.Context(), req.PostalCode)
	response.JSON(w, r, http.StatusOK, toSessionView(s, snap))
}

// ReportPosition handles POST /v1/sessions/{sessionId}/position. The body is
// the outcome of a geolocation read on the client device.
func (h *SessionHandler) ReportPosition(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req models.PositionRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	if (req.Latitude == nil) != (req.Longitude == nil) {
		response.BadRequest(w, r, "validation failed", []models.FieldError{{
			Field:   "longitude",
			Message: "latitude and longitude must be sent together",
			Code:    "REQUIRED_WITH",
		}})
		return
	}

	var locator geolocation.Locator
	switch {
	case req.Supported != nil && !*req.Supported:
		// No capability: leave the locator nil.
	case req.Latitude != nil:
		locator = geolocation.Reported{Position: &geolocation.Position{
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
		}}
	default:
		locator = geolocation.Reported{Message: req.Error}
	}

	snap := s.LocateWith(r.Context(), locator)
	response.JSON(w, r, http.StatusOK, toSessionView(s, snap))
}

// SetUnits handles PUT /v1/sessions/{sessionId}/units.
func (h *SessionHandler) SetUnits(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req models.UnitsRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	snap, err := s.SetUnits(r.Context(), weather.UnitSystem(req.Units))
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	response.JSON(w, r, http.StatusOK, toSessionView(s, snap))
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, err := h.manager.Get(chi.URLParam(r, middleware.SessionIDParam))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			response.NotFound(w, r, "session")
			return nil, false
		}
		response.InternalError(w, r, "internal server error")
		return nil, false
	}
	return s, true
}

// toSessionView converts a snapshot to its API representation. Display
// values follow the units the results were fetched in.
func toSessionView(s *session.Session, snap session.Snapshot) models.Session {
	view := models.Session{
		ID:         s.ID,
		CreatedAt:  models.Timestamp(s.CreatedAt),
		PostalCode: snap.PostalCode,
		Units:      string(snap.Units),
		Loading:    snap.Loading,
		Sequence:   snap.Sequence,
		UpdatedAt:  models.TimestampPtr(snap.UpdatedAt),
		Current:    snap.Current,
		Daily:      toDaily(snap.Daily),
	}
	if !snap.Location.IsZero() {
		loc := snap.Location
		view.Location = &loc
	}
	if snap.Error != "" {
		msg := snap.Error
		view.Error = &msg
	}
	if snap.Current != nil {
		view.Display = toDisplay(snap.Current, snap.ResultUnits)
	}
	return view
}

func toDisplay(c *weather.CurrentConditions, units weather.UnitSystem) *models.Display {
	// Sun events are shown in the observed city's zone.
	zone := time.FixedZone("", c.Timezone)

	d := &models.Display{
		Units:            string(units),
		TemperatureLabel: units.TemperatureLabel(),
		SpeedLabel:       units.SpeedLabel(),
		Visibility:       units.FormatVisibility(c.Visibility),
		Sunrise:          weather.FormatClock(c.Sys.Sunrise, zone),
		Sunset:           weather.FormatClock(c.Sys.Sunset, zone),
		Sky:              string(weather.SkyFor(c)),
		Night:            c.IsNight(),
	}
	if cond, ok := c.PrimaryCondition(); ok {
		d.Description = cond.Description
		d.IconURL = weather.IconURL(cond.Icon)
	}
	return d
}

func toDaily(summaries []forecast.DailySummary) []models.DailySummary {
	out := make([]models.DailySummary, 0, len(summaries))
	for _, ds := range summaries {
		day := models.DailySummary{
			Date:   ds.Date.Format(time.DateOnly),
			Sample: ds.Sample,
		}
		if len(ds.Sample.Weather) > 0 {
			day.IconURL = weather.IconURL(ds.Sample.Weather[0].Icon)
		}
		out = append(out, day)
	}
	return out
}
