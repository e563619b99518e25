package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SessionIDParam is the URL parameter holding a session id.
const SessionIDParam = "sessionId"

// routePattern returns the matched chi route pattern, falling back to the raw
// path for requests that did not go through a chi router. Call it after the
// next handler has run, when routing is complete.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// sessionID returns the session id URL parameter, if any.
func sessionID(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.URLParam(SessionIDParam)
	}
	return ""
}
