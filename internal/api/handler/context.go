package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evroute/evroute/internal/api/middleware"
)

// tripID returns the trip the request was authorized for, falling back to
// the route parameter when SessionAuth is not mounted.
func tripID(r *http.Request) string {
	if id := middleware.GetTripID(r.Context()); id != "" {
		return id
	}
	return chi.URLParam(r, middleware.TripIDParam)
}
