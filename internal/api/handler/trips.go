// Package handler provides HTTP handlers for the trip planning API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/evroute/evroute/internal/api/middleware"
	"github.com/evroute/evroute/internal/api/models"
	"github.com/evroute/evroute/internal/api/response"
	"github.com/evroute/evroute/internal/auth"
	"github.com/evroute/evroute/internal/places"
	"github.com/evroute/evroute/internal/provider/resilience"
	"github.com/evroute/evroute/internal/routing"
	"github.com/evroute/evroute/internal/trip"
)

// providerRetryAfter is the Retry-After hint, in seconds, sent when a map
// provider is unavailable. It matches the circuit breaker open timeout.
const providerRetryAfter = 30

// TripHandler handles trip session endpoints.
type TripHandler struct {
	planner *trip.Planner
	tokens  *auth.JWTService
	logger  zerolog.Logger
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(planner *trip.Planner, tokens *auth.JWTService, logger zerolog.Logger) *TripHandler {
	return &TripHandler{
		planner: planner,
		tokens:  tokens,
		logger:  logger,
	}
}

// CreateTrip handles POST /v1/trips - start a planning session.
func (h *TripHandler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	snap, err := h.planner.CreateSession(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	token, expiresAt, err := h.tokens.GenerateSessionToken(snap.ID)
	if err != nil {
		// The session is unusable without a token.
		_ = h.planner.DeleteSession(r.Context(), snap.ID)
		h.writeError(w, r, err)
		return
	}

	response.Created(w, r, "/v1/trips/"+snap.ID, models.CreateTripResponse{
		Trip:      snap,
		Token:     token,
		ExpiresAt: models.Timestamp(expiresAt),
	})
}

// GetTrip handles GET /v1/trips/{tripId}.
func (h *TripHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	snap, err := h.planner.Session(r.Context(), tripID(r))
	h.writeSnapshot(w, r, snap, err)
}

// DeleteTrip handles DELETE /v1/trips/{tripId}.
func (h *TripHandler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	if err := h.planner.DeleteSession(r.Context(), tripID(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// PlanRoute handles PUT /v1/trips/{tripId}/route - geocode, route, discover
// chargers and annotate them.
func (h *TripHandler) PlanRoute(w http.ResponseWriter, r *http.Request) {
	var input models.PlanRouteRequest
	if err := response.Decode(w, r, &input, false); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "origin and destination are required", errs)
		return
	}

	snap, err := h.planner.PlanTrip(r.Context(), tripID(r), input.Origin, input.Destination)
	h.writeSnapshot(w, r, snap, err)
}

// SetVehicle handles PUT /v1/trips/{tripId}/vehicle.
func (h *TripHandler) SetVehicle(w http.ResponseWriter, r *http.Request) {
	var input models.VehicleRequest
	if err := response.Decode(w, r, &input, false); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid vehicle", errs)
		return
	}

	snap, err := h.planner.SetVehicle(r.Context(), tripID(r), input.Profile())
	h.writeSnapshot(w, r, snap, err)
}

// Optimize handles POST /v1/trips/{tripId}/optimize.
func (h *TripHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	snap, err := h.planner.Optimize(r.Context(), tripID(r))
	h.writeSnapshot(w, r, snap, err)
}

// SelectCandidate handles PUT /v1/trips/{tripId}/selection.
func (h *TripHandler) SelectCandidate(w http.ResponseWriter, r *http.Request) {
	var input models.SelectionRequest
	if err := response.Decode(w, r, &input, true); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	snap, err := h.planner.SelectCandidate(r.Context(), tripID(r), input.CandidateID)
	h.writeSnapshot(w, r, snap, err)
}

// AddStop handles POST /v1/trips/{tripId}/stops. Adding a stop twice is a
// no-op reported with added=false and status 200.
func (h *TripHandler) AddStop(w http.ResponseWriter, r *http.Request) {
	var input models.AddStopRequest
	if err := response.Decode(w, r, &input, false); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "candidateId is required", errs)
		return
	}

	snap, added, err := h.planner.AddStop(r.Context(), tripID(r), input.CandidateID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	response.JSON(w, r, status, models.AddStopResponse{Trip: snap, Added: added})
}

// ApplyOptimized handles POST /v1/trips/{tripId}/stops:apply-optimized.
func (h *TripHandler) ApplyOptimized(w http.ResponseWriter, r *http.Request) {
	snap, err := h.planner.ApplyOptimized(r.Context(), tripID(r))
	h.writeSnapshot(w, r, snap, err)
}

// Finalize handles POST /v1/trips/{tripId}/finalize.
func (h *TripHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var input models.FinalizeRequest
	if err := response.Decode(w, r, &input, true); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	if errs := input.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "invalid finalize mode", errs)
		return
	}

	snap, err := h.planner.Finalize(r.Context(), tripID(r), trip.FinalizeMode(input.Mode))
	h.writeSnapshot(w, r, snap, err)
}

func (h *TripHandler) writeSnapshot(w http.ResponseWriter, r *http.Request, snap trip.Snapshot, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, snap)
}

// writeError maps planner and provider errors to problem responses.
// Provider outages are checked first: a geocode that failed because the
// provider is down is a 503, not a bad address.
func (h *TripHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case providerUnavailable(err):
		h.logger.Warn().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("map provider unavailable")
		response.ServiceUnavailable(w, r, "map provider is temporarily unavailable", providerRetryAfter)
	case errors.Is(err, trip.ErrSessionNotFound):
		response.NotFound(w, r, "trip session not found or expired")
	case errors.Is(err, trip.ErrCandidateNotFound):
		response.NotFound(w, r, "charging candidate not found in this trip")
	case errors.Is(err, trip.ErrGeocodeFailed),
		errors.Is(err, trip.ErrRouteFailed):
		response.Unprocessable(w, r, err.Error())
	case errors.Is(err, trip.ErrInvalidVehicle),
		errors.Is(err, trip.ErrInvalidFinalizeMode):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, trip.ErrVehicleRequired),
		errors.Is(err, trip.ErrTripNotPlanned),
		errors.Is(err, trip.ErrNotOptimized),
		errors.Is(err, trip.ErrSessionFinalized),
		errors.Is(err, trip.ErrSuperseded):
		response.Conflict(w, r, err.Error())
	default:
		h.logger.Error().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("trip_id", tripID(r)).
			Msg("trip request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

func providerUnavailable(err error) bool {
	return errors.Is(err, routing.ErrProviderUnavailable) ||
		errors.Is(err, routing.ErrRateLimitExceeded) ||
		errors.Is(err, places.ErrProviderUnavailable) ||
		errors.Is(err, resilience.ErrCircuitOpen) ||
		errors.Is(err, resilience.ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}
