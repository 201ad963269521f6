package models

import (
	"strings"

	"github.com/evroute/evroute/internal/trip"
)

// Field error codes.
const (
	CodeRequired   = "REQUIRED"
	CodeOutOfRange = "OUT_OF_RANGE"
	CodeInvalid    = "INVALID"
)

// CreateTripResponse is returned when a session is created. Token must be
// sent as a bearer token on every request for this trip.
type CreateTripResponse struct {
	Trip      trip.Snapshot `json:"trip"`
	Token     string        `json:"token"`
	ExpiresAt Timestamp     `json:"expiresAt"`
}

// PlanRouteRequest sets the trip endpoints as free-form addresses.
type PlanRouteRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// Validate returns field errors, or nil when the request is usable.
func (r *PlanRouteRequest) Validate() []FieldError {
	r.Origin = strings.TrimSpace(r.Origin)
	r.Destination = strings.TrimSpace(r.Destination)

	var errs []FieldError
	if r.Origin == "" {
		errs = append(errs, FieldError{Field: "origin", Message: "is required", Code: CodeRequired})
	}
	if r.Destination == "" {
		errs = append(errs, FieldError{Field: "destination", Message: "is required", Code: CodeRequired})
	}
	return errs
}

// VehicleRequest selects the vehicle. RangeKm may be omitted for catalog
// models, in which case the catalog range is used.
type VehicleRequest struct {
	Brand   string  `json:"brand"`
	Model   string  `json:"model"`
	RangeKm float64 `json:"rangeKm"`
}

// Validate returns field errors, or nil when the request is usable.
func (r *VehicleRequest) Validate() []FieldError {
	var errs []FieldError
	if strings.TrimSpace(r.Brand) == "" {
		errs = append(errs, FieldError{Field: "brand", Message: "is required", Code: CodeRequired})
	}
	if strings.TrimSpace(r.Model) == "" {
		errs = append(errs, FieldError{Field: "model", Message: "is required", Code: CodeRequired})
	}
	if r.RangeKm < 0 {
		errs = append(errs, FieldError{Field: "rangeKm", Message: "must not be negative", Code: CodeOutOfRange})
	}
	return errs
}

// Profile converts the request to a vehicle profile.
func (r VehicleRequest) Profile() trip.VehicleProfile {
	return trip.VehicleProfile{
		Brand:   strings.TrimSpace(r.Brand),
		Model:   strings.TrimSpace(r.Model),
		RangeKm: r.RangeKm,
	}
}

// SelectionRequest selects a candidate for detail display. An empty
// CandidateID clears the selection.
type SelectionRequest struct {
	CandidateID string `json:"candidateId"`
}

// AddStopRequest appends a candidate to the stop ledger.
type AddStopRequest struct {
	CandidateID string `json:"candidateId"`
}

// Validate returns field errors, or nil when the request is usable.
func (r *AddStopRequest) Validate() []FieldError {
	if strings.TrimSpace(r.CandidateID) == "" {
		return []FieldError{{Field: "candidateId", Message: "is required", Code: CodeRequired}}
	}
	return nil
}

// AddStopResponse reports whether the ledger changed. Adding a stop that is
// already present is not an error.
type AddStopResponse struct {
	Trip  trip.Snapshot `json:"trip"`
	Added bool          `json:"added"`
}

// FinalizeRequest picks the finalize mode. An empty mode uses the server
// default.
type FinalizeRequest struct {
	Mode string `json:"mode"`
}

// Validate returns field errors, or nil when the request is usable.
func (r *FinalizeRequest) Validate() []FieldError {
	if r.Mode == "" || trip.FinalizeMode(r.Mode).Valid() {
		return nil
	}
	return []FieldError{{
		Field:   "mode",
		Message: "must be one of " + string(trip.FinalizeRecompute) + ", " + string(trip.FinalizeDeepLink),
		Code:    CodeInvalid,
	}}
}
