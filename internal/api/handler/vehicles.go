package handler

import (
	"net/http"

	"github.com/evroute/evroute/internal/api/response"
	"github.com/evroute/evroute/internal/trip"
)

// VehicleHandler serves the vehicle catalog.
type VehicleHandler struct {
	catalog *trip.Catalog
}

// NewVehicleHandler creates a new VehicleHandler. A nil catalog serves the
// embedded default.
func NewVehicleHandler(catalog *trip.Catalog) *VehicleHandler {
	if catalog == nil {
		catalog = trip.DefaultCatalog()
	}
	return &VehicleHandler{catalog: catalog}
}

// GetCatalog handles GET /v1/vehicles/catalog.
func (h *VehicleHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.catalog)
}
