package googlemaps

import (
	"fmt"

	"github.com/evroute/evroute/internal/routing"
)

// Web service status values.
const (
	statusOK                     = "OK"
	statusZeroResults            = "ZERO_RESULTS"
	statusNotFound               = "NOT_FOUND"
	statusOverQueryLimit         = "OVER_QUERY_LIMIT"
	statusOverDailyLimit         = "OVER_DAILY_LIMIT"
	statusRequestDenied          = "REQUEST_DENIED"
	statusInvalidRequest         = "INVALID_REQUEST"
	statusMaxWaypointsExceeded   = "MAX_WAYPOINTS_EXCEEDED"
	statusMaxRouteLengthExceeded = "MAX_ROUTE_LENGTH_EXCEEDED"
)

type textValue struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Routes       []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Distance textValue `json:"distance"`
			Duration textValue `json:"duration"`
		} `json:"legs"`
	} `json:"routes"`
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// statusErr maps a non-OK status onto a routing sentinel.
func statusErr(status string, notFound error) error {
	switch status {
	case statusZeroResults, statusNotFound:
		return notFound
	case statusOverQueryLimit, statusOverDailyLimit:
		return routing.ErrRateLimitExceeded
	case statusRequestDenied, statusInvalidRequest, statusMaxWaypointsExceeded, statusMaxRouteLengthExceeded:
		return routing.ErrInvalidRequest
	default:
		return routing.ErrProviderUnavailable
	}
}

func directionsError(status, detail string) error {
	sentinel := statusErr(status, routing.ErrNoRouteFound)
	if status == statusNotFound {
		// An origin, destination or waypoint could not be geocoded.
		sentinel = routing.ErrAddressNotFound
	}
	msg := "Directions request failed due to " + status
	if detail != "" {
		msg += " (" + detail + ")"
	}
	return &routing.Error{Provider: ProviderName, Code: status, Message: msg, Err: sentinel}
}

func geocodeError(address, status, detail string) error {
	msg := fmt.Sprintf("Geocoding failed for %s: %s", address, status)
	if detail != "" {
		msg += " (" + detail + ")"
	}
	return &routing.Error{
		Provider: ProviderName,
		Code:     status,
		Message:  msg,
		Err:      statusErr(status, routing.ErrAddressNotFound),
	}
}
