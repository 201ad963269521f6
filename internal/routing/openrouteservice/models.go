package openrouteservice

// directionsRequest is the body of POST /v2/directions/{profile}.
// Coordinates are [lon, lat] pairs in visiting order.
type directionsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Instructions bool        `json:"instructions"`
	Geometry     bool        `json:"geometry"`
	Units        string      `json:"units"`
	Language     string      `json:"language"`
}

type directionsResponse struct {
	Routes []route `json:"routes"`
}

type route struct {
	Summary  routeSummary `json:"summary"`
	Segments []segment    `json:"segments,omitempty"`
	Geometry string       `json:"geometry"`
}

type routeSummary struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

// segment covers the path between two consecutive request coordinates.
type segment struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			Label string `json:"label"`
		} `json:"properties"`
	} `json:"features"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ORS error code for an unroutable request.
const errorCodeRouteNotFound = 2009
