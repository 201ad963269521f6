// Package openrouteservice implements routing.Provider and routing.Geocoder
// against the OpenRouteService directions and Pelias geocoding APIs.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/evroute/evroute/internal/provider/resilience"
	"github.com/evroute/evroute/internal/routing"
	"github.com/evroute/evroute/pkg/polyline"
)

const (
	// ProviderName identifies this provider in logs, metrics and the registry.
	ProviderName = "openrouteservice"

	DefaultBaseURL = "https://api.openrouteservice.org"
	DefaultProfile = "driving-car"
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the client.
type ClientConfig struct {
	APIKey  string
	BaseURL string

	// Profile is the ORS routing profile. Defaults to driving-car.
	Profile string

	// HTTPClient defaults to a resilience.Client named after the provider.
	HTTPClient HTTPDoer
	Timeout    time.Duration
	Registry   *resilience.Registry

	Logger zerolog.Logger
}

// Client talks to OpenRouteService.
type Client struct {
	apiKey     string
	baseURL    string
	profile    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Profile == "" {
		cfg.Profile = DefaultProfile
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Timeout = cfg.Timeout
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		profile:    cfg.Profile,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns ProviderName.
func (c *Client) Name() string {
	return ProviderName
}

// GetDirections computes a route. ORS only routes between coordinates, so
// address locations are geocoded first.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	origin, err := c.resolve(ctx, req.Origin)
	if err != nil {
		return nil, err
	}
	destination, err := c.resolve(ctx, req.Destination)
	if err != nil {
		return nil, err
	}

	coords := make([][]float64, 0, len(req.Waypoints)+2)
	coords = append(coords, []float64{origin.Lon, origin.Lat})
	for _, wp := range req.Waypoints {
		coords = append(coords, []float64{wp.Lon, wp.Lat})
	}
	coords = append(coords, []float64{destination.Lon, destination.Lat})

	body, err := json.Marshal(directionsRequest{
		Coordinates:  coords,
		Instructions: true,
		Geometry:     true,
		Units:        "m",
		Language:     "en",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, c.profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)

	c.logger.Debug().
		Str("profile", c.profile).
		Int("points", len(coords)).
		Msg("requesting directions from ORS")

	respBody, status, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, mapError(status, respBody)
	}

	var parsed directionsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Routes) == 0 {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "response contained no routes",
			Err:      routing.ErrNoRouteFound,
		}
	}

	return toDirections(&parsed.Routes[0])
}

func toDirections(r *route) (*routing.DirectionsResponse, error) {
	path, err := polyline.Decode(r.Geometry)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_GEOMETRY",
			Message:  "could not decode route geometry",
			Err:      fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err),
		}
	}

	geometry := make([]routing.Coordinate, len(path))
	for i, p := range path {
		geometry[i] = routing.Coordinate{Lat: p.Lat, Lon: p.Lon}
	}

	segments := r.Segments
	if len(segments) == 0 {
		segments = []segment{{Distance: r.Summary.Distance, Duration: r.Summary.Duration}}
	}
	legs := make([]routing.Leg, len(segments))
	for i, s := range segments {
		m, sec := int(s.Distance+0.5), int(s.Duration+0.5)
		legs[i] = routing.Leg{
			DistanceMeters:  m,
			DistanceText:    routing.FormatDistance(m),
			DurationSeconds: sec,
			DurationText:    routing.FormatDuration(sec),
		}
	}

	return &routing.DirectionsResponse{
		Geometry:        geometry,
		EncodedPolyline: r.Geometry,
		Legs:            legs,
		Provider:        ProviderName,
		FetchedAt:       time.Now(),
	}, nil
}

func (c *Client) resolve(ctx context.Context, l routing.Location) (routing.Coordinate, error) {
	if l.Point != nil {
		if err := l.Point.Validate(); err != nil {
			return routing.Coordinate{}, &routing.Error{
				Provider: ProviderName,
				Code:     "INVALID_COORDINATES",
				Message:  "invalid coordinates",
				Err:      routing.ErrInvalidCoordinates,
			}
		}
		return *l.Point, nil
	}
	return c.Geocode(ctx, l.Address)
}

// Geocode resolves an address with the ORS search endpoint, taking the best match.
func (c *Client) Geocode(ctx context.Context, address string) (routing.Coordinate, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("text", address)
	q.Set("size", "1")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/geocode/search?"+q.Encode(), http.NoBody)
	if err != nil {
		return routing.Coordinate{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	respBody, status, err := c.do(httpReq)
	if err != nil {
		return routing.Coordinate{}, err
	}
	if status != http.StatusOK {
		return routing.Coordinate{}, mapError(status, respBody)
	}

	var parsed geocodeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return routing.Coordinate{}, fmt.Errorf("decoding geocode response: %w", err)
	}
	if len(parsed.Features) == 0 || len(parsed.Features[0].Geometry.Coordinates) != 2 {
		return routing.Coordinate{}, &routing.Error{
			Provider: ProviderName,
			Code:     "ZERO_RESULTS",
			Message:  fmt.Sprintf("Geocoding failed for %s: ZERO_RESULTS", address),
			Err:      routing.ErrAddressNotFound,
		}
	}

	lonLat := parsed.Features[0].Geometry.Coordinates
	return routing.Coordinate{Lat: lonLat[1], Lon: lonLat[0]}, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("url", req.URL.Path).Msg("ORS request failed")
		return nil, 0, &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      routing.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// mapError turns an ORS error status into a routing.Error.
func mapError(status int, body []byte) error {
	var parsed errorResponse
	_ = json.Unmarshal(body, &parsed)
	msg := parsed.Error.Message

	e := &routing.Error{Provider: ProviderName, Code: fmt.Sprintf("HTTP_%d", status), Message: msg}
	switch {
	case status == http.StatusTooManyRequests:
		e.Code, e.Err = "RATE_LIMIT", routing.ErrRateLimitExceeded
		if msg == "" {
			e.Message = "API rate limit exceeded"
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Code, e.Err = "FORBIDDEN", routing.ErrInvalidRequest
		if msg == "" {
			e.Message = "API access denied"
		}
	case status == http.StatusNotFound || parsed.Error.Code == errorCodeRouteNotFound:
		e.Code, e.Err = "NO_ROUTE", routing.ErrNoRouteFound
		if msg == "" {
			e.Message = "no route found"
		}
	case status == http.StatusBadRequest:
		e.Code, e.Err = "BAD_REQUEST", routing.ErrInvalidRequest
	case status >= http.StatusInternalServerError:
		e.Code, e.Err = fmt.Sprintf("SERVER_%d", status), routing.ErrProviderUnavailable
		e.Message = "routing provider is temporarily unavailable"
	default:
		e.Err = routing.ErrProviderUnavailable
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("routing provider returned status %d", status)
	}
	return e
}
