// Package googlemaps implements routing.Provider and routing.Geocoder on top
// of the Google Maps Directions and Geocoding web services.
package googlemaps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/evroute/evroute/internal/provider/resilience"
	"github.com/evroute/evroute/internal/routing"
	"github.com/evroute/evroute/pkg/polyline"
)

const (
	// ProviderName identifies this provider in logs, metrics and the registry.
	ProviderName = "google-maps"

	DefaultBaseURL = "https://maps.googleapis.com"
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

	// HTTPClient defaults to a resilience.Client named after the provider.
	HTTPClient HTTPDoer
	Timeout    time.Duration
	Registry   *resilience.Registry

	// Language is passed through for distance and duration texts. Empty uses the account default.
	Language string

	Logger zerolog.Logger
}

// Client talks to the Google Maps web services.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
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
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		language:   cfg.Language,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns ProviderName.
func (c *Client) Name() string {
	return ProviderName
}

// GetDirections requests a driving route. Waypoints are sent as stopovers in
// order, so the response has len(Waypoints)+1 legs.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	q := url.Values{}
	q.Set("origin", req.Origin.String())
	q.Set("destination", req.Destination.String())
	q.Set("mode", "driving")
	if len(req.Waypoints) > 0 {
		parts := make([]string, len(req.Waypoints))
		for i, wp := range req.Waypoints {
			parts[i] = wp.String()
		}
		q.Set("waypoints", strings.Join(parts, "|"))
	}

	var resp directionsResponse
	if err := c.get(ctx, "/maps/api/directions/json", q, &resp); err != nil {
		return nil, err
	}

	if resp.Status != statusOK {
		return nil, directionsError(resp.Status, resp.ErrorMessage)
	}
	if len(resp.Routes) == 0 {
		return nil, directionsError(statusZeroResults, "")
	}

	r := resp.Routes[0]
	path, err := polyline.Decode(r.OverviewPolyline.Points)
	if err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_GEOMETRY",
			Message:  "could not decode overview polyline",
			Err:      fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err),
		}
	}

	geometry := make([]routing.Coordinate, len(path))
	for i, p := range path {
		geometry[i] = routing.Coordinate{Lat: p.Lat, Lon: p.Lon}
	}
	legs := make([]routing.Leg, len(r.Legs))
	for i, l := range r.Legs {
		legs[i] = routing.Leg{
			DistanceMeters:  l.Distance.Value,
			DistanceText:    l.Distance.Text,
			DurationSeconds: l.Duration.Value,
			DurationText:    l.Duration.Text,
		}
	}

	c.logger.Debug().
		Int("legs", len(legs)).
		Int("path_points", len(geometry)).
		Msg("received directions from Google")

	return &routing.DirectionsResponse{
		Geometry:        geometry,
		EncodedPolyline: r.OverviewPolyline.Points,
		Legs:            legs,
		Provider:        ProviderName,
		FetchedAt:       time.Now(),
	}, nil
}

// Geocode resolves an address to its first match.
func (c *Client) Geocode(ctx context.Context, address string) (routing.Coordinate, error) {
	q := url.Values{}
	q.Set("address", address)

	var resp geocodeResponse
	if err := c.get(ctx, "/maps/api/geocode/json", q, &resp); err != nil {
		return routing.Coordinate{}, err
	}

	if resp.Status == statusOK && len(resp.Results) == 0 {
		resp.Status = statusZeroResults
	}
	if resp.Status != statusOK {
		return routing.Coordinate{}, geocodeError(address, resp.Status, resp.ErrorMessage)
	}

	loc := resp.Results[0].Geometry.Location
	return routing.Coordinate{Lat: loc.Lat, Lon: loc.Lng}, nil
}

// get performs a GET against path and decodes the JSON body into out.
// The web services report most failures in a status field with HTTP 200, so
// only transport and non-200 failures are handled here.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	q.Set("key", c.apiKey)
	if c.language != "" {
		q.Set("language", c.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("google maps request failed")
		return &routing.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach maps provider",
			Err:      routing.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		e := &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  fmt.Sprintf("maps provider returned status %d", resp.StatusCode),
			Err:      routing.ErrProviderUnavailable,
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			e.Err = routing.ErrRateLimitExceeded
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			e.Err = routing.ErrInvalidRequest
		}
		return e
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
