// Package googleplaces implements places.Searcher with the Google Places
// Nearby Search web service.
package googleplaces

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/evroute/evroute/internal/places"
	"github.com/evroute/evroute/internal/provider/resilience"
	"github.com/evroute/evroute/internal/routing"
)

const (
	ProviderName   = "google-places"
	DefaultBaseURL = "https://maps.googleapis.com"
	DefaultTimeout = 10 * time.Second

	// DefaultRequestsPerSecond keeps a discovery fan-out under the per-second quota.
	DefaultRequestsPerSecond = 10
)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the client.
type ClientConfig struct {
	APIKey  string
	BaseURL string

	// HTTPClient defaults to a throttled resilience.Client.
	HTTPClient HTTPDoer
	Timeout    time.Duration
	Registry   *resilience.Registry

	// RequestsPerSecond caps outbound searches when HTTPClient is nil.
	RequestsPerSecond float64

	Logger zerolog.Logger
}

// Client calls the Nearby Search endpoint.
type Client struct {
	apiKey     string
	baseURL    string
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
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Timeout = cfg.Timeout
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		rc.RequestsPerSecond = cfg.RequestsPerSecond
		rc.Burst = int(cfg.RequestsPerSecond)
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns ProviderName.
func (c *Client) Name() string {
	return ProviderName
}

type nearbyResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Results      []struct {
		PlaceID  string   `json:"place_id"`
		Name     string   `json:"name"`
		Vicinity string   `json:"vicinity"`
		Rating   *float64 `json:"rating,omitempty"`
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// NearbySearch returns the first page of results. ZERO_RESULTS yields an
// empty slice; any other non-OK status is an error.
func (c *Client) NearbySearch(ctx context.Context, req places.NearbyRequest) ([]places.Place, error) {
	q := url.Values{}
	q.Set("location", req.Center.String())
	q.Set("radius", strconv.Itoa(req.RadiusMeters))
	if req.Keyword != "" {
		q.Set("keyword", req.Keyword)
	}
	q.Set("key", c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/maps/api/place/nearbysearch/json?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &places.Error{
			Provider: ProviderName,
			Status:   "REQUEST_FAILED",
			Message:  "failed to reach places provider",
			Err:      places.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		sentinel := places.ErrSearchFailed
		if resp.StatusCode >= http.StatusInternalServerError {
			sentinel = places.ErrProviderUnavailable
		}
		return nil, &places.Error{
			Provider: ProviderName,
			Status:   fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  fmt.Sprintf("places provider returned status %d", resp.StatusCode),
			Err:      sentinel,
		}
	}

	var parsed nearbyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	switch parsed.Status {
	case "OK":
	case "ZERO_RESULTS":
		return []places.Place{}, nil
	default:
		msg := "nearby search returned " + parsed.Status
		if parsed.ErrorMessage != "" {
			msg += " (" + parsed.ErrorMessage + ")"
		}
		return nil, &places.Error{Provider: ProviderName, Status: parsed.Status, Message: msg, Err: places.ErrSearchFailed}
	}

	out := make([]places.Place, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, places.Place{
			ID:       r.PlaceID,
			Name:     r.Name,
			Address:  r.Vicinity,
			Location: routing.Coordinate{Lat: r.Geometry.Location.Lat, Lon: r.Geometry.Location.Lng},
			Rating:   r.Rating,
		})
	}

	c.logger.Debug().
		Str("center", req.Center.String()).
		Int("results", len(out)).
		Msg("nearby search completed")

	return out, nil
}
