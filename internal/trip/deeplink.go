package trip

import (
	"net/url"
	"strings"

	"github.com/evroute/evroute/internal/charger"
)

// DefaultMapsBaseURL is the Google Maps directions URL.
const DefaultMapsBaseURL = "https://www.google.com/maps/dir/"

// DeepLink builds a maps directions URL:
//
//	<base>?api=1&origin=<addr>&destination=<addr>[&waypoints=lat,lng|lat,lng]
//
// Waypoints follow stop order and are omitted when there are no stops.
func DeepLink(baseURL, origin, destination string, stops []charger.Candidate) string {
	if baseURL == "" {
		baseURL = DefaultMapsBaseURL
	}

	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteString("?api=1&origin=")
	b.WriteString(url.QueryEscape(origin))
	b.WriteString("&destination=")
	b.WriteString(url.QueryEscape(destination))

	if len(stops) > 0 {
		points := make([]string, len(stops))
		for i, s := range stops {
			points[i] = s.Location.String()
		}
		b.WriteString("&waypoints=")
		b.WriteString(url.QueryEscape(strings.Join(points, "|")))
	}
	return b.String()
}
