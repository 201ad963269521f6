// Package polyline implements the encoded polyline format used by Google Maps
// and OpenRouteService, plus a few helpers for walking decoded paths.
// Format reference: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"errors"
	"math"
)

// ErrMalformed is returned when an encoded polyline ends in the middle of a value
// or contains bytes outside the encoding alphabet.
var ErrMalformed = errors.New("polyline: malformed input")

const precision = 1e5

// Coordinate is a decoded path vertex.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Decode turns an encoded polyline into its vertices.
func Decode(encoded string) ([]Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	coords := make([]Coordinate, 0, len(encoded)/4)
	var lat, lon int
	pos := 0

	for pos < len(encoded) {
		dLat, next, err := readValue(encoded, pos)
		if err != nil {
			return nil, err
		}
		dLon, next, err := readValue(encoded, next)
		if err != nil {
			return nil, err
		}
		pos = next

		lat += dLat
		lon += dLon
		coords = append(coords, Coordinate{
			Lat: float64(lat) / precision,
			Lon: float64(lon) / precision,
		})
	}

	return coords, nil
}

// readValue reads one zig-zag encoded varint starting at pos.
func readValue(s string, pos int) (int, int, error) {
	var result, shift int
	for {
		if pos >= len(s) {
			return 0, pos, ErrMalformed
		}
		chunk := int(s[pos]) - 63
		if chunk < 0 || chunk > 0x3f {
			return 0, pos, ErrMalformed
		}
		pos++
		result |= (chunk & 0x1f) << shift
		shift += 5
		if chunk < 0x20 {
			break
		}
	}

	if result&1 == 1 {
		return ^(result >> 1), pos, nil
	}
	return result >> 1, pos, nil
}

// Encode is the inverse of Decode, rounding to five decimal places.
func Encode(coords []Coordinate) string {
	if len(coords) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(coords)*6)
	var prevLat, prevLon int
	for _, c := range coords {
		lat := int(math.Round(c.Lat * precision))
		lon := int(math.Round(c.Lon * precision))
		buf = appendValue(buf, lat-prevLat)
		buf = appendValue(buf, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return string(buf)
}

func appendValue(buf []byte, v int) []byte {
	u := v << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		buf = append(buf, byte((u&0x1f)|0x20)+63)
		u >>= 5
	}
	return append(buf, byte(u)+63)
}

// Stride returns the indices 0, n, 2n, ... of a path of the given length.
// A non-positive n is treated as 1.
func Stride(length, n int) []int {
	if length <= 0 {
		return nil
	}
	if n <= 0 {
		n = 1
	}
	idx := make([]int, 0, (length+n-1)/n)
	for i := 0; i < length; i += n {
		idx = append(idx, i)
	}
	return idx
}

// Length is the great-circle length of the path in meters.
func Length(coords []Coordinate) float64 {
	var total float64
	for i := 1; i < len(coords); i++ {
		total += Haversine(coords[i-1], coords[i])
	}
	return total
}

const earthRadiusMeters = 6371000

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Coordinate) float64 {
	toRad := math.Pi / 180
	dLat := (b.Lat - a.Lat) * toRad
	dLon := (b.Lon - a.Lon) * toRad

	s1 := math.Sin(dLat / 2)
	s2 := math.Sin(dLon / 2)
	h := s1*s1 + math.Cos(a.Lat*toRad)*math.Cos(b.Lat*toRad)*s2*s2
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
