package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Coordinate is a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate reports whether both components are finite and in range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return fmt.Errorf("%w: not a finite number", ErrInvalidCoordinate)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidCoordinate, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

// String renders the coordinate as "lat,lng".
func (c Coordinate) String() string {
	return formatDegrees(c.Lat) + "," + formatDegrees(c.Lng)
}

// ParseCoordinate parses "lat,lng" as produced by String.
func ParseCoordinate(s string) (Coordinate, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return Coordinate{}, fmt.Errorf("%w: expected \"lat,lng\", got %q", ErrInvalidCoordinate, s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: latitude %q", ErrInvalidCoordinate, latStr)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: longitude %q", ErrInvalidCoordinate, lngStr)
	}
	c := Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// earthRadiusKm is the mean Earth radius used by Distance.
const earthRadiusKm = 6371.0

// Distance returns the great-circle distance between a and b in kilometres
// using the haversine formula.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Cache key helpers. See the package documentation for the key layout.

// ForwardKey returns the cache key for a forward geocode of query.
func ForwardKey(query string) string {
	return "forward:" + query
}

// ReverseKey returns the cache key for a reverse geocode of c.
func ReverseKey(c Coordinate) string {
	return "reverse:" + formatDegrees(c.Lat) + "_" + formatDegrees(c.Lng)
}

// RouteKey returns the cache key for a route from start to end.
func RouteKey(start, end Coordinate) string {
	return "route:" + start.String() + "_" + end.String()
}

// formatDegrees renders a degree value with 6 decimal places, trimming
// trailing zeros so 2.35 and 2.350000 produce the same text.
func formatDegrees(v float64) string {
	s := strconv.FormatFloat(v, 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}
