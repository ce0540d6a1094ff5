package domain

import (
	"context"
	"encoding/json"
	"time"
)

// GeocodeResult is one candidate location returned by a place search or
// reverse lookup.
type GeocodeResult struct {
	Coordinate  Coordinate        `json:"coordinate"`
	DisplayName string            `json:"display_name"`
	PlaceID     string            `json:"place_id"`
	Importance  float64           `json:"importance"` // provider ranking, higher is more prominent
	Address     map[string]string `json:"address,omitempty"`
}

// IsZero reports whether r is the "no result" value.
func (r GeocodeResult) IsZero() bool {
	return r.PlaceID == "" && r.DisplayName == "" && r.Coordinate == (Coordinate{})
}

// LineString is a GeoJSON LineString. Positions are [lng, lat].
type LineString struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// RouteOption is one driving route between the requested waypoints.
type RouteOption struct {
	Distance float64    `json:"distance"` // metres
	Duration float64    `json:"duration"` // seconds
	Geometry LineString `json:"geometry"`
}

// Waypoint is a requested point snapped to the road network.
type Waypoint struct {
	Name     string     `json:"name"`
	Location Coordinate `json:"location"`
}

// Route is the routing provider's answer for a start/end pair.
type Route struct {
	Code      string          `json:"code"`
	Routes    []RouteOption   `json:"routes"`
	Waypoints []Waypoint      `json:"waypoints,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"` // verbatim upstream payload, legs and weights included
}

// Found reports whether the provider returned at least one route.
func (r Route) Found() bool {
	return len(r.Routes) > 0
}

// Best returns the provider's preferred route option.
func (r Route) Best() (RouteOption, bool) {
	if len(r.Routes) == 0 {
		return RouteOption{}, false
	}
	return r.Routes[0], true
}

// Geocoder resolves place text and coordinates against an upstream provider.
type Geocoder interface {
	// Search returns up to the provider limit of candidates for query, best
	// match first. Zero matches is an empty slice and a nil error.
	Search(ctx context.Context, query string) ([]GeocodeResult, error)

	// Reverse returns the place at c, or the zero GeocodeResult when the
	// provider knows no address there.
	Reverse(ctx context.Context, c Coordinate) (GeocodeResult, error)
}

// Router computes driving routes.
type Router interface {
	Route(ctx context.Context, start, end Coordinate) (Route, error)
}

// PositionOptions configures a device position request.
type PositionOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration // 0 requires a fix taken after the request
}

// DefaultPositionOptions are the options used for every device lookup.
var DefaultPositionOptions = PositionOptions{
	HighAccuracy: true,
	Timeout:      5 * time.Second,
	MaximumAge:   0,
}

// DeviceLocator is the platform capability that reports the device position.
type DeviceLocator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Coordinate, error)
}

// NamedLocation is a coordinate with a human-readable label.
type NamedLocation struct {
	Coordinate
	Name string `json:"name"`
}
