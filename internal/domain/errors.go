package domain

import "errors"

var (
	// ErrCapabilityUnavailable means no device location capability is configured.
	ErrCapabilityUnavailable = errors.New("geolocation is not supported")

	// ErrLocationUnavailable means the capability exists but denied, failed,
	// or timed out. Wrapped errors carry the platform's description.
	ErrLocationUnavailable = errors.New("unable to retrieve device location")

	// ErrGeocodingService wraps forward and reverse lookup failures.
	ErrGeocodingService = errors.New("geocoding service error")

	// ErrRoutingService wraps route computation failures.
	ErrRoutingService = errors.New("routing service error")

	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrEmptyQuery        = errors.New("query is empty")

	// Address routing outcomes.
	ErrStartNotFound = errors.New("could not find start location")
	ErrEndNotFound   = errors.New("could not find end location")
	ErrNoRoute       = errors.New("no route between locations")
)
