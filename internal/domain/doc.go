// Package domain models the location data exchanged between the dashboard's
// map widgets and the upstream geo services.
//
// # Coordinates
//
// A Coordinate is a WGS-84 latitude/longitude pair in decimal degrees.
// Latitude lies in [-90, 90] and longitude in [-180, 180]. Upstream services
// disagree on axis order:
//
//	Nominatim query parameters:  lat=<lat>&lon=<lng>
//	OSRM path segments:          <lng>,<lat>;<lng>,<lat>
//	GeoJSON geometry:            [lng, lat]
//
// Adapters convert at the boundary; domain types always carry Lat then Lng.
//
// # Cache Keys
//
// Every lookup is memoized under a key that starts with its operation kind,
// so keys of different kinds can never collide:
//
//	forward:<query>                     exact text, case-sensitive
//	reverse:<lat>_<lng>                 6 decimal places
//	route:<lat>,<lng>_<lat>,<lng>       start then end, 6 decimal places
//
// Forward keys are not normalized: "Paris" and "paris" occupy separate
// entries. Coordinates are rounded to 6 decimal places (about 0.1 m), so
// values that differ only in float noise below that share an entry.
//
// # Failure Policy
//
// Geocoding and routing failures never reach the caller as errors. The
// resolver converts them into an empty result and a Notification so the
// user still learns why nothing happened. Device location failures are the
// exception: they propagate, and no default coordinate is substituted.
package domain
