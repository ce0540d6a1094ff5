package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/cadet-location-service/internal/domain"
)

// DefaultBaseURL is the public OSRM demo server.
const DefaultBaseURL = "https://router.project-osrm.org"

// maxResponseBytes caps a route response; full-overview geometries for
// in-country routes stay well below it.
const maxResponseBytes = 4 << 20

// Client implements domain.Router using the OSRM route service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an OSRM routing client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Route requests a driving route from start to end with full GeoJSON
// geometry. A provider answer without routes (code "NoRoute") is returned
// as a Route whose Found is false, not as an error.
func (c *Client) Route(ctx context.Context, start, end domain.Coordinate) (domain.Route, error) {
	// OSRM uses lng,lat order.
	path := fmt.Sprintf("/route/v1/driving/%s,%s;%s,%s",
		formatDegrees(start.Lng), formatDegrees(start.Lat),
		formatDegrees(end.Lng), formatDegrees(end.Lat))
	params := url.Values{
		"overview":   {"full"},
		"geometries": {"geojson"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return domain.Route{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Route{}, fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return domain.Route{}, fmt.Errorf("read route response: %w", err)
	}
	if len(raw) > maxResponseBytes {
		return domain.Route{}, fmt.Errorf("route response exceeds %d bytes", maxResponseBytes)
	}

	if resp.StatusCode != http.StatusOK {
		// OSRM reports unroutable input with 400 and a JSON code.
		var r response
		if json.Unmarshal(raw, &r) == nil && r.Code == "NoRoute" {
			c.logger.Debug("osrm found no route", "start", start.String(), "end", end.String())
			return domain.Route{Code: r.Code, Raw: raw}, nil
		}
		return domain.Route{}, fmt.Errorf("osrm API error: status %d: %s", resp.StatusCode, truncate(raw, 512))
	}

	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.Route{}, fmt.Errorf("decode route response: %w", err)
	}
	return r.toDomain(raw), nil
}

// OSRM API response types.

type response struct {
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	Routes    []route    `json:"routes"`
	Waypoints []waypoint `json:"waypoints"`
}

type route struct {
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Geometry struct {
		Type        string       `json:"type"`
		Coordinates [][2]float64 `json:"coordinates"` // [lng, lat]
	} `json:"geometry"`
}

type waypoint struct {
	Name     string     `json:"name"`
	Location [2]float64 `json:"location"` // [lng, lat]
}

func (r response) toDomain(raw []byte) domain.Route {
	out := domain.Route{
		Code: r.Code,
		Raw:  raw,
	}
	for _, rt := range r.Routes {
		out.Routes = append(out.Routes, domain.RouteOption{
			Distance: rt.Distance,
			Duration: rt.Duration,
			Geometry: domain.LineString{
				Type:        rt.Geometry.Type,
				Coordinates: rt.Geometry.Coordinates,
			},
		})
	}
	for _, wp := range r.Waypoints {
		out.Waypoints = append(out.Waypoints, domain.Waypoint{
			Name:     wp.Name,
			Location: domain.Coordinate{Lat: wp.Location[1], Lng: wp.Location[0]},
		})
	}
	return out
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
