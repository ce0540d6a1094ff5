package nominatim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/cadet-location-service/internal/domain"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public OpenStreetMap Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// searchLimit is the maximum number of candidates requested per search.
const searchLimit = 5

// Client implements domain.Geocoder using the Nominatim search and reverse APIs.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Nominatim client. requestsPerSecond throttles every
// request; the public instance allows at most one per second.
func NewClient(baseURL, userAgent string, requestsPerSecond float64, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}
}

// Search converts free text to up to five candidate places, best match first.
func (c *Client) Search(ctx context.Context, query string) ([]domain.GeocodeResult, error) {
	params := url.Values{
		"q":              {query},
		"format":         {"json"},
		"limit":          {strconv.Itoa(searchLimit)},
		"addressdetails": {"1"},
	}

	body, err := c.get(ctx, c.baseURL+"/search?"+params.Encode(), domain.OpForward)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var places []place
	if err := json.NewDecoder(body).Decode(&places); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]domain.GeocodeResult, 0, len(places))
	for _, p := range places {
		results = append(results, p.toDomain())
	}
	return results, nil
}

// Reverse converts a coordinate to the nearest known place. It returns the
// zero GeocodeResult when Nominatim knows no address at that point.
func (c *Client) Reverse(ctx context.Context, coord domain.Coordinate) (domain.GeocodeResult, error) {
	params := url.Values{
		"lat":            {strconv.FormatFloat(coord.Lat, 'f', -1, 64)},
		"lon":            {strconv.FormatFloat(coord.Lng, 'f', -1, 64)},
		"format":         {"json"},
		"addressdetails": {"1"},
	}

	body, err := c.get(ctx, c.baseURL+"/reverse?"+params.Encode(), domain.OpReverse)
	if err != nil {
		return domain.GeocodeResult{}, err
	}
	defer body.Close()

	var p place
	if err := json.NewDecoder(body).Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.GeocodeResult{}, nil
		}
		return domain.GeocodeResult{}, fmt.Errorf("decode reverse response: %w", err)
	}
	if p.Error != "" {
		c.logger.Debug("nominatim reverse found no place", "lat", coord.Lat, "lon", coord.Lng, "reason", p.Error)
		return domain.GeocodeResult{}, nil
	}
	return p.toDomain(), nil
}

// get waits for the rate limiter, issues the request, and returns the body
// of a 200 response. The caller closes it.
func (c *Client) get(ctx context.Context, fullURL, source string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s geocode rate limit: %w", source, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s geocode request: %w", source, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("nominatim API error: status %d: %s", resp.StatusCode, body)
	}
	return resp.Body, nil
}

// Nominatim API response types.

type place struct {
	Lat         flexFloat         `json:"lat"` // numeric string
	Lon         flexFloat         `json:"lon"`
	DisplayName string            `json:"display_name"`
	PlaceID     flexString        `json:"place_id"`
	Importance  flexFloat         `json:"importance"`
	Address     map[string]string `json:"address"`
	Error       string            `json:"error"`
}

func (p place) toDomain() domain.GeocodeResult {
	return domain.GeocodeResult{
		Coordinate:  domain.Coordinate{Lat: float64(p.Lat), Lng: float64(p.Lon)},
		DisplayName: p.DisplayName,
		PlaceID:     string(p.PlaceID),
		Importance:  float64(p.Importance),
		Address:     p.Address,
	}
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// flexString accepts a JSON string or number and keeps its text.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}
