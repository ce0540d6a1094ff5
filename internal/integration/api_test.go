//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/cadet-location-service/internal/adapter/httpadapter"
	"github.com/couchcryptid/cadet-location-service/internal/adapter/nominatim"
	"github.com/couchcryptid/cadet-location-service/internal/adapter/osrm"
	"github.com/couchcryptid/cadet-location-service/internal/cache"
	"github.com/couchcryptid/cadet-location-service/internal/domain"
	"github.com/couchcryptid/cadet-location-service/internal/observability"
	"github.com/couchcryptid/cadet-location-service/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	kigaliSearch = `[
		{"place_id": 1, "lat": "-1.9441", "lon": "30.0619", "display_name": "Kigali, Rwanda", "importance": 0.9},
		{"place_id": 2, "lat": "-1.9500", "lon": "30.0588", "display_name": "Kigali City Tower, Kigali, Rwanda", "importance": 0.5},
		{"place_id": 3, "lat": "-1.9686", "lon": "30.1395", "display_name": "Kigali International Airport, Rwanda", "importance": 0.4}
	]`
	gakoSearch = `[{"place_id": 9, "lat": "-2.0794", "lon": "30.1272", "display_name": "Gako, Bugesera, Rwanda", "importance": 0.3}]`
	osrmRoute  = `{
		"code": "Ok",
		"routes": [{"distance": 31870.4, "duration": 2412.7, "geometry": {"type": "LineString", "coordinates": [[30.0619, -1.9441], [30.1272, -2.0794]]}}],
		"waypoints": [{"name": "KN 3 Rd", "location": [30.0619, -1.9441]}, {"name": "", "location": [30.1272, -2.0794]}]
	}`
)

type upstreams struct {
	nominatim *httptest.Server
	osrm      *httptest.Server
	searches  atomic.Int64
	routes    atomic.Int64
}

func startUpstreams(t *testing.T) *upstreams {
	t.Helper()
	u := &upstreams{}

	u.nominatim = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.searches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("q") {
		case "Kigali":
			_, _ = w.Write([]byte(kigaliSearch))
		case "Gako":
			_, _ = w.Write([]byte(gakoSearch))
		case "Broken":
			http.Error(w, "internal error", http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	t.Cleanup(u.nominatim.Close)

	u.osrm = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		u.routes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(osrmRoute))
	}))
	t.Cleanup(u.osrm.Close)

	return u
}

// testAPI is the HTTP surface plus the resolver behind it, so tests can
// wait for queued notifications before reading the feed.
type testAPI struct {
	*httpadapter.Server
	res *resolver.Resolver
}

func newAPI(t *testing.T, u *upstreams) *testAPI {
	t.Helper()
	feed := resolver.NewFeed(10)
	res := resolver.New(resolver.Options{
		Geocoder: nominatim.NewClient(u.nominatim.URL, "CadetNavigationSystem/1.0", 100, 5*time.Second, discardLogger()),
		Router:   osrm.NewClient(u.osrm.URL, 5*time.Second, discardLogger()),
		Cache:    cache.New(cache.DefaultTTL, 0, nil),
		Notifier: feed,
		Coalesce: true,
	}, discardLogger(), observability.NewMetricsForTesting())
	t.Cleanup(func() { _ = res.Close(context.Background()) })

	def := domain.NamedLocation{Coordinate: domain.Coordinate{Lat: -2.0794, Lng: 30.1272}, Name: "Gako Military Academy"}
	return &testAPI{Server: httpadapter.NewServer(":0", res, feed, def, discardLogger()), res: res}
}

func (a *testAPI) notifications(t *testing.T) []domain.Notification {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.res.Flush(ctx))

	var notes []domain.Notification
	require.Equal(t, http.StatusOK, getJSON(t, a, "/api/v1/notifications", &notes))
	return notes
}

func getJSON(t *testing.T, srv http.Handler, target string, v any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if v != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
	}
	return rec.Code
}

func TestAPI_GeocodeServedFromCacheOnRepeat(t *testing.T) {
	u := startUpstreams(t)
	api := newAPI(t, u)

	var first, second []domain.GeocodeResult
	require.Equal(t, http.StatusOK, getJSON(t, api, "/api/v1/geocode?q=Kigali", &first))
	require.Equal(t, http.StatusOK, getJSON(t, api, "/api/v1/geocode?q=Kigali", &second))

	require.Len(t, first, 3)
	assert.Equal(t, "Kigali, Rwanda", first[0].DisplayName)
	assert.Equal(t, domain.Coordinate{Lat: -1.9441, Lng: 30.0619}, first[0].Coordinate)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), u.searches.Load())
}

func TestAPI_RouteByAddress(t *testing.T) {
	u := startUpstreams(t)
	api := newAPI(t, u)

	var got resolver.RouteBetweenResult
	require.Equal(t, http.StatusOK, getJSON(t, api, "/api/v1/route/by-address?from=Kigali&to=Gako", &got))

	assert.Equal(t, "Kigali, Rwanda", got.Start.DisplayName)
	assert.Equal(t, "Gako, Bugesera, Rwanda", got.End.DisplayName)
	best, ok := got.Route.Best()
	require.True(t, ok)
	assert.InDelta(t, 31870.4, best.Distance, 0.01)

	notes := api.notifications(t)
	require.Len(t, notes, 1)
	assert.Equal(t, "Route calculated successfully", notes[0].Message)

	// The same pair again is answered without touching either upstream.
	require.Equal(t, http.StatusOK, getJSON(t, api, "/api/v1/route/by-address?from=Kigali&to=Gako", nil))
	assert.Equal(t, int64(2), u.searches.Load())
	assert.Equal(t, int64(1), u.routes.Load())
}

func TestAPI_UpstreamFailureDegrades(t *testing.T) {
	u := startUpstreams(t)
	api := newAPI(t, u)

	var results []domain.GeocodeResult
	require.Equal(t, http.StatusOK, getJSON(t, api, "/api/v1/geocode?q=Broken", &results))
	assert.Empty(t, results)

	notes := api.notifications(t)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.LevelError, notes[0].Level)
	assert.Equal(t, "Failed to geocode address", notes[0].Message)
}

func TestAPI_DeviceLocationUnsupported(t *testing.T) {
	api := newAPI(t, startUpstreams(t))

	assert.Equal(t, http.StatusNotImplemented, getJSON(t, api, "/api/v1/device/location", nil))
}
