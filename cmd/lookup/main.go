// Command lookup runs a single location lookup against the configured
// Nominatim and OSRM instances and prints the result as JSON. It reads the
// same environment as the service.
//
// Usage:
//
//	go run ./cmd/lookup -q "Kigali"
//	go run ./cmd/lookup -reverse -2.0794,30.1272
//	go run ./cmd/lookup -start -1.9441,30.0619 -end -2.0794,30.1272
//	go run ./cmd/lookup -from "Kigali" -to "Gako Military Academy"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/cadet-location-service/internal/adapter/nominatim"
	"github.com/couchcryptid/cadet-location-service/internal/adapter/osrm"
	"github.com/couchcryptid/cadet-location-service/internal/config"
	"github.com/couchcryptid/cadet-location-service/internal/domain"
	"github.com/couchcryptid/cadet-location-service/internal/observability"
	"github.com/couchcryptid/cadet-location-service/internal/resolver"
)

// routeSummary adds the straight-line distance to a computed route so the
// two can be compared at a glance.
type routeSummary struct {
	Start        domain.Coordinate `json:"start"`
	End          domain.Coordinate `json:"end"`
	HaversineKm  float64           `json:"haversine_km"`
	RoadKm       float64           `json:"road_km,omitempty"`
	DurationMins float64           `json:"duration_mins,omitempty"`
	Route        domain.Route      `json:"route"`
}

func main() {
	query := flag.String("q", "", "place text to geocode")
	reverse := flag.String("reverse", "", "coordinate to reverse geocode, as lat,lng")
	start := flag.String("start", "", "route start, as lat,lng")
	end := flag.String("end", "", "route end, as lat,lng")
	from := flag.String("from", "", "route start address")
	to := flag.String("to", "", "route end address")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	res := resolver.New(resolver.Options{
		Geocoder: nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.NominatimRateLimit, cfg.UpstreamTimeout, logger),
		Router:   osrm.NewClient(cfg.OSRMURL, cfg.UpstreamTimeout, logger),
		Notifier: resolver.NewLogNotifier(logger),
	}, logger, observability.NewMetrics())

	var out any
	switch {
	case *query != "":
		out = res.ForwardGeocode(ctx, *query)
	case *reverse != "":
		out, err = reverseLookup(ctx, res, *reverse)
	case *start != "" || *end != "":
		out, err = routeLookup(ctx, res, *start, *end)
	case *from != "" || *to != "":
		out, err = res.RouteBetween(ctx, *from, *to)
	default:
		flag.Usage()
		os.Exit(2)
	}

	// Deliver any failure notifications before exiting.
	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	_ = res.Close(closeCtx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "lookup:", err)
		os.Exit(1)
	}

	if err := printJSON(os.Stdout, out); err != nil {
		fmt.Fprintln(os.Stderr, "output:", err)
		os.Exit(1)
	}
}

func reverseLookup(ctx context.Context, res *resolver.Resolver, s string) (domain.GeocodeResult, error) {
	c, err := domain.ParseCoordinate(s)
	if err != nil {
		return domain.GeocodeResult{}, err
	}
	result, ok := res.ReverseGeocode(ctx, c)
	if !ok {
		return domain.GeocodeResult{}, fmt.Errorf("no address found for %s", c)
	}
	return result, nil
}

func routeLookup(ctx context.Context, res *resolver.Resolver, startArg, endArg string) (routeSummary, error) {
	start, err := domain.ParseCoordinate(startArg)
	if err != nil {
		return routeSummary{}, fmt.Errorf("start: %w", err)
	}
	end, err := domain.ParseCoordinate(endArg)
	if err != nil {
		return routeSummary{}, fmt.Errorf("end: %w", err)
	}

	route, ok := res.ComputeRoute(ctx, start, end)
	if !ok || !route.Found() {
		return routeSummary{}, domain.ErrNoRoute
	}

	summary := routeSummary{
		Start:       start,
		End:         end,
		HaversineKm: domain.Distance(start, end),
		Route:       route,
	}
	if best, ok := route.Best(); ok {
		summary.RoadKm = best.Distance / 1000
		summary.DurationMins = best.Duration / 60
	}
	return summary, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
