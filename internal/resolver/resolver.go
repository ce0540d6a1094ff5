// Package resolver translates between place text, device position, and
// structured coordinate data while shielding the shared upstream services
// from redundant traffic.
//
// Geocoding and routing never fail from the caller's point of view: an
// upstream failure becomes an empty result plus an error Notification.
// Device location failures are returned as errors.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/cadet-location-service/internal/cache"
	"github.com/couchcryptid/cadet-location-service/internal/domain"
	"github.com/couchcryptid/cadet-location-service/internal/observability"
	"golang.org/x/sync/singleflight"
)

// User-facing failure messages, one per operation.
const (
	msgForwardFailed  = "Failed to geocode address"
	msgReverseFailed  = "Failed to get address for location"
	msgRouteFailed    = "Failed to calculate route"
	msgLocateNoDevice = "Geolocation is not supported"
	msgLocateFailed   = "Unable to retrieve your location"
	msgRouteReady     = "Route calculated successfully"
)

// Options wires a Resolver's collaborators.
type Options struct {
	Geocoder domain.Geocoder
	Router   domain.Router
	Locator  domain.DeviceLocator // nil means no location capability
	Cache    *cache.Cache
	Notifier domain.Notifier // nil discards notifications
	Coalesce bool            // share one upstream call among identical in-flight lookups

	// NotifyTimeout bounds each notification delivery; zero means
	// DefaultNotifyTimeout.
	NotifyTimeout time.Duration
}

// Resolver is the location lookup facade used by the map widgets.
type Resolver struct {
	geocoder domain.Geocoder
	router   domain.Router
	locator  domain.DeviceLocator
	cache    *cache.Cache
	notes    *dispatcher // nil when notifications are discarded
	flights  *singleflight.Group
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Resolver. A nil cache gets a fresh unbounded 24h cache.
func New(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	c := opts.Cache
	if c == nil {
		c = cache.New(cache.DefaultTTL, 0, nil)
	}
	r := &Resolver{
		geocoder: opts.Geocoder,
		router:   opts.Router,
		locator:  opts.Locator,
		cache:    c,
		logger:   logger,
		metrics:  metrics,
	}
	if opts.Notifier != nil {
		r.notes = newDispatcher(opts.Notifier, opts.NotifyTimeout, logger, metrics)
	}
	if opts.Coalesce {
		r.flights = &singleflight.Group{}
	}
	return r
}

// Flush blocks until every notification emitted so far has been handed to
// the notifier, or ctx ends.
func (r *Resolver) Flush(ctx context.Context) error {
	if r.notes == nil {
		return nil
	}
	return r.notes.flush(ctx)
}

// Close delivers pending notifications and stops the delivery worker.
// Lookups keep working afterwards but their notifications are dropped.
func (r *Resolver) Close(ctx context.Context) error {
	if r.notes == nil {
		return nil
	}
	return r.notes.close(ctx)
}

// LocateDevice asks the device location capability for a fresh,
// high-accuracy fix with a 5 second timeout. It never substitutes a default
// coordinate: callers get ErrCapabilityUnavailable or an error wrapping
// ErrLocationUnavailable and must surface it.
func (r *Resolver) LocateDevice(ctx context.Context) (domain.Coordinate, error) {
	if r.locator == nil {
		r.metrics.DeviceFixes.WithLabelValues("unsupported").Inc()
		r.notify(domain.NewNotification(domain.LevelError, domain.OpLocate, msgLocateNoDevice, nil))
		return domain.Coordinate{}, domain.ErrCapabilityUnavailable
	}

	opts := domain.DefaultPositionOptions
	fixCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	coord, err := r.locator.CurrentPosition(fixCtx, opts)
	if err != nil {
		r.metrics.DeviceFixes.WithLabelValues("unavailable").Inc()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timeout expired after %s", opts.Timeout)
		}
		r.logger.Warn("device location failed", "error", err)
		r.notify(domain.NewNotification(domain.LevelError, domain.OpLocate,
			msgLocateFailed+": "+err.Error(), err))
		return domain.Coordinate{}, fmt.Errorf("%w: %w", domain.ErrLocationUnavailable, err)
	}

	r.metrics.DeviceFixes.WithLabelValues("success").Inc()
	return coord, nil
}

// ForwardGeocode returns up to five candidates for query, best match first.
// The result is empty when nothing matches or the geocoding service fails;
// only the latter emits a notification. Blank queries return empty without
// an upstream call.
func (r *Resolver) ForwardGeocode(ctx context.Context, query string) []domain.GeocodeResult {
	if strings.TrimSpace(query) == "" {
		return []domain.GeocodeResult{}
	}

	v, err := r.lookup(ctx, domain.OpForward, domain.ForwardKey(query), msgForwardFailed, domain.ErrGeocodingService,
		func(ctx context.Context) (any, error) {
			return r.geocoder.Search(ctx, query)
		})
	if err != nil {
		r.record(domain.OpForward, "error")
		return []domain.GeocodeResult{}
	}

	results, _ := v.([]domain.GeocodeResult)
	if len(results) == 0 {
		r.record(domain.OpForward, "empty")
		return []domain.GeocodeResult{}
	}
	r.record(domain.OpForward, "success")
	return results
}

// ReverseGeocode returns the place at c. The boolean is false when the
// point resolves to no known place, the coordinate is invalid, or the
// geocoding service fails; only the last emits a notification.
func (r *Resolver) ReverseGeocode(ctx context.Context, c domain.Coordinate) (domain.GeocodeResult, bool) {
	if err := c.Validate(); err != nil {
		r.logger.Debug("reverse geocode rejected", "error", err)
		return domain.GeocodeResult{}, false
	}

	v, err := r.lookup(ctx, domain.OpReverse, domain.ReverseKey(c), msgReverseFailed, domain.ErrGeocodingService,
		func(ctx context.Context) (any, error) {
			return r.geocoder.Reverse(ctx, c)
		})
	if err != nil {
		r.record(domain.OpReverse, "error")
		return domain.GeocodeResult{}, false
	}

	result, _ := v.(domain.GeocodeResult)
	if result.IsZero() {
		r.record(domain.OpReverse, "empty")
		return domain.GeocodeResult{}, false
	}
	r.record(domain.OpReverse, "success")
	return result, true
}

// ComputeRoute returns the driving route from start to end. The boolean is
// false when the routing service fails or either point is invalid. A
// provider answer with no routes is returned with true; check Route.Found.
func (r *Resolver) ComputeRoute(ctx context.Context, start, end domain.Coordinate) (domain.Route, bool) {
	if err := errors.Join(start.Validate(), end.Validate()); err != nil {
		r.logger.Debug("route rejected", "error", err)
		return domain.Route{}, false
	}

	v, err := r.lookup(ctx, domain.OpRoute, domain.RouteKey(start, end), msgRouteFailed, domain.ErrRoutingService,
		func(ctx context.Context) (any, error) {
			return r.router.Route(ctx, start, end)
		})
	if err != nil {
		r.record(domain.OpRoute, "error")
		return domain.Route{}, false
	}

	route, _ := v.(domain.Route)
	if !route.Found() {
		r.record(domain.OpRoute, "empty")
	} else {
		r.record(domain.OpRoute, "success")
	}
	return route, true
}

// RouteBetweenResult is the outcome of RouteBetween.
type RouteBetweenResult struct {
	Start domain.GeocodeResult `json:"start"`
	End   domain.GeocodeResult `json:"end"`
	Route domain.Route         `json:"route"`
}

// RouteBetween geocodes both addresses, takes the best match of each, and
// computes the driving route between them. Unlike the lookups it returns an
// error for each way it can come up empty (ErrRoutingService when the
// routing service failed), and it emits a success notification when a
// route is found.
func (r *Resolver) RouteBetween(ctx context.Context, from, to string) (RouteBetweenResult, error) {
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return RouteBetweenResult{}, domain.ErrEmptyQuery
	}

	starts := r.ForwardGeocode(ctx, from)
	if len(starts) == 0 {
		return RouteBetweenResult{}, domain.ErrStartNotFound
	}
	ends := r.ForwardGeocode(ctx, to)
	if len(ends) == 0 {
		return RouteBetweenResult{}, domain.ErrEndNotFound
	}

	start, end := starts[0], ends[0]
	route, ok := r.ComputeRoute(ctx, start.Coordinate, end.Coordinate)
	if !ok {
		return RouteBetweenResult{}, domain.ErrRoutingService
	}
	if !route.Found() {
		return RouteBetweenResult{}, domain.ErrNoRoute
	}

	r.notify(domain.NewNotification(domain.LevelSuccess, domain.OpRoute, msgRouteReady, nil))
	return RouteBetweenResult{Start: start, End: end, Route: route}, nil
}

// CheckReadiness delegates to the device locator when it can report its
// own readiness.
func (r *Resolver) CheckReadiness(ctx context.Context) error {
	if rc, ok := r.locator.(interface{ CheckReadiness(context.Context) error }); ok {
		return rc.CheckReadiness(ctx)
	}
	return nil
}

// lookup serves key from the cache or fetches, stores, and returns it.
// With coalescing enabled, concurrent callers for the same key share one
// fetch; a caller whose context ends stops waiting without cancelling the
// shared fetch.
func (r *Resolver) lookup(ctx context.Context, op, key, failMsg string, kind error, fetch func(context.Context) (any, error)) (any, error) {
	entry, status := r.cache.Get(key)
	r.metrics.CacheLookups.WithLabelValues(op, status.String()).Inc()
	if status == cache.Hit {
		return entry.Value, nil
	}

	if r.flights == nil {
		return r.fetchAndStore(ctx, op, key, failMsg, kind, fetch)
	}

	ch := r.flights.DoChan(key, func() (any, error) {
		return r.fetchAndStore(context.WithoutCancel(ctx), op, key, failMsg, kind, fetch)
	})
	select {
	case res := <-ch:
		if res.Shared {
			r.metrics.CoalescedLookups.WithLabelValues(op).Inc()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetchAndStore calls the upstream and caches a successful answer,
// empty answers included. A failure is wrapped in kind, logged, and queued
// once for the notifier unless the caller went away. Queueing never blocks,
// so a coalesced flight is released as soon as the upstream answers.
func (r *Resolver) fetchAndStore(ctx context.Context, op, key, failMsg string, kind error, fetch func(context.Context) (any, error)) (any, error) {
	start := time.Now()
	v, err := fetch(ctx)
	r.metrics.UpstreamDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		err = fmt.Errorf("%w: %w", kind, err)
		if ctx.Err() != nil {
			r.logger.Debug("lookup abandoned by caller", "operation", op, "key", key, "error", err)
			return nil, err
		}
		r.logger.Warn("upstream lookup failed", "operation", op, "key", key, "error", err)
		r.notify(domain.NewNotification(domain.LevelError, op, failMsg, err))
		return nil, err
	}

	r.cache.Put(key, v)
	r.metrics.CacheEntries.Set(float64(r.cache.Len()))
	return v, nil
}

func (r *Resolver) record(op, outcome string) {
	r.metrics.LookupRequests.WithLabelValues(op, outcome).Inc()
}

// notify queues n for delivery and returns immediately.
func (r *Resolver) notify(n domain.Notification) {
	r.metrics.Notifications.WithLabelValues(n.Level).Inc()
	if r.notes != nil {
		r.notes.send(n)
	}
}
