package httpadapter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/cadet-location-service/internal/domain"
	"github.com/couchcryptid/cadet-location-service/internal/resolver"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resolver is the lookup surface the API exposes.
type Resolver interface {
	sharedobs.ReadinessChecker
	LocateDevice(ctx context.Context) (domain.Coordinate, error)
	ForwardGeocode(ctx context.Context, query string) []domain.GeocodeResult
	ReverseGeocode(ctx context.Context, c domain.Coordinate) (domain.GeocodeResult, bool)
	ComputeRoute(ctx context.Context, start, end domain.Coordinate) (domain.Route, bool)
	RouteBetween(ctx context.Context, from, to string) (resolver.RouteBetweenResult, error)
}

// NotificationFeed lists recent notifications, newest first.
type NotificationFeed interface {
	Recent() []domain.Notification
}

// Server exposes the location API alongside health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer      *http.Server
	resolver        Resolver
	feed            NotificationFeed
	defaultLocation domain.NamedLocation
	logger          *slog.Logger
}

// NewServer creates an HTTP server with the /api/v1 lookup routes plus
// /healthz, /readyz, and /metrics.
func NewServer(addr string, res Resolver, feed NotificationFeed, defaultLocation domain.NamedLocation, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		resolver:        res,
		feed:            feed,
		defaultLocation: defaultLocation,
		logger:          logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(res))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/geocode", s.handleGeocode)
	mux.HandleFunc("GET /api/v1/reverse", s.handleReverse)
	mux.HandleFunc("GET /api/v1/route", s.handleRoute)
	mux.HandleFunc("GET /api/v1/route/by-address", s.handleRouteByAddress)
	mux.HandleFunc("GET /api/v1/device/location", s.handleDeviceLocation)
	mux.HandleFunc("GET /api/v1/default-location", s.handleDefaultLocation)
	mux.HandleFunc("GET /api/v1/notifications", s.handleNotifications)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, s.resolver.ForwardGeocode(r.Context(), q))
}

func (s *Server) handleReverse(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	c, err := domain.ParseCoordinate(query.Get("lat") + "," + query.Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, ok := s.resolver.ReverseGeocode(r.Context(), c)
	if !ok {
		writeError(w, http.StatusNotFound, "no address found for location")
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	start, err := domain.ParseCoordinate(query.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start: "+err.Error())
		return
	}
	end, err := domain.ParseCoordinate(query.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end: "+err.Error())
		return
	}

	route, ok := s.resolver.ComputeRoute(r.Context(), start, end)
	if !ok {
		writeError(w, http.StatusBadGateway, domain.ErrRoutingService.Error())
		return
	}
	if !route.Found() {
		writeError(w, http.StatusNotFound, domain.ErrNoRoute.Error())
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, route)
}

func (s *Server) handleRouteByAddress(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	result, err := s.resolver.RouteBetween(r.Context(), query.Get("from"), query.Get("to"))
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "query parameters from and to are required")
	case errors.Is(err, domain.ErrRoutingService):
		writeError(w, http.StatusBadGateway, err.Error())
	case err != nil:
		writeError(w, http.StatusNotFound, err.Error())
	default:
		sharedobs.WriteJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleDeviceLocation(w http.ResponseWriter, r *http.Request) {
	c, err := s.resolver.LocateDevice(r.Context())
	switch {
	case errors.Is(err, domain.ErrCapabilityUnavailable):
		writeError(w, http.StatusNotImplemented, err.Error())
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		sharedobs.WriteJSON(w, http.StatusOK, c)
	}
}

func (s *Server) handleDefaultLocation(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.defaultLocation)
}

func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.feed.Recent())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
