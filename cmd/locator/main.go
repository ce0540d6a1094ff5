package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/cadet-location-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/cadet-location-service/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/cadet-location-service/internal/adapter/mqtt"
	"github.com/couchcryptid/cadet-location-service/internal/adapter/nominatim"
	"github.com/couchcryptid/cadet-location-service/internal/adapter/osrm"
	"github.com/couchcryptid/cadet-location-service/internal/cache"
	"github.com/couchcryptid/cadet-location-service/internal/config"
	"github.com/couchcryptid/cadet-location-service/internal/observability"
	"github.com/couchcryptid/cadet-location-service/internal/resolver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	geocoder := nominatim.NewClient(cfg.NominatimURL, cfg.NominatimUserAgent, cfg.NominatimRateLimit, cfg.UpstreamTimeout, logger)
	router := osrm.NewClient(cfg.OSRMURL, cfg.UpstreamTimeout, logger)
	lookupCache := cache.New(cfg.CacheTTL, cfg.CacheMaxEntries, nil)

	feed := resolver.NewFeed(cfg.NotificationFeedSize)
	notifiers := resolver.Notifiers{resolver.NewLogNotifier(logger), feed}

	// Kafka fan-out of notifications (feature-flagged via KAFKA_BROKERS).
	var writer *kafkaadapter.NotificationWriter
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewNotificationWriter(cfg, logger)
		notifiers = append(notifiers, writer)
		logger.Info("kafka notifications enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaNotifyTopic)
	}

	// Device location (feature-flagged via MQTT_BROKER). Without it the
	// device endpoint reports the capability as unsupported. A broker that is
	// down only makes fixes temporarily unavailable.
	var locator *mqttadapter.Locator
	if cfg.DeviceLocationEnabled() {
		locator, err = mqttadapter.Connect(mqttadapter.Options{
			Broker:        cfg.MQTTBroker,
			ClientID:      cfg.MQTTClientID,
			PositionTopic: cfg.MQTTPositionTopic,
			RequestTopic:  cfg.MQTTRequestTopic,
		}, logger)
		if err != nil {
			logger.Error("device locator unavailable", "broker", cfg.MQTTBroker, "error", err)
		} else {
			logger.Info("device location enabled", "broker", cfg.MQTTBroker, "topic", cfg.MQTTPositionTopic)
		}
	} else {
		logger.Info("device location disabled")
	}

	opts := resolver.Options{
		Geocoder:      geocoder,
		Router:        router,
		Cache:         lookupCache,
		Notifier:      notifiers,
		Coalesce:      cfg.CoalesceRequests,
		NotifyTimeout: cfg.NotifyTimeout,
	}
	if locator != nil {
		opts.Locator = locator
	}
	res := resolver.New(opts, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, res, feed, cfg.DefaultLocation, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	logger.Info("location service started",
		"nominatim", cfg.NominatimURL,
		"osrm", cfg.OSRMURL,
		"cache_ttl", cfg.CacheTTL,
		"cache_max_entries", cfg.CacheMaxEntries,
		"coalesce", cfg.CoalesceRequests,
		"default_location", cfg.DefaultLocation.Name,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if locator != nil {
		locator.Close()
	}
	if err := res.Close(shutdownCtx); err != nil {
		logger.Error("notification flush error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
