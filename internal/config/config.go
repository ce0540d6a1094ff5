package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/cadet-location-service/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream providers.
	NominatimURL       string
	NominatimUserAgent string
	NominatimRateLimit float64 // requests per second
	OSRMURL            string
	UpstreamTimeout    time.Duration

	// Lookup cache.
	CacheTTL         time.Duration
	CacheMaxEntries  int // 0 = unbounded
	CoalesceRequests bool

	// Notification side channel.
	NotificationFeedSize int
	NotifyTimeout        time.Duration
	KafkaBrokers         []string
	KafkaNotifyTopic     string

	// Device location capability. Empty broker disables it.
	MQTTBroker        string
	MQTTClientID      string
	MQTTPositionTopic string
	MQTTRequestTopic  string

	// Default map center shown before the device is located.
	DefaultLocation domain.NamedLocation
}

// Load reads configuration from the environment, and from a .env file in
// the working directory when present, applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	upstreamTimeout, err := parsePositiveDuration("UPSTREAM_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parsePositiveDuration("CACHE_TTL", "24h")
	if err != nil {
		return nil, err
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("NOMINATIM_RATE_LIMIT", "1"), 64)
	if err != nil || rateLimit <= 0 {
		return nil, errors.New("invalid NOMINATIM_RATE_LIMIT")
	}

	cacheMax, err := parseNonNegativeInt("CACHE_MAX_ENTRIES", 0)
	if err != nil {
		return nil, err
	}

	feedSize, err := parseNonNegativeInt("NOTIFICATION_FEED_SIZE", 50)
	if err != nil {
		return nil, err
	}

	notifyTimeout, err := parsePositiveDuration("NOTIFY_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}

	coalesce, err := strconv.ParseBool(sharedcfg.EnvOrDefault("COALESCE_REQUESTS", "true"))
	if err != nil {
		return nil, errors.New("invalid COALESCE_REQUESTS")
	}

	defaultLocation, err := parseDefaultLocation()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		NominatimURL:       strings.TrimRight(sharedcfg.EnvOrDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org"), "/"),
		NominatimUserAgent: sharedcfg.EnvOrDefault("NOMINATIM_USER_AGENT", "CadetNavigationSystem/1.0"),
		NominatimRateLimit: rateLimit,
		OSRMURL:            strings.TrimRight(sharedcfg.EnvOrDefault("OSRM_URL", "https://router.project-osrm.org"), "/"),
		UpstreamTimeout:    upstreamTimeout,

		CacheTTL:         cacheTTL,
		CacheMaxEntries:  cacheMax,
		CoalesceRequests: coalesce,

		NotificationFeedSize: feedSize,
		NotifyTimeout:        notifyTimeout,
		KafkaBrokers:         sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaNotifyTopic:     sharedcfg.EnvOrDefault("KAFKA_NOTIFY_TOPIC", "location-notifications"),

		MQTTBroker:        os.Getenv("MQTT_BROKER"),
		MQTTClientID:      sharedcfg.EnvOrDefault("MQTT_CLIENT_ID", "cadet-locator"),
		MQTTPositionTopic: sharedcfg.EnvOrDefault("MQTT_POSITION_TOPIC", "devices/console/position"),
		MQTTRequestTopic:  sharedcfg.EnvOrDefault("MQTT_REQUEST_TOPIC", "devices/console/position/request"),

		DefaultLocation: defaultLocation,
	}

	return cfg, nil
}

// KafkaEnabled reports whether notifications are also published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// DeviceLocationEnabled reports whether a device location capability is configured.
func (c *Config) DeviceLocationEnabled() bool {
	return c.MQTTBroker != ""
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

// parseDefaultLocation reads DEFAULT_LAT/DEFAULT_LNG/DEFAULT_NAME. The
// default is Gako Military Academy, Bugesera District, Rwanda.
func parseDefaultLocation() (domain.NamedLocation, error) {
	lat, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("DEFAULT_LAT", "-2.0794"), 64)
	if err != nil {
		return domain.NamedLocation{}, errors.New("invalid DEFAULT_LAT")
	}
	lng, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("DEFAULT_LNG", "30.1272"), 64)
	if err != nil {
		return domain.NamedLocation{}, errors.New("invalid DEFAULT_LNG")
	}
	c := domain.Coordinate{Lat: lat, Lng: lng}
	if err := c.Validate(); err != nil {
		return domain.NamedLocation{}, fmt.Errorf("DEFAULT_LAT/DEFAULT_LNG: %w", err)
	}
	return domain.NamedLocation{
		Coordinate: c,
		Name:       sharedcfg.EnvOrDefault("DEFAULT_NAME", "Gako Military Academy, Bugesera District, Rwanda"),
	}, nil
}
