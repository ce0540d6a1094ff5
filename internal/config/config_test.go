package config

import (
	"testing"
	"time"

	"github.com/couchcryptid/cadet-location-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "https://nominatim.openstreetmap.org", cfg.NominatimURL)
	assert.Equal(t, "CadetNavigationSystem/1.0", cfg.NominatimUserAgent)
	assert.Equal(t, 1.0, cfg.NominatimRateLimit)
	assert.Equal(t, "https://router.project-osrm.org", cfg.OSRMURL)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 0, cfg.CacheMaxEntries)
	assert.True(t, cfg.CoalesceRequests)
	assert.Equal(t, 50, cfg.NotificationFeedSize)
	assert.Equal(t, 5*time.Second, cfg.NotifyTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.DeviceLocationEnabled())
	assert.Equal(t, domain.Coordinate{Lat: -2.0794, Lng: 30.1272}, cfg.DefaultLocation.Coordinate)
	assert.Contains(t, cfg.DefaultLocation.Name, "Gako Military Academy")
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("NOMINATIM_URL", "http://nominatim.local/")
	t.Setenv("NOMINATIM_USER_AGENT", "TestAgent/2.0")
	t.Setenv("NOMINATIM_RATE_LIMIT", "5")
	t.Setenv("OSRM_URL", "http://osrm.local")
	t.Setenv("UPSTREAM_TIMEOUT", "3s")
	t.Setenv("CACHE_TTL", "1h")
	t.Setenv("CACHE_MAX_ENTRIES", "500")
	t.Setenv("COALESCE_REQUESTS", "false")
	t.Setenv("NOTIFICATION_FEED_SIZE", "10")
	t.Setenv("NOTIFY_TIMEOUT", "2s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_NOTIFY_TOPIC", "toasts")
	t.Setenv("MQTT_BROKER", "tcp://mqtt.local:1883")
	t.Setenv("DEFAULT_LAT", "-1.9441")
	t.Setenv("DEFAULT_LNG", "30.0619")
	t.Setenv("DEFAULT_NAME", "Kigali")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://nominatim.local", cfg.NominatimURL)
	assert.Equal(t, "TestAgent/2.0", cfg.NominatimUserAgent)
	assert.Equal(t, 5.0, cfg.NominatimRateLimit)
	assert.Equal(t, "http://osrm.local", cfg.OSRMURL)
	assert.Equal(t, 3*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 500, cfg.CacheMaxEntries)
	assert.False(t, cfg.CoalesceRequests)
	assert.Equal(t, 10, cfg.NotificationFeedSize)
	assert.Equal(t, 2*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "toasts", cfg.KafkaNotifyTopic)
	assert.True(t, cfg.DeviceLocationEnabled())
	assert.Equal(t, "tcp://mqtt.local:1883", cfg.MQTTBroker)
	assert.Equal(t, "Kigali", cfg.DefaultLocation.Name)
	assert.Equal(t, -1.9441, cfg.DefaultLocation.Lat)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidUpstreamTimeout(t *testing.T) {
	t.Setenv("UPSTREAM_TIMEOUT", "bad")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPSTREAM_TIMEOUT")
}

func TestLoad_NegativeCacheTTL(t *testing.T) {
	t.Setenv("CACHE_TTL", "-1h")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_TTL")
}

func TestLoad_InvalidNotifyTimeout(t *testing.T) {
	t.Setenv("NOTIFY_TIMEOUT", "0s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTIFY_TIMEOUT")
}

func TestLoad_InvalidRateLimit(t *testing.T) {
	t.Setenv("NOMINATIM_RATE_LIMIT", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOMINATIM_RATE_LIMIT")
}

func TestLoad_InvalidCacheMaxEntries(t *testing.T) {
	t.Setenv("CACHE_MAX_ENTRIES", "-5")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CACHE_MAX_ENTRIES")
}

func TestLoad_DefaultLocationOutOfRange(t *testing.T) {
	t.Setenv("DEFAULT_LAT", "123")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DEFAULT_LAT")
}

func TestLoad_InvalidCoalesceFlag(t *testing.T) {
	t.Setenv("COALESCE_REQUESTS", "sometimes")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COALESCE_REQUESTS")
}
