package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, uint16(3000), cfg.HTTP.Port)
	assert.Equal(t, []string{"*"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)

	assert.Equal(t, "zap", cfg.Logging.Logger)
	assert.False(t, cfg.Admission.OpenRooms)

	assert.False(t, cfg.Snapshot.Enabled)
	assert.Equal(t, 200*time.Millisecond, cfg.Snapshot.FlushInterval)
	assert.False(t, cfg.Messaging.Enabled)

	assert.Equal(t, 10, cfg.RateLimiter.MaxRatePerSecond)
	assert.Equal(t, 20, cfg.RateLimiter.MaxBurst)
	assert.Equal(t, "X-Forwarded-For", cfg.RateLimiter.SourceHeaderKey)
}

func TestLoadYAMLFile(t *testing.T) {
	content := `
http:
  host: "127.0.0.1"
  port: 8080
  allowed_origins:
    - "https://collab.example.com"
logging:
  level: "info"
admission:
  open_rooms: true
snapshot:
  enabled: true
  mongo_uri: "mongodb://db:27017"
rateLimiter:
  maxRatePerSecond: 50
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.HTTP.Host)
	assert.Equal(t, uint16(8080), cfg.HTTP.Port)
	assert.Equal(t, []string{"https://collab.example.com"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Admission.OpenRooms)
	assert.True(t, cfg.Snapshot.Enabled)
	assert.Equal(t, "mongodb://db:27017", cfg.Snapshot.MongoURI)
	assert.Equal(t, 50, cfg.RateLimiter.MaxRatePerSecond)

	// Keys the file omits keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, 20, cfg.RateLimiter.MaxBurst)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_HOST", "10.0.0.5")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOGGER", "zerolog")
	t.Setenv("LOGGER_LEVEL", "warn")
	t.Setenv("OPEN_ROOMS", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", cfg.HTTP.Host)
	assert.Equal(t, uint16(9090), cfg.HTTP.Port)
	assert.Equal(t, "zerolog", cfg.Logging.Logger)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Admission.OpenRooms)
}

func TestMongoURIEnablesSnapshots(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://replica:27017")
	t.Setenv("MONGODB_DATABASE", "collab_prod")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Snapshot.Enabled)
	assert.Equal(t, "mongodb://replica:27017", cfg.Snapshot.MongoURI)
	assert.Equal(t, "collab_prod", cfg.Snapshot.Database)
}

func TestRabbitURIEnablesMessaging(t *testing.T) {
	t.Setenv("RABBITMQ_URI", "amqp://broker:5672/")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Messaging.Enabled)
	assert.Equal(t, "amqp://broker:5672/", cfg.Messaging.AmqpURI)
}
