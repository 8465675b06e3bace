package configuration

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "STORAGE_BACKEND", "MAX_UPLOAD_BYTES", "REMOTE_TIMEOUT", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, BackendLocal, cfg.Storage.Backend)
	assert.False(t, cfg.RemoteFirst())
	assert.Equal(t, int64(50<<20), cfg.Ingest.MaxUploadBytes)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("REMOTE_TIMEOUT", "3")
	t.Setenv("REMOTE_URL_EXPIRY", "2m")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, BackendS3, cfg.Storage.Backend)
	assert.True(t, cfg.RemoteFirst())
	assert.Equal(t, int64(1024), cfg.Ingest.MaxUploadBytes)
	assert.Equal(t, 3*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 2*time.Minute, cfg.Remote.URLExpiry)
	assert.Equal(t, 2.5, cfg.RateLimit.RPS)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_UPLOADS", "many")
	t.Setenv("TARGET_TTL", "soon")

	cfg := Load()

	assert.Equal(t, int64(16), cfg.Ingest.MaxConcurrentUploads)
	assert.Equal(t, 15*time.Minute, cfg.Storage.TargetTTL)
}
