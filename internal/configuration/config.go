package configuration

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendLocal = "local"
	BackendMinIO = "minio"
	BackendS3    = "s3"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Ingest    IngestConfig
	RateLimit RateLimitConfig
	MinIO     MinIOConfig
	S3        S3Config
	Remote    RemoteConfig
	Redis     RedisConfig
	Tracing   TracingConfig

	NATSURL     string
	CLAMAVURL   string
	DatabaseURL string
	LogLevel    string
}

type ServerConfig struct {
	Port string
}

type StorageConfig struct {
	// Backend is local, minio or s3. Anything but local means remote-first.
	Backend    string
	Root       string
	LedgerPath string
	TargetTTL  time.Duration
}

type IngestConfig struct {
	MaxUploadBytes       int64
	MaxConcurrentUploads int64
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	BucketName string
	UseSSL     bool
}

type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
}

type RemoteConfig struct {
	Owner      string
	Visibility string
	Timeout    time.Duration
	URLExpiry  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type TracingConfig struct {
	AgentHost string
	Service   string
}

// Load reads a .env file if present, then the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, reading from environment")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Storage: StorageConfig{
			Backend:    strings.ToLower(getEnv("STORAGE_BACKEND", BackendLocal)),
			Root:       getEnv("STORAGE_ROOT", "./uploads"),
			LedgerPath: getEnv("LEDGER_PATH", "./data/files.json"),
			TargetTTL:  getDuration("TARGET_TTL", 15*time.Minute),
		},
		Ingest: IngestConfig{
			MaxUploadBytes:       getInt64("MAX_UPLOAD_BYTES", 50<<20),
			MaxConcurrentUploads: getInt64("MAX_CONCURRENT_UPLOADS", 16),
		},
		RateLimit: RateLimitConfig{
			RPS:   getFloat("RATE_LIMIT_RPS", 10),
			Burst: int(getInt64("RATE_LIMIT_BURST", 20)),
		},
		MinIO: MinIOConfig{
			Endpoint:   getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey:  getEnv("MINIO_SECRET_KEY", "minioadmin"),
			BucketName: getEnv("MINIO_BUCKET", "documents"),
			UseSSL:     getEnv("MINIO_USE_SSL", "false") == "true",
		},
		S3: S3Config{
			Region:    getEnv("S3_REGION", "us-east-1"),
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "documents"),
		},
		Remote: RemoteConfig{
			Owner:      getEnv("REMOTE_OWNER", "document-service"),
			Visibility: getEnv("REMOTE_VISIBILITY", "private"),
			Timeout:    getDuration("REMOTE_TIMEOUT", 10*time.Second),
			URLExpiry:  getDuration("REMOTE_URL_EXPIRY", 15*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       int(getInt64("REDIS_DB", 0)),
		},
		Tracing: TracingConfig{
			AgentHost: getEnv("DD_AGENT_HOST", ""),
			Service:   getEnv("DD_SERVICE", "document-service"),
		},
		NATSURL:     getEnv("NATS_URL", ""),
		CLAMAVURL:   getEnv("CLAMAV_URL", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// RemoteFirst reports whether uploads should go to an object store first.
func (c *Config) RemoteFirst() bool {
	return c.Storage.Backend == BackendMinIO || c.Storage.Backend == BackendS3
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("invalid integer setting, using default", "key", key, "value", raw)
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid number setting, using default", "key", key, "value", raw)
		return defaultValue
	}
	return v
}

// getDuration accepts Go durations ("30s") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	slog.Warn("invalid duration setting, using default", "key", key, "value", raw)
	return defaultValue
}
