package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	BackendS3      = "s3"
	BackendLevelDB = "leveldb"
	BackendRedis   = "redis"
	BackendMemory  = "memory"
)

// MaxSpoolMemoryLimit bounds how much of a body is held in memory before it
// is spilled to disk.
const MaxSpoolMemoryLimit = 1 << 30

type Config struct {
	ListenAddr    string
	TLSListenAddr string

	APIToken    string
	FallbackURL string

	StoreBackend string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	LevelDBPath  string
	RedisAddr    string
	RedisPass    string
	RedisDB      int

	WritePolicy      string
	RedirectPolicy   string
	CoalesceRequests bool
	SpoolMemoryLimit int64
	TempDir          string
	OriginTimeout    time.Duration

	RateLimit       int
	RateLimitWindow time.Duration

	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     string
	PostgresDatabase string
	PostgresSSLMode  string

	AccessLogRetention     time.Duration
	AccessLogPruneInterval time.Duration

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		TLSListenAddr: getEnv("TLS_LISTEN_ADDR", ""),

		APIToken:    getEnv("API_TOKEN", ""),
		FallbackURL: getEnv("FALLBACK_URL", ""),

		StoreBackend: getEnv("STORE_BACKEND", BackendS3),
		S3Bucket:     getEnv("S3_BUCKET", "url-cache"),
		S3Region:     getEnv("AWS_REGION", "us-east-1"),
		S3Endpoint:   getEnv("S3_ENDPOINT", ""),
		S3AccessKey:  getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		LevelDBPath:  getEnv("LEVELDB_PATH", "./data/objects"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:      getEnvInt("REDIS_DB", 0),

		WritePolicy:      getEnv("WRITE_POLICY", "confirmed"),
		RedirectPolicy:   getEnv("REDIRECT_POLICY", "passthrough"),
		CoalesceRequests: getEnvBool("COALESCE_REQUESTS", false),
		SpoolMemoryLimit: int64(getEnvInt("SPOOL_MEMORY_LIMIT", 8<<20)),
		TempDir:          getEnv("TEMP_DIR", os.TempDir()),
		OriginTimeout:    getEnvDuration("ORIGIN_TIMEOUT", 60*time.Second),

		RateLimit:       getEnvInt("RATE_LIMIT", 100),
		RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),

		PostgresUser:     getEnv("POSTGRES_USER", "fetchcache"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresHost:     getEnv("POSTGRES_HOST", ""),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDatabase: getEnv("POSTGRES_DATABASE", "fetch_cache"),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		AccessLogRetention:     getEnvDuration("ACCESS_LOG_RETENTION", 30*24*time.Hour),
		AccessLogPruneInterval: getEnvDuration("ACCESS_LOG_PRUNE_INTERVAL", 30*time.Minute),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIToken == "" {
		return fmt.Errorf("missing required environment variable: API_TOKEN")
	}
	if c.FallbackURL == "" {
		return fmt.Errorf("missing required environment variable: FALLBACK_URL")
	}

	switch c.StoreBackend {
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET must not be empty")
		}
		if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
			return fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		}
	case BackendLevelDB:
		if c.LevelDBPath == "" {
			return fmt.Errorf("LEVELDB_PATH must not be empty")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR must not be empty")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.WritePolicy {
	case "confirmed", "async":
	default:
		return fmt.Errorf("unsupported WRITE_POLICY %q", c.WritePolicy)
	}

	switch c.RedirectPolicy {
	case "passthrough", "success", "failure", "error":
	default:
		return fmt.Errorf("unsupported REDIRECT_POLICY %q", c.RedirectPolicy)
	}

	if c.SpoolMemoryLimit < 0 || c.SpoolMemoryLimit > MaxSpoolMemoryLimit {
		return fmt.Errorf("SPOOL_MEMORY_LIMIT must be between 0 and %d", MaxSpoolMemoryLimit)
	}

	if c.RateLimit < 0 {
		return fmt.Errorf("RATE_LIMIT must not be negative")
	}
	if c.RateLimit > 0 && c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	if c.DatabaseEnabled() && c.AccessLogPruneInterval <= 0 {
		return fmt.Errorf("ACCESS_LOG_PRUNE_INTERVAL must be positive")
	}
	return nil
}

// DatabaseEnabled reports whether access logs are persisted.
func (c *Config) DatabaseEnabled() bool {
	return c.PostgresHost != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
