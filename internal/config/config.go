package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the smulti services. The same config
// is shared by the API server and both worker binaries; each reads the
// sections it needs.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Blob     BlobConfig
	Resolver ResolverConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type QueueConfig struct {
	ProcessQueue      string
	DownloadQueue     string
	VisibilityTimeout time.Duration
	WaitTime          time.Duration
	MaxReceiveCount   int
	BatchSize         int
	ConcurrentJobs    int
	DispatchInterval  time.Duration
}

type BlobConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL is the address scheme downloads are served from,
	// e.g. https://media.example.com. Defaults to the endpoint.
	PublicBaseURL string
}

type ResolverConfig struct {
	BinPath    string
	Timeout    time.Duration
	CookieFile string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("SMULTI_PORT", 8080),
			Env:  envString("SMULTI_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			ProcessQueue:      envString("QUEUE_PROCESS_NAME", "process"),
			DownloadQueue:     envString("QUEUE_DOWNLOAD_NAME", "download"),
			VisibilityTimeout: envDuration("QUEUE_VISIBILITY_TIMEOUT", 5*time.Minute),
			WaitTime:          envDuration("QUEUE_WAIT_TIME", 20*time.Second),
			MaxReceiveCount:   envInt("QUEUE_MAX_RECEIVE_COUNT", 3),
			BatchSize:         envInt("QUEUE_BATCH_SIZE", 10),
			ConcurrentJobs:    envInt("QUEUE_CONCURRENT_JOB_LIMIT", 20),
			DispatchInterval:  envDuration("QUEUE_DISPATCH_INTERVAL", 30*time.Second),
		},
		Blob: BlobConfig{
			Endpoint:      os.Getenv("BLOB_ENDPOINT"),
			AccessKey:     os.Getenv("BLOB_ACCESS_KEY"),
			SecretKey:     os.Getenv("BLOB_SECRET_KEY"),
			Bucket:        os.Getenv("BLOB_BUCKET"),
			UseSSL:        envBool("BLOB_USE_SSL", true),
			PublicBaseURL: os.Getenv("BLOB_PUBLIC_URL"),
		},
		Resolver: ResolverConfig{
			BinPath:    envString("YTDLP_PATH", "yt-dlp"),
			Timeout:    envDuration("YTDLP_TIMEOUT", 2*time.Minute),
			CookieFile: os.Getenv("YTDLP_COOKIE_FILE"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Blob.Endpoint == "" {
		return fmt.Errorf("BLOB_ENDPOINT is required")
	}
	if c.Blob.Bucket == "" {
		return fmt.Errorf("BLOB_BUCKET is required")
	}

	if c.Blob.PublicBaseURL != "" &&
		!strings.HasPrefix(c.Blob.PublicBaseURL, "http://") &&
		!strings.HasPrefix(c.Blob.PublicBaseURL, "https://") {
		return fmt.Errorf("BLOB_PUBLIC_URL must start with http:// or https://, got %q", c.Blob.PublicBaseURL)
	}

	if c.Queue.VisibilityTimeout <= 0 {
		return fmt.Errorf("QUEUE_VISIBILITY_TIMEOUT must be positive")
	}
	if c.Queue.MaxReceiveCount < 1 {
		return fmt.Errorf("QUEUE_MAX_RECEIVE_COUNT must be at least 1")
	}
	if c.Queue.BatchSize < 1 || c.Queue.BatchSize > 10 {
		return fmt.Errorf("QUEUE_BATCH_SIZE must be between 1 and 10")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
