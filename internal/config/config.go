// Package config loads Tachyon-Tex's process-wide configuration from the
// environment: viper.AutomaticEnv() plus explicit SetDefault calls, with
// an optional .env file loaded first.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every environment-driven setting this service reads.
type Config struct {
	Server      ServerConfig
	PDFCache    CacheConfig
	FormatCache CacheConfig
	BlobStore   BlobStoreConfig
	Compile     CompileConfig
	Bundle      BundleConfig
	RateLimit   RateLimitConfig
	Redis       RedisConfig
	MongoDB     MongoDBConfig
	MinIO       MinIOConfig
	Webhook     WebhookConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port        string
	Environment string
}

// CacheConfig backs both the PDF Cache and Format Cache.
type CacheConfig struct {
	Enabled bool
	CapMB   int64
	TTL     time.Duration
}

// BlobStoreConfig caps the process-wide blob store.
type BlobStoreConfig struct {
	CapMB int64
}

// CompileConfig controls engine invocation limits.
type CompileConfig struct {
	Timeout          time.Duration
	MaxProjectSizeMB int64
	BlockingPoolSize int
}

// BundleConfig selects where the TeX package bundle (C4) loads from.
type BundleConfig struct {
	Source         string // "local" (default) or "minio"
	LocalDir       string
	MinioArchiveKey string
}

// RateLimitConfig holds the token-bucket rate-limit knobs applied to
// /compile and /validate.
type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

// RedisConfig is optional: backs the Redis rate limiter and the webhook
// suppression list when set.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// MongoDBConfig is optional: backs the compile audit sink and webhook
// subscription durability when set. Empty URI disables both.
type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// MinIOConfig is optional: used only when Bundle.Source == "minio".
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// WebhookConfig backs the bearer-token auth on POST/DELETE /webhooks.
type WebhookConfig struct {
	JWTSecret string
}

// LoadConfig loads configuration from environment variables and an
// optional .env file. Returns an error (never panics or exits) on an
// invalid numeric value; main.go is responsible for turning that error
// into an exit-code-2 failure.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("LISTEN_PORT", "8080")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")

	viper.SetDefault("PDF_CACHE_ENABLED", true)
	viper.SetDefault("PDF_CACHE_CAP_MB", 256)
	viper.SetDefault("PDF_CACHE_TTL_SEC", 86400)

	viper.SetDefault("FORMAT_CACHE_ENABLED", true)
	viper.SetDefault("FORMAT_CACHE_CAP_MB", 64)
	viper.SetDefault("FORMAT_CACHE_TTL_SEC", 0) // 0 means "same as PDF_CACHE_TTL_SEC"

	viper.SetDefault("BLOB_STORE_CAP_MB", 512)

	viper.SetDefault("COMPILE_TIMEOUT_MS", 30000)
	viper.SetDefault("MAX_PROJECT_SIZE_MB", 32)
	viper.SetDefault("BLOCKING_POOL_SIZE", 0) // 0 means "use runtime.NumCPU()"

	viper.SetDefault("BUNDLE_SOURCE", "local")
	viper.SetDefault("BUNDLE_LOCAL_DIR", "./bundle")

	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_RPS", 10)
	viper.SetDefault("RATE_LIMIT_BURST", 40)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", false)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("MINIO_USE_SSL", false)
	viper.SetDefault("MINIO_BUCKET", "tachyon-tex-bundle")

	pdfTTLSec := viper.GetInt("PDF_CACHE_TTL_SEC")
	formatTTLSec := viper.GetInt("FORMAT_CACHE_TTL_SEC")
	if formatTTLSec <= 0 {
		formatTTLSec = pdfTTLSec
	}

	for _, numeric := range []string{
		"PDF_CACHE_CAP_MB", "PDF_CACHE_TTL_SEC", "FORMAT_CACHE_CAP_MB",
		"BLOB_STORE_CAP_MB", "COMPILE_TIMEOUT_MS", "MAX_PROJECT_SIZE_MB",
		"BLOCKING_POOL_SIZE", "MONGODB_TIMEOUT",
	} {
		if raw := os.Getenv(numeric); raw != "" {
			if _, err := parseNonNegativeInt(raw); err != nil {
				return nil, fmt.Errorf("config: invalid value for %s: %w", numeric, err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("LISTEN_PORT"),
			Environment: viper.GetString("SERVER_ENVIRONMENT"),
		},
		PDFCache: CacheConfig{
			Enabled: viper.GetBool("PDF_CACHE_ENABLED"),
			CapMB:   viper.GetInt64("PDF_CACHE_CAP_MB"),
			TTL:     time.Duration(pdfTTLSec) * time.Second,
		},
		FormatCache: CacheConfig{
			Enabled: viper.GetBool("FORMAT_CACHE_ENABLED"),
			CapMB:   viper.GetInt64("FORMAT_CACHE_CAP_MB"),
			TTL:     time.Duration(formatTTLSec) * time.Second,
		},
		BlobStore: BlobStoreConfig{
			CapMB: viper.GetInt64("BLOB_STORE_CAP_MB"),
		},
		Compile: CompileConfig{
			Timeout:          time.Duration(viper.GetInt("COMPILE_TIMEOUT_MS")) * time.Millisecond,
			MaxProjectSizeMB: viper.GetInt64("MAX_PROJECT_SIZE_MB"),
			BlockingPoolSize: viper.GetInt("BLOCKING_POOL_SIZE"),
		},
		Bundle: BundleConfig{
			Source:          viper.GetString("BUNDLE_SOURCE"),
			LocalDir:        viper.GetString("BUNDLE_LOCAL_DIR"),
			MinioArchiveKey: viper.GetString("BUNDLE_MINIO_KEY"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		MongoDB: MongoDBConfig{
			URI:      os.Getenv("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
		Webhook: WebhookConfig{
			JWTSecret: os.Getenv("WEBHOOK_JWT_SECRET"),
		},
	}

	return cfg, nil
}

func parseNonNegativeInt(raw string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(raw, "%d", &n)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("expected a non-negative integer, got %q", raw)
	}
	return n, nil
}
