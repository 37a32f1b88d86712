package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	os.Clearenv()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default listen port 8080, got %q", cfg.Server.Port)
	}
	if !cfg.PDFCache.Enabled || cfg.PDFCache.CapMB != 256 {
		t.Fatalf("unexpected PDF cache defaults: %+v", cfg.PDFCache)
	}
	if cfg.FormatCache.TTL != cfg.PDFCache.TTL {
		t.Fatalf("expected format cache TTL to default to PDF cache TTL, got %v vs %v", cfg.FormatCache.TTL, cfg.PDFCache.TTL)
	}
	if cfg.Compile.Timeout != 30*time.Second {
		t.Fatalf("expected default compile timeout 30s, got %v", cfg.Compile.Timeout)
	}
	if cfg.MongoDB.URI != "" {
		t.Fatalf("expected mongo disabled by default, got URI %q", cfg.MongoDB.URI)
	}
	if cfg.Bundle.Source != "local" {
		t.Fatalf("expected default bundle source local, got %q", cfg.Bundle.Source)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("LISTEN_PORT", "9090")
	os.Setenv("MONGODB_URI", "mongodb://localhost:27017/testdb")
	os.Setenv("MONGODB_DATABASE", "tachyontex_test")
	os.Setenv("REDIS_HOST", "localhost")
	os.Setenv("REDIS_PORT", "6379")
	os.Setenv("WEBHOOK_JWT_SECRET", "testsecret123456789012345678901234")
	os.Setenv("RATE_LIMIT_ENABLED", "true")
	os.Setenv("RATE_LIMIT_RPS", "7")
	os.Setenv("RATE_LIMIT_BURST", "12")
	os.Setenv("FORMAT_CACHE_TTL_SEC", "120")
	os.Setenv("PDF_CACHE_TTL_SEC", "3600")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("expected overridden listen port, got %q", cfg.Server.Port)
	}
	if cfg.MongoDB.URI == "" || cfg.Redis.Host == "" {
		t.Fatalf("unexpected empty config values: %+v", cfg)
	}
	if cfg.Webhook.JWTSecret == "" {
		t.Fatalf("expected webhook JWT secret to be set")
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RPS != 7 || cfg.RateLimit.Burst != 12 {
		t.Fatalf("rate limit not loaded correctly: %+v", cfg.RateLimit)
	}
	if cfg.FormatCache.TTL != 120*time.Second {
		t.Fatalf("expected format cache TTL override of 120s, got %v", cfg.FormatCache.TTL)
	}
	if cfg.PDFCache.TTL != 3600*time.Second {
		t.Fatalf("expected PDF cache TTL override of 3600s, got %v", cfg.PDFCache.TTL)
	}
}

func TestLoadConfigRejectsInvalidNumeric(t *testing.T) {
	os.Clearenv()
	os.Setenv("COMPILE_TIMEOUT_MS", "not-a-number")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected LoadConfig to reject a non-numeric COMPILE_TIMEOUT_MS")
	}
}
