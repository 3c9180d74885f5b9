package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort            = "8080"
	defaultMediaRoot       = "./media"
	defaultThumbnailDir    = "./media/thumbnails"
	defaultMaxUploadSize   = "52428800" // 50 MB
	defaultSessionTTL      = "24h"
	defaultGCWorkers       = "2"
	defaultGCSweepInterval = "1h"
	defaultJWTSecret       = "change-me-jwt-secret"
	defaultJWTTTL          = "24h"
)

// Config holds runtime configuration for the media store.
type Config struct {
	Port            string
	DatabaseURL     string
	MediaRoot       string
	ThumbnailDir    string
	MaxUploadSize   int64
	SessionTTL      time.Duration
	GCWorkers       int
	GCSweepInterval time.Duration
	JWTSecret       string
	JWTTTL          time.Duration
	AppEnv          string
}

func Load() (*Config, error) {
	cfg := &Config{}

	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.Port = strings.TrimSpace(getEnv("PORT", defaultPort))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MediaRoot = strings.TrimSpace(getEnv("MEDIA_ROOT", defaultMediaRoot))
	cfg.ThumbnailDir = strings.TrimSpace(getEnv("THUMBNAIL_DIR", defaultThumbnailDir))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))

	var err error
	cfg.MaxUploadSize, err = parseInt64Env("MAX_UPLOAD_SIZE_BYTES", defaultMaxUploadSize)
	if err != nil {
		return nil, err
	}

	cfg.SessionTTL, err = parseDurationEnv("SESSION_TTL", defaultSessionTTL)
	if err != nil {
		return nil, err
	}

	cfg.GCSweepInterval, err = parseDurationEnv("GC_SWEEP_INTERVAL", defaultGCSweepInterval)
	if err != nil {
		return nil, err
	}

	cfg.JWTTTL, err = parseDurationEnv("JWT_TTL", defaultJWTTTL)
	if err != nil {
		return nil, err
	}

	workers, err := parseInt64Env("GC_WORKERS", defaultGCWorkers)
	if err != nil {
		return nil, err
	}
	cfg.GCWorkers = int(workers)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE_BYTES must be > 0")
	}
	if cfg.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if cfg.GCWorkers <= 0 {
		return fmt.Errorf("GC_WORKERS must be > 0")
	}
	if cfg.GCSweepInterval <= 0 {
		return fmt.Errorf("GC_SWEEP_INTERVAL must be > 0")
	}
	if isProdLike(cfg.AppEnv) && (cfg.JWTSecret == "" || cfg.JWTSecret == defaultJWTSecret) {
		return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
	}
	return nil
}

func isProdLike(env string) bool {
	return env == "prod" || env == "production" || env == "release"
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseInt64Env(name, fallback string) (int64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
