package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/shehryarbajwa/visitrace/internal/activity"
	"github.com/shehryarbajwa/visitrace/internal/enrichment"
)

// Config holds the agent settings
type Config struct {
	Address            string
	DatabasePath       string
	IPLookupURL        string
	GeoLookupURL       string
	IdleThreshold      time.Duration
	FlushOnce          bool
	HTTPTimeout        time.Duration
	GeolocationTimeout time.Duration
	SessionTTL         time.Duration
	MaxTabsPerHost     int
	RateLimitPerHour   int
	RateLimitBurst     int
}

// Load reads .env (if present) and then the environment
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables and defaults
func FromEnv() (*Config, error) {
	cfg := &Config{
		Address:      getString("VISITRACE_ADDRESS", "127.0.0.1:8123"),
		DatabasePath: os.Getenv("VISITRACE_DB_PATH"),
		IPLookupURL:  getString("VISITRACE_IP_LOOKUP_URL", enrichment.DefaultIPLookupURL),
		GeoLookupURL: getString("VISITRACE_GEO_LOOKUP_URL", enrichment.DefaultGeoLookupURL),
	}

	var err error
	if cfg.IdleThreshold, err = getDuration("VISITRACE_IDLE_THRESHOLD", activity.DefaultIdleThreshold); err != nil {
		return nil, err
	}
	if cfg.FlushOnce, err = getBool("VISITRACE_FLUSH_ONCE", true); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getDuration("VISITRACE_HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.GeolocationTimeout, err = getDuration("VISITRACE_GEOLOCATION_TIMEOUT", 0); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("VISITRACE_SESSION_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxTabsPerHost, err = getInt("VISITRACE_MAX_TABS", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerHour, err = getInt("VISITRACE_RATE_LIMIT", 600); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getInt("VISITRACE_RATE_BURST", 20); err != nil {
		return nil, err
	}

	if cfg.DatabasePath == "" {
		if cfg.DatabasePath, err = defaultDatabasePath(); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.IdleThreshold <= 0 {
		return fmt.Errorf("VISITRACE_IDLE_THRESHOLD must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("VISITRACE_SESSION_TTL must be positive")
	}
	if c.MaxTabsPerHost < 1 {
		return fmt.Errorf("VISITRACE_MAX_TABS must be at least 1")
	}
	if c.RateLimitPerHour < 1 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit and burst must be at least 1")
	}
	if c.GeolocationTimeout < 0 || c.HTTPTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}

// defaultDatabasePath picks the platform app-data directory
func defaultDatabasePath() (string, error) {
	homeDirectory, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	var applicationDirectory string
	switch runtime.GOOS {
	case "darwin":
		applicationDirectory = filepath.Join(homeDirectory, "Library", "Application Support", "Visitrace")
	case "windows":
		applicationDirectory = filepath.Join(homeDirectory, "AppData", "Roaming", "Visitrace")
	default: // linux and others
		applicationDirectory = filepath.Join(homeDirectory, ".local", "share", "Visitrace")
	}
	return filepath.Join(applicationDirectory, "visitor.db"), nil
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
