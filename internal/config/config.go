package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the GeoScan server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Engine   EngineConfig
	Mail     MailConfig
	Credits  CreditsConfig
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

// EngineConfig points at the external workflow engine that performs the
// actual AI analysis. The secret is server-side only and never leaves
// this process.
type EngineConfig struct {
	BaseURL  string
	Secret   string
	AuthMode string // "hmac" or "shared"
	Timeout  time.Duration
}

type MailConfig struct {
	BaseURL string
	APIKey  string
	From    string
	To      string
	Timeout time.Duration
}

// CreditsConfig carries the price table and the monthly free quota.
// Business constants, kept as configuration rather than code.
type CreditsConfig struct {
	MonitoringPerModel int
	Diagnosis          int
	Simulation         int
	MonthlyFreeQuota   int
}

var validAuthModes = map[string]bool{
	"hmac":   true,
	"shared": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("GEOSCAN_PORT", 8080),
			Env:  envString("GEOSCAN_ENV", "development"),
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
		Engine: EngineConfig{
			BaseURL:  os.Getenv("ENGINE_BASE_URL"),
			Secret:   os.Getenv("ENGINE_SECRET"),
			AuthMode: envString("ENGINE_AUTH_MODE", "hmac"),
			Timeout:  envDuration("ENGINE_TIMEOUT", 15*time.Second),
		},
		Mail: MailConfig{
			BaseURL: envString("MAIL_BASE_URL", "https://api.resend.com"),
			APIKey:  os.Getenv("MAIL_API_KEY"),
			From:    envString("MAIL_FROM", "GeoScan <noreply@geoscan.app>"),
			To:      os.Getenv("MAIL_INQUIRY_TO"),
			Timeout: envDuration("MAIL_TIMEOUT", 10*time.Second),
		},
		Credits: CreditsConfig{
			MonitoringPerModel: envInt("CREDITS_MONITORING_PER_MODEL", 2),
			Diagnosis:          envInt("CREDITS_DIAGNOSIS", 5),
			Simulation:         envInt("CREDITS_SIMULATION", 3),
			MonthlyFreeQuota:   envInt("CREDITS_MONTHLY_FREE_QUOTA", 10),
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

	if c.Engine.BaseURL == "" {
		return fmt.Errorf("ENGINE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Engine.BaseURL, "http://") && !strings.HasPrefix(c.Engine.BaseURL, "https://") {
		return fmt.Errorf("ENGINE_BASE_URL must start with http:// or https://, got %q", c.Engine.BaseURL)
	}
	if c.Engine.Secret == "" {
		return fmt.Errorf("ENGINE_SECRET is required")
	}
	if !validAuthModes[c.Engine.AuthMode] {
		return fmt.Errorf("ENGINE_AUTH_MODE must be one of hmac, shared; got %q", c.Engine.AuthMode)
	}

	if c.Mail.APIKey == "" {
		return fmt.Errorf("MAIL_API_KEY is required")
	}
	if c.Mail.To == "" {
		return fmt.Errorf("MAIL_INQUIRY_TO is required")
	}

	if c.Credits.MonitoringPerModel <= 0 || c.Credits.Diagnosis <= 0 || c.Credits.Simulation <= 0 {
		return fmt.Errorf("credit prices must be positive")
	}
	if c.Credits.MonthlyFreeQuota < 0 {
		return fmt.Errorf("CREDITS_MONTHLY_FREE_QUOTA must not be negative")
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
