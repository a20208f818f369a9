// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // SETTLEMENT_TIMEZONE must resolve on minimal images
)

// Config is read once at startup and treated as immutable.
type Config struct {
	DatabaseURL string

	// Settlement schedule. Interval, when set, replaces the cron expression.
	SettlementCron     string
	SettlementInterval time.Duration
	SettlementLocation *time.Location
	TxTimeout          time.Duration // per challenge / per user transaction
	JobTimeout         time.Duration // one whole job run

	// Inactivity penalty
	InactivityWindowDays int
	InactivityPenalty    int

	// Ops server
	ServerPort        string
	AdminServiceToken string // empty disables /admin routes

	LogLevel string

	// Run report archive (R2). Disabled unless bucket and credentials are set.
	R2AccountID       string
	R2AccessKeyID     string
	R2AccessKeySecret string
	R2Bucket          string
	ReportKeyPrefix   string
}

// Load reads Config from the environment. DATABASE_URL is required.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variables are not set: [DATABASE_URL]")
	}

	cfg.SettlementCron = getEnvString("SETTLEMENT_CRON", "0 0 * * *")
	cfg.SettlementInterval = getEnvDuration("SETTLEMENT_INTERVAL", 0)

	tz := getEnvString("SETTLEMENT_TIMEZONE", "Local")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_TIMEZONE %q: %w", tz, err)
	}
	cfg.SettlementLocation = loc

	cfg.TxTimeout = getEnvDuration("SETTLEMENT_TX_TIMEOUT", 30*time.Second)
	cfg.JobTimeout = getEnvDuration("SETTLEMENT_JOB_TIMEOUT", 30*time.Minute)
	cfg.InactivityWindowDays = getEnvInt("INACTIVITY_WINDOW_DAYS", 14)
	cfg.InactivityPenalty = getEnvInt("INACTIVITY_PENALTY_POINTS", 20)

	cfg.ServerPort = getEnvString("SERVER_PORT", "5200")
	cfg.AdminServiceToken = os.Getenv("ADMIN_SERVICE_TOKEN")
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))

	cfg.R2AccountID = os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	cfg.R2AccessKeyID = os.Getenv("R2_ACCESS_KEY_ID")
	cfg.R2AccessKeySecret = os.Getenv("R2_ACCESS_KEY_SECRET")
	cfg.R2Bucket = os.Getenv("R2_BUCKET_NAME")
	cfg.ReportKeyPrefix = strings.Trim(getEnvString("REPORT_KEY_PREFIX", "settlement-runs"), "/")

	if cfg.InactivityWindowDays < 0 {
		return nil, fmt.Errorf("INACTIVITY_WINDOW_DAYS must not be negative, got %d", cfg.InactivityWindowDays)
	}

	return cfg, nil
}

// ReportsEnabled reports whether run summaries should be archived to R2.
func (c *Config) ReportsEnabled() bool {
	return c.R2Bucket != "" && c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
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

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
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
