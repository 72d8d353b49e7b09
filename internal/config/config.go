package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is empty")
	ErrBadRateLimit       = errors.New("rate limit must be positive")
)

// Default stored procedure names called by the edge functions.
const (
	DefaultTripFlowsRPC  = "analyze_trip_flows_v3"
	DefaultMonthlyAggRPC = "monthly_agg_v2"
)

// Config holds server configuration. Values come from an optional YAML file
// (CONFIG_FILE) and are then overridden by environment variables.
type Config struct {
	Port           string        `yaml:"port"`
	DatabaseURL    string        `yaml:"database_url"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	TripFlowsRPC   string        `yaml:"trip_flows_rpc"`
	MonthlyAggRPC  string        `yaml:"monthly_agg_rpc"`
	SlowQuery      time.Duration `yaml:"slow_query"`
	ShareBaseURL   string        `yaml:"share_base_url"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:           "5050",
		AllowedOrigins: []string{"*"},
		RateLimitRPS:   10,
		RateLimitBurst: 20,
		MaxBodyBytes:   1 << 20, // 1 MiB
		TripFlowsRPC:   DefaultTripFlowsRPC,
		MonthlyAggRPC:  DefaultMonthlyAggRPC,
		SlowQuery:      100 * time.Millisecond,
		ShareBaseURL:   "http://localhost:5173/",
	}
}

// LoadFromEnv loads configuration from CONFIG_FILE (if set) and the environment.
//
// Environment variables:
//   - CONFIG_FILE: optional YAML file with the same keys as Config
//   - PORT: listen port (default: 5050)
//   - DATABASE_URL: Postgres DSN (required)
//   - ALLOWED_ORIGINS: comma separated CORS origins (default: *)
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST: per-client token bucket
//   - MAX_BODY_BYTES: request body cap
//   - TRIP_FLOWS_RPC, MONTHLY_AGG_RPC: stored procedure names
//   - SLOW_QUERY_MS: RPC calls slower than this are logged
//   - SHARE_BASE_URL: frontend URL share links point at
func LoadFromEnv() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := Overlay(&cfg, raw); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Overlay decodes YAML onto cfg. Keys absent from raw keep their current value.
func Overlay(cfg *Config, raw []byte) error {
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("PORT", &cfg.Port)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("TRIP_FLOWS_RPC", &cfg.TripFlowsRPC)
	str("MONTHLY_AGG_RPC", &cfg.MonthlyAggRPC)
	str("SHARE_BASE_URL", &cfg.ShareBaseURL)

	if v := strings.TrimSpace(getenv("ALLOWED_ORIGINS")); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.AllowedOrigins = origins
	}

	if v := strings.TrimSpace(getenv("RATE_LIMIT_RPS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimitRPS = f
	}
	if v := strings.TrimSpace(getenv("RATE_LIMIT_BURST")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimitBurst = n
	}
	if v := strings.TrimSpace(getenv("MAX_BODY_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_BODY_BYTES: %w", err)
		}
		cfg.MaxBodyBytes = n
	}
	if v := strings.TrimSpace(getenv("SLOW_QUERY_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SLOW_QUERY_MS: %w", err)
		}
		cfg.SlowQuery = time.Duration(n) * time.Millisecond
	}
	return nil
}

// Validate checks the configuration is usable for serving requests.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return ErrBadRateLimit
	}
	return nil
}
