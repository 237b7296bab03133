package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // X-Timezone names resolve without host zoneinfo

	"buddy-vitality-service/vitality"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Config holds all service configuration
type Config struct {
	// Server
	Port           string
	AllowedOrigins []string
	ServiceToken   string

	// Storage
	DatabaseURL string
	RedisAddr   string
	SnapshotTTL time.Duration

	// Logging
	LogLevel string
	LogFile  string

	// Simulation
	TickInterval    time.Duration
	DefaultTimezone string
	RatesFile       string
	Rates           vitality.Rates

	// Rate limiting for care actions, per user
	RateLimitActions rate.Limit
	RateLimitBurst   int

	// External APIs
	PerplexityAPIKey  string
	PerplexityBaseURL string
	NutritionModel    string
	FoodAnalyzerURL   string
	FoodAnalyzerToken string
	AuthServiceURL    string
	AuthServiceToken  string

	// R2 meal photos
	CloudflareAccountID string
	R2AccessKeyID       string
	R2AccessKeySecret   string
	R2BucketName        string
	CDNBaseURL          string
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Port:              "5200",
		AllowedOrigins:    []string{"http://localhost:3000"},
		SnapshotTTL:       10 * time.Minute,
		LogLevel:          "info",
		TickInterval:      time.Minute,
		DefaultTimezone:   "UTC",
		Rates:             vitality.DefaultRates(),
		RateLimitActions:  5,
		RateLimitBurst:    10,
		PerplexityBaseURL: "https://api.perplexity.ai",
		NutritionModel:    "sonar",
	}
}

// LoadFromEnv loads configuration from environment variables. Rates are then
// overlaid from VITALITY_CONFIG when set.
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	cfg.ServiceToken = os.Getenv("BUDDY_SERVICE_TOKEN")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if ttl := os.Getenv("SNAPSHOT_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil && d > 0 {
			cfg.SnapshotTTL = d
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	cfg.LogFile = os.Getenv("LOG_FILE")

	if tick := os.Getenv("TICK_INTERVAL"); tick != "" {
		if d, err := time.ParseDuration(tick); err == nil && d > 0 {
			cfg.TickInterval = d
		}
	}
	if tz := os.Getenv("DEFAULT_TIMEZONE"); tz != "" {
		cfg.DefaultTimezone = tz
	}

	if rl := os.Getenv("RATE_LIMIT_ACTIONS"); rl != "" {
		if val, err := strconv.Atoi(rl); err == nil && val > 0 {
			cfg.RateLimitActions = rate.Limit(val)
		}
	}
	if b := os.Getenv("RATE_LIMIT_BURST"); b != "" {
		if val, err := strconv.Atoi(b); err == nil && val > 0 {
			cfg.RateLimitBurst = val
		}
	}

	cfg.PerplexityAPIKey = os.Getenv("PERPLEXITY_API_KEY")
	if u := os.Getenv("PERPLEXITY_BASE_URL"); u != "" {
		cfg.PerplexityBaseURL = u
	}
	if m := os.Getenv("NUTRITION_MODEL"); m != "" {
		cfg.NutritionModel = m
	}
	cfg.FoodAnalyzerURL = os.Getenv("FOOD_ANALYZER_URL")
	cfg.FoodAnalyzerToken = os.Getenv("FOOD_ANALYZER_TOKEN")
	cfg.AuthServiceURL = os.Getenv("AUTH_SERVICE_URL")
	cfg.AuthServiceToken = os.Getenv("AUTH_SERVICE_TOKEN")

	cfg.CloudflareAccountID = os.Getenv("CLOUDFLARE_ACCOUNT_ID")
	cfg.R2AccessKeyID = os.Getenv("R2_ACCESS_KEY_ID")
	cfg.R2AccessKeySecret = os.Getenv("R2_ACCESS_KEY_SECRET")
	cfg.R2BucketName = os.Getenv("R2_BUCKET_NAME")
	cfg.CDNBaseURL = os.Getenv("CDN_BASE_URL")

	if path := os.Getenv("VITALITY_CONFIG"); path != "" {
		cfg.RatesFile = path
		rates, err := LoadRates(path)
		if err != nil {
			return cfg, err
		}
		cfg.Rates = rates
	}

	if _, err := cfg.Location(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Location resolves DefaultTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	return loc, nil
}

// R2Enabled reports whether meal photo upload is configured.
func (c *Config) R2Enabled() bool {
	return c.CloudflareAccountID != "" && c.R2AccessKeyID != "" && c.R2AccessKeySecret != "" && c.R2BucketName != ""
}

// parseOrigins parses comma-separated origins
func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// LoadRates reads a YAML overlay on top of the default rates. Keys left out keep
// their defaults.
func LoadRates(path string) (vitality.Rates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vitality.DefaultRates(), fmt.Errorf("read rates: %w", err)
	}
	return ParseRates(data)
}

// ParseRates decodes YAML rates over the defaults and rejects invalid tunings.
func ParseRates(data []byte) (vitality.Rates, error) {
	rates := vitality.DefaultRates()
	if err := yaml.Unmarshal(data, &rates); err != nil {
		return vitality.DefaultRates(), fmt.Errorf("parse rates: %w", err)
	}
	if err := rates.Validate(); err != nil {
		return vitality.DefaultRates(), fmt.Errorf("invalid rates: %w", err)
	}
	return rates, nil
}
