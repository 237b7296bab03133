package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"buddy-vitality-service/vitality"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "5200", cfg.Port)
	assert.Equal(t, time.Minute, cfg.TickInterval)
	assert.Equal(t, vitality.DefaultRates(), cfg.Rates)
	assert.False(t, cfg.R2Enabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("TICK_INTERVAL", "30s")
	t.Setenv("DEFAULT_TIMEZONE", "America/New_York")
	t.Setenv("RATE_LIMIT_ACTIONS", "3")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")
	t.Setenv("BUDDY_SERVICE_TOKEN", "secret")
	t.Setenv("FOOD_ANALYZER_TOKEN", "vision-key")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 30*time.Second, cfg.TickInterval)
	assert.Equal(t, rate.Limit(3), cfg.RateLimitActions)
	assert.Equal(t, 10, cfg.RateLimitBurst, "invalid values keep the default")
	assert.Equal(t, "secret", cfg.ServiceToken)
	assert.Equal(t, "vision-key", cfg.FoodAnalyzerToken)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestLoadFromEnv_BadTimezone(t *testing.T) {
	t.Setenv("DEFAULT_TIMEZONE", "Mars/Olympus")
	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestLoadRatesOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_hp_decay_per_hour: 1.0\nhungry_after: 5h\nlow_threshold: 25\n"), 0o644))
	t.Setenv("VITALITY_CONFIG", path)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 1.0, cfg.Rates.BaseHPDecayPerHour)
	assert.Equal(t, 5*time.Hour, cfg.Rates.HungryAfter)
	assert.Equal(t, 25, cfg.Rates.LowThreshold)
	assert.Equal(t, vitality.DefaultThirstyAfter, cfg.Rates.ThirstyAfter, "untouched keys keep defaults")
}

func TestParseRates_Invalid(t *testing.T) {
	_, err := ParseRates([]byte("restful_sleep_min: 9h\nrestful_sleep_max: 8h\n"))
	assert.Error(t, err)

	_, err = ParseRates([]byte("hungry_after: [not, a, duration]"))
	assert.Error(t, err)
}
