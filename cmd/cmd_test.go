package cmd

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"buddy-vitality-service/config"
	"buddy-vitality-service/models"
	"buddy-vitality-service/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestMigrateAndDedupe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buddy.db")

	out, err := run(t, "--sqlite", path, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Database migrated")

	db, err := openDB(config.DefaultConfig(), path)
	require.NoError(t, err)
	t0 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	older := models.NewBuddy("user-1", "Old", models.AppearanceWhite, t0)
	newer := models.NewBuddy("user-1", "New", models.AppearanceWhite, t0.Add(time.Hour))
	require.NoError(t, db.Create(&older).Error)
	require.NoError(t, db.Create(&newer).Error)
	closeDB(db)

	out, err = run(t, "--sqlite", path, "dedupe", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, "kept "+newer.ID+", removed 1")
}

func TestDedupe_RequiresOwner(t *testing.T) {
	_, err := run(t, "dedupe")
	assert.Error(t, err)
}

func TestOpenDB_NeedsDatabaseURL(t *testing.T) {
	_, err := openDB(config.DefaultConfig(), "")
	assert.Error(t, err)
}

func TestNewFoodAnalyzer_UsesItsOwnToken(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ServiceToken = "gateway-secret"
	cfg.FoodAnalyzerURL = "http://vision.internal"
	cfg.FoodAnalyzerToken = "vision-key"

	a, ok := newFoodAnalyzer(cfg).(*services.HTTPFoodAnalyzer)
	require.True(t, ok)
	assert.Equal(t, "vision-key", a.Token)
	assert.NotEqual(t, cfg.ServiceToken, a.Token)

	cfg.FoodAnalyzerURL = ""
	_, ok = newFoodAnalyzer(cfg).(*services.RandomFoodAnalyzer)
	assert.True(t, ok)
}
