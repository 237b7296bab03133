package utils

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMealPhotoKey(t *testing.T) {
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "meals/user-123/green-salad-1773133200.jpg", MealPhotoKey("user-123", "Green Salad!", at))
	assert.Equal(t, "meals/user-123/meal-1773133200.jpg", MealPhotoKey("user-123", "???", at))
}

func TestLocalPhotoStore(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalPhotoStore(dir, "http://localhost:5200/photos/")
	require.NoError(t, err)

	url, err := s.Upload(context.Background(), "meals/u/x-1.jpg", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5200/photos/meals/u/x-1.jpg", url)

	data, err := os.ReadFile(filepath.Join(dir, "meals", "u", "x-1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	_, err = s.Upload(context.Background(), "../escape.jpg", []byte("x"), "image/jpeg")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buddy.log")
	logger, err := NewLogger("debug", path)
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)

	_, err = NewLogger("loud", "")
	assert.Error(t, err)
}
