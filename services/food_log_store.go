package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"buddy-vitality-service/models"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

// DefaultFoodLogLimit is the page size when the caller asks for none.
const DefaultFoodLogLimit = 20

// FoodLog keeps the history of feedings.
type FoodLog interface {
	Record(ctx context.Context, entry models.FoodEntry) (models.FoodEntry, error)
	// Recent returns at most limit entries, newest first.
	Recent(ctx context.Context, ownerID string, limit int) ([]models.FoodEntry, error)
}

// FoodEntryName derives a display name from the analyzer labels.
func FoodEntryName(a FoodAnalysis) string {
	for _, l := range a.Labels {
		if l = strings.TrimSpace(l); l != "" {
			return cases.Title(language.English).String(l)
		}
	}
	if a.IsHealthy {
		return "Healthy Meal"
	}
	return "Treat"
}

type FoodLogStore struct {
	DB *gorm.DB
}

func NewFoodLogStore(db *gorm.DB) *FoodLogStore {
	return &FoodLogStore{DB: db}
}

func (s *FoodLogStore) Record(ctx context.Context, entry models.FoodEntry) (models.FoodEntry, error) {
	entry.EatenAt = entry.EatenAt.UTC()
	if err := s.DB.WithContext(ctx).Create(&entry).Error; err != nil {
		return models.FoodEntry{}, persistErr("record_food", err)
	}
	return entry, nil
}

func (s *FoodLogStore) Recent(ctx context.Context, ownerID string, limit int) ([]models.FoodEntry, error) {
	if limit <= 0 {
		limit = DefaultFoodLogLimit
	}
	var entries []models.FoodEntry
	if err := s.DB.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("eaten_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, persistErr("recent_food", err)
	}
	return entries, nil
}

type MemoryFoodLog struct {
	mu      sync.Mutex
	entries []models.FoodEntry
}

func NewMemoryFoodLog() *MemoryFoodLog {
	return &MemoryFoodLog{}
}

func (m *MemoryFoodLog) Record(_ context.Context, entry models.FoodEntry) (models.FoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.EatenAt = entry.EatenAt.UTC()
	entry.CreatedAt = entry.EatenAt
	m.entries = append(m.entries, entry)
	return entry, nil
}

func (m *MemoryFoodLog) Recent(_ context.Context, ownerID string, limit int) ([]models.FoodEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FoodEntry
	for _, e := range m.entries {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EatenAt.After(out[j].EatenAt) })
	if limit <= 0 {
		limit = DefaultFoodLogLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
