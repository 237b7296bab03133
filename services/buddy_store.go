package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"buddy-vitality-service/models"

	"gorm.io/gorm"
)

// BuddyStore is the Postgres-backed BuddyGateway.
type BuddyStore struct {
	DB *gorm.DB
}

func NewBuddyStore(db *gorm.DB) *BuddyStore {
	return &BuddyStore{DB: db}
}

func (s *BuddyStore) FetchLatest(ctx context.Context, ownerID string) (models.Buddy, error) {
	var b models.Buddy
	err := s.DB.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("last_updated DESC").
		Order("version DESC").
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Buddy{}, ErrBuddyNotFound
	}
	if err != nil {
		return models.Buddy{}, persistErr("fetch", err)
	}
	return b, nil
}

// Upsert is a single conditional UPDATE so a partial write cannot happen and a row
// that already moved past state.LastUpdated is left alone.
func (s *BuddyStore) Upsert(ctx context.Context, ownerID string, state models.Buddy) (models.Buddy, error) {
	if state.ID == "" {
		return models.Buddy{}, fmt.Errorf("upsert: buddy id required")
	}
	state = normalizeTimes(state)
	state.OwnerID = ownerID
	state.Version++

	updates := map[string]interface{}{
		"hp":                state.HP,
		"energy":            state.Energy,
		"water_consumed":    state.WaterConsumed,
		"step_count":        state.StepCount,
		"is_sleeping":       state.IsSleeping,
		"hp_carry":          state.HPCarry,
		"energy_carry":      state.EnergyCarry,
		"sleep_start_time":  state.SleepStartTime,
		"total_sleep_hours": state.TotalSleepHours,
		"last_sleep_date":   state.LastSleepDate,
		"last_updated":      state.LastUpdated,
		"last_fed":          state.LastFed,
		"last_drank":        state.LastDrank,
		"version":           state.Version,
	}

	result := s.DB.WithContext(ctx).
		Model(&models.Buddy{}).
		Where("id = ? AND owner_id = ? AND last_updated <= ?", state.ID, ownerID, state.LastUpdated).
		Updates(updates)
	if result.Error != nil {
		return models.Buddy{}, persistErr("upsert", result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.DB.WithContext(ctx).Model(&models.Buddy{}).
			Where("id = ? AND owner_id = ?", state.ID, ownerID).
			Count(&count).Error; err != nil {
			return models.Buddy{}, persistErr("upsert", err)
		}
		if count == 0 {
			return models.Buddy{}, ErrBuddyNotFound
		}
		return models.Buddy{}, ErrStaleWrite
	}

	var saved models.Buddy
	if err := s.DB.WithContext(ctx).First(&saved, "id = ?", state.ID).Error; err != nil {
		// the write landed; hand back what we wrote
		return state, nil
	}
	return saved, nil
}

func (s *BuddyStore) Create(ctx context.Context, b models.Buddy) (models.Buddy, error) {
	b = normalizeTimes(b)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Buddy{}).Where("owner_id = ?", b.OwnerID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrBuddyExists
		}
		return tx.Create(&b).Error
	})
	if err != nil {
		return models.Buddy{}, persistErr("create", err)
	}
	return b, nil
}

func (s *BuddyStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Buddy, error) {
	var rows []models.Buddy
	if err := s.DB.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("last_updated DESC").
		Order("version DESC").
		Find(&rows).Error; err != nil {
		return nil, persistErr("list", err)
	}
	return rows, nil
}

func (s *BuddyStore) DeleteByIDs(ctx context.Context, ownerID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.DB.WithContext(ctx).
		Where("owner_id = ? AND id IN ?", ownerID, ids).
		Delete(&models.Buddy{})
	if result.Error != nil {
		return 0, persistErr("delete", result.Error)
	}
	return result.RowsAffected, nil
}

// normalizeTimes stores every timestamp in UTC so comparisons in SQL are consistent.
func normalizeTimes(b models.Buddy) models.Buddy {
	b.LastUpdated = b.LastUpdated.UTC()
	b.SleepStartTime = utcPtr(b.SleepStartTime)
	b.LastSleepDate = utcPtr(b.LastSleepDate)
	b.LastFed = utcPtr(b.LastFed)
	b.LastDrank = utcPtr(b.LastDrank)
	return b
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
