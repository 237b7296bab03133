package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FoodEntry records one feeding: what the analyzer saw and what it did to HP.
type FoodEntry struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerID    string    `gorm:"index:idx_food_owner_eaten,priority:1;not null" json:"owner_id"`
	BuddyID    string    `gorm:"type:uuid;not null" json:"buddy_id"`
	Name       string    `gorm:"size:120" json:"name"`
	IsHealthy  bool      `json:"is_healthy"`
	Confidence float64   `json:"confidence"`
	Labels     []string  `gorm:"serializer:json" json:"labels"`
	HPGain     int       `json:"hp_gain"`
	PhotoURL   *string   `json:"photo_url,omitempty"`
	EatenAt    time.Time `gorm:"index:idx_food_owner_eaten,priority:2,sort:desc;not null" json:"eaten_at"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (e *FoodEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
