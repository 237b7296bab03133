package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Stat bounds shared by HP and energy.
const (
	MinStat = 0
	MaxStat = 100
)

// MaxNameLength is counted in runes, not bytes.
const MaxNameLength = 12

// Appearance selects the visual skin of a buddy. Set once at creation.
type Appearance string

const (
	AppearanceBlack     Appearance = "black"
	AppearanceChristmas Appearance = "christmas"
	AppearanceWhite     Appearance = "white"
	AppearanceBatman    Appearance = "batman"
)

// Appearances lists every selectable skin, in the order the picker shows them.
var Appearances = []Appearance{
	AppearanceBlack,
	AppearanceChristmas,
	AppearanceWhite,
	AppearanceBatman,
}

// Valid reports whether a is one of the known skins.
func (a Appearance) Valid() bool {
	for _, known := range Appearances {
		if a == known {
			return true
		}
	}
	return false
}

// Buddy is the persisted vitality state of one user's pet.
// One active (non soft-deleted) row per owner; duplicates are healed on session start.
type Buddy struct {
	ID         string     `gorm:"primaryKey;type:uuid" json:"id"`
	OwnerID    string     `gorm:"index;not null" json:"owner_id"`
	Name       string     `gorm:"size:48;not null" json:"name"`
	Appearance Appearance `gorm:"size:16;not null" json:"appearance"`

	// Vitals
	HP            int  `json:"hp" gorm:"not null;default:100"`
	Energy        int  `json:"energy" gorm:"not null;default:100"`
	WaterConsumed int  `json:"water_consumed" gorm:"not null;default:0"`
	StepCount     int  `json:"step_count" gorm:"not null;default:0"`
	IsSleeping    bool `json:"is_sleeping" gorm:"not null;default:false"`

	// Sub-point remainders left over after rounding the last applied delta.
	HPCarry     float64 `json:"-" gorm:"not null;default:0"`
	EnergyCarry float64 `json:"-" gorm:"not null;default:0"`

	// Sleep tracking
	SleepStartTime  *time.Time `json:"sleep_start_time,omitempty"`
	TotalSleepHours float64    `json:"total_sleep_hours" gorm:"not null;default:0"`
	LastSleepDate   *time.Time `json:"last_sleep_date,omitempty"`

	// LastUpdated is the as-of marker for reconciled decay. Never decreases.
	LastUpdated time.Time  `json:"last_updated" gorm:"index;not null"`
	LastFed     *time.Time `json:"last_fed,omitempty"`
	LastDrank   *time.Time `json:"last_drank,omitempty"`

	Version int64 `json:"version" gorm:"not null;default:0"`

	Timestamps
}

// TableName pins the table name used by raw queries and the CLI.
func (Buddy) TableName() string {
	return "buddies"
}

// BeforeCreate assigns a UUID when the caller did not.
func (b *Buddy) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// NewBuddy returns a freshly hatched buddy with full stats, as-of now.
func NewBuddy(ownerID, name string, appearance Appearance, now time.Time) Buddy {
	return Buddy{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Appearance:  appearance,
		HP:          MaxStat,
		Energy:      MaxStat,
		LastUpdated: now,
	}
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
