// Package vitality holds the pure math of the buddy simulation: how HP and
// energy drift over elapsed time and what each care action is worth.
//
// Nothing in here touches storage or the wall clock; callers pass "now".
package vitality

import (
	"fmt"
	"time"
)

// Rates are the tunable constants of the simulation. Per-hour values are
// points per hour of elapsed wall-clock time.
type Rates struct {
	BaseHPDecayPerHour   float64       `yaml:"base_hp_decay_per_hour"`
	HungerPenaltyPerHour float64       `yaml:"hunger_penalty_per_hour"`
	ThirstPenaltyPerHour float64       `yaml:"thirst_penalty_per_hour"`
	HungryAfter          time.Duration `yaml:"hungry_after"`
	ThirstyAfter         time.Duration `yaml:"thirsty_after"`

	AwakeEnergyDecayPerHour    float64 `yaml:"awake_energy_decay_per_hour"`
	SleepEnergyRecoveryPerHour float64 `yaml:"sleep_energy_recovery_per_hour"`

	HealthyFoodHP   int `yaml:"healthy_food_hp"`
	UnhealthyFoodHP int `yaml:"unhealthy_food_hp"`
	HPPerCup        int `yaml:"hp_per_cup"`
	DailyWaterGoal  int `yaml:"daily_water_goal"`

	RestfulSleepMin time.Duration `yaml:"restful_sleep_min"`
	RestfulSleepMax time.Duration `yaml:"restful_sleep_max"`
	RestfulSleepHP  int           `yaml:"restful_sleep_hp"`

	// LowThreshold is inclusive: a stat at or below it needs attention.
	LowThreshold int `yaml:"low_threshold"`

	// MinResolution is the smallest elapsed window worth a write.
	MinResolution time.Duration `yaml:"min_resolution"`

	// ToggleCooldown is the quiet period after a sleep toggle completes.
	ToggleCooldown time.Duration `yaml:"toggle_cooldown"`
}

// Default simulation constants.
const (
	DefaultBaseHPDecayPerHour         = 0.5
	DefaultHungerPenaltyPerHour       = 1.5
	DefaultThirstPenaltyPerHour       = 1.5
	DefaultHungryAfter                = 6 * time.Hour
	DefaultThirstyAfter               = 4 * time.Hour
	DefaultAwakeEnergyDecayPerHour    = 0.7
	DefaultSleepEnergyRecoveryPerHour = 10.0
	DefaultHealthyFoodHP              = 15
	DefaultUnhealthyFoodHP            = 5
	DefaultHPPerCup                   = 2
	DefaultDailyWaterGoal             = 8
	DefaultRestfulSleepMin            = 6 * time.Hour
	DefaultRestfulSleepMax            = 8 * time.Hour
	DefaultRestfulSleepHP             = 10
	DefaultLowThreshold               = 20
	DefaultMinResolution              = time.Minute
	DefaultToggleCooldown             = 2 * time.Second
)

// DefaultRates returns the canonical tuning.
func DefaultRates() Rates {
	return Rates{
		BaseHPDecayPerHour:         DefaultBaseHPDecayPerHour,
		HungerPenaltyPerHour:       DefaultHungerPenaltyPerHour,
		ThirstPenaltyPerHour:       DefaultThirstPenaltyPerHour,
		HungryAfter:                DefaultHungryAfter,
		ThirstyAfter:               DefaultThirstyAfter,
		AwakeEnergyDecayPerHour:    DefaultAwakeEnergyDecayPerHour,
		SleepEnergyRecoveryPerHour: DefaultSleepEnergyRecoveryPerHour,
		HealthyFoodHP:              DefaultHealthyFoodHP,
		UnhealthyFoodHP:            DefaultUnhealthyFoodHP,
		HPPerCup:                   DefaultHPPerCup,
		DailyWaterGoal:             DefaultDailyWaterGoal,
		RestfulSleepMin:            DefaultRestfulSleepMin,
		RestfulSleepMax:            DefaultRestfulSleepMax,
		RestfulSleepHP:             DefaultRestfulSleepHP,
		LowThreshold:               DefaultLowThreshold,
		MinResolution:              DefaultMinResolution,
		ToggleCooldown:             DefaultToggleCooldown,
	}
}

// Validate rejects tunings that would break the clamping or ordering rules.
func (r Rates) Validate() error {
	switch {
	case r.BaseHPDecayPerHour < 0, r.HungerPenaltyPerHour < 0, r.ThirstPenaltyPerHour < 0:
		return fmt.Errorf("hp decay rates must be non-negative")
	case r.AwakeEnergyDecayPerHour < 0, r.SleepEnergyRecoveryPerHour < 0:
		return fmt.Errorf("energy rates must be non-negative")
	case r.HungryAfter <= 0, r.ThirstyAfter <= 0:
		return fmt.Errorf("hunger and thirst thresholds must be positive")
	case r.HealthyFoodHP < 0, r.UnhealthyFoodHP < 0, r.HPPerCup < 0, r.RestfulSleepHP < 0:
		return fmt.Errorf("action bonuses must be non-negative")
	case r.RestfulSleepMin > r.RestfulSleepMax:
		return fmt.Errorf("restful sleep band is inverted: %s > %s", r.RestfulSleepMin, r.RestfulSleepMax)
	case r.LowThreshold < 0 || r.LowThreshold > 100:
		return fmt.Errorf("low threshold %d outside [0,100]", r.LowThreshold)
	case r.MinResolution < 0, r.ToggleCooldown < 0:
		return fmt.Errorf("durations must be non-negative")
	}
	return nil
}
