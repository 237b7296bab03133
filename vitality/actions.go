package vitality

import (
	"time"

	"buddy-vitality-service/models"
)

// FeedGain is the HP a meal is worth before clamping.
func FeedGain(healthy bool, r Rates) int {
	if healthy {
		return r.HealthyFoodHP
	}
	return r.UnhealthyFoodHP
}

// ApplyFeed layers a meal on top of a settled state and reports the HP actually gained.
func ApplyFeed(s models.Buddy, healthy bool, now time.Time, r Rates) (models.Buddy, int) {
	before := s.HP
	s.HP = Clamp(s.HP + FeedGain(healthy, r))
	fed := now
	s.LastFed = &fed
	return s, s.HP - before
}

// NormalizeCups maps a missing or non-positive cup count to the minimum of one.
func NormalizeCups(cups int) int {
	if cups < 1 {
		return 1
	}
	return cups
}

// ApplyDrink adds cups to the daily tally (unbounded) and HP (clamped).
func ApplyDrink(s models.Buddy, cups int, now time.Time, r Rates) models.Buddy {
	cups = NormalizeCups(cups)
	s.WaterConsumed += cups
	s.HP = Clamp(s.HP + cups*r.HPPerCup)
	drank := now
	s.LastDrank = &drank
	return s
}

// WaterGoalMet reports whether today's tally reached the goal.
func WaterGoalMet(s models.Buddy, r Rates) bool {
	return r.DailyWaterGoal > 0 && s.WaterConsumed >= r.DailyWaterGoal
}

// FallAsleep moves an awake, settled buddy to ASLEEP.
func FallAsleep(s models.Buddy, now time.Time) models.Buddy {
	s.IsSleeping = true
	start := now
	s.SleepStartTime = &start
	return s
}

// SleepSummary describes a completed sleep.
type SleepSummary struct {
	HoursSlept float64 `json:"hours_slept"`
	Restful    bool    `json:"restful"`
	BonusHP    int     `json:"bonus_hp"`
}

// Wake moves a settled, sleeping buddy to AWAKE. Energy recovery for the sleep has
// already been applied by reconciliation while IsSleeping was true; Wake books the
// hours and grants the restful bonus.
func Wake(s models.Buddy, now time.Time, loc *time.Location, r Rates) (models.Buddy, SleepSummary) {
	var summary SleepSummary
	if s.SleepStartTime != nil {
		slept := now.Sub(*s.SleepStartTime)
		if slept < 0 {
			slept = 0
		}
		summary.HoursSlept = slept.Hours()
		summary.Restful = slept >= r.RestfulSleepMin && slept <= r.RestfulSleepMax
	}

	if s.LastSleepDate == nil || !SameDay(*s.LastSleepDate, now, loc) {
		s.TotalSleepHours = 0
	}
	s.TotalSleepHours += summary.HoursSlept
	today := now
	s.LastSleepDate = &today

	if summary.Restful {
		before := s.HP
		s.HP = Clamp(s.HP + r.RestfulSleepHP)
		summary.BonusHP = s.HP - before
	}

	s.IsSleeping = false
	s.SleepStartTime = nil
	return s, summary
}
