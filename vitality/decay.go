package vitality

import (
	"math"
	"time"

	"buddy-vitality-service/models"
)

// Delta is the outcome of one decay pass. A Noop delta must not be persisted.
type Delta struct {
	Noop         bool
	ElapsedHours float64
	HPRate       float64

	HPDelta     int
	EnergyDelta int
	HPCarry     float64
	EnergyCarry float64

	// DayRolled is true when "now" falls on a later local calendar day than LastUpdated.
	DayRolled       bool
	ResetSleepTotal bool

	LastUpdated time.Time
}

// Clamp bounds a stat to [MinStat, MaxStat].
func Clamp(v int) int {
	if v < models.MinStat {
		return models.MinStat
	}
	if v > models.MaxStat {
		return models.MaxStat
	}
	return v
}

// SameDay reports whether a and b share a calendar date in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// HPDecayRate is the per-hour HP loss for a window of the given length.
// Hunger and thirst penalties key off the window itself (unified clock) and stack.
func HPDecayRate(elapsed time.Duration, r Rates) float64 {
	rate := r.BaseHPDecayPerHour
	if elapsed > r.HungryAfter {
		rate += r.HungerPenaltyPerHour
	}
	if elapsed > r.ThirstyAfter {
		rate += r.ThirstPenaltyPerHour
	}
	return rate
}

// ComputeDecay works out how far s has drifted between s.LastUpdated and now.
// A clock that runs behind LastUpdated yields zero elapsed time, never negative.
func ComputeDecay(s models.Buddy, now time.Time, loc *time.Location, force bool, r Rates) Delta {
	elapsed := now.Sub(s.LastUpdated)
	if elapsed < 0 {
		elapsed = 0
	}
	rolled := !s.LastUpdated.IsZero() && now.After(s.LastUpdated) && !SameDay(s.LastUpdated, now, loc)

	d := Delta{
		ElapsedHours: elapsed.Hours(),
		HPCarry:      s.HPCarry,
		EnergyCarry:  s.EnergyCarry,
		DayRolled:    rolled,
		LastUpdated:  latest(s.LastUpdated, now),
	}

	if !force && !rolled && elapsed < r.MinResolution {
		d.Noop = true
		d.LastUpdated = s.LastUpdated
		return d
	}

	if rolled && s.TotalSleepHours != 0 && (s.LastSleepDate == nil || !SameDay(*s.LastSleepDate, now, loc)) {
		d.ResetSleepTotal = true
	}

	if elapsed == 0 {
		return d
	}

	d.HPRate = HPDecayRate(elapsed, r)
	d.HPDelta, d.HPCarry = roundWithCarry(-d.HPRate*d.ElapsedHours, s.HPCarry)
	if d.HPDelta > 0 {
		// decay never heals, even with a positive leftover
		d.HPDelta, d.HPCarry = 0, s.HPCarry-d.HPRate*d.ElapsedHours
	}

	if s.IsSleeping {
		d.EnergyDelta, d.EnergyCarry = roundWithCarry(r.SleepEnergyRecoveryPerHour*d.ElapsedHours, s.EnergyCarry)
		if d.EnergyDelta < 0 {
			d.EnergyDelta, d.EnergyCarry = 0, s.EnergyCarry+r.SleepEnergyRecoveryPerHour*d.ElapsedHours
		}
	} else {
		d.EnergyDelta, d.EnergyCarry = roundWithCarry(-r.AwakeEnergyDecayPerHour*d.ElapsedHours, s.EnergyCarry)
		if d.EnergyDelta > 0 {
			d.EnergyDelta, d.EnergyCarry = 0, s.EnergyCarry-r.AwakeEnergyDecayPerHour*d.ElapsedHours
		}
	}
	return d
}

// Apply merges the delta into s. Vitals are clamped; counters reset on a new day.
func (d Delta) Apply(s models.Buddy) models.Buddy {
	if d.Noop {
		return s
	}
	s.HP = Clamp(s.HP + d.HPDelta)
	s.Energy = Clamp(s.Energy + d.EnergyDelta)
	s.HPCarry = d.HPCarry
	s.EnergyCarry = d.EnergyCarry
	if d.DayRolled {
		s.WaterConsumed = 0
	}
	if d.ResetSleepTotal {
		s.TotalSleepHours = 0
	}
	s.LastUpdated = d.LastUpdated
	return NormalizeSleep(s)
}

// NormalizeSleep enforces "SleepStartTime is set iff IsSleeping".
func NormalizeSleep(s models.Buddy) models.Buddy {
	if !s.IsSleeping {
		s.SleepStartTime = nil
		return s
	}
	if s.SleepStartTime == nil {
		start := s.LastUpdated
		s.SleepStartTime = &start
	}
	return s
}

// roundWithCarry rounds exact+carry half away from zero and returns the leftover.
func roundWithCarry(exact, carry float64) (int, float64) {
	total := exact + carry
	applied := math.Round(total)
	return int(applied), total - applied
}

func latest(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
