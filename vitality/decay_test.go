package vitality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buddy-vitality-service/models"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func fresh(at time.Time) models.Buddy {
	return models.NewBuddy("owner-1", "Mochi", models.AppearanceBlack, at)
}

func TestComputeDecay_EightHoursAwake(t *testing.T) {
	s := fresh(t0)
	now := t0.Add(8 * time.Hour)

	d := ComputeDecay(s, now, time.UTC, false, DefaultRates())
	require.False(t, d.Noop)
	assert.InDelta(t, 3.5, d.HPRate, 1e-9)

	got := d.Apply(s)
	assert.Equal(t, 72, got.HP)
	assert.Equal(t, 94, got.Energy)
	assert.InDelta(t, 0.4, got.EnergyCarry, 1e-9)
	assert.InDelta(t, 0.0, got.HPCarry, 1e-9)
	assert.Equal(t, now, got.LastUpdated)
}

func TestHPDecayRate_PenaltiesStack(t *testing.T) {
	r := DefaultRates()
	tests := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{"short", 3 * time.Hour, 0.5},
		{"exactly thirsty threshold", 4 * time.Hour, 0.5},
		{"thirsty", 5 * time.Hour, 2.0},
		{"exactly hungry threshold", 6 * time.Hour, 2.0},
		{"hungry and thirsty", 7 * time.Hour, 3.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, HPDecayRate(tt.elapsed, r), 1e-9)
		})
	}
}

func TestComputeDecay_ClampsAtBounds(t *testing.T) {
	s := fresh(t0)
	s.HP = 1
	s.Energy = 2
	got := ComputeDecay(s, t0.Add(10*time.Hour), time.UTC, false, DefaultRates()).Apply(s)
	assert.Equal(t, models.MinStat, got.HP)
	assert.Equal(t, models.MinStat, got.Energy)

	sleeper := FallAsleep(fresh(t0), t0)
	sleeper.Energy = 95
	got = ComputeDecay(sleeper, t0.Add(3*time.Hour), time.UTC, false, DefaultRates()).Apply(sleeper)
	assert.Equal(t, models.MaxStat, got.Energy)
	assert.True(t, got.IsSleeping)
	require.NotNil(t, got.SleepStartTime)
}

func TestComputeDecay_Idempotent(t *testing.T) {
	s := fresh(t0)
	now := t0.Add(90 * time.Minute)
	r := DefaultRates()

	once := ComputeDecay(s, now, time.UTC, false, r).Apply(s)
	second := ComputeDecay(once, now, time.UTC, false, r)
	assert.True(t, second.Noop)
	assert.Equal(t, once, second.Apply(once))

	forced := ComputeDecay(once, now, time.UTC, true, r).Apply(once)
	assert.Equal(t, once.HP, forced.HP)
	assert.Equal(t, once.Energy, forced.Energy)
	assert.Equal(t, once.LastUpdated, forced.LastUpdated)
}

func TestComputeDecay_NoopUnderResolution(t *testing.T) {
	s := fresh(t0)
	d := ComputeDecay(s, t0.Add(30*time.Second), time.UTC, false, DefaultRates())
	assert.True(t, d.Noop)
	assert.Equal(t, t0, d.LastUpdated)
}

func TestComputeDecay_ClockSkew(t *testing.T) {
	s := fresh(t0.Add(time.Hour))
	s.HP = 50

	d := ComputeDecay(s, t0, time.UTC, true, DefaultRates())
	assert.Zero(t, d.ElapsedHours)
	got := d.Apply(s)
	assert.Equal(t, 50, got.HP)
	assert.Equal(t, t0.Add(time.Hour), got.LastUpdated, "as-of marker must not move backwards")
}

func TestComputeDecay_DailyReset(t *testing.T) {
	lateNight := time.Date(2026, 3, 10, 23, 59, 30, 0, time.UTC)
	s := fresh(lateNight)
	s.WaterConsumed = 6
	s.TotalSleepHours = 7
	yesterday := lateNight.Add(-12 * time.Hour)
	s.LastSleepDate = &yesterday

	d := ComputeDecay(s, lateNight.Add(40*time.Second), time.UTC, false, DefaultRates())
	require.False(t, d.Noop, "a day rollover is never a no-op")
	assert.True(t, d.DayRolled)

	got := d.Apply(s)
	assert.Zero(t, got.WaterConsumed)
	assert.Zero(t, got.TotalSleepHours)
}

func TestComputeDecay_DayUsesDeviceZone(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	before := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	after := time.Date(2026, 3, 10, 5, 30, 0, 0, time.UTC)
	s := fresh(before)
	s.WaterConsumed = 3

	assert.False(t, ComputeDecay(s, after, time.UTC, false, DefaultRates()).DayRolled)
	assert.True(t, ComputeDecay(s, after, est, false, DefaultRates()).DayRolled)
}

func TestComputeDecay_SleepTotalKeptWhenSleptToday(t *testing.T) {
	evening := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	s := fresh(evening)
	s.TotalSleepHours = 1.5
	wokeAt := time.Date(2026, 3, 11, 0, 10, 0, 0, time.UTC)
	s.LastSleepDate = &wokeAt

	got := ComputeDecay(s, wokeAt.Add(time.Hour), time.UTC, false, DefaultRates()).Apply(s)
	assert.InDelta(t, 1.5, got.TotalSleepHours, 1e-9)
}

func TestComputeDecay_CarryAccumulatesAcrossTicks(t *testing.T) {
	r := DefaultRates()
	s := fresh(t0)
	now := t0
	for i := 0; i < 120; i++ {
		now = now.Add(time.Minute)
		s = ComputeDecay(s, now, time.UTC, false, r).Apply(s)
	}

	assert.Equal(t, 99, s.HP)
	assert.Equal(t, 99, s.Energy)
	assert.InDelta(t, 99.0, float64(s.HP)+s.HPCarry, 1e-6)
	assert.InDelta(t, 98.6, float64(s.Energy)+s.EnergyCarry, 1e-6)
}

func TestComputeDecay_LastUpdatedMonotonic(t *testing.T) {
	r := DefaultRates()
	s := fresh(t0)
	clock := []time.Duration{time.Hour, 30 * time.Minute, 2 * time.Hour, -time.Hour, 2*time.Hour + time.Minute}
	prev := s.LastUpdated
	for _, off := range clock {
		s = ComputeDecay(s, t0.Add(off), time.UTC, true, r).Apply(s)
		assert.False(t, s.LastUpdated.Before(prev))
		prev = s.LastUpdated
	}
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-12))
	assert.Equal(t, 100, Clamp(140))
	assert.Equal(t, 55, Clamp(55))
}

func TestRates_Validate(t *testing.T) {
	require.NoError(t, DefaultRates().Validate())

	r := DefaultRates()
	r.RestfulSleepMin = 9 * time.Hour
	assert.Error(t, r.Validate())

	r = DefaultRates()
	r.LowThreshold = 101
	assert.Error(t, r.Validate())
}
