package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"buddy-vitality-service/models"
	"buddy-vitality-service/utils"
	"buddy-vitality-service/vitality"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// EngineConfig carries the collaborators of an Engine. Zero values get defaults.
type EngineConfig struct {
	Rates    vitality.Rates
	Location *time.Location
	Clock    clockwork.Clock
	Notifier Notifier
	Logger   *zap.Logger
}

// Engine reconciles one owner's buddy against elapsed time and applies care
// actions. At most one pass touches the store at a time per engine. Actions
// wait for a running reconcile and reject only when another action is in flight.
type Engine struct {
	ownerID  string
	store    BuddyGateway
	rates    vitality.Rates
	clock    clockwork.Clock
	notifier Notifier
	logger   *zap.Logger

	// run holds the single store pass slot; acting marks an action in flight
	run    chan struct{}
	acting atomic.Bool

	mu         sync.RWMutex
	loc        *time.Location
	last       models.Buddy
	hasLast    bool
	lastToggle time.Time
}

func NewEngine(ownerID string, store BuddyGateway, cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Rates == (vitality.Rates{}) {
		cfg.Rates = vitality.DefaultRates()
	}
	return &Engine{
		ownerID:  ownerID,
		store:    store,
		rates:    cfg.Rates,
		clock:    cfg.Clock,
		notifier: cfg.Notifier,
		logger:   cfg.Logger.With(zap.String("owner_id", ownerID)),
		loc:      cfg.Location,
		run:      make(chan struct{}, 1),
	}
}

func (e *Engine) OwnerID() string        { return e.ownerID }
func (e *Engine) Rates() vitality.Rates { return e.rates }

// Location is the device-local zone used for calendar-day boundaries.
func (e *Engine) Location() *time.Location {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loc
}

func (e *Engine) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	e.mu.Lock()
	e.loc = loc
	e.mu.Unlock()
}

// Snapshot is the last state this engine read or wrote successfully.
func (e *Engine) Snapshot() (models.Buddy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last, e.hasLast
}

func (e *Engine) remember(b models.Buddy) {
	e.mu.Lock()
	e.last = b
	e.hasLast = true
	e.mu.Unlock()
}

// Reconcile brings the persisted buddy up to date with the clock. A call that
// overlaps another reconcile or action is dropped and returns the last known state.
func (e *Engine) Reconcile(ctx context.Context, force bool) (models.Buddy, error) {
	select {
	case e.run <- struct{}{}:
	default:
		utils.ReconcileCount.WithLabelValues("dropped").Inc()
		last, _ := e.Snapshot()
		return last, nil
	}
	defer func() { <-e.run }()

	start := time.Now()
	defer func() { utils.ReconcileDuration.Observe(time.Since(start).Seconds()) }()

	cur, err := e.store.FetchLatest(ctx, e.ownerID)
	if err != nil {
		utils.ReconcileCount.WithLabelValues("failed").Inc()
		last, _ := e.Snapshot()
		return last, err
	}

	now := e.clock.Now()
	delta := vitality.ComputeDecay(cur, now, e.Location(), force, e.rates)
	if delta.Noop {
		utils.ReconcileCount.WithLabelValues("noop").Inc()
		e.remember(cur)
		return cur, nil
	}

	saved, err := e.store.Upsert(ctx, e.ownerID, delta.Apply(cur))
	if errors.Is(err, ErrStaleWrite) {
		// another instance got there first; its row wins
		utils.ReconcileCount.WithLabelValues("stale").Inc()
		newer, ferr := e.store.FetchLatest(ctx, e.ownerID)
		if ferr != nil {
			last, _ := e.Snapshot()
			return last, ferr
		}
		e.remember(newer)
		return newer, nil
	}
	if err != nil {
		utils.ReconcileCount.WithLabelValues("failed").Inc()
		e.logger.Warn("reconcile_write_failed", zap.Error(err))
		last, _ := e.Snapshot()
		return last, err
	}

	e.remember(saved)
	utils.ReconcileCount.WithLabelValues("applied").Inc()
	e.logger.Debug("reconcile_applied",
		zap.Int("hp", saved.HP),
		zap.Int("energy", saved.Energy),
		zap.Int("hp_delta", delta.HPDelta),
		zap.Int("energy_delta", delta.EnergyDelta),
		zap.Float64("elapsed_hours", delta.ElapsedHours),
		zap.Bool("day_rolled", delta.DayRolled),
	)
	emitAlerts(ctx, e.notifier, cur, saved, e.rates.LowThreshold, now)
	return saved, nil
}

// mutation layers an action on top of a settled state.
type mutation func(settled models.Buddy, now time.Time) (models.Buddy, error)

// act settles decay up to now and applies the action in a single write, so the
// reconciliation always completes before the action's delta lands.
func (e *Engine) act(ctx context.Context, action string, mutate mutation) (models.Buddy, error) {
	if !e.acting.CompareAndSwap(false, true) {
		return e.reject(action, ErrActionInFlight)
	}
	defer e.acting.Store(false)
	return e.actGuarded(ctx, action, mutate)
}

func (e *Engine) reject(action string, err error) (models.Buddy, error) {
	utils.ActionCount.WithLabelValues(action, "rejected").Inc()
	last, _ := e.Snapshot()
	return last, err
}

// actGuarded runs with acting held. It waits for a reconcile still using the store.
func (e *Engine) actGuarded(ctx context.Context, action string, mutate mutation) (models.Buddy, error) {
	select {
	case e.run <- struct{}{}:
	case <-ctx.Done():
		utils.ActionCount.WithLabelValues(action, "failed").Inc()
		last, _ := e.Snapshot()
		return last, ctx.Err()
	}
	defer func() { <-e.run }()

	saved, err := e.settleAndApply(ctx, mutate)
	if errors.Is(err, ErrStaleWrite) {
		// one retry against the newer row
		saved, err = e.settleAndApply(ctx, mutate)
	}
	if err != nil {
		utils.ActionCount.WithLabelValues(action, "failed").Inc()
		e.logger.Warn("action_failed", zap.String("action", action), zap.Error(err))
		last, _ := e.Snapshot()
		return last, err
	}
	utils.ActionCount.WithLabelValues(action, "ok").Inc()
	return saved, nil
}

func (e *Engine) settleAndApply(ctx context.Context, mutate mutation) (models.Buddy, error) {
	cur, err := e.store.FetchLatest(ctx, e.ownerID)
	if err != nil {
		return models.Buddy{}, err
	}
	now := e.clock.Now()
	settled := vitality.ComputeDecay(cur, now, e.Location(), true, e.rates).Apply(cur)

	next, err := mutate(settled, now)
	if err != nil {
		return models.Buddy{}, err
	}
	next = vitality.NormalizeSleep(next)

	saved, err := e.store.Upsert(ctx, e.ownerID, next)
	if err != nil {
		return models.Buddy{}, err
	}
	e.remember(saved)
	emitAlerts(ctx, e.notifier, cur, saved, e.rates.LowThreshold, now)
	return saved, nil
}

// FeedResult is a persisted feeding.
type FeedResult struct {
	Buddy  models.Buddy
	HPGain int
	At     time.Time
}

func (e *Engine) Feed(ctx context.Context, food FoodAnalysis) (FeedResult, error) {
	var res FeedResult
	saved, err := e.act(ctx, "feed", func(s models.Buddy, now time.Time) (models.Buddy, error) {
		next, gain := vitality.ApplyFeed(s, food.IsHealthy, now, e.rates)
		res.HPGain, res.At = gain, now
		return next, nil
	})
	res.Buddy = saved
	if err == nil {
		e.logger.Info("buddy_fed",
			zap.Bool("healthy", food.IsHealthy),
			zap.Int("hp_gain", res.HPGain),
			zap.Int("hp", saved.HP),
		)
	}
	return res, err
}

// Drink records cups of water. A non-positive count counts as one cup.
func (e *Engine) Drink(ctx context.Context, cups int) (models.Buddy, error) {
	return e.act(ctx, "drink", func(s models.Buddy, now time.Time) (models.Buddy, error) {
		return vitality.ApplyDrink(s, cups, now, e.rates), nil
	})
}

// ToggleSleep flips AWAKE and ASLEEP. The summary is non-nil when the buddy woke up.
func (e *Engine) ToggleSleep(ctx context.Context) (models.Buddy, *vitality.SleepSummary, error) {
	if !e.acting.CompareAndSwap(false, true) {
		last, err := e.reject("sleep_toggle", ErrActionInFlight)
		return last, nil, err
	}
	defer e.acting.Store(false)

	// acting is held from the cooldown check until lastToggle is recorded
	e.mu.RLock()
	lastToggle := e.lastToggle
	e.mu.RUnlock()
	if !lastToggle.IsZero() && e.clock.Since(lastToggle) < e.rates.ToggleCooldown {
		last, err := e.reject("sleep_toggle", ErrToggleCooldown)
		return last, nil, err
	}

	var summary *vitality.SleepSummary
	saved, err := e.actGuarded(ctx, "sleep_toggle", func(s models.Buddy, now time.Time) (models.Buddy, error) {
		summary = nil
		if !s.IsSleeping {
			return vitality.FallAsleep(s, now), nil
		}
		next, sum := vitality.Wake(s, now, e.Location(), e.rates)
		summary = &sum
		return next, nil
	})
	if err != nil {
		return saved, nil, err
	}

	e.mu.Lock()
	e.lastToggle = e.clock.Now()
	e.mu.Unlock()

	if summary != nil {
		e.logger.Info("buddy_woke",
			zap.Float64("hours_slept", summary.HoursSlept),
			zap.Bool("restful", summary.Restful),
		)
	} else {
		e.logger.Info("buddy_fell_asleep")
	}
	return saved, summary, nil
}

// RecordSteps stores the latest step count. It does not touch HP.
func (e *Engine) RecordSteps(ctx context.Context, count int) (models.Buddy, error) {
	if count < 0 {
		return models.Buddy{}, fmt.Errorf("%w: got %d", ErrInvalidStepCount, count)
	}
	return e.act(ctx, "steps", func(s models.Buddy, _ time.Time) (models.Buddy, error) {
		s.StepCount = count
		return s, nil
	})
}
