// workers/reconcile_scheduler.go
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"buddy-vitality-service/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ReconcileScheduler runs one periodic reconcile job per open session.
// It implements services.SessionHooks.
type ReconcileScheduler struct {
	sched    gocron.Scheduler
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	jobs map[string]uuid.UUID
}

var _ services.SessionHooks = (*ReconcileScheduler)(nil)

// NewReconcileScheduler builds a stopped scheduler. A nil clock means wall time.
func NewReconcileScheduler(interval time.Duration, clock clockwork.Clock, logger *zap.Logger) (*ReconcileScheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		return nil, fmt.Errorf("tick interval must be positive, got %s", interval)
	}

	opts := []gocron.SchedulerOption{
		gocron.WithLogger(zapCronLogger{logger.Sugar()}),
		gocron.WithGlobalJobOptions(
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithError(func(_ uuid.UUID, name string, err error) {
					logger.Warn("reconcile_tick_failed", zap.String("owner_id", name), zap.Error(err))
				}),
				gocron.AfterJobRunsWithPanic(func(_ uuid.UUID, name string, recoverData any) {
					logger.Error("reconcile_tick_panic", zap.String("owner_id", name), zap.Any("panic", recoverData))
				}),
			),
		),
	}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}

	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &ReconcileScheduler{
		sched:    sched,
		interval: interval,
		logger:   logger,
		jobs:     make(map[string]uuid.UUID),
	}, nil
}

func (r *ReconcileScheduler) Start() {
	r.sched.Start()
	r.logger.Info("reconcile_scheduler_started", zap.Duration("interval", r.interval))
}

func (r *ReconcileScheduler) Shutdown() error {
	return r.sched.Shutdown()
}

// SessionOpened registers the owner's timer. A tick that is still running when
// the next one is due is skipped rather than queued.
func (r *ReconcileScheduler) SessionOpened(e *services.Engine) error {
	owner := e.OwnerID()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[owner]; ok {
		return nil
	}

	job, err := r.sched.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(r.tick, e),
		gocron.WithName(owner),
		gocron.WithTags(owner),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	r.jobs[owner] = job.ID()
	return nil
}

// SessionClosed cancels the owner's timer. A tick already running finishes.
func (r *ReconcileScheduler) SessionClosed(ownerID string) {
	r.mu.Lock()
	id, ok := r.jobs[ownerID]
	delete(r.jobs, ownerID)
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := r.sched.RemoveJob(id); err != nil {
		r.logger.Warn("reconcile_job_remove_failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
}

// Jobs reports how many session timers are registered.
func (r *ReconcileScheduler) Jobs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// RunNow fires the owner's tick outside its schedule.
func (r *ReconcileScheduler) RunNow(ownerID string) error {
	r.mu.Lock()
	id, ok := r.jobs[ownerID]
	r.mu.Unlock()
	if !ok {
		return services.ErrNoSession
	}
	for _, j := range r.sched.Jobs() {
		if j.ID() == id {
			return j.RunNow()
		}
	}
	return services.ErrNoSession
}

func (r *ReconcileScheduler) tick(e *services.Engine) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()
	_, err := e.Reconcile(ctx, false)
	return err
}

// zapCronLogger adapts zap to gocron's logger.
type zapCronLogger struct {
	s *zap.SugaredLogger
}

func (l zapCronLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l zapCronLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
func (l zapCronLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l zapCronLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
