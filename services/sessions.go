package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"buddy-vitality-service/models"
	"buddy-vitality-service/utils"

	"go.uber.org/zap"
)

// SessionHooks is told when a session starts and ends. The reconcile scheduler
// implements it to add and remove the per-session timer.
type SessionHooks interface {
	SessionOpened(e *Engine) error
	SessionClosed(ownerID string)
}

type session struct {
	engine *Engine
	steps  *Coalescer
}

// Sessions owns one Engine per signed-in owner.
type Sessions struct {
	store  BuddyGateway
	cfg    EngineConfig
	logger *zap.Logger

	mu       sync.Mutex
	hooks    SessionHooks
	sessions map[string]*session
}

func NewSessions(store BuddyGateway, cfg EngineConfig, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	return &Sessions{
		store:    store,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

func (s *Sessions) SetHooks(h SessionHooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// Open starts a session: duplicate rows are healed, the buddy is reconciled, and
// the periodic timer is registered. Opening an open session refreshes its zone
// and reconciles again.
func (s *Sessions) Open(ctx context.Context, ownerID string, loc *time.Location) (*Engine, models.Buddy, error) {
	if existing, err := s.Get(ownerID); err == nil {
		existing.SetLocation(loc)
		b, err := existing.Reconcile(ctx, false)
		return existing, b, err
	}

	if _, _, err := CleanupDuplicates(ctx, s.store, ownerID, s.logger); err != nil {
		return nil, models.Buddy{}, err
	}

	cfg := s.cfg
	if loc != nil {
		cfg.Location = loc
	}
	engine := NewEngine(ownerID, s.store, cfg)
	b, err := engine.Reconcile(ctx, false)
	if err != nil {
		return nil, models.Buddy{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[ownerID]; ok {
		// lost a race with a concurrent Open
		return existing.engine, b, nil
	}
	if s.hooks != nil {
		if err := s.hooks.SessionOpened(engine); err != nil {
			return nil, models.Buddy{}, fmt.Errorf("failed to start session timer: %w", err)
		}
	}
	s.sessions[ownerID] = &session{
		engine: engine,
		steps: NewCoalescer(func(ctx context.Context, count int) error {
			_, err := engine.RecordSteps(ctx, count)
			return err
		}, s.logger.With(zap.String("owner_id", ownerID))),
	}
	utils.ActiveSessions.Inc()
	s.logger.Info("session_opened", zap.String("owner_id", ownerID), zap.String("tz", cfg.Location.String()))
	return engine, b, nil
}

// Get returns the open engine for ownerID.
func (s *Sessions) Get(ownerID string) (*Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[ownerID]; ok {
		return sess.engine, nil
	}
	return nil, ErrNoSession
}

// Acquire returns the open engine, opening a session on first use.
func (s *Sessions) Acquire(ctx context.Context, ownerID string, loc *time.Location) (*Engine, error) {
	if e, err := s.Get(ownerID); err == nil {
		if loc != nil {
			e.SetLocation(loc)
		}
		return e, nil
	}
	e, _, err := s.Open(ctx, ownerID, loc)
	return e, err
}

// SubmitSteps hands a step reading to the owner's coalescer.
func (s *Sessions) SubmitSteps(ownerID string, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidStepCount, count)
	}
	s.mu.Lock()
	sess, ok := s.sessions[ownerID]
	s.mu.Unlock()
	if !ok {
		return ErrNoSession
	}
	sess.steps.Submit(count)
	return nil
}

// Close ends the session and cancels its timer. In-flight work is left to finish.
func (s *Sessions) Close(ownerID string) bool {
	s.mu.Lock()
	_, ok := s.sessions[ownerID]
	if ok {
		delete(s.sessions, ownerID)
	}
	hooks := s.hooks
	s.mu.Unlock()

	if !ok {
		return false
	}
	if hooks != nil {
		hooks.SessionClosed(ownerID)
	}
	utils.ActiveSessions.Dec()
	s.logger.Info("session_closed", zap.String("owner_id", ownerID))
	return true
}

// CloseAll ends every session, waiting for queued step writes.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	owners := make([]string, 0, len(s.sessions))
	pending := make([]*Coalescer, 0, len(s.sessions))
	for owner, sess := range s.sessions {
		owners = append(owners, owner)
		pending = append(pending, sess.steps)
	}
	s.mu.Unlock()

	for _, owner := range owners {
		s.Close(owner)
	}
	for _, c := range pending {
		c.Wait()
	}
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// WaitSteps blocks until the owner's queued step writes land.
func (s *Sessions) WaitSteps(ownerID string) {
	s.mu.Lock()
	sess, ok := s.sessions[ownerID]
	s.mu.Unlock()
	if ok {
		sess.steps.Wait()
	}
}
