package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Coalescer serializes submissions to apply with a queue of depth one: while a
// value is being applied, newer submissions overwrite each other and only the
// latest is applied next.
type Coalescer struct {
	apply  func(ctx context.Context, v int) error
	logger *zap.Logger

	// busy retries when the engine reports another action in flight
	busyRetries int
	busyBackoff time.Duration

	mu      sync.Mutex
	running bool
	pending *int
	wg      sync.WaitGroup
}

func NewCoalescer(apply func(ctx context.Context, v int) error, logger *zap.Logger) *Coalescer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coalescer{
		apply:       apply,
		logger:      logger,
		busyRetries: 3,
		busyBackoff: 100 * time.Millisecond,
	}
}

// Submit queues v. It never blocks on the apply.
func (c *Coalescer) Submit(v int) {
	c.mu.Lock()
	if c.running {
		c.pending = &v
		c.mu.Unlock()
		return
	}
	c.running = true
	c.wg.Add(1)
	c.mu.Unlock()

	go c.drain(v)
}

// Wait blocks until nothing is queued or being applied.
func (c *Coalescer) Wait() {
	c.wg.Wait()
}

func (c *Coalescer) drain(v int) {
	defer c.wg.Done()
	for {
		c.applyOne(v)

		c.mu.Lock()
		if c.pending == nil {
			c.running = false
			c.mu.Unlock()
			return
		}
		v = *c.pending
		c.pending = nil
		c.mu.Unlock()
	}
}

func (c *Coalescer) applyOne(v int) {
	for attempt := 0; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.apply(ctx, v)
		cancel()
		if err == nil {
			return
		}
		if errors.Is(err, ErrActionInFlight) && attempt < c.busyRetries {
			c.mu.Lock()
			superseded := c.pending != nil
			c.mu.Unlock()
			if superseded {
				return
			}
			time.Sleep(c.busyBackoff)
			continue
		}
		c.logger.Warn("coalesced_apply_failed", zap.Int("value", v), zap.Error(err))
		return
	}
}
