package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"buddy-vitality-service/models"
	"buddy-vitality-service/utils"
	"buddy-vitality-service/vitality"

	"go.uber.org/zap"
)

// Alert says a vital just dropped into the "needs attention" band.
type Alert struct {
	OwnerID   string        `json:"owner_id"`
	BuddyID   string        `json:"buddy_id"`
	BuddyName string        `json:"buddy_name"`
	Stat      vitality.Stat `json:"stat"`
	From      int           `json:"from"`
	Value     int           `json:"value"`
	Threshold int           `json:"threshold"`
	Message   string        `json:"message"`
	At        time.Time     `json:"at"`
}

// Notifier receives alerts. Implementations must not block the engine.
type Notifier interface {
	Notify(ctx context.Context, a Alert)
}

func alertMessage(name string, stat vitality.Stat) string {
	switch stat {
	case vitality.StatHP:
		return fmt.Sprintf("%s is getting weak. Time for some food or water!", name)
	case vitality.StatEnergy:
		return fmt.Sprintf("%s is exhausted and needs some sleep.", name)
	}
	return fmt.Sprintf("%s needs attention", name)
}

// LogNotifier writes alerts to the service log.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(_ context.Context, a Alert) {
	n.Logger.Warn("buddy_needs_attention",
		zap.String("owner_id", a.OwnerID),
		zap.String("buddy_id", a.BuddyID),
		zap.String("stat", string(a.Stat)),
		zap.Int("from", a.From),
		zap.Int("value", a.Value),
	)
}

// MultiNotifier fans out to every wrapped notifier.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, a Alert) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, a)
		}
	}
}

// AlertHub delivers alerts to live subscribers (SSE streams) per owner.
type AlertHub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Alert]struct{}
	buffer int
}

func NewAlertHub() *AlertHub {
	return &AlertHub{subs: make(map[string]map[chan Alert]struct{}), buffer: 8}
}

// Subscribe returns a channel of the owner's alerts and a func that releases it.
func (h *AlertHub) Subscribe(ownerID string) (<-chan Alert, func()) {
	ch := make(chan Alert, h.buffer)

	h.mu.Lock()
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[chan Alert]struct{})
	}
	h.subs[ownerID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[ownerID], ch)
			if len(h.subs[ownerID]) == 0 {
				delete(h.subs, ownerID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Notify never blocks: a subscriber with a full buffer misses the alert.
func (h *AlertHub) Notify(_ context.Context, a Alert) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[a.OwnerID] {
		select {
		case ch <- a:
		default:
		}
	}
}

// Subscribers is the number of live streams for an owner.
func (h *AlertHub) Subscribers(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[ownerID])
}

func emitAlerts(ctx context.Context, n Notifier, before, after models.Buddy, threshold int, at time.Time) {
	if n == nil {
		return
	}
	for _, c := range vitality.Crossings(before, after, threshold) {
		utils.AlertCount.WithLabelValues(string(c.Stat)).Inc()
		n.Notify(ctx, Alert{
			OwnerID:   after.OwnerID,
			BuddyID:   after.ID,
			BuddyName: after.Name,
			Stat:      c.Stat,
			From:      c.From,
			Value:     c.To,
			Threshold: threshold,
			Message:   alertMessage(after.Name, c.Stat),
			At:        at,
		})
	}
}
