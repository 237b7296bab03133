package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"buddy-vitality-service/models"
	"buddy-vitality-service/vitality"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAlertHub_FanOutPerOwner(t *testing.T) {
	hub := NewAlertHub()
	mine, unsubMine := hub.Subscribe(owner)
	theirs, unsubTheirs := hub.Subscribe("other")
	defer unsubTheirs()

	hub.Notify(context.Background(), Alert{OwnerID: owner, Stat: vitality.StatEnergy, Value: 18})

	select {
	case a := <-mine:
		assert.Equal(t, vitality.StatEnergy, a.Stat)
	case <-time.After(time.Second):
		t.Fatal("alert not delivered")
	}
	select {
	case a := <-theirs:
		t.Fatalf("unexpected alert for other owner: %+v", a)
	default:
	}

	assert.Equal(t, 1, hub.Subscribers(owner))
	unsubMine()
	unsubMine()
	assert.Zero(t, hub.Subscribers(owner))
	_, open := <-mine
	assert.False(t, open)
}

func TestAlertHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewAlertHub()
	_, unsub := hub.Subscribe(owner)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Notify(context.Background(), Alert{OwnerID: owner})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify blocked on a full subscriber")
	}
}

func TestMultiAndLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	rec := &recordingNotifier{}
	n := MultiNotifier{LogNotifier{Logger: zap.New(core)}, rec, nil}

	n.Notify(context.Background(), Alert{OwnerID: owner, Stat: vitality.StatHP, Value: 12})

	assert.Len(t, rec.All(), 1)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "buddy_needs_attention", logs.All()[0].Message)
}

// memCache is a SnapshotCache double with switchable failures.
type memCache struct {
	mu   sync.Mutex
	data map[string]models.Buddy
	err  error
	hits int
}

func newMemCache() *memCache { return &memCache{data: map[string]models.Buddy{}} }

func (c *memCache) Put(_ context.Context, b models.Buddy) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[b.OwnerID] = b
	return nil
}

func (c *memCache) Get(_ context.Context, ownerID string) (models.Buddy, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return models.Buddy{}, false, c.err
	}
	b, ok := c.data[ownerID]
	if ok {
		c.hits++
	}
	return b, ok, nil
}

func (c *memCache) Invalidate(_ context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, ownerID)
	return c.err
}

func TestCachedGateway(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBuddyStore()
	cache := newMemCache()
	gw := NewCachedGateway(store, cache, nil)

	created, err := gw.Create(ctx, models.NewBuddy(owner, "Mochi", models.AppearanceChristmas, t0))
	require.NoError(t, err)

	next := created
	next.HP = 70
	next.LastUpdated = t0.Add(time.Hour)
	_, err = gw.Upsert(ctx, owner, next)
	require.NoError(t, err)

	friend, err := gw.FriendSnapshot(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 70, friend.HP)
	assert.Equal(t, 1, cache.hits)

	// cache outage: reads fall through to the store, writes still succeed
	cache.err = errors.New("redis down")
	friend, err = gw.FriendSnapshot(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 70, friend.HP)

	next.HP = 65
	next.LastUpdated = t0.Add(2 * time.Hour)
	_, err = gw.Upsert(ctx, owner, next)
	require.NoError(t, err)

	_, err = gw.FriendSnapshot(ctx, "stranger")
	assert.ErrorIs(t, err, ErrBuddyNotFound)
}
