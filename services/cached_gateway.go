package services

import (
	"context"

	"buddy-vitality-service/models"

	"go.uber.org/zap"
)

// SnapshotCache holds the latest persisted buddy per owner for read-only views.
type SnapshotCache interface {
	Put(ctx context.Context, b models.Buddy) error
	Get(ctx context.Context, ownerID string) (models.Buddy, bool, error)
	Invalidate(ctx context.Context, ownerID string) error
}

// CachedGateway writes successful writes through to a SnapshotCache. Reads used
// for reconciliation always go to the wrapped store.
type CachedGateway struct {
	BuddyGateway
	Cache  SnapshotCache
	Logger *zap.Logger
}

func NewCachedGateway(inner BuddyGateway, cache SnapshotCache, logger *zap.Logger) *CachedGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedGateway{BuddyGateway: inner, Cache: cache, Logger: logger}
}

func (g *CachedGateway) Upsert(ctx context.Context, ownerID string, state models.Buddy) (models.Buddy, error) {
	saved, err := g.BuddyGateway.Upsert(ctx, ownerID, state)
	if err == nil {
		g.put(ctx, saved)
	}
	return saved, err
}

func (g *CachedGateway) Create(ctx context.Context, b models.Buddy) (models.Buddy, error) {
	saved, err := g.BuddyGateway.Create(ctx, b)
	if err == nil {
		g.put(ctx, saved)
	}
	return saved, err
}

func (g *CachedGateway) DeleteByIDs(ctx context.Context, ownerID string, ids []string) (int64, error) {
	n, err := g.BuddyGateway.DeleteByIDs(ctx, ownerID, ids)
	if err == nil && n > 0 {
		if cerr := g.Cache.Invalidate(ctx, ownerID); cerr != nil {
			g.Logger.Warn("snapshot_cache_invalidate_failed", zap.String("owner_id", ownerID), zap.Error(cerr))
		}
	}
	return n, err
}

// FriendSnapshot serves a read-only view of another owner's buddy, from cache
// when possible. It does not reconcile.
func (g *CachedGateway) FriendSnapshot(ctx context.Context, ownerID string) (models.Buddy, error) {
	if b, ok, err := g.Cache.Get(ctx, ownerID); err == nil && ok {
		return b, nil
	} else if err != nil {
		g.Logger.Warn("snapshot_cache_get_failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
	b, err := g.BuddyGateway.FetchLatest(ctx, ownerID)
	if err != nil {
		return models.Buddy{}, err
	}
	g.put(ctx, b)
	return b, nil
}

func (g *CachedGateway) put(ctx context.Context, b models.Buddy) {
	if err := g.Cache.Put(ctx, b); err != nil {
		g.Logger.Warn("snapshot_cache_put_failed", zap.String("owner_id", b.OwnerID), zap.Error(err))
	}
}
