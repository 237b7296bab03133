package services

import (
	"context"

	"buddy-vitality-service/models"
)

// BuddyGateway is the persistence boundary for buddy rows.
//
// Upsert writes the full vitality state of an existing row in one statement. It
// refuses (ErrStaleWrite) to move LastUpdated backwards, and never writes Name or
// Appearance. The returned row has Version bumped.
type BuddyGateway interface {
	FetchLatest(ctx context.Context, ownerID string) (models.Buddy, error)
	Upsert(ctx context.Context, ownerID string, state models.Buddy) (models.Buddy, error)
	Create(ctx context.Context, b models.Buddy) (models.Buddy, error)
	// ListByOwner returns active rows newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]models.Buddy, error)
	// DeleteByIDs soft-deletes the given rows. Already-deleted ids are skipped.
	DeleteByIDs(ctx context.Context, ownerID string, ids []string) (int64, error)
}
