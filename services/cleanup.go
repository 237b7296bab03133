package services

import (
	"context"

	"buddy-vitality-service/models"

	"go.uber.org/zap"
)

// CleanupDuplicates keeps the most recently updated active row for ownerID and
// soft-deletes the rest. Rows already removed by a concurrent cleanup are skipped,
// so two instances running this at once converge on the same survivor.
func CleanupDuplicates(ctx context.Context, gw BuddyGateway, ownerID string, logger *zap.Logger) (models.Buddy, int64, error) {
	rows, err := gw.ListByOwner(ctx, ownerID)
	if err != nil {
		return models.Buddy{}, 0, err
	}
	if len(rows) == 0 {
		return models.Buddy{}, 0, ErrBuddyNotFound
	}
	if len(rows) == 1 {
		return rows[0], 0, nil
	}

	ids := make([]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		ids = append(ids, r.ID)
	}
	removed, err := gw.DeleteByIDs(ctx, ownerID, ids)
	if err != nil {
		return rows[0], 0, err
	}
	if logger != nil {
		logger.Info("duplicate_buddies_removed",
			zap.String("owner_id", ownerID),
			zap.String("kept_id", rows[0].ID),
			zap.Int64("removed", removed),
		)
	}
	return rows[0], removed, nil
}
