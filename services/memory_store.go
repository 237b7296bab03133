package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"buddy-vitality-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MemoryBuddyStore keeps buddy rows in process. Same contract as BuddyStore; used by
// `serve --in-memory` and tests.
type MemoryBuddyStore struct {
	mu   sync.Mutex
	rows map[string]models.Buddy // by id
}

func NewMemoryBuddyStore() *MemoryBuddyStore {
	return &MemoryBuddyStore{rows: make(map[string]models.Buddy)}
}

func (m *MemoryBuddyStore) FetchLatest(ctx context.Context, ownerID string) (models.Buddy, error) {
	rows, _ := m.ListByOwner(ctx, ownerID)
	if len(rows) == 0 {
		return models.Buddy{}, ErrBuddyNotFound
	}
	return rows[0], nil
}

func (m *MemoryBuddyStore) Upsert(ctx context.Context, ownerID string, state models.Buddy) (models.Buddy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.rows[state.ID]
	if !ok || cur.OwnerID != ownerID || cur.DeletedAt.Valid {
		return models.Buddy{}, ErrBuddyNotFound
	}
	if cur.LastUpdated.After(state.LastUpdated) {
		return models.Buddy{}, ErrStaleWrite
	}

	state = normalizeTimes(state)
	state.OwnerID = cur.OwnerID
	state.Name = cur.Name
	state.Appearance = cur.Appearance
	state.CreatedAt = cur.CreatedAt
	state.DeletedAt = cur.DeletedAt
	state.UpdatedAt = time.Now()
	state.Version++
	m.rows[state.ID] = state
	return state, nil
}

func (m *MemoryBuddyStore) Create(ctx context.Context, b models.Buddy) (models.Buddy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.rows {
		if row.OwnerID == b.OwnerID && !row.DeletedAt.Valid {
			return models.Buddy{}, ErrBuddyExists
		}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b = normalizeTimes(b)
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	m.rows[b.ID] = b
	return b, nil
}

// Seed inserts rows as-is, bypassing the one-active-row check. Used to stage duplicates.
func (m *MemoryBuddyStore) Seed(rows ...models.Buddy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range rows {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		m.rows[b.ID] = normalizeTimes(b)
	}
}

func (m *MemoryBuddyStore) ListByOwner(ctx context.Context, ownerID string) ([]models.Buddy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Buddy
	for _, row := range m.rows {
		if row.OwnerID == ownerID && !row.DeletedAt.Valid {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].LastUpdated.After(out[j].LastUpdated)
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}

func (m *MemoryBuddyStore) DeleteByIDs(ctx context.Context, ownerID string, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, id := range ids {
		row, ok := m.rows[id]
		if !ok || row.OwnerID != ownerID || row.DeletedAt.Valid {
			continue
		}
		row.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
		m.rows[id] = row
		n++
	}
	return n, nil
}
