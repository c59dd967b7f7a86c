package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"doc-chat/internal/models"
)

// MemorySessionRepository keeps session records in process memory. It is
// used when Redis is not configured; records do not survive a restart.
type MemorySessionRepository struct {
	mu      sync.RWMutex
	records map[string]models.SessionRecord
}

// NewMemorySessionRepository creates an empty in-memory repository
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		records: make(map[string]models.SessionRecord),
	}
}

func (r *MemorySessionRepository) Save(ctx context.Context, rec *models.SessionRecord) error {
	if err := rec.Validate(); err != nil {
		return InvalidSessionError(rec.ID, err)
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	stored := *rec
	stored.Resources.DocumentNames = append([]string(nil), rec.Resources.DocumentNames...)

	r.mu.Lock()
	r.records[rec.ID] = stored
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) Get(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	r.mu.RLock()
	rec, ok := r.records[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil, SessionNotFoundError(sessionID)
	}
	return &rec, nil
}

func (r *MemorySessionRepository) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.records, sessionID)
	r.mu.Unlock()
	return nil
}

func (r *MemorySessionRepository) List(ctx context.Context) ([]*models.SessionRecord, error) {
	return r.filter(func(models.SessionRecord) bool { return true }), nil
}

func (r *MemorySessionRepository) ListIdle(ctx context.Context, cutoff time.Time) ([]*models.SessionRecord, error) {
	return r.filter(func(rec models.SessionRecord) bool { return rec.UpdatedAt.Before(cutoff) }), nil
}

func (r *MemorySessionRepository) filter(keep func(models.SessionRecord) bool) []*models.SessionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.SessionRecord, 0, len(r.records))
	for _, rec := range r.records {
		if keep(rec) {
			rec := rec
			out = append(out, &rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out
}

func (r *MemorySessionRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *MemorySessionRepository) Close() error {
	return nil
}
