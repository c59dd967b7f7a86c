package repositories

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"doc-chat/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	// Redis key prefixes
	sessionKeyPrefix = "docchat:session:"
	sessionIndexKey  = "docchat:sessions:index"
)

// RedisSessionRepository implements SessionRepository using Redis.
// Records are JSON values; a sorted set scored by UpdatedAt indexes them.
type RedisSessionRepository struct {
	client *redis.Client
}

// NewRedisSessionRepository creates a new Redis-based session repository
func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{
		client: client,
	}
}

// Save creates or replaces a record
func (r *RedisSessionRepository) Save(ctx context.Context, rec *models.SessionRecord) error {
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

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return NewSessionRepositoryError("save", rec.ID, err, "failed to marshal session record")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+rec.ID, recJSON, 0)
	pipe.ZAdd(ctx, sessionIndexKey, redis.Z{
		Score:  float64(rec.UpdatedAt.Unix()),
		Member: rec.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return NewSessionRepositoryError("save", rec.ID, err, "failed to execute transaction")
	}
	return nil
}

// Get retrieves a record by session ID
func (r *RedisSessionRepository) Get(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	recJSON, err := r.client.Get(ctx, sessionKeyPrefix+sessionID).Result()
	if err == redis.Nil {
		return nil, SessionNotFoundError(sessionID)
	}
	if err != nil {
		return nil, NewSessionRepositoryError("get", sessionID, err, "")
	}

	var rec models.SessionRecord
	if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
		return nil, NewSessionRepositoryError("get", sessionID, err, "failed to unmarshal session record")
	}
	return &rec, nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (r *RedisSessionRepository) Delete(ctx context.Context, sessionID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+sessionID)
	pipe.ZRem(ctx, sessionIndexKey, sessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return NewSessionRepositoryError("delete", sessionID, err, "failed to execute transaction")
	}
	return nil
}

// List retrieves all records, oldest activity first
func (r *RedisSessionRepository) List(ctx context.Context) ([]*models.SessionRecord, error) {
	ids, err := r.client.ZRange(ctx, sessionIndexKey, 0, -1).Result()
	if err != nil {
		return nil, NewSessionRepositoryError("list", "", err, "")
	}
	return r.getBatch(ctx, ids)
}

// ListIdle retrieves records whose last update is before cutoff
func (r *RedisSessionRepository) ListIdle(ctx context.Context, cutoff time.Time) ([]*models.SessionRecord, error) {
	ids, err := r.client.ZRangeByScore(ctx, sessionIndexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + formatScore(cutoff),
	}).Result()
	if err != nil {
		return nil, NewSessionRepositoryError("list_idle", "", err, "")
	}
	return r.getBatch(ctx, ids)
}

func (r *RedisSessionRepository) getBatch(ctx context.Context, ids []string) ([]*models.SessionRecord, error) {
	if len(ids) == 0 {
		return []*models.SessionRecord{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, sessionKeyPrefix+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, NewSessionRepositoryError("get_batch", "", err, "failed to execute pipeline")
	}

	records := make([]*models.SessionRecord, 0, len(ids))
	for i, cmd := range cmds {
		recJSON, err := cmd.Result()
		if err == redis.Nil {
			// index entry without a value; drop it lazily
			r.client.ZRem(ctx, sessionIndexKey, ids[i])
			continue
		}
		if err != nil {
			return nil, NewSessionRepositoryError("get_batch", ids[i], err, "")
		}

		var rec models.SessionRecord
		if err := json.Unmarshal([]byte(recJSON), &rec); err != nil {
			return nil, NewSessionRepositoryError("get_batch", ids[i], err, "failed to unmarshal session record")
		}
		records = append(records, &rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].UpdatedAt.Before(records[j].UpdatedAt)
	})
	return records, nil
}

// Ping checks if Redis is alive
func (r *RedisSessionRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client
func (r *RedisSessionRepository) Close() error {
	return r.client.Close()
}

func formatScore(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
