package repositories

import (
	"context"
	"testing"
	"time"

	"doc-chat/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a test Redis client, skipping when no server is reachable
func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use separate DB for testing
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}

	require.NoError(t, client.FlushDB(ctx).Err())
	return client
}

func TestNewRedisSessionRepository(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	repo := NewRedisSessionRepository(client)
	assert.NotNil(t, repo)
	assert.Equal(t, client, repo.client)
}

func TestRedisSessionRepository_SaveAndGet(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()

	t.Run("successful save", func(t *testing.T) {
		rec := &models.SessionRecord{
			ID:   "sess-1",
			Mode: models.ModeFileSearch,
			Resources: models.Resources{
				StoreName: "fileSearchStores/abc",
			},
		}
		require.NoError(t, repo.Save(ctx, rec))

		got, err := repo.Get(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, rec.Mode, got.Mode)
		assert.Equal(t, "fileSearchStores/abc", got.Resources.StoreName)
		assert.NotZero(t, got.CreatedAt)
	})

	t.Run("save overwrites", func(t *testing.T) {
		rec := &models.SessionRecord{
			ID:   "sess-1",
			Mode: models.ModeFileSearch,
		}
		require.NoError(t, repo.Save(ctx, rec))

		got, err := repo.Get(ctx, "sess-1")
		require.NoError(t, err)
		assert.Empty(t, got.Resources.StoreName)
	})

	t.Run("invalid record", func(t *testing.T) {
		err := repo.Save(ctx, &models.SessionRecord{ID: "bad", Mode: "nonsense"})
		assert.Error(t, err)
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})
}

func TestRedisSessionRepository_Delete(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &models.SessionRecord{ID: "sess-del", Mode: models.ModeLongContext}))
	require.NoError(t, repo.Delete(ctx, "sess-del"))
	require.NoError(t, repo.Delete(ctx, "sess-del"))

	_, err := repo.Get(ctx, "sess-del")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	n, err := client.ZCard(ctx, sessionIndexKey).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisSessionRepository_ListIdle(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, rec := range []*models.SessionRecord{
		{ID: "old", Mode: models.ModeLongContext, UpdatedAt: now.Add(-3 * time.Hour)},
		{ID: "older", Mode: models.ModeFileSearch, UpdatedAt: now.Add(-5 * time.Hour)},
		{ID: "fresh", Mode: models.ModeLongContext, UpdatedAt: now},
	} {
		require.NoError(t, repo.Save(ctx, rec))
	}

	idle, err := repo.ListIdle(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, idle, 2)
	assert.Equal(t, "older", idle[0].ID)
	assert.Equal(t, "old", idle[1].ID)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRedisSessionRepository_ListSkipsDanglingIndex(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()
	repo := NewRedisSessionRepository(client)
	ctx := context.Background()

	require.NoError(t, client.ZAdd(ctx, sessionIndexKey, redis.Z{Score: 1, Member: "ghost"}).Err())

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
