package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/config"
)

// exerciseStore checks behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "crew", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Add(ctx, "crew", "task_result_b", "second"))
	require.NoError(t, s.Add(ctx, "crew", "task_result_a", "first"))
	require.NoError(t, s.Add(ctx, "posts", "twitter", "hello"))

	first, err := s.Get(ctx, "crew", "task_result_a")
	require.NoError(t, err)
	assert.Equal(t, "first", first.Value)
	assert.Equal(t, "crew", first.Category)
	assert.False(t, first.CreatedAt.IsZero())

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Add(ctx, "crew", "task_result_a", "updated"))
	again, err := s.Get(ctx, "crew", "task_result_a")
	require.NoError(t, err)
	assert.Equal(t, "updated", again.Value)
	assert.True(t, again.CreatedAt.Equal(first.CreatedAt), "created_at must survive overwrite")
	assert.False(t, again.UpdatedAt.Before(first.UpdatedAt))

	items, err := s.List(ctx, "crew")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "task_result_a", items[0].Key)
	assert.Equal(t, "task_result_b", items[1].Key)

	empty, err := s.List(ctx, "nothing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLocalStore(t *testing.T) {
	exerciseStore(t, NewLocal())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "memory.db")
	s, err := OpenSQLite(context.Background(), path, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, path, s.Path())
	exerciseStore(t, s)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")

	s, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, "crew", "k", "persisted"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()
	it, err := s.Get(ctx, "crew", "k")
	require.NoError(t, err)
	assert.Equal(t, "persisted", it.Value)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedis(rdb, zap.NewNop())
	defer s.Close()

	exerciseStore(t, s)
	assert.True(t, mr.Exists(redisKeyPrefix+"crew"))
}

func TestRedisStoreSkipsCorrupt(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.HSet(redisKeyPrefix+"crew", "bad", "not-json")
	s := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	defer s.Close()

	require.NoError(t, s.Add(context.Background(), "crew", "good", "v"))
	items, err := s.List(context.Background(), "crew")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "good", items[0].Key)

	_, err = s.Get(context.Background(), "crew", "bad")
	assert.Error(t, err)
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.MemoryConfig{Backend: "local"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	s, err = Open(ctx, config.MemoryConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "m.db")}, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	s.Close()

	mr := miniredis.RunT(t)
	s, err = Open(ctx, config.MemoryConfig{Backend: "redis", URL: "redis://" + mr.Addr()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, s)
	s.Close()

	_, err = Open(ctx, config.MemoryConfig{Backend: "neo4j"}, nil)
	assert.Error(t, err)
}
