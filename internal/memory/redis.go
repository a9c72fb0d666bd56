package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "droid:memory:"

// Redis stores each category as a hash of JSON-encoded items.
type Redis struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// OpenRedis connects to Redis and verifies the connection.
func OpenRedis(ctx context.Context, url string, logger *zap.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(rdb, logger), nil
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client, logger *zap.Logger) *Redis {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{rdb: rdb, logger: logger}
}

type redisItem struct {
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Redis) Add(ctx context.Context, category, key, value string) error {
	now := time.Now().UTC()
	hkey := redisKeyPrefix + category

	created := now
	if raw, err := r.rdb.HGet(ctx, hkey, key).Result(); err == nil {
		var prev redisItem
		if json.Unmarshal([]byte(raw), &prev) == nil {
			created = prev.CreatedAt
		}
	} else if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("load %s/%s: %w", category, key, err)
	}

	data, err := json.Marshal(redisItem{Value: value, CreatedAt: created, UpdatedAt: now})
	if err != nil {
		return err
	}
	if err := r.rdb.HSet(ctx, hkey, key, string(data)).Err(); err != nil {
		return fmt.Errorf("store %s/%s: %w", category, key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, category, key string) (Item, error) {
	raw, err := r.rdb.HGet(ctx, redisKeyPrefix+category, key).Result()
	if errors.Is(err, redis.Nil) {
		return Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, category, key)
	}
	if err != nil {
		return Item{}, fmt.Errorf("get %s/%s: %w", category, key, err)
	}
	return decodeRedisItem(category, key, raw)
}

func (r *Redis) List(ctx context.Context, category string) ([]Item, error) {
	all, err := r.rdb.HGetAll(ctx, redisKeyPrefix+category).Result()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", category, err)
	}
	out := make([]Item, 0, len(all))
	for k, raw := range all {
		it, err := decodeRedisItem(category, k, raw)
		if err != nil {
			r.logger.Warn("skipping corrupt memory entry", zap.String("category", category), zap.String("key", k))
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

func decodeRedisItem(category, key, raw string) (Item, error) {
	var ri redisItem
	if err := json.Unmarshal([]byte(raw), &ri); err != nil {
		return Item{}, fmt.Errorf("decode %s/%s: %w", category, key, err)
	}
	return Item{
		Category:  category,
		Key:       key,
		Value:     ri.Value,
		CreatedAt: ri.CreatedAt,
		UpdatedAt: ri.UpdatedAt,
	}, nil
}
