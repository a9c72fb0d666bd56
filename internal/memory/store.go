package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/config"
)

// ErrNotFound is returned when no entry exists for a category and key.
var ErrNotFound = errors.New("memory entry not found")

// Item is one stored entry. Keys are unique within a category.
type Item struct {
	Category  string    `json:"category"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a key/value memory grouped by category. Add overwrites an
// existing key and keeps its creation time.
type Store interface {
	Add(ctx context.Context, category, key, value string) error
	Get(ctx context.Context, category, key string) (Item, error)
	List(ctx context.Context, category string) ([]Item, error)
	Close() error
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.MemoryConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "memory"), zap.String("backend", cfg.Backend))

	switch cfg.Backend {
	case "", "local":
		logger.Info("using in-process memory")
		return NewLocal(), nil
	case "sqlite":
		return wrapOpen(OpenSQLite(ctx, cfg.Path, logger))
	case "redis":
		return wrapOpen(OpenRedis(ctx, cfg.URL, logger))
	case "postgres":
		return wrapOpen(OpenPostgres(ctx, cfg.DSN, logger))
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Backend)
	}
}

// wrapOpen keeps a failed open from returning a non-nil Store holding a nil
// pointer.
func wrapOpen[S Store](s S, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
