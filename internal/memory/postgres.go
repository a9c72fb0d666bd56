package memory

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// Postgres stores entries in PostgreSQL through a pgx pool.
type Postgres struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// OpenPostgres connects, pings and applies migrations.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")

	p := &Postgres{db: pool, logger: logger}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Migrate executes the embedded .up.sql files in name order.
func (p *Postgres) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := migrations.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := p.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		p.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

func (p *Postgres) Add(ctx context.Context, category, key, value string) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO memory_items (category, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (category, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = now()`,
		category, key, value)
	if err != nil {
		return fmt.Errorf("store %s/%s: %w", category, key, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, category, key string) (Item, error) {
	row := p.db.QueryRow(ctx, `
		SELECT category, key, value, created_at, updated_at
		FROM memory_items WHERE category = $1 AND key = $2`, category, key)

	var it Item
	err := row.Scan(&it.Category, &it.Key, &it.Value, &it.CreatedAt, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, category, key)
	}
	if err != nil {
		return Item{}, fmt.Errorf("get %s/%s: %w", category, key, err)
	}
	return it, nil
}

func (p *Postgres) List(ctx context.Context, category string) ([]Item, error) {
	rows, err := p.db.Query(ctx, `
		SELECT category, key, value, created_at, updated_at
		FROM memory_items WHERE category = $1
		ORDER BY key`, category)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", category, err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Category, &it.Key, &it.Value, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", category, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Close shuts down the connection pool.
func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}
