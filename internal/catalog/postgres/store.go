// Package postgres provides the Postgres-backed catalog store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aitoolsdir/harvester/internal/catalog"
)

// StoreConfig controls the Postgres connection pool backing the catalog.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type beginExecCloser interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Store implements catalog.Store on a pgx pool.
type Store struct {
	pool beginExecCloser
}

// NewStore connects a pool using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool beginExecCloser) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Begin opens a batch transaction.
func (s *Store) Begin(ctx context.Context) (catalog.Tx, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("catalog store is not configured")
	}
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &tx{tx: pgtx}, nil
}

// SetIngestionStatus updates moderation state for the given slugs and
// reports how many rows changed.
func (s *Store) SetIngestionStatus(ctx context.Context, slugs []string, status string) (int, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("catalog store is not configured")
	}
	if len(slugs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE tools SET ingestion_status = $1 WHERE slug = ANY($2) AND ingestion_status <> $1`,
		status, slugs,
	)
	if err != nil {
		return 0, fmt.Errorf("update ingestion status: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) FindToolBySlug(ctx context.Context, slug string) (*catalog.Tool, error) {
	row := t.tx.QueryRow(ctx, `
SELECT slug, name, description, website, category, pricing, logo, ingestion_status
FROM tools
WHERE slug = $1`, slug)

	var tool catalog.Tool
	err := row.Scan(
		&tool.Slug,
		&tool.Name,
		&tool.Description,
		&tool.Website,
		&tool.Category,
		&tool.Pricing,
		&tool.Logo,
		&tool.IngestionStatus,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find tool: %w", err)
	}
	return &tool, nil
}

func (t *tx) CreateTool(ctx context.Context, tool catalog.Tool) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO tools (slug, name, description, website, category, pricing, logo, ingestion_status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tool.Slug,
		tool.Name,
		tool.Description,
		tool.Website,
		tool.Category,
		tool.Pricing,
		tool.Logo,
		tool.IngestionStatus,
	)
	if err != nil {
		return fmt.Errorf("insert tool: %w", err)
	}
	return nil
}

func (t *tx) UpdateTool(ctx context.Context, tool catalog.Tool) error {
	_, err := t.tx.Exec(ctx, `
UPDATE tools
SET name = $2,
    description = $3,
    website = $4,
    category = $5,
    pricing = $6,
    logo = $7,
    ingestion_status = $8
WHERE slug = $1`,
		tool.Slug,
		tool.Name,
		tool.Description,
		tool.Website,
		tool.Category,
		tool.Pricing,
		tool.Logo,
		tool.IngestionStatus,
	)
	if err != nil {
		return fmt.Errorf("update tool: %w", err)
	}
	return nil
}

func (t *tx) EnsureCategory(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = catalog.DefaultCategory
	}
	slug := strings.ToLower(title)

	var existing string
	err := t.tx.QueryRow(ctx, `SELECT title FROM categories WHERE slug = $1`, slug).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("find category: %w", err)
	}
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO categories (slug, title) VALUES ($1, $2)`, slug, title); err != nil {
		return "", fmt.Errorf("insert category: %w", err)
	}
	return title, nil
}

// Begin opens a savepoint within the transaction.
func (t *tx) Begin(ctx context.Context) (catalog.Tx, error) {
	inner, err := t.tx.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin savepoint: %w", err)
	}
	return &tx{tx: inner}, nil
}

func (t *tx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *tx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
