package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DurableStore persists scraper records in Postgres, surviving restarts and
// Redis evictions. It backstops the in-memory/Redis Tier for long-tail
// episodes that fall out of the freshness window: Resolve consults it only
// after a full cache miss and a failed live discovery, grounded on the
// teacher's storage.PostgresStore connection-pool construction.
type DurableStore struct {
	pool *pgxpool.Pool
}

// NewDurableStore opens a pooled Postgres connection and ensures the backing
// table exists.
func NewDurableStore(ctx context.Context, databaseURL string) (*DurableStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &DurableStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate scraper_records: %w", err)
	}
	return store, nil
}

// Close releases the connection pool.
func (s *DurableStore) Close() {
	s.pool.Close()
}

func (s *DurableStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS scraper_records (
			composite_key TEXT PRIMARY KEY,
			episode_id    TEXT NOT NULL,
			category      TEXT NOT NULL,
			server        TEXT NOT NULL,
			payload       JSONB NOT NULL,
			fetched_at    TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

// Get returns the most recently stored record for compositeKey.
func (s *DurableStore) Get(ctx context.Context, compositeKey string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT episode_id, category, server, payload, fetched_at
		FROM scraper_records WHERE composite_key = $1
	`, compositeKey)

	var rec Record
	var payload []byte
	var category string
	err := row.Scan(&rec.EpisodeID, &category, &rec.Server, &payload, &rec.FetchedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.CompositeKey = compositeKey
	rec.Category = Category(category)
	rec.Payload = json.RawMessage(payload)
	return &rec, nil
}

// Upsert stores rec, replacing any prior row for the same composite key.
func (s *DurableStore) Upsert(ctx context.Context, rec *Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scraper_records (composite_key, episode_id, category, server, payload, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (composite_key) DO UPDATE SET
			payload = EXCLUDED.payload,
			fetched_at = EXCLUDED.fetched_at
	`, rec.CompositeKey, rec.EpisodeID, string(rec.Category), rec.Server, []byte(rec.Payload), rec.FetchedAt)
	return err
}
