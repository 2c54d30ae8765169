// Package postgres implements the card store over PostgreSQL through
// pgxpool. Multi-valued card columns are TEXT[] arrays, document columns
// are JSONB, and name search uses the english text-search configuration.
package postgres

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/scrycache/scrycache/config"
	"github.com/scrycache/scrycache/store"
)

// Store is the PostgreSQL-backed card store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects a pool to the endpoint, verifies the connection, and
// applies the schema.
func Open(ctx context.Context, cfg config.Database) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, store.Failed(store.Invalid, "open", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MinConns = int32(cfg.MinConnections)
	poolCfg.MaxConnIdleTime = cfg.IdleTimeout()
	poolCfg.MaxConnLifetime = cfg.MaxLifetime()
	poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout()

	pool, err := pgxpool.ConnectConfig(ctx, poolCfg)
	if err != nil {
		return nil, classify("open", err)
	}

	var s = &Store{pool: pool}
	if err = s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err = s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS cards (
		id UUID PRIMARY KEY,
		oracle_id UUID,
		name TEXT NOT NULL,
		mana_cost TEXT,
		cmc DOUBLE PRECISION,
		type_line TEXT,
		oracle_text TEXT,
		colors TEXT[],
		color_identity TEXT[],
		set_code TEXT,
		set_name TEXT,
		collector_number TEXT,
		rarity TEXT,
		power TEXT,
		toughness TEXT,
		loyalty TEXT,
		keywords TEXT[],
		prices JSONB,
		image_uris JSONB,
		card_faces JSONB,
		legalities JSONB,
		released_at DATE,
		raw_json JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS query_cache (
		query_hash TEXT PRIMARY KEY,
		card_ids TEXT NOT NULL,
		ttl_hours INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_accessed TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS bulk_data_metadata (
		id BIGSERIAL PRIMARY KEY,
		total_cards INTEGER NOT NULL,
		source TEXT NOT NULL,
		imported_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_name ON cards (name)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_name_fts ON cards
		USING GIN (to_tsvector('english', name))`,
	`CREATE INDEX IF NOT EXISTS idx_cards_oracle_id ON cards (oracle_id)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_colors ON cards USING GIN (colors)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_color_identity ON cards USING GIN (color_identity)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_cmc ON cards (cmc)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_set_code ON cards (set_code)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_rarity ON cards (rarity)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_set_rarity ON cards (set_code, rarity)`,
	`CREATE INDEX IF NOT EXISTS idx_cards_set_collector ON cards (set_code, collector_number)`,
	`CREATE INDEX IF NOT EXISTS idx_query_cache_last_accessed ON query_cache (last_accessed)`,
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return classify("init_schema", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return classify("ping", err)
	}
	var stat = s.pool.Stat()
	store.SetPoolGauges(int(stat.AcquiredConns()), int(stat.IdleConns()))
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// classify maps driver errors onto store error categories using the
// SQLSTATE class: connection and resource classes are retryable,
// constraint violations are conflicts, data and syntax classes mark a
// bad request.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return store.Failed(store.Unavailable, op, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "53"),
			strings.HasPrefix(pgErr.Code, "57"):
			return store.Failed(store.Unavailable, op, err)
		case strings.HasPrefix(pgErr.Code, "23"):
			return store.Failed(store.Conflict, op, err)
		case strings.HasPrefix(pgErr.Code, "22"),
			strings.HasPrefix(pgErr.Code, "42"):
			return store.Failed(store.Invalid, op, err)
		}
		return store.Failed(store.Internal, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return store.Failed(store.Unavailable, op, err)
	}
	return store.Failed(store.Internal, op, err)
}
