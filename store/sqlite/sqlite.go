// Package sqlite implements the card store over an embedded SQLite
// database. Multi-valued card columns are stored as JSON text and regex
// filters use a registered REGEXP function.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/scrycache/scrycache/config"
	"github.com/scrycache/scrycache/store"
)

const driverName = "sqlite3_cards"

var registerDriver sync.Once

// Store is the SQLite-backed card store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the database file, verifies the connection, and
// applies the schema. The parent directory is created if needed.
func Open(ctx context.Context, cfg config.Database) (*Store, error) {
	registerDriver.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				// X REGEXP Y desugars to regexp(Y, X).
				return conn.RegisterFunc("regexp", func(pattern, value string) (bool, error) {
					return regexp.MatchString(pattern, value)
				}, true)
			},
		})
	})

	if dir := filepath.Dir(cfg.URL); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	var dsn = fmt.Sprintf("file:%s?_busy_timeout=%d", cfg.URL, cfg.AcquireTimeoutMS)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	db.SetConnMaxIdleTime(cfg.IdleTimeout())
	db.SetConnMaxLifetime(cfg.MaxLifetime())

	var s = &Store{db: db}
	if err = s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err = s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var statements = []string{
		`CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			oracle_id TEXT,
			name TEXT NOT NULL,
			mana_cost TEXT,
			cmc REAL,
			type_line TEXT,
			oracle_text TEXT,
			colors TEXT,
			color_identity TEXT,
			set_code TEXT,
			set_name TEXT,
			collector_number TEXT,
			rarity TEXT,
			power TEXT,
			toughness TEXT,
			loyalty TEXT,
			keywords TEXT,
			prices TEXT,
			image_uris TEXT,
			card_faces TEXT,
			legalities TEXT,
			released_at TEXT,
			raw_json TEXT NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			updated_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS query_cache (
			query_hash TEXT PRIMARY KEY,
			card_ids TEXT NOT NULL,
			ttl_hours INTEGER NOT NULL,
			created_at TEXT DEFAULT CURRENT_TIMESTAMP,
			last_accessed TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bulk_data_metadata (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			total_cards INTEGER NOT NULL,
			source TEXT NOT NULL,
			imported_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_name ON cards(name)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_oracle_id ON cards(oracle_id)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_colors ON cards(colors)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_color_identity ON cards(color_identity)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_cmc ON cards(cmc)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_type_line ON cards(type_line)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_set_code ON cards(set_code)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_rarity ON cards(rarity)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_set_rarity ON cards(set_code, rarity)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_set_collector ON cards(set_code, collector_number)`,
		`CREATE INDEX IF NOT EXISTS idx_query_cache_last_accessed ON query_cache(last_accessed)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify("init_schema", err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return classify("ping", err)
	}
	var stats = s.db.Stats()
	store.SetPoolGauges(stats.InUse, stats.Idle)
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// classify maps driver errors onto store error categories. Busy and
// locked databases are retryable; constraint violations are conflicts.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return store.Failed(store.Unavailable, op, err)
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen:
			return store.Failed(store.Unavailable, op, err)
		case sqlite3.ErrConstraint:
			return store.Failed(store.Conflict, op, err)
		case sqlite3.ErrError:
			return store.Failed(store.Invalid, op, err)
		}
	}
	return store.Failed(store.Internal, op, err)
}
