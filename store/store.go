// Package store defines the durable card store contract implemented by
// the sqlite and postgres engines, together with error categories and
// query instrumentation shared by both.
package store

import (
	"context"
	"time"

	"github.com/scrycache/scrycache/model"
)

// ResultSet is one durable result-set cache entry: the ordered card ids
// a search resolved to, and the TTL in hours the entry was written with.
type ResultSet struct {
	IDs      []string
	TTLHours int
}

// Store is the durable card store. Single-row lookups return nil without
// an error when the row is absent. Failures carry a StoreError whose
// category tells callers whether a retry can help.
type Store interface {
	// UpsertCards writes the batch in one transaction keyed by id.
	// Conflicting rows keep created_at, replace every derived column
	// from raw_json, and bump updated_at.
	UpsertCards(ctx context.Context, cards []*model.Card) error

	// GetCard returns the card with this id, or nil.
	GetCard(ctx context.Context, id string) (*model.Card, error)

	// GetCards returns cards matching the ids in no particular order,
	// chunking the lookup under the engine's parameter limit.
	GetCards(ctx context.Context, ids []string) ([]*model.Card, error)

	// SearchByName matches card names case-insensitively.
	SearchByName(ctx context.Context, name string, limit int) ([]*model.Card, error)

	// Autocomplete returns distinct names with a case-insensitive prefix
	// match, lexicographically ascending.
	Autocomplete(ctx context.Context, prefix string, limit int) ([]string, error)

	// ExecutePredicate runs translated search SQL returning card rows.
	ExecutePredicate(ctx context.Context, sql string, params []interface{}) ([]*model.Card, error)

	// CountPredicate runs translated counting SQL.
	CountPredicate(ctx context.Context, sql string, params []interface{}) (int64, error)

	// GetResultSet returns the live entry for a fingerprint, or nil if
	// absent or expired, refreshing last_accessed on hit.
	GetResultSet(ctx context.Context, fingerprint string) (*ResultSet, error)

	// PutResultSet upserts the entry for a fingerprint, resetting its
	// last_accessed stamp.
	PutResultSet(ctx context.Context, fingerprint string, ids []string, ttlHours int) error

	// GCResultSets deletes entries not accessed within olderThanHours,
	// returning the number removed.
	GCResultSets(ctx context.Context, olderThanHours int) (int64, error)

	// RecordImport appends one bulk-import log row.
	RecordImport(ctx context.Context, totalCards int, source string) error

	// LastImportTimestamp returns the newest import time, or nil if no
	// import has ever completed.
	LastImportTimestamp(ctx context.Context) (*time.Time, error)

	CardCount(ctx context.Context) (int64, error)
	ResultSetCount(ctx context.Context) (int64, error)
	AnyCards(ctx context.Context) (bool, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
