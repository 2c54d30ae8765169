package cache

import (
	"context"

	"github.com/scrycache/scrycache/model"
)

// TierStats carries the distributed tier's server-side counters.
type TierStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Tier is the distributed cache sitting in front of the durable store.
// Gets report presence with a bool and never return errors: a degraded
// tier reads as a string of misses. Puts are best-effort and log their
// own failures. The Manager holds exactly one Tier; deployments without
// Redis get NoopTier.
type Tier interface {
	// GetResultIDs returns the cached ordered id list for a query
	// fingerprint.
	GetResultIDs(ctx context.Context, fingerprint string) ([]string, bool)

	// PutResultIDs caches the id list a fingerprint resolved to.
	PutResultIDs(ctx context.Context, fingerprint string, ids []string)

	// GetCard returns the cached card with this id.
	GetCard(ctx context.Context, id string) (*model.Card, bool)

	// PutCard caches one card keyed by id.
	PutCard(ctx context.Context, card *model.Card)

	// PutCards caches each card individually, skipping any that fail.
	PutCards(ctx context.Context, cards []*model.Card)

	// GetAutocomplete returns cached completions for a prefix. A cached
	// empty list is still a hit.
	GetAutocomplete(ctx context.Context, prefix string) ([]string, bool)

	// PutAutocomplete caches completions for a prefix.
	PutAutocomplete(ctx context.Context, prefix string, names []string)

	// Invalidate drops every entry, typically after a bulk reload.
	Invalidate(ctx context.Context) error

	// Stats reports server-side hit counters.
	Stats(ctx context.Context) (TierStats, error)

	// Ping verifies the tier is reachable.
	Ping(ctx context.Context) error
}

// NoopTier serves deployments without a distributed cache: every get
// misses, every put is dropped, invalidation succeeds vacuously.
type NoopTier struct{}

var _ Tier = NoopTier{}

func (NoopTier) GetResultIDs(context.Context, string) ([]string, bool) { return nil, false }

func (NoopTier) PutResultIDs(context.Context, string, []string) {}

func (NoopTier) GetCard(context.Context, string) (*model.Card, bool) { return nil, false }

func (NoopTier) PutCard(context.Context, *model.Card) {}

func (NoopTier) PutCards(context.Context, []*model.Card) {}

func (NoopTier) GetAutocomplete(context.Context, string) ([]string, bool) { return nil, false }

func (NoopTier) PutAutocomplete(context.Context, string, []string) {}

func (NoopTier) Invalidate(context.Context) error { return nil }

func (NoopTier) Stats(context.Context) (TierStats, error) { return TierStats{}, nil }

func (NoopTier) Ping(context.Context) error { return nil }
