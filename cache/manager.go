package cache

import (
	"context"
	"strconv"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/scrycache/scrycache/model"
	"github.com/scrycache/scrycache/query"
	"github.com/scrycache/scrycache/store"
)

// defaultPageSize applies when a paginated search passes no page size.
const defaultPageSize = 100

// autocompleteLimit caps completions returned per prefix.
const autocompleteLimit = 20

// Upstream is the slice of the catalog client the read path falls back
// to. Single-card lookups return nil without error when the upstream
// does not know the card.
type Upstream interface {
	Search(ctx context.Context, raw string) ([]*model.Card, error)
	CardByID(ctx context.Context, id string) (*model.Card, error)
	CardByName(ctx context.Context, name string, fuzzy bool) (*model.Card, error)
	CardsByIDs(ctx context.Context, ids []string) ([]*model.Card, error)
}

// Stats reports store-level cache totals.
type Stats struct {
	TotalCards        int64 `json:"total_cards"`
	TotalCacheEntries int64 `json:"total_cache_entries"`
}

// Manager walks the tiered read path: distributed tier, durable
// result-set cache, local query execution, then the upstream catalog.
// Whatever tier answers, lower tiers are warmed on the way out.
type Manager struct {
	store      store.Store
	tier       Tier
	upstream   Upstream
	planner    *query.Planner
	translator query.Translator
	ttlHours   int
	flights    singleflight.Group
}

// NewManager wires the read path over one store, one distributed tier,
// and the upstream client. The dialect must match the store engine;
// resultTTLHours is the lifetime of durable result-set entries.
func NewManager(st store.Store, tier Tier, up Upstream, planner *query.Planner, dialect query.Dialect, resultTTLHours int) *Manager {
	return &Manager{
		store:      st,
		tier:       tier,
		upstream:   up,
		planner:    planner,
		translator: query.Translator{Dialect: dialect},
		ttlHours:   resultTTLHours,
	}
}

// PingStore verifies the durable store is reachable.
func (m *Manager) PingStore(ctx context.Context) error { return m.store.Ping(ctx) }

// PingTier verifies the distributed tier is reachable.
func (m *Manager) PingTier(ctx context.Context) error { return m.tier.Ping(ctx) }

// HasCards reports whether the store holds any cards at all.
func (m *Manager) HasCards(ctx context.Context) (bool, error) { return m.store.AnyCards(ctx) }

// Search resolves a query through the tiers, capped at limit cards. A
// non-positive or over-limit value selects the configured maximum.
// Identical in-flight searches collapse onto one execution.
func (m *Manager) Search(ctx context.Context, raw string, limit int) ([]*model.Card, error) {
	if max := m.planner.Limits().MaxResults; limit <= 0 || limit > max {
		limit = max
	}

	var fp = Fingerprint(raw)
	var v, err, _ = m.flights.Do(fp+":"+strconv.Itoa(limit), func() (interface{}, error) {
		return m.search(ctx, raw, fp, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.Card), nil
}

func (m *Manager) search(ctx context.Context, raw, fp string, limit int) ([]*model.Card, error) {
	// Distributed tier. A cached id list is only usable while the ids
	// still dereference to stored rows.
	if ids, ok := m.tier.GetResultIDs(ctx, fp); ok {
		var cards, err = m.store.GetCards(ctx, ids)
		if err == nil && len(cards) > 0 {
			log.WithFields(log.Fields{"query": raw, "cards": len(cards)}).
				Info("search served from distributed cache")
			return orderByIDs(cards, ids), nil
		}
		log.WithField("query", raw).Debug("cached ids no longer dereference, falling back")
	}

	// Durable result-set cache.
	rs, err := m.store.GetResultSet(ctx, fp)
	if err != nil {
		return nil, err
	}
	if rs != nil {
		var cards, derefErr = m.store.GetCards(ctx, rs.IDs)
		if derefErr == nil && len(cards) > 0 {
			cacheHits.WithLabelValues(tierQueryCache).Inc()
			log.WithFields(log.Fields{"query": raw, "cards": len(cards)}).
				Info("search served from result-set cache")
			m.tier.PutResultIDs(ctx, fp, rs.IDs)
			return orderByIDs(cards, rs.IDs), nil
		}
		if derefErr != nil {
			log.WithFields(log.Fields{"query": raw, "error": derefErr}).
				Debug("result-set dereference failed, falling back")
		}
	}
	cacheMisses.WithLabelValues(tierQueryCache).Inc()

	// Local execution.
	cards, execErr := m.executeLocal(ctx, raw, limit)
	if execErr == nil && len(cards) > 0 {
		cacheHits.WithLabelValues(tierDatabase).Inc()
		log.WithFields(log.Fields{"query": raw, "cards": len(cards)}).
			Info("search served from local store")
		var ids = cardIDs(cards)
		if err := m.store.PutResultSet(ctx, fp, ids, m.ttlHours); err != nil {
			log.WithFields(log.Fields{"query": raw, "error": err}).
				Warn("result-set cache write failed")
		}
		m.tier.PutResultIDs(ctx, fp, ids)
		return cards, nil
	}
	if execErr != nil {
		log.WithFields(log.Fields{"query": raw, "error": execErr}).
			Debug("local execution failed, trying upstream")
	}
	cacheMisses.WithLabelValues(tierDatabase).Inc()

	// Upstream fallback. Results are written through every tier so the
	// next identical search stays local.
	log.WithField("query", raw).Info("querying upstream catalog")
	fetched, err := m.upstream.Search(ctx, raw)
	if err != nil {
		return nil, err
	}
	if len(fetched) == 0 {
		cacheMisses.WithLabelValues(tierAPI).Inc()
		return fetched, nil
	}
	cacheHits.WithLabelValues(tierAPI).Inc()
	if err = m.store.UpsertCards(ctx, fetched); err != nil {
		return nil, err
	}
	var ids = cardIDs(fetched)
	if err := m.store.PutResultSet(ctx, fp, ids, m.ttlHours); err != nil {
		log.WithFields(log.Fields{"query": raw, "error": err}).
			Warn("result-set cache write failed")
	}
	m.tier.PutResultIDs(ctx, fp, ids)
	m.tier.PutCards(ctx, fetched)
	log.WithFields(log.Fields{"query": raw, "cards": len(fetched)}).
		Info("search served from upstream")
	return fetched, nil
}

// SearchPaginated fetches one page of results plus the total count,
// skipping the result-set caches: they hold full id lists while a page
// needs only its own window. Out-of-range inputs are clamped.
func (m *Manager) SearchPaginated(ctx context.Context, raw string, page, pageSize int) ([]*model.Card, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if max := m.planner.Limits().MaxResults; pageSize > max {
		pageSize = max
	}

	var cards, total, execErr = m.executePage(ctx, raw, page, pageSize)
	if execErr == nil && (len(cards) > 0 || total > 0) {
		cacheHits.WithLabelValues(tierDatabase).Inc()
		return cards, total, nil
	}
	if execErr != nil {
		log.WithFields(log.Fields{"query": raw, "error": execErr}).
			Debug("local page execution failed, trying upstream")
	}
	cacheMisses.WithLabelValues(tierDatabase).Inc()

	// The upstream returns the full result set, so the page is cut
	// in memory after storing every card.
	log.WithField("query", raw).Info("querying upstream catalog")
	fetched, err := m.upstream.Search(ctx, raw)
	if err != nil {
		return nil, 0, err
	}
	if len(fetched) > 0 {
		cacheHits.WithLabelValues(tierAPI).Inc()
		if err = m.store.UpsertCards(ctx, fetched); err != nil {
			return nil, 0, err
		}
	} else {
		cacheMisses.WithLabelValues(tierAPI).Inc()
	}
	return pageSlice(fetched, page, pageSize), int64(len(fetched)), nil
}

// GetCard resolves one card by id through the tiers, returning nil when
// neither the store nor the upstream knows it.
func (m *Manager) GetCard(ctx context.Context, id string) (*model.Card, error) {
	if card, ok := m.tier.GetCard(ctx, id); ok {
		return card, nil
	}

	// A store failure reads as a miss so the upstream can still answer.
	var card, err = m.store.GetCard(ctx, id)
	if err != nil {
		log.WithFields(log.Fields{"id": id, "error": err}).
			Debug("store card lookup failed, trying upstream")
	} else if card != nil {
		cacheHits.WithLabelValues(tierDatabase).Inc()
		m.tier.PutCard(ctx, card)
		return card, nil
	}
	cacheMisses.WithLabelValues(tierDatabase).Inc()

	fetched, err := m.upstream.CardByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if fetched == nil {
		cacheMisses.WithLabelValues(tierAPI).Inc()
		return nil, nil
	}
	cacheHits.WithLabelValues(tierAPI).Inc()
	if err = m.store.UpsertCards(ctx, []*model.Card{fetched}); err != nil {
		return nil, err
	}
	m.tier.PutCard(ctx, fetched)
	log.WithField("name", fetched.Name).Info("fetched and cached card from upstream")
	return fetched, nil
}

// GetCardByName resolves a card by exact or fuzzy name, store first.
func (m *Manager) GetCardByName(ctx context.Context, name string, fuzzy bool) (*model.Card, error) {
	var cards, err = m.store.SearchByName(ctx, name, 1)
	if err != nil {
		return nil, err
	}
	if len(cards) > 0 {
		cacheHits.WithLabelValues(tierDatabase).Inc()
		return cards[0], nil
	}
	cacheMisses.WithLabelValues(tierDatabase).Inc()

	fetched, err := m.upstream.CardByName(ctx, name, fuzzy)
	if err != nil {
		return nil, err
	}
	if fetched == nil {
		cacheMisses.WithLabelValues(tierAPI).Inc()
		return nil, nil
	}
	cacheHits.WithLabelValues(tierAPI).Inc()
	if err = m.store.UpsertCards(ctx, []*model.Card{fetched}); err != nil {
		return nil, err
	}
	log.WithField("name", fetched.Name).Info("fetched and cached card from upstream")
	return fetched, nil
}

// GetCardsBatch resolves many ids in one pass. Found cards come back in
// request order with duplicates preserved; the second return lists ids
// that stayed unresolved, deduplicated in first-seen order. With
// fetchMissing set, unresolved ids are fetched from the upstream and
// stored before the final projection.
func (m *Manager) GetCardsBatch(ctx context.Context, ids []string, fetchMissing bool) ([]*model.Card, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	var found, err = m.store.GetCards(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	var byID = make(map[string]*model.Card, len(found))
	for _, card := range found {
		byID[card.ID] = card
	}

	var missing = missingIDs(ids, byID)
	if len(missing) == 0 {
		cacheHits.WithLabelValues(tierDatabase).Inc()
	} else {
		cacheMisses.WithLabelValues(tierDatabase).Inc()
	}

	if fetchMissing && len(missing) > 0 {
		fetched, err := m.upstream.CardsByIDs(ctx, missing)
		if err != nil {
			return nil, nil, err
		}
		if len(fetched) > 0 {
			cacheHits.WithLabelValues(tierAPI).Inc()
			if err = m.store.UpsertCards(ctx, fetched); err != nil {
				return nil, nil, err
			}
			for _, card := range fetched {
				byID[card.ID] = card
			}
		} else {
			cacheMisses.WithLabelValues(tierAPI).Inc()
		}
		missing = missingIDs(ids, byID)
	}

	var ordered = make([]*model.Card, 0, len(ids))
	for _, id := range ids {
		if card, ok := byID[id]; ok {
			ordered = append(ordered, card)
		}
	}
	return ordered, missing, nil
}

// Autocomplete returns up to 20 card names with the given prefix.
// Prefixes under two bytes return nothing rather than sweeping the
// whole name index.
func (m *Manager) Autocomplete(ctx context.Context, prefix string) ([]string, error) {
	if len(prefix) < 2 {
		return nil, nil
	}

	if names, ok := m.tier.GetAutocomplete(ctx, prefix); ok {
		return names, nil
	}

	var names, err = m.store.Autocomplete(ctx, prefix, autocompleteLimit)
	if err != nil {
		return nil, err
	}
	m.tier.PutAutocomplete(ctx, prefix, names)
	return names, nil
}

// Stats reports store totals.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	var cards, err = m.store.CardCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	entries, err := m.store.ResultSetCount(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalCards: cards, TotalCacheEntries: entries}, nil
}

// TierStats reports the distributed tier's server-side counters.
func (m *Manager) TierStats(ctx context.Context) (TierStats, error) {
	return m.tier.Stats(ctx)
}

// Invalidate drops the distributed tier, usually after a bulk reload
// has replaced the rows cached id lists point at.
func (m *Manager) Invalidate(ctx context.Context) error {
	return m.tier.Invalidate(ctx)
}

func (m *Manager) executeLocal(ctx context.Context, raw string, limit int) ([]*model.Card, error) {
	var node, err = m.planner.Plan(raw)
	if err != nil {
		return nil, err
	}
	sql, params, err := m.translator.SearchSQL(node, limit)
	if err != nil {
		return nil, err
	}
	return m.store.ExecutePredicate(ctx, sql, params)
}

func (m *Manager) executePage(ctx context.Context, raw string, page, pageSize int) ([]*model.Card, int64, error) {
	var node, err = m.planner.Plan(raw)
	if err != nil {
		return nil, 0, err
	}
	countSQL, countParams, err := m.translator.CountSQL(node)
	if err != nil {
		return nil, 0, err
	}
	total, err := m.store.CountPredicate(ctx, countSQL, countParams)
	if err != nil {
		return nil, 0, err
	}
	pageSQL, pageParams, err := m.translator.PageSQL(node, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	cards, err := m.store.ExecutePredicate(ctx, pageSQL, pageParams)
	if err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

// orderByIDs projects cards into the order of ids, dropping absent
// ones. Cached id lists preserve result order while GetCards returns
// rows in whatever order the engine produced them.
func orderByIDs(cards []*model.Card, ids []string) []*model.Card {
	var byID = make(map[string]*model.Card, len(cards))
	for _, card := range cards {
		byID[card.ID] = card
	}
	var ordered = make([]*model.Card, 0, len(cards))
	for _, id := range ids {
		if card, ok := byID[id]; ok {
			ordered = append(ordered, card)
		}
	}
	return ordered
}

func cardIDs(cards []*model.Card) []string {
	var ids = make([]string, len(cards))
	for i, card := range cards {
		ids[i] = card.ID
	}
	return ids
}

// missingIDs returns the ids absent from byID, deduplicated in
// first-seen order.
func missingIDs(ids []string, byID map[string]*model.Card) []string {
	var missing []string
	var seen = make(map[string]struct{})
	for _, id := range ids {
		if _, ok := byID[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	return missing
}

// pageSlice cuts one page out of a full result list.
func pageSlice(cards []*model.Card, page, pageSize int) []*model.Card {
	var start = (page - 1) * pageSize
	if start >= len(cards) {
		return nil
	}
	var end = start + pageSize
	if end > len(cards) {
		end = len(cards)
	}
	return cards[start:end]
}
