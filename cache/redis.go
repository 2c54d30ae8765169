package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/scrycache/scrycache/config"
	"github.com/scrycache/scrycache/model"
)

// Autocomplete entries turn over faster than query results.
const autocompleteTTL = 10 * time.Minute

// cacheEntry is the stored envelope around every tier value. CachedAt is
// Unix seconds at write time.
type cacheEntry struct {
	Data     json.RawMessage `json:"data"`
	CachedAt int64           `json:"cached_at"`
}

func encodeEntry(data interface{}) ([]byte, error) {
	var raw, err = json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding cache payload: %w", err)
	}
	return json.Marshal(cacheEntry{Data: raw, CachedAt: time.Now().Unix()})
}

func decodeEntry(payload []byte, into interface{}) error {
	var entry cacheEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return fmt.Errorf("decoding cache entry: %w", err)
	}
	if err := json.Unmarshal(entry.Data, into); err != nil {
		return fmt.Errorf("decoding cache payload: %w", err)
	}
	return nil
}

func resultKey(fingerprint string) string { return "query:" + fingerprint }

func cardKey(id string) string { return "card:" + id }

func autocompleteKey(prefix string) string { return "autocomplete:" + strings.ToLower(prefix) }

// RedisTier is the Redis-backed Tier. Values are JSON cacheEntry
// envelopes under "query:", "card:" and "autocomplete:" key prefixes.
type RedisTier struct {
	client       *redis.Client
	ttl          time.Duration
	maxValueSize int
}

var _ Tier = (*RedisTier)(nil)

// NewRedisTier connects to Redis and verifies the connection with a
// PING before returning.
func NewRedisTier(ctx context.Context, cfg config.Redis) (*RedisTier, error) {
	var opts, err = redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	var client = redis.NewClient(opts)
	if err = client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	log.Debug("redis cache tier connected")

	return &RedisTier{
		client:       client,
		ttl:          cfg.TTL(),
		maxValueSize: cfg.MaxValueSizeMB << 20,
	}, nil
}

func (t *RedisTier) GetResultIDs(ctx context.Context, fingerprint string) ([]string, bool) {
	var ids []string
	if !t.getValue(ctx, resultKey(fingerprint), &ids) {
		cacheMisses.WithLabelValues(tierRedis).Inc()
		return nil, false
	}
	cacheHits.WithLabelValues(tierRedis).Inc()
	return ids, true
}

func (t *RedisTier) PutResultIDs(ctx context.Context, fingerprint string, ids []string) {
	t.putValue(ctx, resultKey(fingerprint), ids, t.ttl)
}

func (t *RedisTier) GetCard(ctx context.Context, id string) (*model.Card, bool) {
	var card model.Card
	if !t.getValue(ctx, cardKey(id), &card) {
		cacheMisses.WithLabelValues(tierRedis).Inc()
		return nil, false
	}
	cacheHits.WithLabelValues(tierRedis).Inc()
	return &card, true
}

func (t *RedisTier) PutCard(ctx context.Context, card *model.Card) {
	t.putValue(ctx, cardKey(card.ID), card, t.ttl)
}

func (t *RedisTier) PutCards(ctx context.Context, cards []*model.Card) {
	for _, card := range cards {
		t.PutCard(ctx, card)
	}
}

func (t *RedisTier) GetAutocomplete(ctx context.Context, prefix string) ([]string, bool) {
	var names []string
	if !t.getValue(ctx, autocompleteKey(prefix), &names) {
		return nil, false
	}
	return names, true
}

func (t *RedisTier) PutAutocomplete(ctx context.Context, prefix string, names []string) {
	t.putValue(ctx, autocompleteKey(prefix), names, autocompleteTTL)
}

// Invalidate flushes the whole database. Run after bulk reloads so
// cached id lists cannot reference replaced rows.
func (t *RedisTier) Invalidate(ctx context.Context) error {
	if err := t.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("flushing redis: %w", err)
	}
	log.Debug("redis cache invalidated")
	return nil
}

// Stats reads keyspace counters from INFO and refreshes the cache size
// gauge from the server's memory use.
func (t *RedisTier) Stats(ctx context.Context) (TierStats, error) {
	var info, err = t.client.Info(ctx, "stats", "memory").Result()
	if err != nil {
		return TierStats{}, fmt.Errorf("reading redis info: %w", err)
	}
	var stats, usedMemory = parseServerInfo(info)
	if usedMemory > 0 {
		cacheSizeBytes.Set(float64(usedMemory))
	}
	return stats, nil
}

func (t *RedisTier) Ping(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (t *RedisTier) Close() error {
	return t.client.Close()
}

// getValue reads and decodes one entry. Every failure reads as a miss so
// a degraded tier slows the read path instead of breaking it.
func (t *RedisTier) getValue(ctx context.Context, key string, into interface{}) bool {
	var payload, err = t.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		log.WithFields(log.Fields{"key": key, "error": err}).Error("redis get failed")
		return false
	}
	if err = decodeEntry(payload, into); err != nil {
		log.WithFields(log.Fields{"key": key, "error": err}).Error("redis entry unreadable")
		return false
	}
	return true
}

// putValue encodes and writes one entry, skipping values over the size
// cap. Failures are logged and dropped.
func (t *RedisTier) putValue(ctx context.Context, key string, data interface{}, ttl time.Duration) {
	var payload, err = encodeEntry(data)
	if err != nil {
		log.WithFields(log.Fields{"key": key, "error": err}).Error("cache entry encode failed")
		return
	}
	if t.maxValueSize > 0 && len(payload) > t.maxValueSize {
		log.WithFields(log.Fields{
			"key":   key,
			"bytes": len(payload),
			"limit": t.maxValueSize,
		}).Warn("cache value over size limit, skipping")
		return
	}
	if err = t.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		log.WithFields(log.Fields{"key": key, "error": err}).Warn("redis set failed")
	}
}

// parseServerInfo extracts keyspace counters and memory use from INFO
// output. Lines arrive CRLF-terminated in "key:value" form with section
// headers and blank lines interleaved.
func parseServerInfo(info string) (TierStats, int64) {
	var stats TierStats
	var usedMemory int64
	for _, line := range strings.Split(info, "\n") {
		var key, value, ok = strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		switch key {
		case "keyspace_hits":
			stats.Hits, _ = strconv.ParseUint(value, 10, 64)
		case "keyspace_misses":
			stats.Misses, _ = strconv.ParseUint(value, 10, 64)
		case "used_memory":
			usedMemory, _ = strconv.ParseInt(value, 10, 64)
		}
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats, usedMemory
}
