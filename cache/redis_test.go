package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheEntryEnvelope(t *testing.T) {
	var payload, err = encodeEntry([]string{"a", "b"})
	require.NoError(t, err)

	var entry cacheEntry
	require.NoError(t, json.Unmarshal(payload, &entry))
	require.JSONEq(t, `["a","b"]`, string(entry.Data))
	require.InDelta(t, time.Now().Unix(), entry.CachedAt, 5)

	var ids []string
	require.NoError(t, decodeEntry(payload, &ids))
	require.Equal(t, []string{"a", "b"}, ids)
}

func TestDecodeEntryRejectsGarbage(t *testing.T) {
	var ids []string
	require.Error(t, decodeEntry([]byte("not json"), &ids))

	// A well-formed envelope with a mismatched payload type still fails.
	payload, err := encodeEntry(map[string]int{"n": 1})
	require.NoError(t, err)
	require.Error(t, decodeEntry(payload, &ids))
}

func TestKeyFormats(t *testing.T) {
	require.Equal(t, "query:bf1cb6a2", resultKey("bf1cb6a2"))
	require.Equal(t,
		"card:11111111-1111-4111-8111-111111111111",
		cardKey("11111111-1111-4111-8111-111111111111"))

	// Autocomplete keys fold case so "Light" and "light" share an entry.
	require.Equal(t, "autocomplete:light", autocompleteKey("Light"))
	require.Equal(t, "autocomplete:light", autocompleteKey("light"))
}

func TestParseServerInfo(t *testing.T) {
	var info = "# Stats\r\n" +
		"keyspace_hits:75\r\n" +
		"keyspace_misses:25\r\n" +
		"total_connections_received:4\r\n" +
		"\r\n" +
		"# Memory\r\n" +
		"used_memory:1048576\r\n" +
		"used_memory_human:1.00M\r\n"

	var stats, used = parseServerInfo(info)
	require.Equal(t, uint64(75), stats.Hits)
	require.Equal(t, uint64(25), stats.Misses)
	require.Equal(t, float64(75), stats.HitRate)
	require.Equal(t, int64(1048576), used)
}

func TestParseServerInfoEmpty(t *testing.T) {
	var stats, used = parseServerInfo("")
	require.Zero(t, stats.Hits)
	require.Zero(t, stats.Misses)
	require.Zero(t, stats.HitRate)
	require.Zero(t, used)
}
