package bulk

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/scrycache/scrycache/config"
	"github.com/scrycache/scrycache/store"
	"github.com/scrycache/scrycache/store/sqlite"
	"github.com/scrycache/scrycache/upstream"
)

func openTestStore(t *testing.T) store.Store {
	dir, err := ioutil.TempDir("", "bulk-db")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	s, err := sqlite.Open(context.Background(), config.Database{
		URL:              path.Join(dir, "cards.db"),
		MaxConnections:   4,
		AcquireTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// snapshotJSON builds a JSON card array of n well-formed records plus
// bad undecodable ones interleaved at the front.
func snapshotJSON(n, bad int) []byte {
	var records []json.RawMessage
	for i := 0; i < bad; i++ {
		records = append(records, json.RawMessage(`{"name":"No Identity"}`))
	}
	for i := 0; i < n; i++ {
		records = append(records, json.RawMessage(fmt.Sprintf(
			`{"id":%q,"name":"Card %05d","cmc":%d}`, uuid.NewString(), i, i%16)))
	}
	var out, err = json.Marshal(records)
	if err != nil {
		panic(err)
	}
	return out
}

type fixedCatalog struct {
	entries []upstream.BulkEntry
	err     error
}

func (c fixedCatalog) BulkCatalog(context.Context) ([]upstream.BulkEntry, error) {
	return c.entries, c.err
}

func testLoader(t *testing.T, st store.Store, body []byte, failures int) (*Loader, *int) {
	t.Helper()

	var attempts int
	var server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= failures {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(server.Close)

	var loader = NewLoader(st, fixedCatalog{entries: []upstream.BulkEntry{{
		Type:        "default_cards",
		DownloadURI: server.URL + "/snapshot",
		UpdatedAt:   time.Now().UTC(),
		Size:        int64(len(body)),
	}}}, config.Scryfall{BulkDataType: "default_cards", CacheTTLHours: 24})
	loader.retryBackoff = time.Millisecond
	return loader, &attempts
}

func TestLoadImportsSnapshot(t *testing.T) {
	var st = openTestStore(t)
	var loader, _ = testLoader(t, st, snapshotJSON(1200, 0), 0)
	var ctx = context.Background()

	require.NoError(t, loader.Load(ctx))

	count, err := st.CardCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1200), count)

	last, err := st.LastImportTimestamp(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
}

func TestLoadGzippedSnapshot(t *testing.T) {
	var raw = snapshotJSON(1100, 0)
	var compressed bytes.Buffer
	var gz = gzip.NewWriter(&compressed)
	var _, err = gz.Write(raw)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	var st = openTestStore(t)
	var loader, _ = testLoader(t, st, compressed.Bytes(), 0)

	require.NoError(t, loader.Load(context.Background()))

	count, err := st.CardCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1100), count)
}

func TestLoadSkipsUndecodableRecords(t *testing.T) {
	var st = openTestStore(t)
	var loader, _ = testLoader(t, st, snapshotJSON(1050, 7), 0)

	require.NoError(t, loader.Load(context.Background()))

	count, err := st.CardCount(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1050), count)
}

func TestLoadFailsOnTinySnapshot(t *testing.T) {
	var st = openTestStore(t)
	var loader, _ = testLoader(t, st, snapshotJSON(10, 0), 0)

	var err = loader.Load(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "integrity check failed")

	// The failed load must not be recorded as an import.
	last, err := st.LastImportTimestamp(context.Background())
	require.NoError(t, err)
	require.Nil(t, last)
}

func TestLoadRetriesDownload(t *testing.T) {
	var st = openTestStore(t)
	var loader, attempts = testLoader(t, st, snapshotJSON(1001, 0), 2)

	require.NoError(t, loader.Load(context.Background()))
	require.Equal(t, 3, *attempts)
}

func TestLoadExhaustsRetries(t *testing.T) {
	var st = openTestStore(t)
	var loader, attempts = testLoader(t, st, snapshotJSON(1001, 0), 10)

	require.Error(t, loader.Load(context.Background()))
	require.Equal(t, 3, *attempts)
}

func TestLoadUnknownBulkTypeListsAvailable(t *testing.T) {
	var loader = NewLoader(openTestStore(t), fixedCatalog{entries: []upstream.BulkEntry{
		{Type: "oracle_cards"},
		{Type: "all_cards"},
	}}, config.Scryfall{BulkDataType: "default_cards"})

	var err = loader.Load(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), `"default_cards" not found`)
	require.Contains(t, err.Error(), "oracle_cards, all_cards")
}

func TestLoadIsIdempotentOverUnchangedData(t *testing.T) {
	var st = openTestStore(t)
	var body = snapshotJSON(1100, 0)
	var loader, _ = testLoader(t, st, body, 0)
	var ctx = context.Background()

	require.NoError(t, loader.Load(ctx))
	require.NoError(t, loader.Load(ctx))

	count, err := st.CardCount(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1100), count)
}

// stubStore overrides just the bookkeeping methods; any other call
// panics through the nil embedded Store.
type stubStore struct {
	store.Store
	anyCards bool
	last     *time.Time
}

func (s stubStore) AnyCards(context.Context) (bool, error) { return s.anyCards, nil }

func (s stubStore) LastImportTimestamp(context.Context) (*time.Time, error) { return s.last, nil }

func TestShouldLoad(t *testing.T) {
	var cfg = config.Scryfall{BulkDataType: "default_cards", CacheTTLHours: 24}
	var ctx = context.Background()

	var fresh = time.Now().Add(-1 * time.Hour)
	var stale = time.Now().Add(-48 * time.Hour)

	for _, tc := range []struct {
		name   string
		st     stubStore
		expect bool
	}{
		{"empty store", stubStore{anyCards: false}, true},
		{"fresh import", stubStore{anyCards: true, last: &fresh}, false},
		{"stale import", stubStore{anyCards: true, last: &stale}, true},
		{"cards without metadata", stubStore{anyCards: true}, false},
	} {
		var got, err = NewLoader(tc.st, nil, cfg).ShouldLoad(ctx)
		require.NoError(t, err, tc.name)
		require.Equal(t, tc.expect, got, tc.name)
	}
}

func TestCheckUpstreamUpdated(t *testing.T) {
	var cfg = config.Scryfall{BulkDataType: "default_cards", CacheTTLHours: 24}
	var ctx = context.Background()

	var importedAt = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	var catalogAt = func(updated time.Time) fixedCatalog {
		return fixedCatalog{entries: []upstream.BulkEntry{{Type: "default_cards", UpdatedAt: updated}}}
	}

	// No prior import: always updated.
	got, err := NewLoader(stubStore{}, catalogAt(importedAt), cfg).CheckUpstreamUpdated(ctx)
	require.NoError(t, err)
	require.True(t, got)

	// Upstream strictly newer.
	got, err = NewLoader(stubStore{last: &importedAt}, catalogAt(importedAt.Add(time.Hour)), cfg).CheckUpstreamUpdated(ctx)
	require.NoError(t, err)
	require.True(t, got)

	// Same timestamp is not an update.
	got, err = NewLoader(stubStore{last: &importedAt}, catalogAt(importedAt), cfg).CheckUpstreamUpdated(ctx)
	require.NoError(t, err)
	require.False(t, got)
}
