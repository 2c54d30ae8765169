// Package bulk ingests the upstream's bulk card snapshot into the store
// and keeps it fresh with a background refresh task.
package bulk

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/scrycache/scrycache/config"
	"github.com/scrycache/scrycache/model"
	"github.com/scrycache/scrycache/store"
	"github.com/scrycache/scrycache/upstream"
)

// batchSize is the number of cards per upsert transaction.
const batchSize = 500

// progressEvery is how many imported cards between progress logs.
const progressEvery = 5000

// minImportCount fails a load that produced implausibly few cards; a
// truncated or mangled download must not replace a healthy corpus.
const minImportCount = 1000

// maxFailureLogs caps per-record decode failures logged per load.
const maxFailureLogs = 10

// downloadTimeout bounds one snapshot download attempt.
const downloadTimeout = 10 * time.Minute

// downloadAttempts and retryBackoff shape the download retry schedule:
// 1s, 2s, 4s between attempts.
const downloadAttempts = 3

// Catalog is the slice of the upstream client the loader needs.
type Catalog interface {
	BulkCatalog(ctx context.Context) ([]upstream.BulkEntry, error)
}

// Loader runs the ingestion pipeline: discover the configured snapshot
// in the bulk catalog, download it, stream-decode the card array, and
// upsert in batches. A running load never blocks readers; they see the
// previous snapshot until each upsert lands.
type Loader struct {
	store    store.Store
	catalog  Catalog
	cfg      config.Scryfall
	download *http.Client

	// retryBackoff is the base backoff unit, shortened by tests.
	retryBackoff time.Duration
}

// NewLoader returns a loader ingesting cfg.BulkDataType snapshots into st.
func NewLoader(st store.Store, catalog Catalog, cfg config.Scryfall) *Loader {
	return &Loader{
		store:        st,
		catalog:      catalog,
		cfg:          cfg,
		download:     &http.Client{Timeout: downloadTimeout},
		retryBackoff: time.Second,
	}
}

// ShouldLoad reports whether a load is due: always when the store holds
// no cards, otherwise when the last import is at least CacheTTLHours
// old. Cards without import metadata count as fresh.
func (l *Loader) ShouldLoad(ctx context.Context) (bool, error) {
	var hasCards, err = l.store.AnyCards(ctx)
	if err != nil {
		return false, err
	}
	if !hasCards {
		log.Info("no cards in store, bulk load required")
		return true, nil
	}

	last, err := l.store.LastImportTimestamp(ctx)
	if err != nil {
		return false, err
	}
	if last == nil {
		log.Info("cards exist but no import metadata found, skipping load")
		return false, nil
	}

	var age = time.Since(*last)
	if age >= time.Duration(l.cfg.CacheTTLHours)*time.Hour {
		log.WithField("age", age).Info("bulk snapshot is stale, reload required")
		return true, nil
	}
	log.WithField("age", age).Info("bulk snapshot is fresh, skipping reload")
	return false, nil
}

// CheckUpstreamUpdated reports whether the upstream's snapshot is newer
// than our last import. Having no prior import counts as updated.
func (l *Loader) CheckUpstreamUpdated(ctx context.Context) (bool, error) {
	var entry, err = l.selectBulk(ctx)
	if err != nil {
		return false, err
	}

	last, err := l.store.LastImportTimestamp(ctx)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return entry.UpdatedAt.After(*last), nil
}

// Load runs the full ingestion pipeline.
func (l *Loader) Load(ctx context.Context) error {
	var start = time.Now()
	log.Info("starting bulk data import")

	var entry, err = l.selectBulk(ctx)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"type":    entry.Type,
		"size_mb": entry.Size / 1_000_000,
	}).Info("found bulk snapshot")

	var imported, failed int
	err = l.withRetry(ctx, func() error {
		var attemptErr error
		imported, failed, attemptErr = l.downloadAndImport(ctx, entry)
		return attemptErr
	})
	if err != nil {
		return err
	}

	if imported < minImportCount {
		return fmt.Errorf("bulk import integrity check failed: only %d cards imported (minimum %d)",
			imported, minImportCount)
	}
	if total := imported + failed; failed*10 > total {
		log.WithFields(log.Fields{"failed": failed, "total": total}).
			Warn("bulk import failure rate above 10%")
	}

	if err = l.store.RecordImport(ctx, imported, entry.DownloadURI); err != nil {
		return err
	}

	var elapsed = time.Since(start)
	loadDuration.Set(elapsed.Seconds())
	lastLoadTimestamp.SetToCurrentTime()
	cardsImported.Set(float64(imported))

	log.WithFields(log.Fields{
		"cards":   imported,
		"failed":  failed,
		"elapsed": elapsed.Round(time.Millisecond),
	}).Info("bulk data import completed")
	return nil
}

// LastImport reports the most recent import time, or nil before any
// import has completed.
func (l *Loader) LastImport(ctx context.Context) (*time.Time, error) {
	return l.store.LastImportTimestamp(ctx)
}

// ForceLoad loads unconditionally.
func (l *Loader) ForceLoad(ctx context.Context) error {
	log.Info("force loading bulk data")
	return l.Load(ctx)
}

// selectBulk finds the configured snapshot type in the bulk catalog.
func (l *Loader) selectBulk(ctx context.Context) (upstream.BulkEntry, error) {
	var entries, err = l.catalog.BulkCatalog(ctx)
	if err != nil {
		return upstream.BulkEntry{}, fmt.Errorf("fetching bulk catalog: %w", err)
	}

	var available = make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type == l.cfg.BulkDataType {
			return entry, nil
		}
		available = append(available, entry.Type)
	}
	return upstream.BulkEntry{}, fmt.Errorf("bulk data type %q not found (available: %s)",
		l.cfg.BulkDataType, strings.Join(available, ", "))
}

// downloadAndImport streams one snapshot download through the decoder
// into batched upserts. Upserts are idempotent, so a retried attempt
// simply rewrites the same rows.
func (l *Loader) downloadAndImport(ctx context.Context, entry upstream.BulkEntry) (imported, failed int, err error) {
	log.WithField("uri", entry.DownloadURI).Info("downloading bulk snapshot")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.DownloadURI, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("User-Agent", "scrycache/0.1.0")

	resp, err := l.download.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("downloading bulk snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("bulk download returned status %d", resp.StatusCode)
	}

	return l.importStream(ctx, resp.Body)
}

// importStream decodes a JSON card array incrementally, so peak memory
// is one batch rather than the whole multi-hundred-MB snapshot. Gzip
// payloads are detected by their magic bytes and decompressed inline.
func (l *Loader) importStream(ctx context.Context, r io.Reader) (imported, failed int, err error) {
	var buffered = bufio.NewReaderSize(r, 1<<20)
	if magic, err := buffered.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return 0, 0, fmt.Errorf("opening gzip snapshot: %w", err)
		}
		defer gz.Close()
		return l.decodeArray(ctx, gz)
	}
	return l.decodeArray(ctx, buffered)
}

func (l *Loader) decodeArray(ctx context.Context, r io.Reader) (imported, failed int, err error) {
	var dec = json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return 0, 0, fmt.Errorf("reading snapshot: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return 0, 0, fmt.Errorf("snapshot is not a JSON array (starts with %v)", tok)
	}

	var batch = make([]*model.Card, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := l.store.UpsertCards(ctx, batch); err != nil {
			return fmt.Errorf("upserting batch: %w", err)
		}
		imported += len(batch)
		batch = batch[:0]
		if imported%progressEvery == 0 {
			log.WithField("imported", imported).Info("bulk import progress")
		}
		return nil
	}

	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return imported, failed, fmt.Errorf("decoding snapshot record: %w", err)
		}

		card, err := model.FromScryfallJSON(raw)
		if err != nil {
			failed++
			if failed <= maxFailureLogs {
				log.WithFields(log.Fields{
					"name":  recordName(raw),
					"error": err,
				}).Warn("skipping undecodable bulk record")
			}
			continue
		}

		batch = append(batch, card)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return imported, failed, err
			}
		}
	}
	if err := flush(); err != nil {
		return imported, failed, err
	}

	log.WithFields(log.Fields{"imported": imported, "failed": failed}).
		Info("bulk import stream complete")
	return imported, failed, nil
}

// withRetry runs fn up to downloadAttempts times with exponential
// backoff (1s, 2s, 4s), stopping early on ctx cancellation.
func (l *Loader) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < downloadAttempts; attempt++ {
		if attempt > 0 {
			var backoff = l.retryBackoff << (attempt - 1)
			log.WithFields(log.Fields{"attempt": attempt + 1, "backoff": backoff}).
				Warn("retrying bulk download")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		log.WithFields(log.Fields{"attempt": attempt + 1, "error": err}).
			Warn("bulk download attempt failed")
	}
	return err
}

// recordName extracts a best-effort card name for failure logs.
func recordName(raw json.RawMessage) string {
	var partial struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &partial); err != nil || partial.Name == "" {
		return "<unknown>"
	}
	return partial.Name
}
