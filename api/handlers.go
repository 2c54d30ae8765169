package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/scrycache/scrycache/model"
)

// PaginatedCards is one page of search results with paging bookkeeping.
type PaginatedCards struct {
	Data       []*model.Card `json:"data"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int64         `json:"total_pages"`
	HasMore    bool          `json:"has_more"`
}

func paginated(cards []*model.Card, total int64, page, pageSize int) PaginatedCards {
	if cards == nil {
		cards = []*model.Card{}
	}
	var totalPages = (total + int64(pageSize) - 1) / int64(pageSize)
	return PaginatedCards{
		Data:       cards,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		HasMore:    int64(page) < totalPages,
	}
}

// pageParams reads page and page_size, applying defaults and clamps.
func pageParams(r *http.Request) (page, pageSize int, err error) {
	page, pageSize = 1, 100
	if raw := r.URL.Query().Get("page"); raw != "" {
		if page, err = strconv.Atoi(raw); err != nil {
			return 0, 0, fmt.Errorf("page must be an integer, got %q", raw)
		}
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		if pageSize, err = strconv.Atoi(raw); err != nil {
			return 0, 0, fmt.Errorf("page_size must be an integer, got %q", raw)
		}
	}
	return clampPage(page), clampPageSize(pageSize), nil
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func clampPageSize(pageSize int) int {
	if pageSize < 1 {
		return 1
	}
	if pageSize > 1000 {
		return 1000
	}
	return pageSize
}

func (s *Server) searchCards(w http.ResponseWriter, r *http.Request) {
	var q = r.URL.Query().Get("q")
	if q == "" {
		writeError(w, CodeValidationError, "q parameter is required")
		return
	}

	// Reject malformed queries before touching any tier.
	if _, err := s.planner.Plan(q); err != nil {
		failRequest(w, err, "invalid search query")
		return
	}

	page, pageSize, err := pageParams(r)
	if err != nil {
		writeError(w, CodeValidationError, err.Error())
		return
	}

	var ctx, cancel = context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()

	cards, total, err := s.manager.SearchPaginated(ctx, q, page, pageSize)
	if err != nil {
		failRequest(w, err, "search failed")
		return
	}
	writeData(w, paginated(cards, total, page, pageSize))
}

func (s *Server) cardByID(w http.ResponseWriter, r *http.Request) {
	var id, err = uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, CodeValidationError, "card id must be a UUID")
		return
	}

	card, err := s.manager.GetCard(r.Context(), id.String())
	if err != nil {
		failRequest(w, err, "card lookup failed")
		return
	}
	if card == nil {
		writeError(w, CodeCardNotFound, "Card not found: "+id.String())
		return
	}
	writeData(w, card)
}

func (s *Server) cardByName(w http.ResponseWriter, r *http.Request) {
	var fuzzyName = r.URL.Query().Get("fuzzy")
	var exactName = r.URL.Query().Get("exact")

	var name string
	var fuzzy bool
	switch {
	case fuzzyName != "" && exactName != "":
		writeError(w, CodeValidationError, "provide either 'fuzzy' or 'exact', not both")
		return
	case fuzzyName != "":
		name, fuzzy = fuzzyName, true
	case exactName != "":
		name, fuzzy = exactName, false
	default:
		writeError(w, CodeValidationError, "must provide either 'fuzzy' or 'exact' parameter")
		return
	}

	var card, err = s.manager.GetCardByName(r.Context(), name, fuzzy)
	if err != nil {
		failRequest(w, err, "card name lookup failed")
		return
	}
	if card == nil {
		writeError(w, CodeCardNotFound, "Card not found: "+name)
		return
	}
	writeData(w, card)
}

// catalog is the upstream-compatible autocomplete shape.
type catalog struct {
	Object string   `json:"object"`
	Data   []string `json:"data"`
}

func (s *Server) autocomplete(w http.ResponseWriter, r *http.Request) {
	var prefix = strings.TrimSpace(r.URL.Query().Get("q"))

	var names, err = s.manager.Autocomplete(r.Context(), prefix)
	if err != nil {
		failRequest(w, err, "autocomplete failed")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeData(w, catalog{Object: "catalog", Data: names})
}

type batchCardsRequest struct {
	IDs          []string `json:"ids"`
	FetchMissing bool     `json:"fetch_missing"`
}

type batchCardsData struct {
	Cards      []*model.Card `json:"cards"`
	MissingIDs []string      `json:"missing_ids"`
}

func (s *Server) cardsBatch(w http.ResponseWriter, r *http.Request) {
	var req batchCardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, CodeValidationError, "invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, CodeValidationError, "ids must not be empty")
		return
	}
	if len(req.IDs) > s.batch.MaxIDs {
		writeError(w, CodeValidationError,
			fmt.Sprintf("too many ids: %d (max %d)", len(req.IDs), s.batch.MaxIDs))
		return
	}
	for i, id := range req.IDs {
		parsed, err := uuid.Parse(id)
		if err != nil {
			writeError(w, CodeValidationError, fmt.Sprintf("invalid card id %q", id))
			return
		}
		req.IDs[i] = parsed.String()
	}

	var cards, missing, err = s.manager.GetCardsBatch(r.Context(), req.IDs, req.FetchMissing)
	if err != nil {
		failRequest(w, err, "batch card lookup failed")
		return
	}
	if cards == nil {
		cards = []*model.Card{}
	}
	if missing == nil {
		missing = []string{}
	}
	writeData(w, batchCardsData{Cards: cards, MissingIDs: missing})
}

type batchNamedRequest struct {
	Names []string `json:"names"`
	Fuzzy *bool    `json:"fuzzy"`
}

type batchNamedResult struct {
	Name string      `json:"name"`
	Card *model.Card `json:"card,omitempty"`
}

type batchNamedData struct {
	Results  []batchNamedResult `json:"results"`
	NotFound []string           `json:"not_found"`
}

func (s *Server) namedBatch(w http.ResponseWriter, r *http.Request) {
	var req batchNamedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, CodeValidationError, "invalid request body: "+err.Error())
		return
	}
	if len(req.Names) == 0 {
		writeError(w, CodeValidationError, "names must not be empty")
		return
	}
	if len(req.Names) > s.batch.MaxNames {
		writeError(w, CodeValidationError,
			fmt.Sprintf("too many names: %d (max %d)", len(req.Names), s.batch.MaxNames))
		return
	}

	var fuzzy = true
	if req.Fuzzy != nil {
		fuzzy = *req.Fuzzy
	}

	// Items run concurrently under the configured parallelism and are
	// reassembled in request order. A failed item reads as not found.
	var results = make([]batchNamedResult, len(req.Names))
	var group, ctx = errgroup.WithContext(r.Context())
	group.SetLimit(s.parallelism())
	for i, name := range req.Names {
		group.Go(func() error {
			var card, err = s.manager.GetCardByName(ctx, name, fuzzy)
			if err != nil {
				log.WithFields(log.Fields{"name": name, "error": err}).
					Error("batch named lookup failed")
			}
			results[i] = batchNamedResult{Name: name, Card: card}
			return nil
		})
	}
	group.Wait()

	var notFound = []string{}
	for _, result := range results {
		if result.Card == nil {
			notFound = append(notFound, result.Name)
		}
	}
	writeData(w, batchNamedData{Results: results, NotFound: notFound})
}

type batchQueryItem struct {
	ID       string `json:"id"`
	Query    string `json:"query"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

type batchQueriesRequest struct {
	Queries []batchQueryItem `json:"queries"`
}

type batchQueryResult struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    *PaginatedCards `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type batchQueriesData struct {
	Results []batchQueryResult `json:"results"`
}

func (s *Server) queriesBatch(w http.ResponseWriter, r *http.Request) {
	var req batchQueriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, CodeValidationError, "invalid request body: "+err.Error())
		return
	}
	if len(req.Queries) == 0 {
		writeError(w, CodeValidationError, "queries must not be empty")
		return
	}
	if len(req.Queries) > s.batch.MaxQueries {
		writeError(w, CodeValidationError,
			fmt.Sprintf("too many queries: %d (max %d)", len(req.Queries), s.batch.MaxQueries))
		return
	}

	var results = make([]batchQueryResult, len(req.Queries))
	var group, ctx = errgroup.WithContext(r.Context())
	group.SetLimit(s.parallelism())
	for i, item := range req.Queries {
		group.Go(func() error {
			results[i] = s.runBatchQuery(ctx, item)
			return nil
		})
	}
	group.Wait()

	writeData(w, batchQueriesData{Results: results})
}

func (s *Server) runBatchQuery(ctx context.Context, item batchQueryItem) batchQueryResult {
	if _, err := s.planner.Plan(item.Query); err != nil {
		return batchQueryResult{ID: item.ID, Error: err.Error()}
	}

	var page = clampPage(item.Page)
	var pageSize = 100
	if item.PageSize != 0 {
		pageSize = clampPageSize(item.PageSize)
	}

	var queryCtx, cancel = context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var cards, total, err = s.manager.SearchPaginated(queryCtx, item.Query, page, pageSize)
	if err != nil {
		return batchQueryResult{ID: item.ID, Error: err.Error()}
	}
	var data = paginated(cards, total, page, pageSize)
	return batchQueryResult{ID: item.ID, Success: true, Data: &data}
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	var stats, err = s.manager.Stats(r.Context())
	if err != nil {
		failRequest(w, err, "failed to retrieve stats")
		return
	}
	writeData(w, stats)
}

// AdminOverview feeds the ops dashboard and CLI.
type AdminOverview struct {
	Service               string  `json:"service"`
	Version               string  `json:"version"`
	InstanceID            string  `json:"instance_id"`
	CardsTotal            int64   `json:"cards_total"`
	CacheEntriesTotal     int64   `json:"cache_entries_total"`
	BulkLastImport        *string `json:"bulk_last_import"`
	BulkReloadRecommended bool    `json:"bulk_reload_recommended"`
}

func (s *Server) adminOverview(w http.ResponseWriter, r *http.Request) {
	var stats, err = s.manager.Stats(r.Context())
	if err != nil {
		failRequest(w, err, "failed to load stats")
		return
	}

	last, err := s.loader.LastImport(r.Context())
	if err != nil {
		failRequest(w, err, "failed to load bulk import timestamp")
		return
	}
	var lastText *string
	if last != nil {
		var v = last.UTC().Format("2006-01-02 15:04:05 UTC")
		lastText = &v
	}

	reload, err := s.loader.ShouldLoad(r.Context())
	if err != nil {
		failRequest(w, err, "failed to determine bulk load status")
		return
	}

	writeData(w, AdminOverview{
		Service:               serviceName,
		Version:               serviceVersion,
		InstanceID:            s.instanceID,
		CardsTotal:            stats.TotalCards,
		CacheEntriesTotal:     stats.TotalCacheEntries,
		BulkLastImport:        lastText,
		BulkReloadRecommended: reload,
	})
}

func (s *Server) adminReload(w http.ResponseWriter, r *http.Request) {
	log.Info("admin reload requested")
	if err := s.loader.ForceLoad(r.Context()); err != nil {
		failRequest(w, err, "bulk data reload failed")
		return
	}
	writeData(w, "Bulk data reload completed")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        serviceName,
		"version":        serviceVersion,
		"instance_id":    s.instanceID,
		"uptime_seconds": s.uptime(),
	})
}

func (s *Server) healthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "alive",
		"service":        serviceName,
		"version":        serviceVersion,
		"instance_id":    s.instanceID,
		"uptime_seconds": s.uptime(),
	})
}

func (s *Server) healthReady(w http.ResponseWriter, r *http.Request) {
	var checks = map[string]string{}
	var status = http.StatusOK
	var state = "ready"

	if err := s.manager.PingStore(r.Context()); err != nil {
		checks["database"] = "error: " + err.Error()
		status = http.StatusServiceUnavailable
		state = "not_ready"
	} else {
		checks["database"] = "ok"
	}

	// An empty corpus means searches cannot be answered yet; readiness
	// flips once the initial bulk load lands.
	if status == http.StatusOK {
		if hasCards, err := s.manager.HasCards(r.Context()); err != nil {
			checks["cards"] = "error: " + err.Error()
			status = http.StatusServiceUnavailable
			state = "not_ready"
		} else if !hasCards {
			checks["cards"] = "empty: awaiting bulk load"
			status = http.StatusServiceUnavailable
			state = "not_ready"
		} else {
			checks["cards"] = "ok"
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"status":         state,
		"service":        serviceName,
		"version":        serviceVersion,
		"instance_id":    s.instanceID,
		"uptime_seconds": s.uptime(),
		"checks":         checks,
	})
}

// parallelism clamps the configured batch concurrency to [1, 32].
func (s *Server) parallelism() int {
	var n = s.batch.Parallelism
	if n < 1 {
		n = 1
	}
	if n > 32 {
		n = 32
	}
	return n
}
