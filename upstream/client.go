package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/trace"

	"github.com/scrycache/scrycache/breaker"
	"github.com/scrycache/scrycache/model"
)

const userAgent = "scrycache/0.1.0"

// requestTimeout bounds each JSON endpoint call. Bulk downloads use
// their own, much longer timeout in the loader.
const requestTimeout = 30 * time.Second

// collectionChunk is the upstream's cap on identifiers per
// /cards/collection request.
const collectionChunk = 75

// Error is an upstream catalog failure: a non-2xx response (Status set)
// or a transport failure that never produced one (Err set, Status 0).
// Both read as the upstream being unavailable to callers.
type Error struct {
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream unreachable: %s", e.Err)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

// Client calls the upstream catalog. Every request first acquires a
// rate-limiter token and then runs under the circuit breaker, so a
// flapping upstream is rejected locally instead of hammered.
type Client struct {
	base    string
	http    *http.Client
	limiter *Limiter
	breaker *breaker.Breaker
}

// NewClient returns a client rooted at baseURL sharing the given
// limiter and breaker across all endpoints.
func NewClient(baseURL string, limiter *Limiter, brk *breaker.Breaker) *Client {
	return &Client{
		base:    baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		limiter: limiter,
		breaker: brk,
	}
}

// Breaker exposes the gate for status reporting.
func (c *Client) Breaker() *breaker.Breaker { return c.breaker }

// Search runs a search in the upstream's query syntax, following
// next_page links until has_more is false. Records that fail to decode
// are dropped with a debug log rather than failing the page.
func (c *Client) Search(ctx context.Context, query string) ([]*model.Card, error) {
	log.WithField("query", query).Debug("searching upstream catalog")

	var cards []*model.Card
	var next = c.base + "/cards/search?q=" + url.QueryEscape(query)

	for next != "" {
		body, status, err := c.do(ctx, "cards_search", http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		if status == http.StatusNotFound {
			// The upstream answers an empty search with 404.
			break
		}
		if status >= 300 {
			return nil, apiError(status, body)
		}

		var page struct {
			Data     []json.RawMessage `json:"data"`
			HasMore  bool              `json:"has_more"`
			NextPage string            `json:"next_page"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parsing upstream search response: %w", err)
		}

		for _, raw := range page.Data {
			card, err := model.FromScryfallJSON(raw)
			if err != nil {
				log.WithField("error", err).Debug("dropping undecodable upstream card")
				continue
			}
			cards = append(cards, card)
		}

		if page.HasMore && page.NextPage != "" {
			next = page.NextPage
		} else {
			next = ""
		}
	}

	log.WithFields(log.Fields{"query": query, "cards": len(cards)}).
		Info("upstream search complete")
	return cards, nil
}

// CardByID fetches one card by UUID. 404 means the upstream does not
// know the card and returns nil without error.
func (c *Client) CardByID(ctx context.Context, id string) (*model.Card, error) {
	body, status, err := c.do(ctx, "cards_id", http.MethodGet, c.base+"/cards/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status >= 300 {
		return nil, apiError(status, body)
	}
	return model.FromScryfallJSON(body)
}

// CardByName fetches one card by exact or fuzzy name, with the same 404
// convention as CardByID.
func (c *Client) CardByName(ctx context.Context, name string, fuzzy bool) (*model.Card, error) {
	var param = "exact"
	if fuzzy {
		param = "fuzzy"
	}
	var u = c.base + "/cards/named?" + param + "=" + url.QueryEscape(name)

	body, status, err := c.do(ctx, "cards_named", http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status >= 300 {
		return nil, apiError(status, body)
	}
	return model.FromScryfallJSON(body)
}

// CardsByIDs resolves many ids through the collection endpoint,
// splitting into chunks of 75 identifiers. Ids the upstream does not
// know are simply absent from the result.
func (c *Client) CardsByIDs(ctx context.Context, ids []string) ([]*model.Card, error) {
	var cards []*model.Card

	for start := 0; start < len(ids); start += collectionChunk {
		var end = start + collectionChunk
		if end > len(ids) {
			end = len(ids)
		}

		type identifier struct {
			ID string `json:"id"`
		}
		var req struct {
			Identifiers []identifier `json:"identifiers"`
		}
		for _, id := range ids[start:end] {
			req.Identifiers = append(req.Identifiers, identifier{ID: id})
		}
		payload, err := json.Marshal(&req)
		if err != nil {
			return nil, fmt.Errorf("encoding collection request: %w", err)
		}

		body, status, err := c.do(ctx, "cards_collection", http.MethodPost, c.base+"/cards/collection", payload)
		if err != nil {
			return nil, err
		}
		if status >= 300 {
			return nil, apiError(status, body)
		}

		var page struct {
			Data []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("parsing collection response: %w", err)
		}
		for _, raw := range page.Data {
			card, err := model.FromScryfallJSON(raw)
			if err != nil {
				log.WithField("error", err).Debug("dropping undecodable upstream card")
				continue
			}
			cards = append(cards, card)
		}
	}
	return cards, nil
}

// BulkEntry describes one downloadable snapshot in the bulk catalog.
type BulkEntry struct {
	Type            string    `json:"type"`
	Name            string    `json:"name"`
	UpdatedAt       time.Time `json:"updated_at"`
	Size            int64     `json:"size"`
	DownloadURI     string    `json:"download_uri"`
	ContentEncoding string    `json:"content_encoding"`
}

// BulkCatalog lists the snapshots the upstream currently publishes.
func (c *Client) BulkCatalog(ctx context.Context) ([]BulkEntry, error) {
	body, status, err := c.do(ctx, "bulk_data", http.MethodGet, c.base+"/bulk-data", nil)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, apiError(status, body)
	}

	var list struct {
		Data []BulkEntry `json:"data"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("parsing bulk catalog: %w", err)
	}
	return list.Data, nil
}

// do performs one rate-limited, breaker-gated request. Transport
// failures and 5xx responses count against the breaker; any other
// status is the upstream answering and is returned for the caller to
// interpret.
func (c *Client) do(ctx context.Context, endpoint, method, url string, payload []byte) ([]byte, int, error) {
	apiCalls.WithLabelValues(endpoint).Inc()

	var tr = trace.New("upstream."+endpoint, url)
	defer tr.Finish()

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, 0, err
	}

	var body []byte
	var status int
	var err = c.breaker.Call(func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			tr.LazyPrintf("request failed: %v", err)
			tr.SetError()
			return &Error{Err: fmt.Errorf("calling upstream: %w", err)}
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		tr.LazyPrintf("status %d", status)
		if body, err = io.ReadAll(resp.Body); err != nil {
			return &Error{Err: fmt.Errorf("reading upstream response: %w", err)}
		}
		if status >= 500 {
			tr.SetError()
			return apiError(status, body)
		}
		return nil
	})
	if err != nil {
		return nil, status, err
	}
	return body, status, nil
}

// apiError records and wraps a non-2xx status.
func apiError(status int, body []byte) error {
	apiErrors.WithLabelValues(strconv.Itoa(status)).Inc()
	const maxBody = 256
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &Error{Status: status, Body: string(body)}
}
