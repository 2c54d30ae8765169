package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrycache/scrycache/cache"
	"github.com/scrycache/scrycache/config"
	"github.com/scrycache/scrycache/query"
)

const serviceName = "scrycache"
const serviceVersion = "0.1.0"

// Reloader is the slice of the bulk loader the admin surface drives.
type Reloader interface {
	ForceLoad(ctx context.Context) error
	ShouldLoad(ctx context.Context) (bool, error)
	LastImport(ctx context.Context) (*time.Time, error)
}

// Server holds the handler dependencies and builds the route table.
type Server struct {
	manager      *cache.Manager
	loader       Reloader
	planner      *query.Planner
	batch        config.Batch
	queryTimeout time.Duration
	instanceID   string
	started      time.Time
}

// NewServer wires the HTTP surface over the cache manager and loader.
func NewServer(manager *cache.Manager, loader Reloader, planner *query.Planner, cfg config.Config) *Server {
	return &Server{
		manager:      manager,
		loader:       loader,
		planner:      planner,
		batch:        cfg.Batch,
		queryTimeout: cfg.Query.Timeout(),
		instanceID:   cfg.InstanceID,
		started:      time.Now(),
	}
}

// Handler returns the full route table wrapped in logging, metrics, and
// CORS middleware.
func (s *Server) Handler() http.Handler {
	var mux = http.NewServeMux()

	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /health/live", s.healthLive)
	mux.HandleFunc("GET /health/ready", s.healthReady)

	mux.HandleFunc("GET /cards/search", s.searchCards)
	mux.HandleFunc("GET /cards/named", s.cardByName)
	mux.HandleFunc("GET /cards/autocomplete", s.autocomplete)
	mux.HandleFunc("GET /cards/{id}", s.cardByID)
	mux.HandleFunc("POST /cards/batch", s.cardsBatch)
	mux.HandleFunc("POST /cards/named/batch", s.namedBatch)
	mux.HandleFunc("POST /queries/batch", s.queriesBatch)

	mux.HandleFunc("GET /stats", s.stats)
	mux.HandleFunc("GET /api/admin/stats/overview", s.adminOverview)
	mux.HandleFunc("POST /admin/reload", s.adminReload)
	mux.Handle("GET /metrics", promhttp.Handler())

	return withMiddleware(mux)
}

// uptime reports whole seconds since the server was constructed.
func (s *Server) uptime() int64 { return int64(time.Since(s.started).Seconds()) }
