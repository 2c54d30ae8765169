package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/scrycache/scrycache/api"
	"github.com/scrycache/scrycache/breaker"
	"github.com/scrycache/scrycache/bulk"
	"github.com/scrycache/scrycache/cache"
	"github.com/scrycache/scrycache/config"
	"github.com/scrycache/scrycache/query"
	"github.com/scrycache/scrycache/store"
	"github.com/scrycache/scrycache/store/postgres"
	"github.com/scrycache/scrycache/store/sqlite"
	"github.com/scrycache/scrycache/upstream"
)

// shutdownTimeout bounds the drain of in-flight requests on exit.
const shutdownTimeout = 30 * time.Second

// gcInterval is how often expired result sets are swept from the store.
const gcInterval = time.Hour

type cmdServe struct {
	config.Config
}

func (cmd *cmdServe) Execute(_ []string) error {
	cmd.Resolve()
	config.InitLog(cmd.Log)

	log.WithFields(log.Fields{
		"instance": cmd.InstanceID,
		"database": cmd.Database.URL,
		"redis":    cmd.Redis.Enabled,
	}).Info("scrycache configuration")

	var ctx, stop = signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Durable store. The URL scheme picks the engine, and the query
	// translator dialect must match it.
	var st store.Store
	var dialect query.Dialect
	var err error
	if cmd.Database.IsPostgres() {
		st, err = postgres.Open(ctx, cmd.Database)
		dialect = query.PostgresDialect()
	} else {
		st, err = sqlite.Open(ctx, cmd.Database)
		dialect = query.SQLiteDialect()
	}
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	var instrumented = store.NewInstrumented(st)
	defer st.Close()

	// Redis is optional and its absence is not fatal: the service runs
	// on the durable store alone behind a no-op tier.
	var tier cache.Tier = cache.NoopTier{}
	if cmd.Redis.Enabled {
		if redisTier, err := cache.NewRedisTier(ctx, cmd.Redis); err != nil {
			log.WithField("error", err).Warn("redis unavailable, continuing without cache tier")
		} else {
			tier = redisTier
			defer redisTier.Close()
		}
	}

	var brk = breaker.New("scryfall", breaker.Config{
		FailureThreshold:    cmd.Breaker.FailureThreshold,
		SuccessThreshold:    cmd.Breaker.SuccessThreshold,
		OpenTimeout:         cmd.Breaker.Timeout(),
		HalfOpenMaxRequests: cmd.Breaker.HalfOpenRequests,
	})
	var limiter = upstream.NewLimiter(cmd.Scryfall.RateLimitPerSecond)
	var client = upstream.NewClient(cmd.Scryfall.APIBaseURL, limiter, brk)

	var loader = bulk.NewLoader(instrumented, client, cmd.Scryfall)
	var planner = query.NewPlanner(query.NewValidator(query.Limits{
		MaxQueryLength:  cmd.Query.MaxLength,
		MaxNestingDepth: cmd.Query.MaxNesting,
		MaxOrClauses:    cmd.Query.MaxOrClauses,
		MaxResults:      cmd.Query.MaxResults,
	}), 0)
	var manager = cache.NewManager(instrumented, tier, client, planner, dialect, cmd.QueryCache.TTLHours)

	// Initial load runs in the background so health endpoints come up
	// while a multi-hundred-MB snapshot downloads.
	go func() {
		var should, err = loader.ShouldLoad(ctx)
		if err != nil {
			log.WithField("error", err).Warn("could not determine bulk load status")
			return
		}
		if !should {
			return
		}
		if err = loader.Load(ctx); err != nil {
			log.WithField("error", err).Warn("initial bulk load failed, serving existing corpus")
		}
	}()

	var scheduler = bulk.StartScheduler(loader, cmd.Refresh.Enabled, cmd.Refresh.Interval())
	defer scheduler.Stop()

	go gcResultSets(ctx, instrumented, cmd.QueryCache.TTLHours)

	var server = api.NewServer(manager, loader, planner, cmd.Config)
	var httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cmd.API.Host, cmd.API.Port),
		Handler: server.Handler(),
	}

	var serveErr = make(chan error, 1)
	go func() {
		log.WithField("addr", httpServer.Addr).Info("scrycache listening")
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	log.Info("signal received, draining requests")
	var drainCtx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = httpServer.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("goodbye")
	return nil
}

// gcResultSets periodically sweeps expired result sets so the durable
// cache table cannot grow without bound.
func gcResultSets(ctx context.Context, st store.Store, ttlHours int) {
	var ticker = time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var removed, err = st.GCResultSets(ctx, ttlHours)
		if err != nil {
			log.WithField("error", err).Warn("result set sweep failed")
		} else if removed > 0 {
			log.WithField("removed", removed).Info("swept expired result sets")
		}
	}
}
