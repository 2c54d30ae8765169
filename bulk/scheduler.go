package bulk

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// refresher is the loader surface the scheduler drives.
type refresher interface {
	CheckUpstreamUpdated(ctx context.Context) (bool, error)
	ShouldLoad(ctx context.Context) (bool, error)
	Load(ctx context.Context) error
}

// Scheduler owns the background refresh task. On each tick it asks the
// upstream whether the snapshot changed and loads only then; if the
// check itself fails it falls back to the time-based staleness rule.
type Scheduler struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// StartScheduler spawns the refresh task ticking every interval. The
// first tick fires one full interval after start, never immediately.
// A disabled scheduler is a no-op handle whose Stop returns at once.
func StartScheduler(loader refresher, enabled bool, interval time.Duration) *Scheduler {
	var s = &Scheduler{done: make(chan struct{})}

	if !enabled {
		log.Info("bulk refresh scheduler disabled")
		s.cancel = func() {}
		close(s.done)
		return s
	}

	var ctx context.Context
	ctx, s.cancel = context.WithCancel(context.Background())

	log.WithField("interval", interval).Info("starting bulk refresh scheduler")
	go s.run(ctx, loader, interval)
	return s
}

// Stop cancels the task and waits for it to drain. In-flight ingestion
// aborts at a batch boundary; upsert atomicity leaves no half rows.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.done
}

func (s *Scheduler) run(ctx context.Context, loader refresher, interval time.Duration) {
	defer close(s.done)

	var ticker = time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		log.Info("scheduled bulk refresh check")
		tick(ctx, loader)
	}
}

func tick(ctx context.Context, loader refresher) {
	var updated, err = loader.CheckUpstreamUpdated(ctx)
	switch {
	case err == nil && updated:
		log.Info("upstream bulk snapshot changed, reloading")
		if err := loader.Load(ctx); err != nil {
			log.WithField("error", err).Error("scheduled bulk refresh failed")
		} else {
			log.Info("scheduled bulk refresh completed")
		}

	case err == nil:
		log.Info("upstream bulk snapshot unchanged, skipping reload")

	default:
		log.WithField("error", err).Error("upstream snapshot check failed, falling back to time-based refresh")
		should, err := loader.ShouldLoad(ctx)
		if err != nil {
			log.WithField("error", err).Error("time-based refresh check failed")
			return
		}
		if !should {
			log.Info("bulk snapshot still fresh")
			return
		}
		if err := loader.Load(ctx); err != nil {
			log.WithField("error", err).Error("fallback bulk refresh failed")
		}
	}
}
