package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tier label values. The distributed tier reports itself as "redis" from
// inside its own get paths; the Manager reports the other three.
const (
	tierQueryCache = "query_cache"
	tierDatabase   = "database"
	tierAPI        = "api"
	tierRedis      = "redis"
)

var cacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cache_hits_total",
	Help: "counter of cache hits by tier",
}, []string{"tier"})

var cacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cache_misses_total",
	Help: "counter of cache misses by tier",
}, []string{"tier"})

var cacheSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "cache_size_bytes",
	Help: "memory used by the distributed cache tier",
})
