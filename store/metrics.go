package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "database_queries_total",
	Help: "counter of database queries by query type",
}, []string{"query_type"})

var queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "database_query_duration_seconds",
	Help:    "histogram of database query durations by query type",
	Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
}, []string{"query_type"})

var connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "database_connections_active",
	Help: "number of in-use database connections",
})

var connectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "database_connections_idle",
	Help: "number of idle database connections",
})

var cardsTotal = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "cards_total",
	Help: "number of cards in the store",
})

var resultSetsTotal = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "queries_cached_total",
	Help: "number of cached query result sets",
})

// SetPoolGauges publishes pool utilization. Engines call this from Ping
// so the gauges refresh with every health probe.
func SetPoolGauges(active, idle int) {
	connectionsActive.Set(float64(active))
	connectionsIdle.Set(float64(idle))
}
