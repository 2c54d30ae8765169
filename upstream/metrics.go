package upstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var apiCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scryfall_api_calls_total",
	Help: "counter of upstream catalog calls by endpoint",
}, []string{"endpoint"})

var apiErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scryfall_api_errors_total",
	Help: "counter of non-2xx upstream responses by status code",
}, []string{"status_code"})

var rateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "scryfall_rate_limit_waits_total",
	Help: "counter of upstream calls that blocked on the rate limiter",
})
