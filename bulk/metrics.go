package bulk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var loadDuration = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "bulk_data_load_duration_seconds",
	Help: "duration of the most recent bulk snapshot load",
})

var lastLoadTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "bulk_data_last_load_timestamp",
	Help: "unix time of the most recent successful bulk load",
})

var cardsImported = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "bulk_data_cards_imported",
	Help: "cards imported by the most recent bulk load",
})
