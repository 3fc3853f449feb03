package errata

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageQueriesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "errata",
			Subsystem: "pipeline",
			Name:      "queries_total",
			Help:      "Total number of datastore queries issued per pipeline stage.",
		},
		[]string{"stage"},
	)
	stageRowsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "errata",
			Subsystem: "pipeline",
			Name:      "rows_total",
			Help:      "Total number of rows returned per pipeline stage.",
		},
		[]string{"stage"},
	)
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "errata",
			Subsystem: "pipeline",
			Name:      "query_duration_seconds",
			Help:      "The duration of the datastore query issued by each pipeline stage.",
		},
		[]string{"stage"},
	)
	resolveCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "errata",
			Subsystem: "pipeline",
			Name:      "resolutions_total",
			Help:      "Total number of resolutions, by outcome.",
		},
		[]string{"outcome"},
	)
)

// Pipeline stage labels.
const (
	stageChannels   = "channels"
	stageFamilies   = "channel_families"
	stageCandidates = "upgrade_candidates"
	stageAdvisories = "advisories"
	stageEnrich     = "enrich"
)

func observeStage(stage string, start time.Time, rows int) {
	stageQueriesCounter.WithLabelValues(stage).Inc()
	stageRowsCounter.WithLabelValues(stage).Add(float64(rows))
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
