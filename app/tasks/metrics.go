package tasks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sourcesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_digest_sources_total",
		Help: "Sources that reached a terminal state, by state",
	}, []string{"state"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_digest_source_duration_seconds",
		Help:    "Time from fetch start to terminal state for a single source",
		Buckets: prometheus.DefBuckets,
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_digest_run_duration_seconds",
		Help:    "Wall time of a full aggregation run",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	lastRunItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_digest_last_run_items",
		Help: "Items produced by the most recent aggregation run",
	})

	lastRunErrors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_digest_last_run_errors",
		Help: "Failed sources in the most recent aggregation run",
	})
)

func observeTask(task TaskInterface) {
	sourcesProcessed.WithLabelValues(string(task.GetState())).Inc()
	fetchDuration.Observe(task.GetDuration().Seconds())
}

func observeRun(result *Result) {
	runDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())
	lastRunItems.Set(float64(result.ItemCount()))
	lastRunErrors.Set(float64(len(result.Errors)))
}
