// Package metrics provides Prometheus metrics for the harvest pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SourceRunsTotal counts source runs by outcome.
	SourceRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harvest",
			Name:      "source_runs_total",
			Help:      "Total number of source runs",
		},
		[]string{"source", "result"},
	)

	// SourceRunDuration measures how long a source run takes.
	SourceRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "harvest",
			Name:      "source_run_duration_seconds",
			Help:      "Duration of source runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"source"},
	)

	// CandidatesTotal counts discovered candidates by strategy.
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harvest",
			Name:      "candidates_total",
			Help:      "Total number of candidate URLs discovered",
		},
		[]string{"strategy"},
	)

	// FetchFailuresTotal counts terminal fetch failures by kind.
	FetchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harvest",
			Name:      "fetch_failures_total",
			Help:      "Total number of terminal article fetch failures",
		},
		[]string{"kind"},
	)

	// ArticlesTotal counts stored articles by status.
	ArticlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harvest",
			Name:      "articles_total",
			Help:      "Total number of stored articles",
		},
		[]string{"status"},
	)

	// RejectedTotal counts candidates dropped without storing anything.
	RejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "harvest",
			Name:      "rejected_total",
			Help:      "Total number of candidates rejected",
		},
		[]string{"reason"},
	)
)

// RecordRun records a finished source run.
func RecordRun(source, result string, seconds float64) {
	SourceRunsTotal.WithLabelValues(source, result).Inc()
	SourceRunDuration.WithLabelValues(source).Observe(seconds)
}

func RecordCandidates(strategy string, count int) {
	CandidatesTotal.WithLabelValues(strategy).Add(float64(count))
}

func RecordFetchFailure(kind string) {
	FetchFailuresTotal.WithLabelValues(kind).Inc()
}

func RecordArticle(status string) {
	ArticlesTotal.WithLabelValues(status).Inc()
}

func RecordRejected(reason string) {
	RejectedTotal.WithLabelValues(reason).Inc()
}
