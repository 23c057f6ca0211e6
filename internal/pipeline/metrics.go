package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "barscan_search_candidates",
			Help:    "Number of decoder invocations per search",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"outcome"}, // outcome: found, not_found, cancelled, timeout
	)

	searchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "barscan_search_duration_seconds",
			Help:    "Candidate search duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	candidateFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barscan_candidate_failures_total",
			Help: "Candidates skipped because their buffer could not be produced",
		},
		[]string{"variant"},
	)

	searchTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "barscan_search_timeouts_total",
			Help: "Searches ended by the search deadline",
		},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barscan_uploads_total",
			Help: "Archive uploads after a successful decode",
		},
		[]string{"result"}, // result: stored, failed, disabled
	)
)
