package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for ImportRuns.
const (
	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
)

// Result labels for ImportChannels.
const (
	ResultImported = "imported"
	ResultSkipped  = "skipped"
	ResultError    = "error"
)

var (
	// ImportRuns counts finished import runs by outcome.
	ImportRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channelvault_import_runs_total",
		Help: "Total number of playlist import runs",
	}, []string{"outcome"})

	// ImportChannels counts processed channel candidates by result.
	ImportChannels = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channelvault_import_channels_total",
		Help: "Total number of channel candidates processed by imports",
	}, []string{"result"})

	// ImportBatchFailures counts batches whose storage write failed.
	ImportBatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "channelvault_import_batch_failures_total",
		Help: "Total number of channel batches that failed to persist",
	})

	// ImportDuration tracks the wall time of import runs.
	ImportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "channelvault_import_duration_seconds",
		Help:    "Duration of playlist import runs",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
)
