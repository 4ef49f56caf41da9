// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mergeJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_merge_jobs_total",
		Help: "Total number of finished merge jobs, by result and failure kind.",
	}, []string{"result", "kind"})

	mergeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediagate_merge_duration_seconds",
		Help:    "Merge job wall time from start to terminal state.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	mergeStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_merge_state_transitions_total",
		Help: "Total number of merge job state transitions, by target state.",
	}, []string{"state"})

	archiveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_archive_total",
		Help: "Total number of archive assemblies, by result.",
	}, []string{"result"}) // result=success|failure

	archiveEntries = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediagate_archive_entries",
		Help:    "Number of entries per assembled archive.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	})

	attemptTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_attempt_total",
		Help: "Total number of download attempts, by platform, type and outcome.",
	}, []string{"platform", "type", "outcome"}) // outcome=success|cached|failed|cancelled

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_proc_terminate_total",
		Help: "Signals sent to child process groups, by signal and result.",
	}, []string{"signal", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_proc_wait_total",
		Help: "Child process wait results during termination.",
	}, []string{"result"})
)

// RecordMerge records a merge job reaching a terminal state. kind is empty
// for completed jobs.
func RecordMerge(result, kind string, elapsed time.Duration) {
	mergeJobsTotal.WithLabelValues(result, kind).Inc()
	mergeDuration.Observe(elapsed.Seconds())
}

// RecordMergeTransition counts a state change into state.
func RecordMergeTransition(state string) {
	mergeStateTransitions.WithLabelValues(state).Inc()
}

// RecordArchive records one archive assembly.
func RecordArchive(success bool, entries int) {
	result := "success"
	if !success {
		result = "failure"
	}
	archiveTotal.WithLabelValues(result).Inc()
	if success {
		archiveEntries.Observe(float64(entries))
	}
}

// RecordAttempt records the outcome of a download attempt.
func RecordAttempt(platform, mediaType, outcome string) {
	attemptTotal.WithLabelValues(platform, mediaType, outcome).Inc()
}

// IncProcTerminate counts a termination signal.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait counts a wait result.
func IncProcWait(result string) {
	procWaitTotal.WithLabelValues(result).Inc()
}
