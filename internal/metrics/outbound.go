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
	validationRejectTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_url_validation_reject_total",
		Help: "Total number of rejected outbound URLs, by validation stage.",
	}, []string{"stage"}) // stage=parse|scheme|port|userinfo|host|suffix|dns|redirect

	dialRejectTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediagate_dial_reject_total",
		Help: "Total number of outbound connections refused because the dialled address is blocked.",
	})

	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_fetch_total",
		Help: "Total number of fetch attempts, by outcome.",
	}, []string{"outcome"}) // outcome=success|failed|cancelled

	fetchFailureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_fetch_failure_total",
		Help: "Total number of failed fetches, by failure kind.",
	}, []string{"kind"})

	fetchBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediagate_fetch_bytes_total",
		Help: "Total number of body bytes written by successful and partial fetches.",
	})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediagate_fetch_duration_seconds",
		Help:    "Fetch wall time, by outcome.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"outcome"})
)

// RecordValidationReject increments the rejection counter for a stage.
func RecordValidationReject(stage string) {
	validationRejectTotal.WithLabelValues(stage).Inc()
}

// RecordDialReject increments the dial guard counter.
func RecordDialReject() {
	dialRejectTotal.Inc()
}

// RecordFetch records one completed fetch. kind is empty on success.
func RecordFetch(outcome, kind string, bytes int64, elapsed time.Duration) {
	fetchTotal.WithLabelValues(outcome).Inc()
	if kind != "" {
		fetchFailureTotal.WithLabelValues(kind).Inc()
	}
	if bytes > 0 {
		fetchBytesTotal.Add(float64(bytes))
	}
	fetchDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
