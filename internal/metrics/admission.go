// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for the mediagate pipeline.
//
// Labels are bounded enums only: no job ids, media ids or URLs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// MuxSlotsInUse tracks the number of merge jobs currently holding the
	// mux admission gate.
	MuxSlotsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediagate_mux_slots_in_use",
		Help: "Current number of mux admission slots in use.",
	})

	// MuxAdmissionWait observes how long merge jobs wait for a mux slot.
	MuxAdmissionWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mediagate_mux_admission_wait_seconds",
		Help:    "Time spent waiting for a mux admission slot.",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
	})

	// MuxAdmissionTotal counts admission outcomes.
	MuxAdmissionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediagate_mux_admission_total",
		Help: "Total number of mux admission attempts, by result (admitted/cancelled).",
	}, []string{"result"})
)

// SetAdmissionInUse sets the mux slot gauge.
func SetAdmissionInUse(n float64) {
	MuxSlotsInUse.Set(n)
}

// ObserveAdmissionWait records a completed admission attempt.
func ObserveAdmissionWait(wait time.Duration, admitted bool) {
	MuxAdmissionWait.Observe(wait.Seconds())
	result := "admitted"
	if !admitted {
		result = "cancelled"
	}
	MuxAdmissionTotal.WithLabelValues(result).Inc()
}

// GetAdmissionInUse returns the current value of the gauge (for testing).
func GetAdmissionInUse() float64 {
	var m dto.Metric
	if err := MuxSlotsInUse.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
