// Copyright (C) 2025 Finsight AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability holds the Prometheus instrumentation for the
// assistant pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/finsight-ai/finsight/services/assistant/datatypes"
	"github.com/finsight-ai/finsight/services/assistant/retrieval"
)

// =============================================================================
// Metric definitions
// =============================================================================

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finsight",
		Subsystem: "assistant",
		Name:      "turns_total",
		Help:      "Turns handled, labeled by gate decision reason.",
	}, []string{"reason"})

	turnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "finsight",
		Subsystem: "assistant",
		Name:      "stage_duration_seconds",
		Help:      "Wall time per pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	retrievalEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finsight",
		Subsystem: "assistant",
		Name:      "retrieval_events_total",
		Help:      "Retrieval events by kind and source.",
	}, []string{"kind", "source"})

	retrievalItems = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "finsight",
		Subsystem: "assistant",
		Name:      "retrieval_items",
		Help:      "Items returned per retrieval call, by source.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
	}, []string{"source"})

	sourceAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finsight",
		Subsystem: "assistant",
		Name:      "source_anomalies_total",
		Help:      "Degraded-source events by source.",
	}, []string{"source"})

	verificationStatuses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finsight",
		Subsystem: "assistant",
		Name:      "verifications_total",
		Help:      "Numeric claim verification outcomes.",
	}, []string{"status"})

	correctionsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "finsight",
		Subsystem: "assistant",
		Name:      "corrections_applied_total",
		Help:      "Numeric spans rewritten by the corrector.",
	})

	confidenceScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "finsight",
		Subsystem: "assistant",
		Name:      "confidence_score",
		Help:      "Final advisory confidence per answered turn.",
		Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
	})
)

// =============================================================================
// Recording helpers
// =============================================================================

// RecordTurn records the gate outcome and final confidence for one turn.
func RecordTurn(decision datatypes.Decision, report datatypes.ConfidenceReport) {
	turnsTotal.WithLabelValues(string(decision.Reason)).Inc()
	if decision.ShouldAnswer {
		confidenceScores.Observe(report.Score)
	}
}

// RecordStage records one pipeline stage's wall time.
func RecordStage(stage string, d time.Duration) {
	turnDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordVerifications records claim verification outcomes.
func RecordVerifications(results []datatypes.VerificationResult) {
	for _, r := range results {
		verificationStatuses.WithLabelValues(string(r.Status)).Inc()
	}
}

// RecordCorrections records applied span corrections.
func RecordCorrections(applied int) {
	correctionsApplied.Add(float64(applied))
}

// =============================================================================
// Retrieval observer
// =============================================================================

// PrometheusObserver forwards retrieval events to the metrics above.
type PrometheusObserver struct{}

var _ retrieval.Observer = PrometheusObserver{}

// OnRetrievalEvent implements retrieval.Observer.
func (PrometheusObserver) OnRetrievalEvent(event retrieval.Event) {
	retrievalEvents.WithLabelValues(event.Kind, event.Source).Inc()
	if event.Kind == "source_anomaly" {
		sourceAnomalies.WithLabelValues(event.Source).Inc()
		return
	}
	retrievalItems.WithLabelValues(event.Source).Observe(float64(event.Count))
}
