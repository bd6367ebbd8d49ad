package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsProcessed counts finished items by outcome and skip stage.
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_items_processed_total",
			Help: "Total number of items processed, by outcome",
		},
		[]string{"outcome", "stage"},
	)

	// StageDuration observes how long each pipeline stage takes.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "importer_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// DegradedStates counts page states that failed verification.
	DegradedStates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_degraded_states_total",
			Help: "Total number of page states that never verified",
		},
		[]string{"state"},
	)

	// VariantsDropped counts SKU entries discarded by the reconciler.
	VariantsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "importer_variants_dropped_total",
			Help: "Total number of SKU entries dropped during reconciliation",
		},
	)

	TranslateAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_translate_attempts_total",
			Help: "Total number of model calls, by model and result",
		},
		[]string{"model", "result"},
	)

	TranslateFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "importer_translate_fallbacks_total",
			Help: "Total number of switches from the primary to the fallback model",
		},
		[]string{"from", "to"},
	)
)

// TranslateObserver feeds translation client events into the metrics above.
type TranslateObserver struct{}

func (TranslateObserver) Attempt(model string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	TranslateAttempts.WithLabelValues(model, result).Inc()
}

func (TranslateObserver) Fallback(from, to string) {
	TranslateFallbacks.WithLabelValues(from, to).Inc()
}
