// Package metrics holds the Prometheus collectors shared by the API and the
// outcome collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
)

var (
	PredictionsScored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_predictions_scored_total",
		Help: "Total number of observations scored by the model.",
	})
	PredictionsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_predictions_recorded_total",
		Help: "Total number of predictions persisted to the ledger.",
	})
	DuplicateObservations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_duplicate_observations_total",
		Help: "Total number of scoring requests whose observation id was already recorded.",
	})
	CoercionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_coercion_errors_total",
		Help: "Total number of payloads rejected by schema coercion, by column.",
	}, []string{"column"})
	ScoringErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_scoring_errors_total",
		Help: "Total number of model scoring failures.",
	})
	OutcomesReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_outcomes_reconciled_total",
		Help: "Total number of true outcomes attached to predictions, by source.",
	}, []string{"source"})
	OutcomesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_outcomes_rejected_total",
		Help: "Total number of reconciliation attempts that failed, by source and reason.",
	}, []string{"source", "reason"})
	Probability = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_prediction_probability",
		Help:    "Distribution of predicted probabilities.",
		Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
	})
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"method", "route", "status"})
)
