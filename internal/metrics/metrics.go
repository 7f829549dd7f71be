// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardiorisk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardiorisk_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardiorisk_predictions_total",
			Help: "Total number of scored records by source and risk level",
		},
		[]string{"source", "risk_level"},
	)

	RowsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardiorisk_rows_failed_total",
			Help: "Total number of records rejected before scoring",
		},
		[]string{"reason"},
	)

	InferenceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cardiorisk_inference_duration_seconds",
			Help:    "Duration of one pipeline run in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cardiorisk_batch_rows",
			Help:    "Number of records per pipeline run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardiorisk_cache_lookups_total",
			Help: "Prediction cache lookups by result",
		},
		[]string{"result"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardiorisk_events_published_total",
			Help: "Events handed to the event bus by topic and result",
		},
		[]string{"topic", "result"},
	)

	ArtifactsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardiorisk_artifacts_loaded",
			Help: "1 when model artifacts are loaded, 0 otherwise",
		},
	)
)

// Publish results for EventsPublished.
const (
	PublishOK      = "ok"
	PublishDropped = "dropped"
	PublishError   = "error"
)

// Failure reasons for RowsFailed.
const (
	ReasonValidation  = "validation"
	ReasonComputation = "computation"
	ReasonOther       = "other"
)
