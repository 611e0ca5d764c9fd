package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "beam",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "beam",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"method", "route"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "beam",
			Subsystem: "pipeline",
			Name:      "uploads_total",
			Help:      "Uploads accepted or rejected by the pipeline",
		},
		[]string{"status"},
	)

	EncodeJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "beam",
			Subsystem: "pipeline",
			Name:      "encode_jobs_total",
			Help:      "Rendition encode jobs by terminal state",
		},
		[]string{"rendition", "state"},
	)

	EncodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "beam",
			Subsystem: "pipeline",
			Name:      "encode_duration_seconds",
			Help:      "Wall time of one rendition encode",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"rendition"},
	)

	FinalizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "beam",
			Subsystem: "pipeline",
			Name:      "finalizations_total",
			Help:      "Finalizations by result",
		},
		[]string{"result"},
	)

	PipelineStalledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "beam",
			Subsystem: "pipeline",
			Name:      "stalled_total",
			Help:      "Uploads left in processing because at least one rendition failed",
		},
	)

	ProbeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "beam",
			Subsystem: "pipeline",
			Name:      "probe_failures_total",
			Help:      "Uploads whose source could not be probed",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "beam",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Pipeline tasks waiting for a worker",
		},
	)
)
