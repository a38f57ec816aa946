package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brand_studio_webhook_requests_total",
			Help: "Total number of workflow webhook actions submitted.",
		},
		[]string{"action", "outcome"},
	)
	webhookRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brand_studio_webhook_request_duration_seconds",
			Help:    "Histogram of workflow webhook round-trip durations.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"action"},
	)
	modelRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brand_studio_model_requests_total",
			Help: "Total number of model calls per endpoint.",
		},
		[]string{"endpoint", "outcome"},
	)
	modelRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brand_studio_model_request_duration_seconds",
			Help:    "Histogram of model call durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	modelFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brand_studio_model_fallbacks_total",
			Help: "Number of model calls answered by the secondary endpoint.",
		},
	)
)
