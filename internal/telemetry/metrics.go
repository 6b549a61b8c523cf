// Package telemetry provides observability primitives for the VibeVoice proxy.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the proxy.
type Metrics struct {
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	ActiveRequests       prometheus.Gauge
	SynthesisDuration    prometheus.Histogram
	SynthesisErrors      *prometheus.CounterVec
	SynthesisCharacters  prometheus.Counter
	CacheHits            prometheus.Counter
	CacheMisses          prometheus.Counter
	RateLimitRejects     prometheus.Counter
	UsageQueueLength     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vibevoice",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "vibevoice",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vibevoice",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		SynthesisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:                       "vibevoice",
			Name:                            "synthesis_duration_seconds",
			Help:                            "Upstream TTS synthesis call duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}),

		SynthesisErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vibevoice",
			Name:      "synthesis_errors_total",
			Help:      "Total upstream synthesis failures.",
		}, []string{"kind"}),

		SynthesisCharacters: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vibevoice",
			Name:      "synthesis_characters_total",
			Help:      "Total characters sent to the upstream provider.",
		}),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vibevoice",
			Name:      "cache_hits_total",
			Help:      "Total audio cache hits.",
		}),

		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vibevoice",
			Name:      "cache_misses_total",
			Help:      "Total audio cache misses.",
		}),

		RateLimitRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vibevoice",
			Name:      "ratelimit_rejects_total",
			Help:      "Total rate limit rejections.",
		}),

		UsageQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vibevoice",
			Name:      "usage_queue_length",
			Help:      "Current number of queued usage records.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.SynthesisDuration,
		m.SynthesisErrors,
		m.SynthesisCharacters,
		m.CacheHits,
		m.CacheMisses,
		m.RateLimitRejects,
		m.UsageQueueLength,
	)

	return m
}
