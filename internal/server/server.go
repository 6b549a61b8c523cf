// Package server implements the HTTP transport layer for the VibeVoice proxy.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	vibevoice "github.com/vibevoice/vibevoice/internal"
	"github.com/vibevoice/vibevoice/internal/app"
	"github.com/vibevoice/vibevoice/internal/cache"
	"github.com/vibevoice/vibevoice/internal/telemetry"
)

// UsageRecorder records synthesis usage asynchronously.
type UsageRecorder interface {
	Record(vibevoice.UsageRecord)
}

// UsageQuerier reads back the usage audit log.
type UsageQuerier interface {
	QueryUsage(ctx context.Context, f vibevoice.UsageFilter) ([]vibevoice.UsageRecord, error)
	CountUsage(ctx context.Context, f vibevoice.UsageFilter) (int, error)
}

// Deps holds all dependencies for the HTTP server.
type Deps struct {
	Synthesis      *app.SynthesisService
	Store          cache.Store           // health + stats + purge
	Provider       vibevoice.Synthesizer // health component check
	Usage          UsageRecorder         // nil = no usage recording
	UsageLog       UsageQuerier          // nil = /usage not mounted
	Metrics        *telemetry.Metrics    // nil = no metrics middleware
	MetricsHandler http.Handler          // nil = /metrics not mounted
	MaxTextLength  int                   // <=0 = vibevoice.DefaultMaxTextLength
	TrustProxy     bool                  // honor X-Forwarded-For for client identity
	RateLimit      int64                 // requests per window, surfaced on /info
	RetryAfter     time.Duration         // Retry-After on 429; 0 = 60s
	CORSOrigins    []string              // empty = CORS disabled
	Version        string
}

// New creates an http.Handler with all routes and middleware wired.
func New(deps Deps) http.Handler {
	if deps.MaxTextLength <= 0 {
		deps.MaxTextLength = vibevoice.DefaultMaxTextLength
	}
	if deps.RetryAfter <= 0 {
		deps.RetryAfter = time.Minute
	}
	s := &server{deps: deps}

	r := chi.NewRouter()

	// Global middleware
	r.Use(s.recovery)
	r.Use(s.requestID)
	r.Use(s.logging)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}
	if len(deps.CORSOrigins) > 0 {
		r.Use(s.cors)
	}

	// System endpoints
	r.Get("/health", s.handleHealth)
	r.Get("/info", s.handleInfo)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Synthesis API
	r.Post("/synthesize", s.handleSynthesize)
	r.Get("/voices", s.handleVoices)

	// Cache administration
	r.Get("/cache/stats", s.handleCacheStats)
	r.Delete("/cache", s.handleCachePurge)

	// Usage audit log
	if deps.UsageLog != nil {
		r.Get("/usage", s.handleQueryUsage)
	}

	return r
}

type server struct {
	deps Deps
}
