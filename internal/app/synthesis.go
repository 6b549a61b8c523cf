// Package app implements the request admission pipeline: rate limiting,
// cache lookup, synthesis, and cache population.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	vibevoice "github.com/vibevoice/vibevoice/internal"
	"github.com/vibevoice/vibevoice/internal/cache"
	"github.com/vibevoice/vibevoice/internal/circuitbreaker"
	"github.com/vibevoice/vibevoice/internal/provider"
	"github.com/vibevoice/vibevoice/internal/ratelimit"
	"github.com/vibevoice/vibevoice/internal/telemetry"
)

// SynthesisService orchestrates one synthesis request: admission, key
// derivation, cache probe, provider call, cache population.
//
// The service is stateless per request and holds no lock across the
// probe/synthesize/populate steps, so two concurrent identical misses both
// call the provider. That duplication is tolerated rather than prevented;
// the second Set simply overwrites the first with identical bytes.
type SynthesisService struct {
	synth   vibevoice.Synthesizer
	store   cache.Store
	limiter ratelimit.Limiter
	ttl     time.Duration
	metrics *telemetry.Metrics      // nil = no metrics
	breaker *circuitbreaker.Breaker // nil = no breaker
}

// Result is a successful pipeline outcome.
type Result struct {
	Audio  []byte
	Cached bool
}

// NewSynthesisService wires the pipeline. metrics may be nil.
func NewSynthesisService(synth vibevoice.Synthesizer, store cache.Store, limiter ratelimit.Limiter, ttl time.Duration, metrics *telemetry.Metrics) *SynthesisService {
	return &SynthesisService{
		synth:   synth,
		store:   store,
		limiter: limiter,
		ttl:     ttl,
		metrics: metrics,
	}
}

// TTL returns the configured cache TTL (exposed for Cache-Control headers).
func (s *SynthesisService) TTL() time.Duration { return s.ttl }

// UseBreaker installs a circuit breaker guarding the provider. While open,
// cache hits are still served; only misses fail fast.
func (s *SynthesisService) UseBreaker(b *circuitbreaker.Breaker) { s.breaker = b }

// Synthesize runs the admission pipeline for one request. req must already
// be normalized and validated.
func (s *SynthesisService) Synthesize(ctx context.Context, clientID string, req *vibevoice.SynthesisRequest) (*Result, error) {
	if !s.limiter.Allow(ctx, clientID) {
		if s.metrics != nil {
			s.metrics.RateLimitRejects.Inc()
		}
		return nil, fmt.Errorf("%w: client %s", vibevoice.ErrRateLimited, clientID)
	}

	key := vibevoice.CacheKey(req)

	if audio, ok := s.store.Get(ctx, key); ok {
		if s.metrics != nil {
			s.metrics.CacheHits.Inc()
		}
		return &Result{Audio: audio, Cached: true}, nil
	}
	// Cache unavailability looks identical to a miss here; the store has
	// already degraded internally.
	if s.metrics != nil {
		s.metrics.CacheMisses.Inc()
	}

	if s.breaker != nil && !s.breaker.Allow() {
		if s.metrics != nil {
			s.metrics.SynthesisErrors.WithLabelValues("circuit_open").Inc()
		}
		return nil, fmt.Errorf("%w: circuit open", vibevoice.ErrProviderUnavailable)
	}

	start := time.Now()
	audio, err := s.synth.Synthesize(ctx, req)
	if s.breaker != nil {
		if err != nil {
			s.breaker.RecordError(circuitbreaker.ClassifyError(err))
		} else {
			s.breaker.RecordSuccess()
		}
	}
	if err != nil {
		return nil, s.classify(ctx, err)
	}
	if s.metrics != nil {
		s.metrics.SynthesisDuration.Observe(time.Since(start).Seconds())
		s.metrics.SynthesisCharacters.Add(float64(len(req.Text)))
	}

	// Population failure downgrades nothing: the caller still gets audio,
	// only future requests lose the cached copy.
	if !s.store.Set(ctx, key, audio, s.ttl) {
		slog.LogAttrs(ctx, slog.LevelWarn, "cache population skipped",
			slog.String("key", key[:min(len(key), 22)]),
			slog.Int("bytes", len(audio)),
		)
	}

	return &Result{Audio: audio, Cached: false}, nil
}

// Voices proxies the provider's voice catalog.
func (s *SynthesisService) Voices(ctx context.Context, languageCode string) ([]vibevoice.Voice, error) {
	voices, err := s.synth.ListVoices(ctx, languageCode)
	if err != nil {
		return nil, s.classify(ctx, err)
	}
	return voices, nil
}

// classify maps provider-level failures onto the domain error taxonomy:
// upstream rejection of the input is a synthesis failure, everything else
// (5xx, timeouts, connection errors) is provider unavailability.
func (s *SynthesisService) classify(ctx context.Context, err error) error {
	kind := "unavailable"
	mapped := vibevoice.ErrProviderUnavailable

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError && apiErr.StatusCode != http.StatusTooManyRequests {
		kind = "rejected"
		mapped = vibevoice.ErrSynthesisFailed
	}

	if s.metrics != nil {
		s.metrics.SynthesisErrors.WithLabelValues(kind).Inc()
	}
	slog.LogAttrs(ctx, slog.LevelError, "provider call failed",
		slog.String("kind", kind),
		slog.String("error", err.Error()),
		slog.String("request_id", vibevoice.RequestIDFromContext(ctx)),
	)
	return fmt.Errorf("%w: %v", mapped, err)
}
