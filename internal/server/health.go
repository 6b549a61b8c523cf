package server

import (
	"context"
	"net/http"
	"time"

	vibevoice "github.com/vibevoice/vibevoice/internal"
)

// componentTimeout bounds each dependency probe so a hung backend cannot
// stall the health endpoint.
const componentTimeout = 2 * time.Second

type healthResponse struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	CacheConnected    bool      `json:"cache_connected"`
	ProviderAvailable bool      `json:"provider_available"`
}

// handleHealth always answers 200: the proxy keeps serving when the cache is
// down (every request degrades to a provider call), so a failing component
// marks the status degraded instead of failing the probe.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:            "ok",
		Timestamp:         time.Now().UTC(),
		CacheConnected:    true,
		ProviderAvailable: true,
	}

	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), componentTimeout)
		resp.CacheConnected = s.deps.Store.Ping(ctx) == nil
		cancel()
	}
	if s.deps.Provider != nil {
		ctx, cancel := context.WithTimeout(r.Context(), componentTimeout)
		resp.ProviderAvailable = s.deps.Provider.HealthCheck(ctx) == nil
		cancel()
	}
	if !resp.CacheConnected || !resp.ProviderAvailable {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}

type infoResponse struct {
	Name            string  `json:"name"`
	Version         string  `json:"version"`
	Provider        string  `json:"provider"`
	DefaultVoice    string  `json:"default_voice"`
	DefaultLanguage string  `json:"default_language"`
	MaxTextLength   int     `json:"max_text_length"`
	RateLimit       int64   `json:"rate_limit_per_minute"`
	CacheTTLSeconds float64 `json:"cache_ttl_seconds"`
}

func (s *server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	info := infoResponse{
		Name:            "vibevoice",
		Version:         s.deps.Version,
		DefaultVoice:    vibevoice.DefaultVoice,
		DefaultLanguage: vibevoice.DefaultLanguage,
		MaxTextLength:   s.deps.MaxTextLength,
		RateLimit:       s.deps.RateLimit,
		CacheTTLSeconds: s.deps.Synthesis.TTL().Seconds(),
	}
	if s.deps.Provider != nil {
		info.Provider = s.deps.Provider.Name()
	}
	writeJSON(w, http.StatusOK, info)
}
