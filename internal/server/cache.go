package server

import "net/http"

func (s *server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Store.Stats(r.Context())
	writeJSON(w, http.StatusOK, stats)
}

type purgeResponse struct {
	Cleared int `json:"cleared"`
}

func (s *server) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	n := s.deps.Store.Purge(r.Context())
	writeJSON(w, http.StatusOK, purgeResponse{Cleared: n})
}
