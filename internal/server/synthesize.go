package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	vibevoice "github.com/vibevoice/vibevoice/internal"
)

// maxSynthesizeBody bounds the request body (1 MB). The text length limit is
// enforced separately in runes; this guard only stops pathological payloads
// before JSON decoding.
const maxSynthesizeBody = 1 << 20

var (
	cacheHit  = []string{"HIT"}
	cacheMiss = []string{"MISS"}
)

func (s *server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req vibevoice.SynthesisRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxSynthesizeBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body: "+err.Error()))
		return
	}
	req.Normalize()
	if err := req.Validate(s.deps.MaxTextLength); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	clientID := s.clientID(r)
	res, err := s.deps.Synthesis.Synthesize(r.Context(), clientID, &req)
	if err != nil {
		status := errorStatus(err)
		if errors.Is(err, vibevoice.ErrRateLimited) {
			w.Header().Set("Retry-After", strconv.Itoa(int(s.deps.RetryAfter.Seconds())))
			writeJSON(w, status, errorResponse("rate limit exceeded, try again later"))
		} else {
			writeJSON(w, status, errorResponse(err.Error()))
		}
		s.recordUsage(r, &req, clientID, false, start, status)
		return
	}

	h := w.Header()
	h["Content-Type"] = audioCT
	if res.Cached {
		h["X-Cache"] = cacheHit
	} else {
		h["X-Cache"] = cacheMiss
	}
	h.Set("Cache-Control", "public, max-age="+strconv.Itoa(int(s.deps.Synthesis.TTL().Seconds())))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Audio)

	s.recordUsage(r, &req, clientID, res.Cached, start, http.StatusOK)
}

func (s *server) recordUsage(r *http.Request, req *vibevoice.SynthesisRequest, clientID string, cached bool, start time.Time, status int) {
	if s.deps.Usage == nil {
		return
	}
	s.deps.Usage.Record(vibevoice.UsageRecord{
		ID:         uuid.Must(uuid.NewV7()).String(),
		ClientID:   clientID,
		Voice:      req.Voice,
		Language:   req.Language,
		TextChars:  len([]rune(req.Text)),
		Cached:     cached,
		LatencyMs:  time.Since(start).Milliseconds(),
		StatusCode: status,
		RequestID:  vibevoice.RequestIDFromContext(r.Context()),
		CreatedAt:  time.Now().UTC(),
	})
}

func (s *server) handleVoices(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("language_code")
	voices, err := s.deps.Synthesis.Voices(r.Context(), lang)
	if err != nil {
		writeJSON(w, errorStatus(err), errorResponse(err.Error()))
		return
	}
	if voices == nil {
		voices = []vibevoice.Voice{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": voices})
}
