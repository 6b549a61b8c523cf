package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	vibevoice "github.com/vibevoice/vibevoice/internal"
)

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorResponse(msg string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = "invalid_request_error"
	return e
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, vibevoice.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, vibevoice.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vibevoice.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, vibevoice.ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Pre-allocated header value slices. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call. Saves 1 alloc/req.
var (
	jsonCT  = []string{"application/json"}
	audioCT = []string{"audio/mpeg"}
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
