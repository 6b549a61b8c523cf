// Package vibevoice defines domain types and interfaces for the VibeVoice
// TTS caching proxy. This package has no project imports -- it is the
// dependency root.
package vibevoice

import (
	"context"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"
)

// DefaultMaxTextLength bounds synthesis input when the config does not
// override it.
const DefaultMaxTextLength = 5000

// Synthesis parameter bounds, matching the provider's accepted ranges.
const (
	MinSpeed        = 0.25
	MaxSpeed        = 4.0
	MinPitch        = -20.0
	MaxPitch        = 20.0
	MinVolumeGainDB = -96.0
	MaxVolumeGainDB = 16.0
)

// Defaults applied by Normalize.
const (
	DefaultVoice    = "ja-JP-Standard-A"
	DefaultLanguage = "ja-JP"
	DefaultSpeed    = 1.0
)

// --- Synthesizer ---

// Synthesizer is the interface a TTS provider adapter must implement.
type Synthesizer interface {
	// Name returns the provider identifier (e.g., "googletts").
	Name() string
	// Synthesize renders the request into raw audio bytes.
	Synthesize(ctx context.Context, req *SynthesisRequest) ([]byte, error)
	// ListVoices returns the provider's voice catalog, optionally filtered
	// by BCP-47 language code.
	ListVoices(ctx context.Context, languageCode string) ([]Voice, error)
	// HealthCheck verifies connectivity to the provider.
	HealthCheck(ctx context.Context) error
}

// SynthesisRequest holds the semantic parameters of one synthesis call.
// Equality over this tuple defines cache identity; see CacheKey.
type SynthesisRequest struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice,omitempty"`
	Speed        float64 `json:"speed,omitempty"`
	Pitch        float64 `json:"pitch,omitempty"`
	Language     string  `json:"language,omitempty"`
	VolumeGainDB float64 `json:"volume_gain_db,omitempty"`
}

// Voice and language identifiers are validated by pattern rather than a
// dynamic enum: the provider's catalog changes without notice, the shape
// does not.
var (
	voicePattern    = regexp.MustCompile(`^[a-z]{2,3}-[A-Z]{2}-[A-Za-z0-9]+(-[A-Za-z0-9]+)*$`)
	languagePattern = regexp.MustCompile(`^[a-z]{2,3}-[A-Z]{2}$`)
)

// Normalize fills unset fields with defaults. A zero Speed means "unset"
// since 0 is outside the valid range.
func (r *SynthesisRequest) Normalize() {
	if r.Voice == "" {
		r.Voice = DefaultVoice
	}
	if r.Language == "" {
		r.Language = DefaultLanguage
	}
	if r.Speed == 0 {
		r.Speed = DefaultSpeed
	}
}

// Validate checks all parameter bounds. maxTextLen caps the text length in
// runes; pass DefaultMaxTextLength when no config override applies.
// Returned errors wrap ErrBadRequest.
func (r *SynthesisRequest) Validate(maxTextLen int) error {
	if maxTextLen <= 0 {
		maxTextLen = DefaultMaxTextLength
	}
	if r.Text == "" {
		return fmt.Errorf("%w: text is required", ErrBadRequest)
	}
	if n := utf8.RuneCountInString(r.Text); n > maxTextLen {
		return fmt.Errorf("%w: text length %d exceeds maximum %d", ErrBadRequest, n, maxTextLen)
	}
	if !voicePattern.MatchString(r.Voice) {
		return fmt.Errorf("%w: invalid voice %q", ErrBadRequest, r.Voice)
	}
	if !languagePattern.MatchString(r.Language) {
		return fmt.Errorf("%w: invalid language %q", ErrBadRequest, r.Language)
	}
	if r.Speed < MinSpeed || r.Speed > MaxSpeed {
		return fmt.Errorf("%w: speed %g out of range [%g, %g]", ErrBadRequest, r.Speed, MinSpeed, MaxSpeed)
	}
	if r.Pitch < MinPitch || r.Pitch > MaxPitch {
		return fmt.Errorf("%w: pitch %g out of range [%g, %g]", ErrBadRequest, r.Pitch, MinPitch, MaxPitch)
	}
	if r.VolumeGainDB < MinVolumeGainDB || r.VolumeGainDB > MaxVolumeGainDB {
		return fmt.Errorf("%w: volume_gain_db %g out of range [%g, %g]", ErrBadRequest, r.VolumeGainDB, MinVolumeGainDB, MaxVolumeGainDB)
	}
	return nil
}

// Voice describes one entry in the provider's voice catalog.
type Voice struct {
	Name                   string `json:"name"`
	LanguageCode           string `json:"language_code"`
	Gender                 string `json:"ssml_gender"`
	NaturalSampleRateHertz int    `json:"natural_sample_rate_hertz"`
}

// CacheStats is a point-in-time snapshot of cache effectiveness.
// Hits and Misses are cumulative for the backing store's lifetime.
type CacheStats struct {
	TotalKeys   int64   `json:"total_keys"`
	MemoryBytes int64   `json:"memory_bytes"`
	HitRate     float64 `json:"hit_rate"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
}

// UsageRecord captures one completed synthesis request for the audit log.
type UsageRecord struct {
	ID         string    `json:"id"`
	ClientID   string    `json:"client_id"`
	Voice      string    `json:"voice"`
	Language   string    `json:"language"`
	TextChars  int       `json:"text_chars"`
	Cached     bool      `json:"cached"`
	LatencyMs  int64     `json:"latency_ms"`
	StatusCode int       `json:"status_code"`
	RequestID  string    `json:"request_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UsageFilter narrows usage queries. Since/Until are RFC3339 strings compared
// lexically against the stored created_at column.
type UsageFilter struct {
	ClientID string
	Voice    string
	Language string
	Since    string
	Until    string
	Offset   int
	Limit    int
}

// --- Context keys ---

type contextKey int

const ctxKeyRequestID contextKey = 0

// ContextWithRequestID returns a context carrying the request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFromContext extracts the request ID from context, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}
