// Package testutil provides configurable test fakes for proxy interfaces.
package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	vibevoice "github.com/vibevoice/vibevoice/internal"
)

// FakeSynthesizer is a configurable vibevoice.Synthesizer for testing.
type FakeSynthesizer struct {
	ProviderName string
	SynthesizeFn func(ctx context.Context, req *vibevoice.SynthesisRequest) ([]byte, error)
	VoicesFn     func(ctx context.Context, languageCode string) ([]vibevoice.Voice, error)
	HealthFn     func(ctx context.Context) error

	// Calls counts Synthesize invocations.
	Calls atomic.Int64
}

// Name returns the configured provider name, defaulting to "fake".
func (f *FakeSynthesizer) Name() string {
	if f.ProviderName != "" {
		return f.ProviderName
	}
	return "fake"
}

// Synthesize delegates to SynthesizeFn or returns a fixed payload.
func (f *FakeSynthesizer) Synthesize(ctx context.Context, req *vibevoice.SynthesisRequest) ([]byte, error) {
	f.Calls.Add(1)
	if f.SynthesizeFn != nil {
		return f.SynthesizeFn(ctx, req)
	}
	return []byte("fake-audio:" + req.Text), nil
}

// ListVoices delegates to VoicesFn or returns a fixed catalog.
func (f *FakeSynthesizer) ListVoices(ctx context.Context, languageCode string) ([]vibevoice.Voice, error) {
	if f.VoicesFn != nil {
		return f.VoicesFn(ctx, languageCode)
	}
	return []vibevoice.Voice{{
		Name:                   "ja-JP-Standard-A",
		LanguageCode:           "ja-JP",
		Gender:                 "FEMALE",
		NaturalSampleRateHertz: 24000,
	}}, nil
}

// HealthCheck delegates to HealthFn or returns nil.
func (f *FakeSynthesizer) HealthCheck(ctx context.Context) error {
	if f.HealthFn != nil {
		return f.HealthFn(ctx)
	}
	return nil
}

// FakeStore is an in-memory cache.Store with switchable availability.
type FakeStore struct {
	mu      sync.Mutex
	entries map[string]fakeEntry
	hits    int64
	misses  int64

	// Down simulates an unreachable backend: Get misses without counting,
	// Set/Delete fail, Stats zeroes, Ping errors.
	Down bool
	// PingErr is returned by Ping when Down is set.
	PingErr error
}

type fakeEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewFakeStore returns an empty, available FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{entries: make(map[string]fakeEntry)}
}

// Get looks up a payload, honoring entry expiry.
func (s *FakeStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Down {
		return nil, false
	}
	e, ok := s.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		s.misses++
		return nil, false
	}
	s.hits++
	return e.data, true
}

// Set stores a payload with TTL.
func (s *FakeStore) Set(_ context.Context, key string, payload []byte, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Down {
		return false
	}
	s.entries[key] = fakeEntry{data: payload, expiresAt: time.Now().Add(ttl)}
	return true
}

// Delete removes a key.
func (s *FakeStore) Delete(_ context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Down {
		return false
	}
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// Purge removes everything.
func (s *FakeStore) Purge(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Down {
		return 0
	}
	n := len(s.entries)
	s.entries = make(map[string]fakeEntry)
	return n
}

// Stats reports the fake's counters.
func (s *FakeStore) Stats(_ context.Context) vibevoice.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Down {
		return vibevoice.CacheStats{}
	}
	var rate float64
	if total := s.hits + s.misses; total > 0 {
		rate = float64(s.hits) / float64(total)
	}
	return vibevoice.CacheStats{
		TotalKeys: int64(len(s.entries)),
		HitRate:   rate,
		Hits:      s.hits,
		Misses:    s.misses,
	}
}

// Ping reports liveness per the Down flag.
func (s *FakeStore) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Down {
		return s.PingErr
	}
	return nil
}

// SetDown toggles simulated backend availability.
func (s *FakeStore) SetDown(down bool, pingErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Down = down
	s.PingErr = pingErr
}

// Len returns the current entry count.
func (s *FakeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// FakeLimiter is a configurable ratelimit.Limiter.
type FakeLimiter struct {
	AllowFn func(ctx context.Context, clientID string) bool
}

// Allow delegates to AllowFn, defaulting to admit.
func (f *FakeLimiter) Allow(ctx context.Context, clientID string) bool {
	if f.AllowFn != nil {
		return f.AllowFn(ctx, clientID)
	}
	return true
}
