package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	vibevoice "github.com/vibevoice/vibevoice/internal"
	"github.com/vibevoice/vibevoice/internal/app"
	"github.com/vibevoice/vibevoice/internal/telemetry"
	"github.com/vibevoice/vibevoice/internal/testutil"
)

type testServer struct {
	handler http.Handler
	synth   *testutil.FakeSynthesizer
	store   *testutil.FakeStore
	limiter *testutil.FakeLimiter
}

func newTestServer(t *testing.T, mutate func(*Deps)) *testServer {
	t.Helper()
	synth := &testutil.FakeSynthesizer{}
	store := testutil.NewFakeStore()
	limiter := &testutil.FakeLimiter{}
	deps := Deps{
		Synthesis: app.NewSynthesisService(synth, store, limiter, time.Hour, nil),
		Store:     store,
		Provider:  synth,
		Version:   "test",
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &testServer{handler: New(deps), synth: synth, store: store, limiter: limiter}
}

func synthesizeBody() string {
	return `{"text":"Hello world","voice":"ja-JP-Standard-A"}`
}

func (ts *testServer) synthesize(body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/synthesize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func TestSynthesize_MissThenHitHeaders(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	rec := ts.synthesize(synthesizeBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Errorf("Cache-Control = %q", got)
	}
	firstAudio := rec.Body.String()

	rec = ts.synthesize(synthesizeBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("second status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("X-Cache = %q, want HIT", got)
	}
	if rec.Body.String() != firstAudio {
		t.Error("cached body differs from synthesized body")
	}
	if ts.synth.Calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", ts.synth.Calls.Load())
	}
}

func TestSynthesize_BadRequests(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	cases := map[string]string{
		"malformed json": `{"text":`,
		"empty text":     `{"text":""}`,
		"speed too high": `{"text":"hi","speed":9.0}`,
		"bad voice":      `{"text":"hi","voice":"not a voice"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if rec := ts.synthesize(body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
			}
		})
	}
	if ts.synth.Calls.Load() != 0 {
		t.Error("invalid requests must not reach the provider")
	}
}

func TestSynthesize_RateLimited(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, func(d *Deps) {
		limiter := &testutil.FakeLimiter{AllowFn: func(context.Context, string) bool { return false }}
		d.Synthesis = app.NewSynthesisService(&testutil.FakeSynthesizer{}, testutil.NewFakeStore(), limiter, time.Hour, nil)
	})

	rec := ts.synthesize(synthesizeBody())
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}

func TestSynthesize_ProviderDown(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, func(d *Deps) {
		synth := &testutil.FakeSynthesizer{
			SynthesizeFn: func(context.Context, *vibevoice.SynthesisRequest) ([]byte, error) {
				return nil, context.DeadlineExceeded
			},
		}
		d.Synthesis = app.NewSynthesisService(synth, testutil.NewFakeStore(), &testutil.FakeLimiter{}, time.Hour, nil)
	})

	if rec := ts.synthesize(synthesizeBody()); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSynthesize_CacheOutageStillServes(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.store.SetDown(true, context.DeadlineExceeded)

	rec := ts.synthesize(synthesizeBody())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("X-Cache = %q, want MISS during outage", got)
	}
}

func TestSynthesize_ClientIdentity(t *testing.T) {
	t.Parallel()

	var seen []string
	limiter := &testutil.FakeLimiter{AllowFn: func(_ context.Context, id string) bool {
		seen = append(seen, id)
		return true
	}}
	ts := newTestServer(t, func(d *Deps) {
		d.TrustProxy = true
		d.Synthesis = app.NewSynthesisService(&testutil.FakeSynthesizer{}, testutil.NewFakeStore(), limiter, time.Hour, nil)
	})

	req := httptest.NewRequest(http.MethodPost, "/synthesize", strings.NewReader(synthesizeBody()))
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(seen) != 1 || seen[0] != "203.0.113.9" {
		t.Errorf("limiter saw %v, want first forwarded hop", seen)
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()
	var gotLang string
	ts := newTestServer(t, func(d *Deps) {
		synth := &testutil.FakeSynthesizer{
			VoicesFn: func(_ context.Context, lang string) ([]vibevoice.Voice, error) {
				gotLang = lang
				return []vibevoice.Voice{{Name: "en-US-Standard-C", LanguageCode: "en-US"}}, nil
			},
		}
		d.Synthesis = app.NewSynthesisService(synth, testutil.NewFakeStore(), &testutil.FakeLimiter{}, time.Hour, nil)
	})

	req := httptest.NewRequest(http.MethodGet, "/voices?language_code=en-US", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if gotLang != "en-US" {
		t.Errorf("language_code = %q", gotLang)
	}
	if !strings.Contains(rec.Body.String(), "en-US-Standard-C") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestHealth_DegradedStays200(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)
	ts.store.SetDown(true, context.DeadlineExceeded)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("degraded health must still answer 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"status":"degraded"`) || !strings.Contains(body, `"cache_connected":false`) {
		t.Errorf("body = %s", body)
	}
}

func TestCacheStatsAndPurge(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	// Populate one entry via a real synthesis.
	if rec := ts.synthesize(synthesizeBody()); rec.Code != http.StatusOK {
		t.Fatalf("synthesize: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/cache/stats", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total_keys":1`) {
		t.Errorf("stats body = %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodDelete, "/cache", nil)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("purge status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"cleared":1`) {
		t.Errorf("purge body = %s", rec.Body.String())
	}
	if ts.store.Len() != 0 {
		t.Errorf("entries after purge = %d", ts.store.Len())
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("response missing X-Request-Id")
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "client-supplied")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "client-supplied" {
		t.Errorf("X-Request-Id = %q, want echo of client value", got)
	}
}

func TestInfo(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"version":"test"`) || !strings.Contains(body, `"provider":"fake"`) {
		t.Errorf("body = %s", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, func(d *Deps) {
		d.CORSOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/synthesize", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	// Unlisted origin gets no CORS headers.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unlisted origin must not be allowed")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	ts := newTestServer(t, func(d *Deps) {
		d.Metrics = metrics
		d.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		d.Synthesis = app.NewSynthesisService(&testutil.FakeSynthesizer{}, testutil.NewFakeStore(), &testutil.FakeLimiter{}, time.Hour, metrics)
	})

	// Hit a normal endpoint first to generate metrics.
	if rec := ts.synthesize(synthesizeBody()); rec.Code != http.StatusOK {
		t.Fatalf("synthesize: %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "vibevoice_requests_total") {
		t.Error("metrics should contain vibevoice_requests_total")
	}
	if !strings.Contains(body, "vibevoice_cache_misses_total") {
		t.Error("metrics should contain vibevoice_cache_misses_total")
	}
}

func TestUsageRecorded(t *testing.T) {
	t.Parallel()

	var records []vibevoice.UsageRecord
	ts := newTestServer(t, func(d *Deps) {
		d.Usage = usageFunc(func(rec vibevoice.UsageRecord) { records = append(records, rec) })
	})

	if rec := ts.synthesize(synthesizeBody()); rec.Code != http.StatusOK {
		t.Fatalf("synthesize: %d", rec.Code)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	got := records[0]
	if got.TextChars != len("Hello world") || got.Cached || got.StatusCode != http.StatusOK {
		t.Errorf("record = %+v", got)
	}
	if got.ID == "" || got.RequestID == "" {
		t.Error("record must carry generated IDs")
	}
}

type usageFunc func(vibevoice.UsageRecord)

func (f usageFunc) Record(rec vibevoice.UsageRecord) { f(rec) }

type fakeUsageLog struct {
	records   []vibevoice.UsageRecord
	gotFilter vibevoice.UsageFilter
	countErr  error
}

func (f *fakeUsageLog) QueryUsage(_ context.Context, filter vibevoice.UsageFilter) ([]vibevoice.UsageRecord, error) {
	f.gotFilter = filter
	return f.records, nil
}

func (f *fakeUsageLog) CountUsage(context.Context, vibevoice.UsageFilter) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.records), nil
}

func TestQueryUsage(t *testing.T) {
	t.Parallel()
	log := &fakeUsageLog{records: []vibevoice.UsageRecord{
		{ID: "u1", ClientID: "10.0.0.1", Voice: "ja-JP-Standard-A", StatusCode: 200},
	}}
	ts := newTestServer(t, func(d *Deps) { d.UsageLog = log })

	req := httptest.NewRequest(http.MethodGet, "/usage?client_id=10.0.0.1&limit=10", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	if log.gotFilter.ClientID != "10.0.0.1" || log.gotFilter.Limit != 10 {
		t.Errorf("filter = %+v", log.gotFilter)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	// Malformed since is rejected before hitting the store.
	req = httptest.NewRequest(http.MethodGet, "/usage?since=yesterday", nil)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("since status = %d, want 400", rec.Code)
	}
}

func TestQueryUsage_CountFailure(t *testing.T) {
	t.Parallel()
	log := &fakeUsageLog{
		records: []vibevoice.UsageRecord{
			{ID: "u1", ClientID: "10.0.0.1", Voice: "ja-JP-Standard-A", StatusCode: 200},
		},
		countErr: errors.New("database is locked"),
	}
	ts := newTestServer(t, func(d *Deps) { d.UsageLog = log })

	// A failed count must not report total 0 next to real rows.
	req := httptest.NewRequest(http.MethodGet, "/usage", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500; body = %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"total":0`) {
		t.Errorf("body = %s, want error payload", rec.Body.String())
	}
}
