package vibevoice

import (
	"errors"
	"strings"
	"testing"
)

func TestSynthesisRequest_Normalize(t *testing.T) {
	t.Parallel()
	req := &SynthesisRequest{Text: "hi"}
	req.Normalize()

	if req.Voice != DefaultVoice {
		t.Errorf("Voice = %q, want %q", req.Voice, DefaultVoice)
	}
	if req.Language != DefaultLanguage {
		t.Errorf("Language = %q, want %q", req.Language, DefaultLanguage)
	}
	if req.Speed != DefaultSpeed {
		t.Errorf("Speed = %g, want %g", req.Speed, DefaultSpeed)
	}
	if req.Pitch != 0 || req.VolumeGainDB != 0 {
		t.Error("zero pitch and volume gain are valid values, not defaults")
	}
}

func TestSynthesisRequest_NormalizeKeepsExplicit(t *testing.T) {
	t.Parallel()
	req := &SynthesisRequest{Text: "hi", Voice: "en-US-Standard-C", Speed: 2.0, Language: "en-US"}
	req.Normalize()

	if req.Voice != "en-US-Standard-C" || req.Speed != 2.0 || req.Language != "en-US" {
		t.Errorf("Normalize overwrote explicit fields: %+v", req)
	}
}

func TestSynthesisRequest_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *SynthesisRequest {
		r := &SynthesisRequest{Text: "hello"}
		r.Normalize()
		return r
	}

	tests := []struct {
		name    string
		mutate  func(*SynthesisRequest)
		wantErr bool
	}{
		{"valid defaults", func(r *SynthesisRequest) {}, false},
		{"empty text", func(r *SynthesisRequest) { r.Text = "" }, true},
		{"text too long", func(r *SynthesisRequest) { r.Text = strings.Repeat("a", DefaultMaxTextLength+1) }, true},
		{"text at limit", func(r *SynthesisRequest) { r.Text = strings.Repeat("a", DefaultMaxTextLength) }, false},
		{"bad voice", func(r *SynthesisRequest) { r.Voice = "robot voice" }, true},
		{"wavenet voice", func(r *SynthesisRequest) { r.Voice = "ja-JP-Wavenet-D" }, false},
		{"bad language", func(r *SynthesisRequest) { r.Language = "japanese" }, true},
		{"speed too slow", func(r *SynthesisRequest) { r.Speed = 0.1 }, true},
		{"speed too fast", func(r *SynthesisRequest) { r.Speed = 4.5 }, true},
		{"speed at bound", func(r *SynthesisRequest) { r.Speed = MaxSpeed }, false},
		{"pitch too low", func(r *SynthesisRequest) { r.Pitch = -21 }, true},
		{"pitch too high", func(r *SynthesisRequest) { r.Pitch = 20.5 }, true},
		{"volume too low", func(r *SynthesisRequest) { r.VolumeGainDB = -97 }, true},
		{"volume too high", func(r *SynthesisRequest) { r.VolumeGainDB = 16.1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := valid()
			tt.mutate(req)
			err := req.Validate(DefaultMaxTextLength)
			if tt.wantErr && err == nil {
				t.Error("want error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if err != nil && !errors.Is(err, ErrBadRequest) {
				t.Errorf("error %v should wrap ErrBadRequest", err)
			}
		})
	}
}

func TestSynthesisRequest_ValidateRuneCounting(t *testing.T) {
	t.Parallel()
	// Multibyte text is counted in runes, not bytes.
	req := &SynthesisRequest{Text: strings.Repeat("あ", 10)}
	req.Normalize()
	if err := req.Validate(10); err != nil {
		t.Errorf("10 runes should fit a 10-rune limit: %v", err)
	}
	if err := req.Validate(9); err == nil {
		t.Error("10 runes should exceed a 9-rune limit")
	}
}
