// Package googletts implements the vibevoice.Synthesizer interface against
// the Google Cloud Text-to-Speech REST API.
package googletts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	vibevoice "github.com/vibevoice/vibevoice/internal"
	"github.com/vibevoice/vibevoice/internal/provider"
)

const (
	defaultBaseURL = "https://texttospeech.googleapis.com/v1"
	providerName   = "googletts"
)

var _ vibevoice.Synthesizer = (*Client)(nil)

// Client is a Google Cloud TTS adapter. Audio is always requested as MP3:
// compressed payloads keep the cache backend's memory bounded and the
// upstream's MP3 output is byte-stable for identical inputs.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client. If baseURL is empty it defaults to the Google Cloud
// TTS endpoint; if httpClient is nil, http.DefaultClient is used. Auth is
// the http.Client's concern (see provider.APIKeyTransport and
// provider.GCPOAuthTransport).
func New(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Name returns the provider identifier.
func (c *Client) Name() string { return providerName }

// synthesizeRequest mirrors the REST API's text:synthesize body.
type synthesizeRequest struct {
	Input       synthesisInput `json:"input"`
	Voice       voiceSelection `json:"voice"`
	AudioConfig audioConfig    `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name"`
}

type audioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate"`
	Pitch         float64 `json:"pitch"`
	VolumeGainDB  float64 `json:"volumeGainDb"`
}

// Synthesize renders the request into MP3 bytes via text:synthesize.
func (c *Client) Synthesize(ctx context.Context, req *vibevoice.SynthesisRequest) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{
		Input: synthesisInput{Text: req.Text},
		Voice: voiceSelection{
			LanguageCode: req.Language,
			Name:         req.Voice,
		},
		AudioConfig: audioConfig{
			AudioEncoding: "MP3",
			SpeakingRate:  req.Speed,
			Pitch:         req.Pitch,
			VolumeGainDB:  req.VolumeGainDB,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("googletts: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/text:synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("googletts: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("googletts: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(providerName, resp)
	}

	// Base64 audio expands ~4/3; 64 MB of response covers the provider's
	// own 5000-character input cap many times over.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("googletts: read response: %w", err)
	}

	encoded := gjson.GetBytes(respBody, "audioContent").String()
	if encoded == "" {
		return nil, fmt.Errorf("googletts: response missing audioContent")
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("googletts: decode audio: %w", err)
	}
	return audio, nil
}

// ListVoices returns the provider's voice catalog, optionally filtered by
// language code.
func (c *Client) ListVoices(ctx context.Context, languageCode string) ([]vibevoice.Voice, error) {
	u := c.baseURL + "/voices"
	if languageCode != "" {
		u += "?languageCode=" + url.QueryEscape(languageCode)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("googletts: create request: %w", err)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("googletts: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.ParseAPIError(providerName, resp)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("googletts: read response: %w", err)
	}

	var voices []vibevoice.Voice
	gjson.GetBytes(respBody, "voices").ForEach(func(_, v gjson.Result) bool {
		voices = append(voices, vibevoice.Voice{
			Name: v.Get("name").String(),
			// A voice may serve several locales; the first is primary.
			LanguageCode:           v.Get("languageCodes.0").String(),
			Gender:                 v.Get("ssmlGender").String(),
			NaturalSampleRateHertz: int(v.Get("naturalSampleRateHertz").Int()),
		})
		return true
	})
	return voices, nil
}

// HealthCheck verifies connectivity with a voice catalog probe.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.ListVoices(ctx, vibevoice.DefaultLanguage)
	return err
}
