// Package google provides an STT provider backed by the Google Cloud
// Speech-to-Text v1 REST API (speech:recognize).
//
// The request carries the raw audio (base64 in the JSON body) and an explicit
// RecognitionConfig. Authentication uses an API key passed as the "key" query
// parameter.
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/phrasecoach/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://speech.googleapis.com"
	recognizePath  = "/v1/speech:recognize"
	providerName   = "google"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API endpoint (useful for tests and proxies).
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the HTTP client timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider against speech.googleapis.com.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Google Speech-to-Text Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("google: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire types ---------------------------------------------------------------

type recognizeRequest struct {
	Config recognitionConfig `json:"config"`
	Audio  recognitionAudio  `json:"audio"`
}

type recognitionAudio struct {
	// Content is marshalled as base64 by encoding/json.
	Content []byte `json:"content"`
}

type recognitionConfig struct {
	Encoding                   string               `json:"encoding"`
	SampleRateHertz            int                  `json:"sampleRateHertz,omitempty"`
	LanguageCode               string               `json:"languageCode"`
	AudioChannelCount          int                  `json:"audioChannelCount,omitempty"`
	EnableAutomaticPunctuation bool                 `json:"enableAutomaticPunctuation"`
	EnableWordConfidence       bool                 `json:"enableWordConfidence"`
	UseEnhanced                bool                 `json:"useEnhanced"`
	Model                      string               `json:"model,omitempty"`
	Metadata                   *recognitionMetadata `json:"metadata,omitempty"`
}

type recognitionMetadata struct {
	InteractionType     string `json:"interactionType,omitempty"`
	MicrophoneDistance  string `json:"microphoneDistance,omitempty"`
	OriginalMediaType   string `json:"originalMediaType,omitempty"`
	RecordingDeviceType string `json:"recordingDeviceType,omitempty"`
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string   `json:"transcript"`
			Confidence *float64 `json:"confidence"`
			Words      []struct {
				Word       string   `json:"word"`
				Confidence *float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"results"`
}

// ---- Recognize ----------------------------------------------------------------

// Recognize implements stt.Provider.
func (p *Provider) Recognize(ctx context.Context, audio []byte, cfg stt.RecognitionConfig) (*stt.Response, error) {
	if len(audio) == 0 {
		return nil, stt.ErrEmptyAudio
	}

	body, err := json.Marshal(recognizeRequest{
		Config: buildConfig(cfg),
		Audio:  recognitionAudio{Content: audio},
	})
	if err != nil {
		return nil, fmt.Errorf("google: encode request: %w", err)
	}

	endpoint := p.baseURL + recognizePath + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("google: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, stt.NewUpstreamError(providerName, resp)
	}

	var raw recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("google: parse JSON response: %w", err)
	}
	return convertResponse(raw, cfg.EnableWordConfidence), nil
}

// buildConfig maps the provider-neutral config onto the Google wire format.
func buildConfig(cfg stt.RecognitionConfig) recognitionConfig {
	rc := recognitionConfig{
		Encoding:                   string(cfg.Encoding),
		SampleRateHertz:            cfg.SampleRateHertz,
		LanguageCode:               cfg.LanguageCode,
		AudioChannelCount:          cfg.AudioChannelCount,
		EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
		EnableWordConfidence:       cfg.EnableWordConfidence,
		UseEnhanced:                cfg.UseEnhanced,
		Model:                      cfg.Model,
	}
	if rc.Encoding == "" {
		rc.Encoding = string(stt.EncodingLinear16)
	}
	if md := cfg.Metadata; md != (stt.RecognitionMetadata{}) {
		rc.Metadata = &recognitionMetadata{
			InteractionType:     md.InteractionType,
			MicrophoneDistance:  md.MicrophoneDistance,
			OriginalMediaType:   md.OriginalMediaType,
			RecordingDeviceType: md.RecordingDeviceType,
		}
	}
	return rc
}

// convertResponse maps the wire response onto stt types. The JSON encoding
// drops zero-valued fields, so when word confidence was requested a word of
// the top alternative without a score is a word scored 0.
func convertResponse(raw recognizeResponse, wordConfidence bool) *stt.Response {
	out := &stt.Response{Results: make([]stt.Result, 0, len(raw.Results))}
	for _, r := range raw.Results {
		res := stt.Result{Alternatives: make([]stt.Alternative, 0, len(r.Alternatives))}
		for i, a := range r.Alternatives {
			scored := wordConfidence && i == 0
			alt := stt.Alternative{Transcript: a.Transcript}
			if a.Confidence != nil {
				alt.Confidence = *a.Confidence
			}
			for _, w := range a.Words {
				wi := stt.WordInfo{Word: w.Word}
				switch {
				case w.Confidence != nil:
					wi.Confidence = *w.Confidence
					wi.HasConfidence = true
				case scored:
					wi.HasConfidence = true
				}
				alt.Words = append(alt.Words, wi)
			}
			res.Alternatives = append(res.Alternatives, alt)
		}
		out.Results = append(out.Results, res)
	}
	return out
}
