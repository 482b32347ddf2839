// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// pre-recorded audio REST API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/phrasecoach/pkg/provider/stt"
)

const (
	deepgramEndpoint  = "https://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultSampleRate = 16000
	providerName      = "deepgram"
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
// RecognitionConfig.Model takes precedence when set.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithEndpoint overrides the listen endpoint (useful for tests).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithTimeout sets the HTTP client timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements stt.Provider backed by the Deepgram REST API.
type Provider struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		endpoint:   deepgramEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Recognize implements stt.Provider. The raw PCM payload is posted as the
// request body; encoding parameters travel in the query string.
func (p *Provider) Recognize(ctx context.Context, audio []byte, cfg stt.RecognitionConfig) (*stt.Response, error) {
	if len(audio) == 0 {
		return nil, stt.ErrEmptyAudio
	}

	listenURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, listenURL, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, stt.NewUpstreamError(providerName, resp)
	}

	var raw deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("deepgram: parse JSON response: %w", err)
	}
	return convertResponse(raw), nil
}

// buildURL constructs the Deepgram listen URL for the given config.
func (p *Provider) buildURL(cfg stt.RecognitionConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	model := cfg.Model
	if model == "" {
		model = p.model
	}
	sr := cfg.SampleRateHertz
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("encoding", deepgramEncoding(cfg.Encoding))
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.LanguageCode != "" {
		q.Set("language", cfg.LanguageCode)
	}
	if cfg.AudioChannelCount > 0 {
		q.Set("channels", strconv.Itoa(cfg.AudioChannelCount))
	}
	q.Set("punctuate", strconv.FormatBool(cfg.EnableAutomaticPunctuation))

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func deepgramEncoding(e stt.Encoding) string {
	if e == "" {
		return "linear16"
	}
	return strings.ToLower(string(e))
}

// deepgramResponse is the JSON structure returned by the pre-recorded endpoint.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []struct {
					Word           string   `json:"word"`
					PunctuatedWord string   `json:"punctuated_word"`
					Confidence     *float64 `json:"confidence"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// convertResponse maps each Deepgram channel to one stt.Result. Channels with
// an empty top transcript are dropped.
func convertResponse(raw deepgramResponse) *stt.Response {
	out := &stt.Response{}
	for _, ch := range raw.Results.Channels {
		var res stt.Result
		for _, a := range ch.Alternatives {
			alt := stt.Alternative{Transcript: a.Transcript, Confidence: a.Confidence}
			for _, w := range a.Words {
				wi := stt.WordInfo{Word: w.Word}
				if w.PunctuatedWord != "" {
					wi.Word = w.PunctuatedWord
				}
				if w.Confidence != nil {
					wi.Confidence = *w.Confidence
					wi.HasConfidence = true
				}
				alt.Words = append(alt.Words, wi)
			}
			res.Alternatives = append(res.Alternatives, alt)
		}
		if len(res.Alternatives) == 0 || strings.TrimSpace(res.Alternatives[0].Transcript) == "" {
			continue
		}
		out.Results = append(out.Results, res)
	}
	return out
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
