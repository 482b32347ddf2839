// Package whisper provides a local whisper.cpp-backed STT provider.
//
// It connects to a running whisper-server binary (which exposes a REST API at
// POST /inference). The recorded utterance is wrapped in a WAV container and
// uploaded as multipart/form-data; the verbose JSON response supplies per-word
// probabilities that are surfaced as word confidences.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithModel("small"))
//	resp, err := p.Recognize(ctx, pcm, cfg)
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/phrasecoach/pkg/provider/stt"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// audio that whisper.cpp expects.
	bitsPerSample = 16

	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
	// units) below which audio is considered silent. The maximum possible value
	// for 16-bit audio is 32 767; 300 corresponds to near-silence.
	defaultRMSThreshold = 300.0

	defaultSampleRate = 16000
	providerName      = "whisper"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithSilenceThreshold sets the RMS level under which a whole utterance is
// treated as silence and answered with an empty response without contacting
// the server. Zero disables the check.
func WithSilenceThreshold(rms float64) Option {
	return func(p *Provider) {
		p.silenceRMS = rms
	}
}

// WithTimeout sets the HTTP client timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// Provider implements stt.Provider backed by a local whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	silenceRMS float64
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		silenceRMS: defaultRMSThreshold,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// inferenceResponse is the verbose_json shape returned by whisper-server.
type inferenceResponse struct {
	Text     string `json:"text"`
	Segments []struct {
		Text  string `json:"text"`
		Words []struct {
			Word        string   `json:"word"`
			Probability *float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

// Recognize implements stt.Provider.
func (p *Provider) Recognize(ctx context.Context, audio []byte, cfg stt.RecognitionConfig) (*stt.Response, error) {
	if len(audio) == 0 {
		return nil, stt.ErrEmptyAudio
	}
	if p.silenceRMS > 0 && computeRMS(audio) < p.silenceRMS {
		return &stt.Response{}, nil
	}

	sr := cfg.SampleRateHertz
	if sr <= 0 {
		sr = defaultSampleRate
	}
	ch := cfg.AudioChannelCount
	if ch <= 0 {
		ch = 1
	}

	body, contentType, err := p.buildForm(encodeWAV(audio, sr, ch), cfg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", body)
	if err != nil {
		return nil, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, stt.NewUpstreamError(providerName, resp)
	}

	var raw inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return convertResponse(raw), nil
}

// buildForm assembles the multipart body for the /inference endpoint.
func (p *Provider) buildForm(wav []byte, cfg stt.RecognitionConfig) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        whisperLanguage(cfg.LanguageCode),
	}
	model := cfg.Model
	if model == "" {
		model = p.model
	}
	if model != "" {
		fields["model"] = model
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}

// whisperLanguage reduces a BCP-47 tag to the bare language subtag whisper
// accepts ("es-ES" becomes "es").
func whisperLanguage(tag string) string {
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}

func convertResponse(raw inferenceResponse) *stt.Response {
	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return &stt.Response{}
	}
	alt := stt.Alternative{Transcript: text}
	var sum float64
	var scored int
	for _, seg := range raw.Segments {
		for _, w := range seg.Words {
			word := strings.TrimSpace(w.Word)
			if word == "" {
				continue
			}
			wi := stt.WordInfo{Word: word}
			if w.Probability != nil {
				wi.Confidence = *w.Probability
				wi.HasConfidence = true
				sum += *w.Probability
				scored++
			}
			alt.Words = append(alt.Words, wi)
		}
	}
	if scored > 0 {
		alt.Confidence = sum / float64(scored)
	}
	return &stt.Response{Results: []stt.Result{{Alternatives: []stt.Alternative{alt}}}}
}

// ---- helpers ----------------------------------------------------------------

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct inclusion
// in a multipart form upload.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// computeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer. Returns 0 for buffers shorter than one sample.
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
