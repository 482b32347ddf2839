// Package transcribe hands a recorded utterance to a speech recognition
// service and normalizes its answer into a single transcript with per-word
// confidences.
//
// Audio is forwarded untouched; format handling is left to the service.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/phrasecoach/pkg/provider/stt"
)

// ErrNoSpeech is returned when the service recognised nothing.
var ErrNoSpeech = errors.New("transcribe: no speech detected")

const (
	defaultLanguage   = "es-ES"
	defaultSampleRate = 16000
)

// WordConfidence is one recognised word and the service's confidence in it.
type WordConfidence struct {
	Word       string
	Confidence float64
}

// Result is a normalized transcription. Words is empty only if Transcript is.
type Result struct {
	Transcript string
	Words      []WordConfidence
}

// Option is a functional option for configuring a [Transcriber].
type Option func(*Transcriber)

// WithLanguage sets the BCP-47 language code of the learner's target
// language. Default: es-ES.
func WithLanguage(code string) Option {
	return func(t *Transcriber) {
		if code != "" {
			t.language = code
		}
	}
}

// WithModel forwards a provider-specific model name.
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// Transcriber wraps an [stt.Provider]. It is safe for concurrent use.
type Transcriber struct {
	provider stt.Provider
	language string
	model    string
}

// New returns a [Transcriber] backed by provider.
func New(provider stt.Provider, opts ...Option) *Transcriber {
	t := &Transcriber{provider: provider, language: defaultLanguage}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Config returns the recognition configuration sent with every request.
func (t *Transcriber) Config() stt.RecognitionConfig {
	return stt.RecognitionConfig{
		Encoding:                   stt.EncodingLinear16,
		SampleRateHertz:            defaultSampleRate,
		LanguageCode:               t.language,
		AudioChannelCount:          1,
		EnableAutomaticPunctuation: true,
		EnableWordConfidence:       true,
		UseEnhanced:                true,
		Model:                      t.model,
		Metadata: stt.RecognitionMetadata{
			InteractionType:     "VOICE_COMMAND",
			MicrophoneDistance:  "NEARFIELD",
			RecordingDeviceType: "SMARTPHONE",
			OriginalMediaType:   "AUDIO",
		},
	}
}

// Transcribe recognises audio. It returns ErrNoSpeech when the service finds
// nothing, and the provider's error (typically *stt.UpstreamError) wrapped
// when the call fails.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte) (*Result, error) {
	resp, err := t.provider.Recognize(ctx, audio, t.Config())
	if err != nil {
		return nil, fmt.Errorf("transcribe: recognize: %w", err)
	}
	res := Normalize(resp)
	if res.Transcript == "" {
		return nil, ErrNoSpeech
	}
	return res, nil
}

// Normalize flattens a recognition response. The first alternative of every
// result is used; transcripts are joined with single spaces and word lists
// concatenated. Word confidences are clamped to [0,1]; a word without one
// inherits its alternative's confidence, or 1.0 when that is unknown too.
// Results without word detail contribute their transcript tokens as words.
func Normalize(resp *stt.Response) *Result {
	out := &Result{}
	if resp == nil {
		return out
	}
	var parts []string
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		text := strings.TrimSpace(alt.Transcript)
		if text == "" {
			continue
		}
		parts = append(parts, text)

		fallback := 1.0
		if alt.Confidence > 0 {
			fallback = clamp(alt.Confidence)
		}
		if len(alt.Words) == 0 {
			for _, w := range strings.Fields(text) {
				out.Words = append(out.Words, WordConfidence{Word: w, Confidence: fallback})
			}
			continue
		}
		for _, w := range alt.Words {
			c := fallback
			if w.HasConfidence {
				c = clamp(w.Confidence)
			}
			out.Words = append(out.Words, WordConfidence{Word: w.Word, Confidence: c})
		}
	}
	out.Transcript = strings.Join(parts, " ")
	return out
}

func clamp(c float64) float64 {
	return min(max(c, 0), 1)
}
