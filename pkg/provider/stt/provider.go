// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch recognition service (e.g., Google Cloud
// Speech-to-Text, Deepgram pre-recorded, or a local whisper.cpp server) and
// exposes a single synchronous call: one recorded utterance in, a list of
// recognition results out. Audio is forwarded exactly as received; providers
// never transcode.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"fmt"
)

// Encoding names the audio encoding of the payload handed to Recognize.
type Encoding string

const (
	// EncodingLinear16 is uncompressed 16-bit signed little-endian PCM.
	EncodingLinear16 Encoding = "LINEAR16"
)

// RecognitionMetadata carries hints describing the recording context. They
// only influence upstream model selection.
type RecognitionMetadata struct {
	// InteractionType describes the use case, e.g. "VOICE_COMMAND".
	InteractionType string

	// MicrophoneDistance is "NEARFIELD", "MIDFIELD" or "FARFIELD".
	MicrophoneDistance string

	// RecordingDeviceType is e.g. "SMARTPHONE" for handheld devices.
	RecordingDeviceType string

	// OriginalMediaType is "AUDIO" or "VIDEO".
	OriginalMediaType string
}

// RecognitionConfig is the explicit, enumerated recognition configuration
// sent with every request.
type RecognitionConfig struct {
	// Encoding of the audio payload.
	Encoding Encoding

	// SampleRateHertz is the sample rate of the audio payload, e.g. 16000.
	SampleRateHertz int

	// LanguageCode is the BCP-47 tag of the language being learned, e.g. "es-ES".
	LanguageCode string

	// AudioChannelCount is the number of channels in the payload. 1 = mono.
	AudioChannelCount int

	// EnableAutomaticPunctuation asks the service to punctuate the transcript.
	EnableAutomaticPunctuation bool

	// EnableWordConfidence asks the service for per-word confidence scores.
	EnableWordConfidence bool

	// UseEnhanced selects the provider's higher-accuracy model tier.
	UseEnhanced bool

	// Model optionally names a provider-specific model.
	Model string

	// Metadata describes the recording context.
	Metadata RecognitionMetadata
}

// WordInfo holds per-word recognition output.
type WordInfo struct {
	Word string

	// Confidence is in [0,1]. Only meaningful when HasConfidence is true.
	Confidence float64

	// HasConfidence is false when the provider omitted a score for this word.
	HasConfidence bool
}

// Alternative is one recognition hypothesis for a span of audio.
type Alternative struct {
	Transcript string

	// Confidence is the hypothesis-level score in [0,1], zero when unknown.
	Confidence float64

	Words []WordInfo
}

// Result is one consecutive span of recognised audio. Alternatives are ordered
// by decreasing likelihood.
type Result struct {
	Alternatives []Alternative
}

// Response is the full recognition output for one utterance.
type Response struct {
	Results []Result
}

// ErrEmptyAudio is returned when Recognize is called without audio.
var ErrEmptyAudio = errors.New("stt: empty audio payload")

// UpstreamError reports a non-success HTTP status from the recognition
// service. It is never retried by the provider.
type UpstreamError struct {
	// Provider is the short provider name, e.g. "google".
	Provider string

	// StatusCode is the HTTP status returned by the service.
	StatusCode int

	// Body is the (possibly truncated) response body, kept for diagnostics.
	Body string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: recognition service returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Recognize sends one recorded utterance to the service and returns its
	// recognition results. A response with zero results is not an error at
	// this layer.
	//
	// Returns *UpstreamError for non-success statuses from the service.
	Recognize(ctx context.Context, audio []byte, cfg RecognitionConfig) (*Response, error)
}
