// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to verify the RecognitionConfig the transcriber sends and to
// feed controlled recognition results without a live ASR backend.
//
// Example:
//
//	p := &mock.Provider{Response: mock.Transcript("hola como estas", 0.95)}
//	resp, _ := p.Recognize(ctx, audio, cfg)
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/MrWong99/phrasecoach/pkg/provider/stt"
)

// RecognizeCall records a single invocation of Provider.Recognize.
type RecognizeCall struct {
	// Ctx is the context passed to Recognize.
	Ctx context.Context
	// Audio is the payload passed to Recognize.
	Audio []byte
	// Cfg is the RecognitionConfig passed to Recognize.
	Cfg stt.RecognitionConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Recognize. May be nil.
	Response *stt.Response

	// Err, if non-nil, is returned as the error from Recognize.
	Err error

	// RecognizeCalls records every call to Recognize.
	RecognizeCalls []RecognizeCall
}

// Recognize records the call and returns Response, Err.
func (p *Provider) Recognize(ctx context.Context, audio []byte, cfg stt.RecognitionConfig) (*stt.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RecognizeCalls = append(p.RecognizeCalls, RecognizeCall{Ctx: ctx, Audio: audio, Cfg: cfg})
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Response, nil
}

// CallCount returns the number of Recognize invocations so far. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.RecognizeCalls)
}

// Transcript builds a single-result response for text, giving every
// whitespace-separated word the same confidence.
func Transcript(text string, confidence float64) *stt.Response {
	fields := strings.Fields(text)
	words := make([]stt.WordInfo, 0, len(fields))
	for _, f := range fields {
		words = append(words, stt.WordInfo{Word: f, Confidence: confidence, HasConfidence: true})
	}
	return &stt.Response{Results: []stt.Result{{
		Alternatives: []stt.Alternative{{Transcript: text, Confidence: confidence, Words: words}},
	}}}
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
