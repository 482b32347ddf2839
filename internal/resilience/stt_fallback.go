package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/phrasecoach/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
// An empty audio payload is the caller's fault and never trips a breaker.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = func(err error) bool {
			return defaultIsFailure(err) && !errors.Is(err, stt.ErrEmptyAudio)
		}
	}
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Recognize sends the utterance to the first healthy provider. If the primary
// fails, subsequent fallbacks are tried with the same audio and config.
func (f *STTFallback) Recognize(ctx context.Context, audio []byte, cfg stt.RecognitionConfig) (*stt.Response, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (*stt.Response, error) {
		return p.Recognize(ctx, audio, cfg)
	})
}

// Check reports whether any backend can currently be reached.
func (f *STTFallback) Check(ctx context.Context) error {
	return f.group.Check(ctx)
}
