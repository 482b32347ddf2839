package resilience

import (
	"context"

	"github.com/MrWong99/phrasecoach/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	if cfg.Kind == "" {
		cfg.Kind = "llm"
	}
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities returns the tightest known limits across all backends, since
// any of them may end up serving a request. Unknown (zero) limits are skipped.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	var caps llm.ModelCapabilities
	for i := range f.group.entries {
		c := f.group.entries[i].value.Capabilities()
		caps.ContextWindow = tighter(caps.ContextWindow, c.ContextWindow)
		caps.MaxOutputTokens = tighter(caps.MaxOutputTokens, c.MaxOutputTokens)
	}
	return caps
}

func tighter(cur, next int) int {
	if next > 0 && (cur == 0 || next < cur) {
		return next
	}
	return cur
}

// Check reports whether any backend can currently be reached.
func (f *LLMFallback) Check(ctx context.Context) error {
	return f.group.Check(ctx)
}
