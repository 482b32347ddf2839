package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/phrasecoach/internal/app"
	"github.com/MrWong99/phrasecoach/internal/config"
	"github.com/MrWong99/phrasecoach/internal/health"
	"github.com/MrWong99/phrasecoach/internal/observe"
	"github.com/MrWong99/phrasecoach/internal/resilience"
	"github.com/MrWong99/phrasecoach/pkg/provider/llm"
	"github.com/MrWong99/phrasecoach/pkg/provider/llm/anyllm"
	"github.com/MrWong99/phrasecoach/pkg/provider/llm/openai"
	"github.com/MrWong99/phrasecoach/pkg/provider/stt"
	"github.com/MrWong99/phrasecoach/pkg/provider/stt/deepgram"
	"github.com/MrWong99/phrasecoach/pkg/provider/stt/google"
	"github.com/MrWong99/phrasecoach/pkg/provider/stt/whisper"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptionString("organization", ""); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		if entry.Timeout > 0 {
			opts = append(opts, openai.WithTimeout(entry.Timeout))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining backends share the same pattern: optional APIKey +
	// optional BaseURL. ollama, llamacpp and llamafile are local servers and
	// usually only need the address.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq",
		"ollama", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return withDeadline(p, entry.Timeout), nil
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("google", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []google.Option
		if entry.BaseURL != "" {
			opts = append(opts, google.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, google.WithTimeout(entry.Timeout))
		}
		return google.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if endpoint := entry.OptionString("endpoint", entry.BaseURL); endpoint != "" {
			opts = append(opts, deepgram.WithEndpoint(endpoint))
		}
		if entry.Timeout > 0 {
			opts = append(opts, deepgram.WithTimeout(entry.Timeout))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if rms := entry.OptionFloat("silence_threshold", 0); rms > 0 {
			opts = append(opts, whisper.WithSilenceThreshold(rms))
		}
		if entry.Timeout > 0 {
			opts = append(opts, whisper.WithTimeout(entry.Timeout))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	for _, kind := range []string{"stt", "llm"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry.
// Every slot is wrapped in a fallback group so each backend gets its own
// circuit breaker and the configured fallbacks are tried in order.
func buildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*app.Providers, error) {
	breaker := resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Resilience.MaxFailures,
		ResetTimeout: cfg.Resilience.ResetTimeout,
		HalfOpenMax:  cfg.Resilience.HalfOpenMax,
	}

	primarySTT, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	sttGroup := resilience.NewSTTFallback(primarySTT, cfg.Providers.STT.Name, resilience.FallbackConfig{
		CircuitBreaker: breaker,
		Metrics:        m,
	})
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)
	for _, fb := range cfg.Providers.STT.Fallbacks {
		p, err := reg.CreateSTT(fb)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
		}
		sttGroup.AddFallback(fb.Name, p)
		slog.Info("provider created", "kind", "stt", "name", fb.Name, "fallback", true)
	}

	primaryLLM, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	llmGroup := resilience.NewLLMFallback(primaryLLM, cfg.Providers.LLM.Name, resilience.FallbackConfig{
		CircuitBreaker: breaker,
		Metrics:        m,
	})
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)
	for _, fb := range cfg.Providers.LLM.Fallbacks {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
		}
		llmGroup.AddFallback(fb.Name, p)
		slog.Info("provider created", "kind", "llm", "name", fb.Name, "fallback", true)
	}

	return &app.Providers{
		STT: sttGroup,
		LLM: llmGroup,
		Checks: []health.Checker{
			{Name: "stt", Check: sttGroup.Check},
			{Name: "llm", Check: llmGroup.Check},
		},
	}, nil
}

// deadlineProvider bounds every completion of a backend whose client has no
// timeout setting of its own.
type deadlineProvider struct {
	llm.Provider
	timeout time.Duration
}

func withDeadline(p llm.Provider, timeout time.Duration) llm.Provider {
	if timeout <= 0 {
		return p
	}
	return &deadlineProvider{Provider: p, timeout: timeout}
}

func (d *deadlineProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.Provider.Complete(ctx, req)
}
