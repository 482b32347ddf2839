package main

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/MrWong99/phrasecoach/internal/config"
	"github.com/MrWong99/phrasecoach/internal/resilience"
	"github.com/MrWong99/phrasecoach/pkg/provider/llm"
	llmmock "github.com/MrWong99/phrasecoach/pkg/provider/llm/mock"
)

func testConfig() *config.Config {
	cfg := &config.Config{
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{
				Name:   "google",
				APIKey: "key",
				Fallbacks: []config.ProviderEntry{
					{Name: "whisper", BaseURL: "http://localhost:8081", Options: map[string]any{"silence_threshold": 250}},
				},
			},
			LLM: config.ProviderEntry{
				Name:    "openai",
				APIKey:  "sk-test",
				Model:   "gpt-4o-mini",
				Timeout: 10 * time.Second,
				Fallbacks: []config.ProviderEntry{
					{Name: "ollama", Model: "llama3.1", BaseURL: "http://localhost:11434"},
				},
			},
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	want := map[string][]string{
		"stt": {"google", "deepgram", "whisper"},
		"llm": {"openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "ollama", "llamacpp", "llamafile"},
	}
	for kind, names := range want {
		got := make(map[string]bool)
		for _, n := range reg.Names(kind) {
			got[n] = true
		}
		for _, n := range names {
			if !got[n] {
				t.Errorf("%s provider %q not registered", kind, n)
			}
		}
	}
}

func TestBuildProviders_WrapsInFallbackGroups(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	ps, err := buildProviders(testConfig(), reg, nil)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if _, ok := ps.STT.(*resilience.STTFallback); !ok {
		t.Errorf("STT = %T, want *resilience.STTFallback", ps.STT)
	}
	if _, ok := ps.LLM.(*resilience.LLMFallback); !ok {
		t.Errorf("LLM = %T, want *resilience.LLMFallback", ps.LLM)
	}
	if len(ps.Checks) != 2 {
		t.Fatalf("got %d checks, want 2", len(ps.Checks))
	}
	for _, c := range ps.Checks {
		if err := c.Check(context.Background()); err != nil {
			t.Errorf("check %s on fresh providers: %v", c.Name, err)
		}
	}
}

func TestBuildProviders_UnknownFallback(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := testConfig()
	cfg.Providers.LLM.Fallbacks = []config.ProviderEntry{{Name: "nope", Model: "m"}}

	_, err := buildProviders(cfg, reg, nil)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestBuildProviders_FactoryErrorIsReturned(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := testConfig()
	cfg.Providers.LLM.Model = ""

	if _, err := buildProviders(cfg, reg, nil); err == nil {
		t.Fatal("expected error for openai without a model")
	}
}

func TestWithDeadline(t *testing.T) {
	t.Parallel()

	var hadDeadline bool
	mock := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			_, hadDeadline = ctx.Deadline()
			return &llm.CompletionResponse{Content: "ok"}, nil
		},
	}

	if p := withDeadline(mock, 0); p != llm.Provider(mock) {
		t.Error("zero timeout should return the provider unchanged")
	}

	p := withDeadline(mock, time.Second)
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !hadDeadline {
		t.Error("backend saw no deadline")
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := slogLevel(tt.in); got != tt.want {
			t.Errorf("slogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
