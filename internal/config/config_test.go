package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/phrasecoach/internal/config"
	"github.com/MrWong99/phrasecoach/pkg/provider/llm"
	llmmock "github.com/MrWong99/phrasecoach/pkg/provider/llm/mock"
	"github.com/MrWong99/phrasecoach/pkg/provider/stt"
	sttmock "github.com/MrWong99/phrasecoach/pkg/provider/stt/mock"
)

const sampleYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  max_body_bytes: 2097152
  read_timeout: 10s

providers:
  stt:
    name: google
    api_key: g-test
    timeout: 20s
    fallbacks:
      - name: deepgram
        api_key: dg-test
        model: nova-3
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
    options:
      organization: org-123

pipeline:
  language: es-MX
  native_language: German
  min_audio_bytes: 2048
  confidence_threshold: 0.8
  hint_timeout: 3s
  continuation_attempts: 2
  hint_temperature: 0

resilience:
  max_failures: 4
  reset_timeout: 45s

telemetry:
  service_version: 1.0.0
`

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxBodyBytes != 2<<20 {
		t.Errorf("max_body_bytes = %d", cfg.Server.MaxBodyBytes)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read_timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Providers.STT.Timeout != 20*time.Second {
		t.Errorf("stt timeout = %v", cfg.Providers.STT.Timeout)
	}
	if len(cfg.Providers.STT.Fallbacks) != 1 || cfg.Providers.STT.Fallbacks[0].Name != "deepgram" {
		t.Errorf("stt fallbacks = %+v", cfg.Providers.STT.Fallbacks)
	}
	if got := cfg.Providers.LLM.OptionString("organization", ""); got != "org-123" {
		t.Errorf("organization option = %q", got)
	}
	p := cfg.Pipeline
	if p.Language != "es-MX" || p.NativeLanguage != "German" {
		t.Errorf("languages = %q/%q", p.Language, p.NativeLanguage)
	}
	if p.MinAudioBytes != 2048 || p.ConfidenceThreshold != 0.8 || p.HintTimeout != 3*time.Second {
		t.Errorf("pipeline = %+v", p)
	}
	if p.ContinuationAttempts != 2 {
		t.Errorf("continuation_attempts = %d", p.ContinuationAttempts)
	}
	if p.HintTemperature == nil || *p.HintTemperature != 0 {
		t.Errorf("hint_temperature = %v, want explicit 0", p.HintTemperature)
	}
	if p.ContinuationTemperature != nil {
		t.Errorf("continuation_temperature = %v, want nil", *p.ContinuationTemperature)
	}
	if cfg.Resilience.MaxFailures != 4 || cfg.Resilience.ResetTimeout != 45*time.Second {
		t.Errorf("resilience = %+v", cfg.Resilience)
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  stt: {name: google}
  llm: {name: openai}
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxBodyBytes != config.DefaultMaxBodyBytes {
		t.Errorf("max_body_bytes = %d", cfg.Server.MaxBodyBytes)
	}
	p := cfg.Pipeline
	if p.Language != "es-ES" || p.TargetLanguage != "Spanish" || p.NativeLanguage != "English" {
		t.Errorf("languages = %+v", p)
	}
	if p.MinAudioBytes != 1024 {
		t.Errorf("min_audio_bytes = %d, want 1024", p.MinAudioBytes)
	}
	if p.SimilarityThreshold != 0.70 || p.ConfidenceThreshold != 0.70 {
		t.Errorf("thresholds = %v/%v, want 0.70", p.SimilarityThreshold, p.ConfidenceThreshold)
	}
	if p.HintTimeout != 8*time.Second {
		t.Errorf("hint_timeout = %v, want 8s", p.HintTimeout)
	}
	if p.ContinuationAttempts != 1 {
		t.Errorf("continuation_attempts = %d, want 1", p.ContinuationAttempts)
	}
	if cfg.Telemetry.ServiceName != "phrasecoach" {
		t.Errorf("service_name = %q", cfg.Telemetry.ServiceName)
	}
}

func TestProviderEntry_Options(t *testing.T) {
	t.Parallel()
	e := config.ProviderEntry{Options: map[string]any{
		"endpoint":          "http://localhost:1234",
		"silence_threshold": 250,
		"channels":          float64(2),
		"wrong":             true,
	}}
	if got := e.OptionString("endpoint", "x"); got != "http://localhost:1234" {
		t.Errorf("OptionString = %q", got)
	}
	if got := e.OptionString("missing", "x"); got != "x" {
		t.Errorf("OptionString default = %q", got)
	}
	if got := e.OptionFloat("channels", 0); got != 2 {
		t.Errorf("OptionFloat = %v", got)
	}
	if got := e.OptionFloat("wrong", 7); got != 7 {
		t.Errorf("OptionFloat wrong type = %v", got)
	}
	if got := e.OptionFloat("silence_threshold", 0); got != 250 {
		t.Errorf("OptionFloat int = %v", got)
	}
	if got := e.OptionFloat("missing", 0.5); got != 0.5 {
		t.Errorf("OptionFloat default = %v", got)
	}
}

func TestRegistry_CreateRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	var gotEntry config.ProviderEntry
	reg.RegisterSTT("google", func(e config.ProviderEntry) (stt.Provider, error) {
		gotEntry = e
		return &sttmock.Provider{}, nil
	})
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "google", APIKey: "k"}); err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if gotEntry.APIKey != "k" {
		t.Errorf("factory got APIKey %q", gotEntry.APIKey)
	}
	p, err := reg.CreateLLM(config.ProviderEntry{Name: "openai"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err != nil {
		t.Errorf("Complete on mock: %v", err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v", err)
	}
}

func TestRegistry_FactoryErrorPropagates(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("missing api key")
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSTT("whisper", func(config.ProviderEntry) (stt.Provider, error) { return nil, nil })
	reg.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) { return nil, nil })
	got := reg.Names("stt")
	if len(got) != 2 || got[0] != "deepgram" || got[1] != "whisper" {
		t.Errorf("Names(stt) = %v", got)
	}
	if got := reg.Names("llm"); len(got) != 0 {
		t.Errorf("Names(llm) = %v", got)
	}
}
