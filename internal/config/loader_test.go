package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/phrasecoach/internal/config"
)

func TestValidate_ProvidersRequired(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`server: {log_level: info}`))
	if err == nil {
		t.Fatal("expected error without providers")
	}
	for _, want := range []string{"providers.stt.name is required", "providers.llm.name is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should contain %q, got: %v", want, err)
		}
	}
}

func TestValidate_EmptyDocument(t *testing.T) {
	t.Parallel()
	if _, err := config.LoadFromReader(strings.NewReader("")); err == nil {
		t.Fatal("expected validation error for empty document")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
providers:
  stt:
    name: google
    fallbacks:
      - name: ""
  llm:
    name: openai
    timeout: -1s
pipeline:
  similarity_threshold: 1.5
  confidence_threshold: -0.2
  continuation_attempts: -1
  continuation_temperature: 3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		`server.log_level "loud" is invalid`,
		"providers.stt.fallbacks[0].name is required",
		"providers.llm.timeout must not be negative",
		"pipeline.similarity_threshold 1.50 is out of range",
		"pipeline.confidence_threshold -0.20 is out of range",
		"pipeline.continuation_attempts must not be negative",
		"pipeline.continuation_temperature 3.00 is out of range",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should contain %q, got: %v", want, err)
		}
	}
}

func TestValidate_TLSNeedsBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls: {cert_file: /tmp/cert.pem}
providers:
  stt: {name: google}
  llm: {name: openai}
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "server.tls") {
		t.Fatalf("err = %v, want server.tls error", err)
	}
}

func TestValidate_UnknownProviderWarnsOnly(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt: {name: my-custom-asr}
  llm: {name: openai}
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names should not fail validation: %v", err)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt: {name: google}
  llm: {name: openai}
pipeline:
  confidance_threshold: 0.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for misspelled field")
	}
	if !strings.Contains(err.Error(), "confidance_threshold") {
		t.Errorf("error should name the unknown field, got: %v", err)
	}
}

func TestLoadFromReader_ExpandsAPIKeys(t *testing.T) {
	t.Setenv("PHRASECOACH_TEST_STT_KEY", "from-env")
	t.Setenv("PHRASECOACH_TEST_FALLBACK_KEY", "fallback-env")
	yaml := `
providers:
  stt:
    name: google
    api_key: ${PHRASECOACH_TEST_STT_KEY}
    fallbacks:
      - name: deepgram
        api_key: $PHRASECOACH_TEST_FALLBACK_KEY
  llm:
    name: openai
    api_key: literal-key
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.STT.APIKey != "from-env" {
		t.Errorf("stt api_key = %q", cfg.Providers.STT.APIKey)
	}
	if cfg.Providers.STT.Fallbacks[0].APIKey != "fallback-env" {
		t.Errorf("fallback api_key = %q", cfg.Providers.STT.Fallbacks[0].APIKey)
	}
	if cfg.Providers.LLM.APIKey != "literal-key" {
		t.Errorf("llm api_key = %q", cfg.Providers.LLM.APIKey)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "phrasecoach.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.STT.Name != "google" {
		t.Errorf("stt name = %q", cfg.Providers.STT.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: open") {
		t.Errorf("err = %v", err)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Providers.STT.Name != "google" || cfg.Providers.LLM.Name != "openai" {
		t.Errorf("providers = %s/%s", cfg.Providers.STT.Name, cfg.Providers.LLM.Name)
	}
	if len(cfg.Providers.STT.Fallbacks) != 1 || len(cfg.Providers.LLM.Fallbacks) != 1 {
		t.Errorf("fallbacks not loaded: %+v", cfg.Providers)
	}
	if cfg.Pipeline.HintTemperature == nil || *cfg.Pipeline.HintTemperature != 0.3 {
		t.Errorf("hint_temperature = %v", cfg.Pipeline.HintTemperature)
	}
	if cfg.Pipeline.ContinuationAttempts != 2 {
		t.Errorf("continuation_attempts = %d, want 2", cfg.Pipeline.ContinuationAttempts)
	}
}
