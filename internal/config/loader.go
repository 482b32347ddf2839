package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"google", "deepgram", "whisper"},
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment references
// in credentials, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	expandSecrets(&cfg.Providers.STT)
	expandSecrets(&cfg.Providers.LLM)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandSecrets(e *ProviderEntry) {
	e.APIKey = os.ExpandEnv(e.APIKey)
	for i := range e.Fallbacks {
		expandSecrets(&e.Fallbacks[i])
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must not be negative"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
	}

	errs = append(errs, validateEntry("stt", "providers.stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("llm", "providers.llm", cfg.Providers.LLM)...)

	p := cfg.Pipeline
	if p.MinAudioBytes < 0 {
		errs = append(errs, fmt.Errorf("pipeline.min_audio_bytes must not be negative"))
	}
	if p.SimilarityThreshold < 0 || p.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.similarity_threshold %.2f is out of range [0, 1]", p.SimilarityThreshold))
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.confidence_threshold %.2f is out of range [0, 1]", p.ConfidenceThreshold))
	}
	if p.HintTimeout < 0 {
		errs = append(errs, fmt.Errorf("pipeline.hint_timeout must not be negative"))
	}
	if p.ContinuationAttempts < 0 {
		errs = append(errs, fmt.Errorf("pipeline.continuation_attempts must not be negative"))
	}
	for name, t := range map[string]*float64{
		"hint_temperature":         p.HintTemperature,
		"continuation_temperature": p.ContinuationTemperature,
	} {
		if t != nil && (*t < 0 || *t > 2) {
			errs = append(errs, fmt.Errorf("pipeline.%s %.2f is out of range [0, 2]", name, *t))
		}
	}

	if cfg.Resilience.MaxFailures < 0 || cfg.Resilience.HalfOpenMax < 0 || cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience values must not be negative"))
	}

	return errors.Join(errs...)
}

func validateEntry(kind, path string, e ProviderEntry) []error {
	var errs []error
	if strings.TrimSpace(e.Name) == "" {
		errs = append(errs, fmt.Errorf("%s.name is required", path))
	} else {
		validateProviderName(kind, e.Name)
	}
	if e.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%s.timeout must not be negative", path))
	}
	for i, fb := range e.Fallbacks {
		errs = append(errs, validateEntry(kind, fmt.Sprintf("%s.fallbacks[%d]", path, i), fb)...)
	}
	return errs
}

// validateProviderName logs a warning if name is not found in the
// [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// OptionString returns the string value of a provider option, or def when it
// is absent or not a string.
func (e ProviderEntry) OptionString(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// OptionFloat returns the numeric value of a provider option, or def when it
// is absent or not a number.
func (e ProviderEntry) OptionFloat(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return def
}
