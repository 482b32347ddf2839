// Package config provides the configuration schema, loader, and provider
// registry for the phrasecoach server.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Defaults applied by [ApplyDefaults] for fields left empty.
const (
	DefaultListenAddr           = ":8080"
	DefaultMaxBodyBytes         = 10 << 20
	DefaultReadTimeout          = 30 * time.Second
	DefaultWriteTimeout         = 60 * time.Second
	DefaultShutdownTimeout      = 15 * time.Second
	DefaultLanguage             = "es-ES"
	DefaultTargetLanguage       = "Spanish"
	DefaultNativeLanguage       = "English"
	DefaultMinAudioBytes        = 1024
	DefaultSimilarityThreshold  = 0.70
	DefaultConfidenceThreshold  = 0.70
	DefaultHintTimeout          = 8 * time.Second
	DefaultContinuationAttempts = 1
	DefaultServiceName          = "phrasecoach"
)

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// MaxBodyBytes caps the size of a request body. The audio travels base64
	// encoded inside it.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the recognition and language-model backends.
type ProvidersConfig struct {
	STT ProviderEntry `yaml:"stt"`
	LLM ProviderEntry `yaml:"llm"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "google", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// ${VAR} references are expanded from the environment at load time.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini", "nova-3").
	Model string `yaml:"model"`

	// Timeout bounds a single HTTP call to the provider. Zero leaves the
	// provider's own default in place.
	Timeout time.Duration `yaml:"timeout"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// breaker is open. Nested fallbacks are ignored.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// PipelineConfig tunes turn evaluation.
type PipelineConfig struct {
	// Language is the BCP-47 code sent to the recognizer (e.g., "es-ES").
	Language string `yaml:"language"`

	// TargetLanguage names the language being learned in model prompts.
	TargetLanguage string `yaml:"target_language"`

	// NativeLanguage names the learner's language. Pronunciation guides use
	// its phonetic intuition and translations are written in it.
	NativeLanguage string `yaml:"native_language"`

	// MinAudioBytes rejects shorter recordings before any external call.
	MinAudioBytes int `yaml:"min_audio_bytes"`

	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// HintTimeout bounds each pronunciation hint call.
	HintTimeout time.Duration `yaml:"hint_timeout"`

	// ContinuationAttempts is how often dialogue generation is tried when the
	// model output fails validation. 1 means no retry.
	ContinuationAttempts int `yaml:"continuation_attempts"`

	// HintTemperature and ContinuationTemperature override the sampling
	// temperatures. Nil keeps the built-in defaults.
	HintTemperature         *float64 `yaml:"hint_temperature"`
	ContinuationTemperature *float64 `yaml:"continuation_temperature"`
}

// ResilienceConfig configures the circuit breaker guarding every provider.
// Zero values fall back to the breaker's own defaults.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// TelemetryConfig names the service in exported metrics and traces.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

// ApplyDefaults fills every empty field of cfg with its default value.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	p := &cfg.Pipeline
	if p.Language == "" {
		p.Language = DefaultLanguage
	}
	if p.TargetLanguage == "" {
		p.TargetLanguage = DefaultTargetLanguage
	}
	if p.NativeLanguage == "" {
		p.NativeLanguage = DefaultNativeLanguage
	}
	if p.MinAudioBytes == 0 {
		p.MinAudioBytes = DefaultMinAudioBytes
	}
	if p.SimilarityThreshold == 0 {
		p.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if p.ConfidenceThreshold == 0 {
		p.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if p.HintTimeout == 0 {
		p.HintTimeout = DefaultHintTimeout
	}
	if p.ContinuationAttempts == 0 {
		p.ContinuationAttempts = DefaultContinuationAttempts
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = DefaultServiceName
	}
}
