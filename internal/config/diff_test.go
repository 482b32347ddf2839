package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/phrasecoach/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo, ListenAddr: ":8080"},
		Providers: config.ProvidersConfig{
			STT: config.ProviderEntry{Name: "google", Options: map[string]any{"x": 1}},
			LLM: config.ProviderEntry{Name: "openai"},
		},
		Pipeline: config.PipelineConfig{ConfidenceThreshold: 0.7, HintTimeout: 8 * time.Second},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.LogLevelChanged || d.PipelineChanged || len(d.RestartRequired) != 0 {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level alone must not require a restart, got %v", d.RestartRequired)
	}
}

func TestDiff_PipelineChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Pipeline.ConfidenceThreshold = 0.8

	d := config.Diff(old, new)
	if !d.PipelineChanged {
		t.Fatal("expected PipelineChanged=true")
	}
	if d.Pipeline.ConfidenceThreshold != 0.8 {
		t.Errorf("Pipeline = %+v", d.Pipeline)
	}
}

func TestDiff_TemperaturePointersComparedByValue(t *testing.T) {
	t.Parallel()
	a, b := 0.3, 0.3
	old, new := baseConfig(), baseConfig()
	old.Pipeline.HintTemperature = &a
	new.Pipeline.HintTemperature = &b
	if d := config.Diff(old, new); d.PipelineChanged {
		t.Error("equal temperatures behind different pointers should not count as a change")
	}

	c := 0.9
	new.Pipeline.HintTemperature = &c
	if d := config.Diff(old, new); !d.PipelineChanged {
		t.Error("expected PipelineChanged for a new temperature")
	}

	new.Pipeline.HintTemperature = nil
	if d := config.Diff(old, new); !d.PipelineChanged {
		t.Error("expected PipelineChanged when a temperature is removed")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.ListenAddr = ":9090"
	new.Providers.STT.Options = map[string]any{"x": 2}
	new.Resilience.MaxFailures = 9

	d := config.Diff(old, new)
	for _, want := range []string{"server", "providers", "resilience"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, want)
		}
	}
	if slices.Contains(d.RestartRequired, "telemetry") {
		t.Errorf("telemetry did not change: %v", d.RestartRequired)
	}
}
