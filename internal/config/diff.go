package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// server changes need a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PipelineChanged is true if any pipeline tuning value changed.
	PipelineChanged bool
	Pipeline        PipelineConfig

	// RestartRequired lists top-level sections that changed but are not
	// applied until the process restarts.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !pipelineEqual(old.Pipeline, new.Pipeline) {
		d.PipelineChanged = true
		d.Pipeline = new.Pipeline
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Resilience != new.Resilience {
		d.RestartRequired = append(d.RestartRequired, "resilience")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func pipelineEqual(a, b PipelineConfig) bool {
	if !floatPtrEqual(a.HintTemperature, b.HintTemperature) ||
		!floatPtrEqual(a.ContinuationTemperature, b.ContinuationTemperature) {
		return false
	}
	a.HintTemperature, a.ContinuationTemperature = nil, nil
	b.HintTemperature, b.ContinuationTemperature = nil, nil
	return a == b
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
