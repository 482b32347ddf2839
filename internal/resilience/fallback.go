package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/phrasecoach/internal/observe"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker. The last provider error is wrapped alongside it, so
// errors.As still reaches typed provider errors.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the per-entry circuit breaker created for each
// provider in a [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// Kind labels provider metrics, e.g. "stt" or "llm".
	Kind string

	// Metrics, when set, receives a request count per attempt, an error
	// count per failed attempt and every breaker state change.
	Metrics *observe.Metrics
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the same
// provider type. When the primary fails (or its circuit breaker is open), the
// next healthy fallback is tried in registration order.
//
// Entries must be registered before the group is shared between goroutines;
// after that FallbackGroup is safe for concurrent use.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
// Additional fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order they
// are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	if m := fg.cfg.Metrics; m != nil {
		kind, next := fg.cfg.Kind, cbCfg.OnStateChange
		cbCfg.OnStateChange = func(name string, from, to State) {
			m.RecordBreakerTransition(context.Background(), name, kind, to.String())
			if next != nil {
				next(name, from, to)
			}
		}
	}
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// ExecuteWithResult tries fn against each entry in the group until one succeeds,
// returning both the result value and error. This is a package-level function
// because Go does not support method-level type parameters.
//
// Failover stops as soon as ctx is done; the context error is then returned
// as is. An attempt cut short by ctx is not held against the entry's breaker.
func ExecuteWithResult[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	log := observe.Logger(ctx)
	for i := range fg.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(ctx, func(context.Context) error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		fg.record(ctx, entry.name, err)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			log.Debug("skipping provider (circuit open)", "provider", entry.name, "kind", fg.cfg.Kind)
		} else if i < len(fg.entries)-1 {
			log.Warn("provider failed, trying next",
				"provider", entry.name, "kind", fg.cfg.Kind, "error", err)
		}
	}
	if err := ctx.Err(); err != nil && errors.Is(lastErr, err) {
		return zero, lastErr
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

func (fg *FallbackGroup[T]) record(ctx context.Context, name string, err error) {
	m := fg.cfg.Metrics
	if m == nil {
		return
	}
	switch {
	case err == nil:
		m.RecordProviderRequest(ctx, name, fg.cfg.Kind, "ok")
	case errors.Is(err, ErrCircuitOpen):
		m.RecordProviderRequest(ctx, name, fg.cfg.Kind, "circuit_open")
	default:
		m.RecordProviderRequest(ctx, name, fg.cfg.Kind, "error")
		m.RecordProviderError(ctx, name, fg.cfg.Kind)
	}
}

// Check reports an error when every entry's circuit breaker is open, i.e. when
// the next call would be rejected without reaching any provider. It is meant
// for readiness checks.
func (fg *FallbackGroup[T]) Check(context.Context) error {
	var open []string
	for i := range fg.entries {
		if fg.entries[i].breaker.State() != StateOpen {
			return nil
		}
		open = append(open, fg.entries[i].name)
	}
	return fmt.Errorf("%s: circuit open for %s", fg.cfg.Kind, strings.Join(open, ", "))
}
