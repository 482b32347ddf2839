// Package resilience provides circuit breaker and provider failover primitives.
//
// A [CircuitBreaker] guards one backend. It only counts failures the backend
// is responsible for: when the caller's own context ends first (a hint hitting
// its per-word deadline, a client hanging up) the call is ignored, so one slow
// turn cannot lock every later turn out of a healthy provider.
//
// [FallbackGroup] puts a breaker in front of each configured backend and tries
// them in order.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker
// rejects a call without running it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// has passed since the last counted failure.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through. Enough
	// successful trials close the breaker; one failed trial re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs and state-change callbacks, usually the
	// provider name.
	Name string

	// MaxFailures is the number of consecutive counted failures in the closed
	// state before the breaker opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is both the number of concurrent trials admitted while
	// half-open and the number of successes needed to close. Default: 3.
	HalfOpenMax int

	// IsFailure decides whether a backend error counts against the breaker.
	// It is only consulted while the caller's context is still live. Default:
	// every error except context.Canceled.
	IsFailure func(error) bool

	// OnStateChange, when set, is called after every transition. It runs
	// with the breaker's lock released.
	OnStateChange func(name string, from, to State)

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// verdict is how a finished call is booked.
type verdict int

const (
	verdictSuccess verdict = iota
	verdictFailure
	verdictIgnored
)

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	failures int       // consecutive counted failures while closed
	openedAt time.Time // last time the breaker (re-)opened
	trials   int       // trials in flight while half-open
	passed   int       // successful trials since entering half-open
	epoch    uint64    // bumped on every entry into half-open
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &CircuitBreaker{cfg: cfg}
}

// Execute runs fn if the breaker admits the call and books the result. ctx is
// the caller's context; fn receives it unchanged. An error returned after ctx
// is done is the caller's doing and leaves the breaker untouched.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	epoch, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	cb.settle(epoch, cb.judge(ctx, err))
	return err
}

func (cb *CircuitBreaker) judge(ctx context.Context, err error) verdict {
	switch {
	case err == nil:
		return verdictSuccess
	case ctx.Err() != nil:
		return verdictIgnored
	case cb.cfg.IsFailure(err):
		return verdictFailure
	default:
		return verdictIgnored
	}
}

// admit decides whether a call may run. For a half-open trial it returns the
// epoch the trial belongs to; zero means an ordinary closed-state call.
func (cb *CircuitBreaker) admit() (epoch uint64, err error) {
	cb.mu.Lock()
	var changed func()
	defer func() {
		cb.mu.Unlock()
		if changed != nil {
			changed()
		}
	}()

	if cb.state == StateOpen {
		if cb.cfg.Clock().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return 0, ErrCircuitOpen
		}
		changed = cb.moveTo(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.trials >= cb.cfg.HalfOpenMax {
			return 0, ErrCircuitOpen
		}
		cb.trials++
		return cb.epoch, nil
	}
	return 0, nil
}

// settle books a finished call.
func (cb *CircuitBreaker) settle(epoch uint64, v verdict) {
	cb.mu.Lock()
	var changed func()
	defer func() {
		cb.mu.Unlock()
		if changed != nil {
			changed()
		}
	}()

	if epoch != 0 {
		// The state may have moved on while the trial ran; only book trials
		// against the half-open episode they belong to.
		if cb.state != StateHalfOpen || epoch != cb.epoch {
			return
		}
		cb.trials--
		switch v {
		case verdictSuccess:
			cb.passed++
			if cb.passed >= cb.cfg.HalfOpenMax {
				changed = cb.moveTo(StateClosed)
			}
		case verdictFailure:
			changed = cb.moveTo(StateOpen)
		}
		return
	}

	switch v {
	case verdictSuccess:
		cb.failures = 0
	case verdictFailure:
		if cb.state != StateClosed {
			return
		}
		cb.failures++
		if cb.failures >= cb.cfg.MaxFailures {
			changed = cb.moveTo(StateOpen)
		}
	}
}

// moveTo switches state and resets the counters of the new state. It must
// be called with cb.mu held; the returned func logs and fires the callback
// and must be called after unlocking.
func (cb *CircuitBreaker) moveTo(to State) func() {
	from := cb.state
	cb.state = to
	cb.trials, cb.passed = 0, 0
	switch to {
	case StateHalfOpen:
		cb.epoch++
	case StateOpen:
		cb.openedAt = cb.cfg.Clock()
	case StateClosed:
		cb.failures = 0
	}
	failures := cb.failures

	return func() {
		if to == StateOpen {
			slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "from", from.String(), "consecutive_failures", failures)
		} else {
			slog.Info("circuit breaker state changed", "name", cb.cfg.Name, "from", from.String(), "to", to.String())
		}
		if cb.cfg.OnStateChange != nil {
			cb.cfg.OnStateChange(cb.cfg.Name, from, to)
		}
	}
}

// State returns the current [State]. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// call.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.cfg.Clock().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}
