// Package app wires the phrasecoach subsystems into a running HTTP service.
//
// The App struct owns the full lifecycle: New builds the turn evaluator, the
// HTTP handlers and the server, Run serves until the context is cancelled,
// and Shutdown drains in-flight requests and runs the registered closers in
// order.
//
// For testing, inject the providers as mocks and drive [App.Handler] with
// httptest; nothing in New touches the network.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/MrWong99/phrasecoach/internal/api"
	"github.com/MrWong99/phrasecoach/internal/config"
	"github.com/MrWong99/phrasecoach/internal/continuation"
	"github.com/MrWong99/phrasecoach/internal/health"
	"github.com/MrWong99/phrasecoach/internal/hints"
	"github.com/MrWong99/phrasecoach/internal/observe"
	"github.com/MrWong99/phrasecoach/internal/transcribe"
	"github.com/MrWong99/phrasecoach/internal/turn"
	"github.com/MrWong99/phrasecoach/pkg/provider/llm"
	"github.com/MrWong99/phrasecoach/pkg/provider/stt"
)

// Providers holds the two provider slots the pipeline needs. Populated by
// main.go via the config registry; both are required.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider

	// Checks are readiness checks, typically one per fallback group.
	Checks []health.Checker
}

// App owns the HTTP server and every subsystem behind it.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	version        string
	listener       net.Listener

	api    *api.Handler
	health *health.Handler
	server *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics records pipeline and HTTP metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithVersion reports v from the health endpoints.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithListener serves on l instead of listening on cfg.Server.ListenAddr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithCloser registers fn to run during Shutdown after the server has
// drained.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App from cfg and providers. cfg must already have defaults
// applied and be validated.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is nil")
	}
	if providers == nil || providers.STT == nil || providers.LLM == nil {
		return nil, errors.New("app: stt and llm providers are required")
	}

	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	eval := BuildEvaluator(providers, cfg.Pipeline, a.metrics)
	a.api = api.New(eval, api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes))

	healthOpts := []health.Option{health.WithVersion(a.version)}
	for _, c := range providers.Checks {
		healthOpts = append(healthOpts, health.WithChecker(c))
	}
	a.health = health.New(healthOpts...)

	mux := http.NewServeMux()
	a.api.Register(mux)
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}

	a.server = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      observe.Middleware(a.metrics)(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	slog.Info("app initialised",
		"listen_addr", cfg.Server.ListenAddr,
		"language", cfg.Pipeline.Language,
		"health_checks", len(providers.Checks),
	)
	return a, nil
}

// BuildEvaluator assembles the turn pipeline for the given settings.
func BuildEvaluator(providers *Providers, p config.PipelineConfig, m *observe.Metrics) *turn.Evaluator {
	tr := transcribe.New(providers.STT, transcribe.WithLanguage(p.Language))

	hintOpts := []hints.Option{
		hints.WithNativeLanguage(p.NativeLanguage),
		hints.WithTargetLanguage(p.TargetLanguage),
		hints.WithTimeout(p.HintTimeout),
		hints.WithMetrics(m),
	}
	if p.HintTemperature != nil {
		hintOpts = append(hintOpts, hints.WithTemperature(*p.HintTemperature))
	}

	contOpts := []continuation.Option{
		continuation.WithAttempts(p.ContinuationAttempts),
		continuation.WithLanguages(p.TargetLanguage, p.NativeLanguage),
	}
	if p.ContinuationTemperature != nil {
		contOpts = append(contOpts, continuation.WithTemperature(*p.ContinuationTemperature))
	}

	return turn.New(
		tr,
		hints.New(providers.LLM, hintOpts...),
		continuation.New(providers.LLM, contOpts...),
		turn.WithMinAudioBytes(p.MinAudioBytes),
		turn.WithSimilarityThreshold(p.SimilarityThreshold),
		turn.WithConfidenceThreshold(p.ConfidenceThreshold),
		turn.WithMetrics(m),
	)
}

// Handler returns the fully wrapped HTTP handler the server serves.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// ApplyPipeline swaps in an evaluator built from p. Requests already in
// flight finish on the previous evaluator.
func (a *App) ApplyPipeline(p config.PipelineConfig) {
	a.api.SetEvaluator(BuildEvaluator(a.providers, p, a.metrics))
	slog.Info("pipeline settings applied",
		"language", p.Language,
		"similarity_threshold", p.SimilarityThreshold,
		"confidence_threshold", p.ConfidenceThreshold,
	)
}

// Run serves HTTP until ctx is cancelled or the server fails. It does not
// call Shutdown.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		tls := a.cfg.Server.TLS
		var err error
		if tls != nil && tls.CertFile != "" {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	slog.Info("listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, stopping")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	}
}

// Shutdown stops accepting requests, waits for in-flight turns until ctx
// expires, then runs the closers. It is safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
