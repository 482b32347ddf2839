// Package health serves the liveness and readiness endpoints of the phrasecoach
// server.
//
// /healthz answers 200 as long as the process can serve HTTP. /readyz runs
// every registered [Checker] concurrently and answers 200 only when all of
// them pass. Both respond with a JSON object carrying a "status" field ("ok"
// or "fail"); /readyz adds a "checks" map keyed by checker name.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phrasecoach/internal/observe"
)

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 5 * time.Second

// Checker is a named readiness check. Check returns nil when the dependency is
// usable.
type Checker struct {
	// Name labels the check in the JSON response, e.g. "stt" or "llm".
	Name string

	// Check tests the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

type result struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Option configures a [Handler].
type Option func(*Handler)

// WithVersion includes the build version in every health response.
func WithVersion(v string) Option {
	return func(h *Handler) { h.version = v }
}

// WithCheckTimeout overrides [DefaultCheckTimeout].
func WithCheckTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithChecker registers an additional readiness check.
func WithChecker(c Checker) Option {
	return func(h *Handler) { h.checkers = append(h.checkers, c) }
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction time, so a Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
	version  string
	timeout  time.Duration
}

// New creates a [Handler].
func New(opts ...Option) *Handler {
	h := &Handler{timeout: DefaultCheckTimeout}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Healthz is the liveness check.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok", Version: h.version})
}

// Readyz is the readiness check. Every checker gets its own deadline derived
// from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	var (
		mu     sync.Mutex
		checks = make(map[string]string, len(h.checkers))
		allOK  = true
	)

	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
			defer cancel()
			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checks[c.Name] = "fail: " + err.Error()
				allOK = false
				return nil
			}
			checks[c.Name] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	res := result{Status: "ok", Version: h.version, Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
		observe.Logger(r.Context()).Warn("readiness check failed", "checks", checks)
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
