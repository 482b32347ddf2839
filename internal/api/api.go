// Package api is the HTTP boundary of the turn pipeline.
//
// It decodes the JSON request, hands the turn to an [Evaluator] and writes
// exactly one JSON object back: a [Response] on 200, an [ErrorResponse]
// otherwise. Panics inside the pipeline are recovered and reported as 500s;
// stack traces go to the log, never to the client.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/phrasecoach/internal/observe"
	"github.com/MrWong99/phrasecoach/internal/turn"
)

// DefaultMaxBodyBytes caps request bodies unless [WithMaxBodyBytes] says
// otherwise.
const DefaultMaxBodyBytes = 10 << 20

// Evaluator runs one turn.
type Evaluator interface {
	Evaluate(ctx context.Context, req turn.Request) (*turn.Evaluation, error)
}

type evaluatorBox struct{ Evaluator }

// Option is a functional option for configuring a [Handler].
type Option func(*Handler)

// WithMaxBodyBytes caps the request body. Larger bodies are rejected with 400.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// Handler serves turn evaluations. It is safe for concurrent use.
type Handler struct {
	eval         atomic.Pointer[evaluatorBox]
	maxBodyBytes int64
}

// New returns a [Handler] that evaluates turns with eval.
func New(eval Evaluator, opts ...Option) *Handler {
	h := &Handler{maxBodyBytes: DefaultMaxBodyBytes}
	h.eval.Store(&evaluatorBox{eval})
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetEvaluator replaces the evaluator used by subsequent requests. Requests
// already in flight finish with the previous one.
func (h *Handler) SetEvaluator(eval Evaluator) {
	h.eval.Store(&evaluatorBox{eval})
}

// Register adds the evaluation routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /v1/turns/evaluate", h)
	mux.Handle("POST /evaluate", h)
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observe.Logger(ctx)

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("api: panic while evaluating turn", "panic", rec, "stack", string(debug.Stack()))
			h.fail(w, r, fmt.Errorf("api: panic: %v", rec))
		}
	}()

	req, err := h.decode(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	ev, err := h.eval.Load().Evaluate(ctx, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	log.Info("turn evaluated",
		"outcome", ev.Outcome.Kind.String(),
		"similarity", ev.Outcome.Similarity,
		"words", len(ev.Transcription.Words),
	)
	writeJSON(w, http.StatusOK, NewResponse(ev))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (turn.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var body evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return turn.Request{}, &ValidationError{Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)}
		}
		return turn.Request{}, &ValidationError{Message: "request body is not valid JSON"}
	}

	if strings.TrimSpace(body.AudioContent) == "" {
		return turn.Request{}, &ValidationError{Message: "audioContent is required"}
	}
	if strings.TrimSpace(body.ExpectedPhrase) == "" {
		return turn.Request{}, &ValidationError{Message: "expectedPhrase is required"}
	}
	audio, err := DecodeAudio(body.AudioContent)
	if err != nil {
		return turn.Request{}, &ValidationError{Message: "audioContent is not valid base64"}
	}

	return turn.Request{
		Audio:          audio,
		ExpectedPhrase: body.ExpectedPhrase,
		PriorTurns:     body.priorTurns(),
	}, nil
}

// DecodeAudio decodes base64 audio in the standard or URL-safe alphabet,
// with or without padding.
func DecodeAudio(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	encodings := []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding}
	if strings.ContainsAny(s, "-_") {
		encodings = []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding}
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("api: decode audio: %w", lastErr)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	log := observe.Logger(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("turn failed", "code", body.Code, "err", err)
	} else {
		log.Info("turn rejected", "status", status, "reason", body.Error)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
