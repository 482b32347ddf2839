// Package turn evaluates one spoken turn of a practice dialogue.
//
// An [Evaluator] runs the stages of a turn in order: request validation,
// transcription, the phrase gate (similarity against the expected phrase),
// the confidence gate (per-word recognition confidence) and finally dialogue
// continuation. A failed gate ends the turn with an [Outcome] describing why;
// only a turn that clears both gates calls the continuation model.
//
// The evaluator keeps no state between turns. Everything it knows about the
// conversation arrives with the [Request].
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/phrasecoach/internal/continuation"
	"github.com/MrWong99/phrasecoach/internal/hints"
	"github.com/MrWong99/phrasecoach/internal/observe"
	"github.com/MrWong99/phrasecoach/internal/similarity"
	"github.com/MrWong99/phrasecoach/internal/transcribe"
)

// ErrNoSpeech is returned when the recording produced no transcript.
var ErrNoSpeech = transcribe.ErrNoSpeech

// ConversationTurn is one prior line of the dialogue.
type ConversationTurn = continuation.Turn

// Speaker identifies who produced a [ConversationTurn].
type Speaker = continuation.Speaker

const (
	SpeakerSystem = continuation.SpeakerSystem
	SpeakerUser   = continuation.SpeakerUser
)

const (
	defaultMinAudioBytes       = 1024
	defaultConfidenceThreshold = 0.70
)

// ValidationError reports a request that was rejected before any external
// call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Request is one turn as submitted by the client.
type Request struct {
	// Audio is the recorded utterance, passed to the recognizer untouched.
	Audio []byte

	// ExpectedPhrase is what the learner was asked to say.
	ExpectedPhrase string

	// PriorTurns is the client-held history, oldest first. May be empty.
	PriorTurns []ConversationTurn
}

// Transcriber turns audio into a normalized transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (*transcribe.Result, error)
}

// HintGenerator produces one pronunciation hint per flagged word. It never
// fails; a word it cannot help with is returned as its own guide.
type HintGenerator interface {
	Generate(ctx context.Context, words []string, targets []string) []hints.Hint
}

// ContinuationGenerator produces the next dialogue step.
type ContinuationGenerator interface {
	Generate(ctx context.Context, in continuation.Input) (*continuation.Result, error)
}

// Option is a functional option for configuring an [Evaluator].
type Option func(*Evaluator)

// WithMinAudioBytes sets the shortest accepted recording. Default: 1024.
func WithMinAudioBytes(n int) Option {
	return func(e *Evaluator) {
		if n >= 0 {
			e.minAudioBytes = n
		}
	}
}

// WithSimilarityThreshold sets the phrase gate. Default: [similarity.Threshold].
func WithSimilarityThreshold(t float64) Option {
	return func(e *Evaluator) {
		if t > 0 {
			e.similarityThreshold = t
		}
	}
}

// WithConfidenceThreshold sets the confidence gate. Words recognised with a
// lower confidence are flagged. Default: 0.70.
func WithConfidenceThreshold(t float64) Option {
	return func(e *Evaluator) {
		if t > 0 {
			e.confidenceThreshold = t
		}
	}
}

// WithMetrics records recognition, continuation and turn metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// Evaluator runs turns. It is safe for concurrent use.
type Evaluator struct {
	transcriber  Transcriber
	hints        HintGenerator
	continuation ContinuationGenerator

	minAudioBytes       int
	similarityThreshold float64
	confidenceThreshold float64
	metrics             *observe.Metrics
}

// New returns an [Evaluator] wired to the three collaborators.
func New(t Transcriber, h HintGenerator, c ContinuationGenerator, opts ...Option) *Evaluator {
	e := &Evaluator{
		transcriber:         t,
		hints:               h,
		continuation:        c,
		minAudioBytes:       defaultMinAudioBytes,
		similarityThreshold: similarity.Threshold,
		confidenceThreshold: defaultConfidenceThreshold,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Evaluation is the result of a turn that reached a terminal state.
type Evaluation struct {
	// Transcription is what the recognizer heard.
	Transcription *transcribe.Result

	// Outcome says how the turn ended.
	Outcome Outcome

	// Stage is the last stage the turn completed.
	Stage Stage
}

// Evaluate runs one turn.
//
// A *ValidationError means the request was rejected without calling anything.
// [ErrNoSpeech] means nothing was recognised. Any other error comes from the
// recognizer or the continuation model and fails the turn.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (ev *Evaluation, err error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "turn.evaluate")
	if e.metrics != nil {
		e.metrics.ActiveTurns.Add(ctx, 1)
	}
	defer func() {
		outcome := outcomeLabel(ev, err)
		span.SetAttributes(attribute.String("turn.outcome", outcome))
		if e.metrics != nil {
			e.metrics.ActiveTurns.Add(ctx, -1)
			e.metrics.RecordTurn(ctx, outcome, time.Since(start))
		}
		observe.EndSpan(span, err)
	}()

	log := observe.Logger(ctx)

	if err := e.validate(req); err != nil {
		return nil, err
	}
	log.Debug("turn stage", "stage", StageValidated, "audio_bytes", len(req.Audio))

	tr, err := e.transcribe(ctx, req.Audio)
	if err != nil {
		return nil, err
	}
	ev = &Evaluation{Transcription: tr, Stage: StageTranscribed}
	log.Debug("turn stage", "stage", StageTranscribed, "transcript", tr.Transcript, "words", len(tr.Words))

	score := similarity.Score(tr.Transcript, req.ExpectedPhrase)
	span.SetAttributes(attribute.Float64("turn.similarity", score))
	if !similarity.Passes(score, e.similarityThreshold) {
		log.Debug("phrase gate failed", "similarity", score, "threshold", e.similarityThreshold)
		ev.Outcome = Outcome{Kind: KindPhraseMismatch, ExpectedPhrase: req.ExpectedPhrase, Similarity: score}
		return ev, nil
	}
	ev.Stage = StagePhraseGated
	log.Debug("turn stage", "stage", StagePhraseGated, "similarity", score)

	if flagged := e.flag(tr.Words); len(flagged) > 0 {
		words := make([]string, len(flagged))
		for i, w := range flagged {
			words[i] = w.Word
		}
		log.Debug("confidence gate failed", "flagged", words, "threshold", e.confidenceThreshold)
		ev.Outcome = Outcome{
			Kind:           KindPronunciationNeedsWork,
			ExpectedPhrase: req.ExpectedPhrase,
			Similarity:     score,
			Flagged:        flagged,
			Hints:          e.hints.Generate(ctx, words, similarity.Tokens(req.ExpectedPhrase)),
		}
		return ev, nil
	}
	ev.Stage = StageConfidenceGated
	log.Debug("turn stage", "stage", StageConfidenceGated)

	next, err := e.proceed(ctx, req, tr.Transcript)
	if err != nil {
		return nil, err
	}
	ev.Stage = StageContinued
	ev.Outcome = Outcome{
		Kind:           KindSuccess,
		ExpectedPhrase: req.ExpectedPhrase,
		Similarity:     score,
		Continuation:   next,
	}
	log.Debug("turn stage", "stage", StageContinued, "next_prompt", next.NextPrompt)
	return ev, nil
}

func (e *Evaluator) validate(req Request) error {
	switch {
	case len(req.Audio) == 0:
		return &ValidationError{Message: "audioContent is required"}
	case strings.TrimSpace(req.ExpectedPhrase) == "":
		return &ValidationError{Message: "expectedPhrase is required"}
	case len(req.Audio) < e.minAudioBytes:
		return &ValidationError{Message: fmt.Sprintf("audioContent is too short: %d bytes, need at least %d", len(req.Audio), e.minAudioBytes)}
	}
	return nil
}

func (e *Evaluator) transcribe(ctx context.Context, audio []byte) (*transcribe.Result, error) {
	ctx, span := observe.StartSpan(ctx, "turn.transcribe")
	start := time.Now()
	tr, err := e.transcriber.Transcribe(ctx, audio)
	if e.metrics != nil {
		e.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	}
	if errors.Is(err, ErrNoSpeech) {
		// Not a failure of the service.
		span.End()
		return nil, err
	}
	observe.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("turn: %w", err)
	}
	return tr, nil
}

// flag returns the words recognised below the confidence threshold, in
// transcript order.
func (e *Evaluator) flag(words []transcribe.WordConfidence) []transcribe.WordConfidence {
	var out []transcribe.WordConfidence
	for _, w := range words {
		if w.Confidence < e.confidenceThreshold {
			out = append(out, w)
		}
	}
	return out
}

func (e *Evaluator) proceed(ctx context.Context, req Request, utterance string) (*continuation.Result, error) {
	ctx, span := observe.StartSpan(ctx, "turn.continue", trace.WithAttributes(
		attribute.Int("turn.prior_turns", len(req.PriorTurns)),
	))
	start := time.Now()
	next, err := e.continuation.Generate(ctx, continuation.Input{
		PriorTurns:    req.PriorTurns,
		SystemPrompt:  LastSystemPrompt(req.PriorTurns),
		UserUtterance: utterance,
	})
	if e.metrics != nil {
		e.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("purpose", "continuation")))
	}
	observe.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("turn: %w", err)
	}
	return next, nil
}

// outcomeLabel names how a turn ended for metrics and traces.
func outcomeLabel(ev *Evaluation, err error) string {
	var verr *ValidationError
	switch {
	case err == nil && ev != nil:
		return ev.Outcome.Kind.String()
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, ErrNoSpeech):
		return "no_speech"
	}
	return "error"
}

// LastSystemPrompt returns the text of the most recent system turn, or "" if
// the tutor has not spoken yet.
func LastSystemPrompt(turns []ConversationTurn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Speaker == SpeakerSystem {
			return turns[i].Text
		}
	}
	return ""
}
