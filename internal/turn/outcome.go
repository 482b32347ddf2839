package turn

import (
	"fmt"

	"github.com/MrWong99/phrasecoach/internal/continuation"
	"github.com/MrWong99/phrasecoach/internal/hints"
	"github.com/MrWong99/phrasecoach/internal/transcribe"
)

// Stage is a step of turn evaluation. Each stage requires the previous one.
type Stage int

const (
	StageValidated Stage = iota
	StageTranscribed
	StagePhraseGated
	StageConfidenceGated
	StageContinued
)

func (s Stage) String() string {
	switch s {
	case StageValidated:
		return "validated"
	case StageTranscribed:
		return "transcribed"
	case StagePhraseGated:
		return "phrase_gated"
	case StageConfidenceGated:
		return "confidence_gated"
	case StageContinued:
		return "continued"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Kind tags an [Outcome].
type Kind int

const (
	// KindPhraseMismatch means the learner said something other than the
	// expected phrase.
	KindPhraseMismatch Kind = iota
	// KindPronunciationNeedsWork means the phrase was right but some words
	// were recognised with low confidence.
	KindPronunciationNeedsWork
	// KindSuccess means both gates passed and the dialogue moves on.
	KindSuccess
)

func (k Kind) String() string {
	switch k {
	case KindPhraseMismatch:
		return "phrase_mismatch"
	case KindPronunciationNeedsWork:
		return "pronunciation_needs_work"
	case KindSuccess:
		return "success"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Ratings shown to the learner.
const (
	RatingNeedsWork = "Needs Work"
	RatingWellDone  = "Well done!"
)

// successExplanation accompanies every successful turn.
const successExplanation = "Great pronunciation!"

// Outcome is how a turn ended. Which fields are set depends on Kind:
// Flagged and Hints for KindPronunciationNeedsWork, Continuation for
// KindSuccess.
type Outcome struct {
	Kind           Kind
	ExpectedPhrase string
	Similarity     float64

	Flagged []transcribe.WordConfidence
	Hints   []hints.Hint

	Continuation *continuation.Result
}

// Rating is the short verdict shown to the learner.
func (o Outcome) Rating() string {
	if o.Kind == KindSuccess {
		return RatingWellDone
	}
	return RatingNeedsWork
}

// Explanation is the feedback text shown under the rating.
func (o Outcome) Explanation() string {
	switch o.Kind {
	case KindPhraseMismatch:
		return "Try saying: \"" + o.ExpectedPhrase + "\""
	case KindPronunciationNeedsWork:
		return hints.Explain(o.Hints)
	default:
		return successExplanation
	}
}
