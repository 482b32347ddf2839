package api

import (
	"github.com/MrWong99/phrasecoach/internal/turn"
)

// evaluateRequest is the JSON body of POST /v1/turns/evaluate.
type evaluateRequest struct {
	// AudioContent is the base64 encoded recording.
	AudioContent        string         `json:"audioContent"`
	ExpectedPhrase      string         `json:"expectedPhrase"`
	ConversationHistory []historyEntry `json:"conversationHistory"`
}

type historyEntry struct {
	Text        string `json:"text"`
	Translation string `json:"translation"`
	IsUser      bool   `json:"isUser"`
}

// Word is one recognised word with its confidence in [0,1].
type Word struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
}

// Verdict is the feedback block of a [Response].
type Verdict struct {
	Rating      string `json:"rating"`
	Explanation string `json:"explanation"`
}

// Response is the 200 body. Which optional fields are present depends on how
// the turn ended: none for a phrase mismatch, NextPrompt alone when the
// pronunciation needs work, all four after a successful turn.
type Response struct {
	Transcript string  `json:"transcript"`
	Words      []Word  `json:"words"`
	Evaluation Verdict `json:"evaluation"`

	NextPrompt                string `json:"nextPrompt,omitempty"`
	NextPromptTranslation     string `json:"nextPromptTranslation,omitempty"`
	ResponsePrompt            string `json:"responsePrompt,omitempty"`
	ResponsePromptTranslation string `json:"responsePromptTranslation,omitempty"`
}

// ErrorResponse is the body of every 4xx and 5xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (r evaluateRequest) priorTurns() []turn.ConversationTurn {
	out := make([]turn.ConversationTurn, 0, len(r.ConversationHistory))
	for _, h := range r.ConversationHistory {
		speaker := turn.SpeakerSystem
		if h.IsUser {
			speaker = turn.SpeakerUser
		}
		out = append(out, turn.ConversationTurn{Text: h.Text, Translation: h.Translation, Speaker: speaker})
	}
	return out
}

// NewResponse projects an evaluation onto the wire shape.
func NewResponse(ev *turn.Evaluation) Response {
	words := make([]Word, 0, len(ev.Transcription.Words))
	for _, w := range ev.Transcription.Words {
		words = append(words, Word{Word: w.Word, Confidence: w.Confidence})
	}
	o := ev.Outcome
	resp := Response{
		Transcript: ev.Transcription.Transcript,
		Words:      words,
		Evaluation: Verdict{Rating: o.Rating(), Explanation: o.Explanation()},
	}
	switch o.Kind {
	case turn.KindPronunciationNeedsWork:
		resp.NextPrompt = o.ExpectedPhrase
	case turn.KindSuccess:
		c := o.Continuation
		resp.NextPrompt = c.NextPrompt
		resp.NextPromptTranslation = c.NextPromptTranslation
		resp.ResponsePrompt = c.ResponsePrompt
		resp.ResponsePromptTranslation = c.ResponsePromptTranslation
	}
	return resp
}
