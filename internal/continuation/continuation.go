// Package continuation generates the next step of a language-learning
// dialogue from the conversation so far.
//
// Generation is a pure function of its [Input] plus the model: no dialogue
// state is kept between calls. The model is asked for a single JSON object;
// its output is reduced to the first balanced object and validated before a
// [Result] is returned.
package continuation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/phrasecoach/internal/observe"
	"github.com/MrWong99/phrasecoach/pkg/provider/llm"
)

const (
	defaultTemperature    = 0.7
	defaultMaxTokens      = 400
	defaultTargetLanguage = "Spanish"
	defaultNativeLanguage = "English"
)

// Speaker identifies who produced a turn.
type Speaker int

const (
	// SpeakerSystem is the tutor side of the dialogue.
	SpeakerSystem Speaker = iota
	// SpeakerUser is the learner.
	SpeakerUser
)

func (s Speaker) String() string {
	if s == SpeakerUser {
		return "User"
	}
	return "System"
}

// Turn is one prior line of dialogue. Translation may be empty.
type Turn struct {
	Text        string
	Translation string
	Speaker     Speaker
}

// Input is everything a continuation depends on.
type Input struct {
	// PriorTurns is the caller-held history, oldest first.
	PriorTurns []Turn

	// SystemPrompt is the tutor's most recent line.
	SystemPrompt string

	// UserUtterance is what the learner just said, as transcribed.
	UserUtterance string
}

// Result is a validated continuation. All fields are non-empty and
// ResponsePrompt is a complete sentence.
type Result struct {
	// NextPrompt is the tutor's next line.
	NextPrompt            string
	NextPromptTranslation string

	// ResponsePrompt is the phrase the learner is asked to say next.
	ResponsePrompt            string
	ResponsePromptTranslation string
}

// Option is a functional option for configuring a [Generator].
type Option func(*Generator)

// WithAttempts sets how many times generation is tried when the model output
// fails validation. Upstream errors are never retried. Default: 1.
func WithAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.attempts = n
		}
	}
}

// WithTemperature sets the sampling temperature. Default: 0.7.
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		g.temperature = t
	}
}

// WithLanguages names the language being learned and the learner's native
// language (used for translations). Defaults: Spanish, English.
func WithLanguages(target, native string) Option {
	return func(g *Generator) {
		if target != "" {
			g.targetLanguage = target
		}
		if native != "" {
			g.nativeLanguage = native
		}
	}
}

// Generator produces dialogue continuations. It is safe for concurrent use.
type Generator struct {
	llm            llm.Provider
	attempts       int
	temperature    float64
	targetLanguage string
	nativeLanguage string
}

// New returns a [Generator] backed by provider.
func New(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		llm:            provider,
		attempts:       1,
		temperature:    defaultTemperature,
		targetLanguage: defaultTargetLanguage,
		nativeLanguage: defaultNativeLanguage,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate asks the model for the next dialogue step.
//
// It returns *SchemaError or *IncompleteError when the last attempt's output
// fails validation, and the wrapped provider error when a call fails.
func (g *Generator) Generate(ctx context.Context, in Input) (*Result, error) {
	req := llm.CompletionRequest{
		SystemPrompt: g.systemPrompt(),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: BuildPrompt(in)}},
		Temperature:  g.temperature,
		MaxTokens:    g.llm.Capabilities().OutputBudget(defaultMaxTokens),
	}

	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		resp, err := g.llm.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("continuation: complete: %w", err)
		}
		if resp == nil {
			return nil, fmt.Errorf("continuation: complete: nil response")
		}

		res, err := Parse(resp.Content)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, ErrSchema) && !errors.Is(err, ErrIncomplete) {
			return nil, err
		}
		if attempt < g.attempts {
			observe.Logger(ctx).Warn("continuation: invalid model output, retrying",
				"attempt", attempt, "max_attempts", g.attempts, "err", err)
		}
	}
	return nil, lastErr
}

func (g *Generator) systemPrompt() string {
	return fmt.Sprintf(`You are a friendly %[1]s conversation partner helping a %[2]s-speaking beginner practise %[1]s.
You continue a short spoken dialogue one step at a time.`, g.targetLanguage, g.nativeLanguage)
}

// BuildPrompt renders the user message for in: the labelled history, the
// tutor's last line, the learner's answer and the output contract.
func BuildPrompt(in Input) string {
	var b strings.Builder

	b.WriteString("Conversation so far:\n")
	if len(in.PriorTurns) == 0 {
		b.WriteString("(none)\n")
	}
	for _, t := range in.PriorTurns {
		fmt.Fprintf(&b, "%s: %s", t.Speaker, strings.TrimSpace(t.Text))
		if tr := strings.TrimSpace(t.Translation); tr != "" {
			fmt.Fprintf(&b, " (%s)", tr)
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "\nYour previous line: %s\n", orNone(in.SystemPrompt))
	fmt.Fprintf(&b, "The learner answered: %s\n", orNone(in.UserUtterance))

	b.WriteString(`
Continue the conversation. Respond with ONLY a single JSON object in this exact format:
{
  "nextPrompt": "<your next line, reacting to the learner>",
  "nextPromptTranslation": "<translation of nextPrompt>",
  "responsePrompt": "<the exact sentence the learner should say next>",
  "responsePromptTranslation": "<translation of responsePrompt>"
}

Rules:
- All four fields are required and must not be empty.
- Every field is one complete, natural sentence of 5 to 10 words.
- responsePrompt must be something the learner can say word for word. Never leave it unfinished and never use placeholders.
- Bad responsePrompt examples: "Ayer, yo...", "Me gusta [food]".
- Good responsePrompt example: "Ayer fui al mercado con mi hermana."`)

	return b.String()
}

func orNone(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "(none)"
	}
	return s
}
