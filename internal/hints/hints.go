// Package hints synthesises simplified pronunciation guides for words the
// speech recogniser was unsure about.
//
// Each flagged word gets its own language-model call. Calls run concurrently
// and are joined before returning; a failing call never fails the batch; the
// word itself is used as its guide instead.
package hints

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/phrasecoach/internal/observe"
	"github.com/MrWong99/phrasecoach/internal/similarity"
	"github.com/MrWong99/phrasecoach/pkg/provider/llm"
)

const (
	defaultNativeLanguage = "English"
	defaultTargetLanguage = "Spanish"
	defaultTimeout        = 8 * time.Second
	defaultTemperature    = 0.2
	defaultMaxTokens      = 40

	// leadIn starts every pronunciation explanation.
	leadIn = "Close! Say"
)

// Hint pairs a flagged word with its pronunciation guide.
type Hint struct {
	Word  string
	Guide string

	// Fallback is true when Guide is the word itself because generation failed.
	Fallback bool
}

// Option is a functional option for configuring a [Generator].
type Option func(*Generator)

// WithNativeLanguage sets the language whose phonetic intuition the guide is
// written for. Default: English.
func WithNativeLanguage(lang string) Option {
	return func(g *Generator) {
		g.nativeLanguage = lang
	}
}

// WithTargetLanguage names the language being learned in the prompt.
// Default: Spanish.
func WithTargetLanguage(lang string) Option {
	return func(g *Generator) {
		g.targetLanguage = lang
	}
}

// WithTimeout bounds every individual hint call. Zero disables the bound.
// Default: 8s.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		g.timeout = d
	}
}

// WithTemperature sets the sampling temperature. Default: 0.2.
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		g.temperature = t
	}
}

// WithMetrics records per-hint latency and fallback counts.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// Generator produces pronunciation hints. It is safe for concurrent use.
type Generator struct {
	llm            llm.Provider
	nativeLanguage string
	targetLanguage string
	timeout        time.Duration
	temperature    float64
	metrics        *observe.Metrics
}

// New returns a [Generator] backed by provider.
func New(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		llm:            provider,
		nativeLanguage: defaultNativeLanguage,
		targetLanguage: defaultTargetLanguage,
		timeout:        defaultTimeout,
		temperature:    defaultTemperature,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate returns one hint per entry in words, in the same order. targets are
// the tokens of the expected phrase; when non-empty, each word is paired with
// its closest target spelling so the model is told what the learner meant to
// say.
//
// Generate never returns an error: a word whose call fails, times out or
// yields no usable text gets itself as its guide.
func (g *Generator) Generate(ctx context.Context, words []string, targets []string) []Hint {
	out := make([]Hint, len(words))
	if len(words) == 0 {
		return out
	}

	ctx, span := observe.StartSpan(ctx, "hints.generate")
	defer span.End()

	var eg errgroup.Group
	for i, w := range words {
		eg.Go(func() error {
			out[i] = g.one(ctx, w, similarity.Closest(w, targets))
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// one produces a single hint, converting every failure into the fallback.
func (g *Generator) one(ctx context.Context, word, target string) Hint {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	guide, err := g.complete(ctx, word, target)
	if g.metrics != nil {
		g.metrics.RecordHint(ctx, time.Since(start), err != nil)
	}
	if err != nil {
		observe.Logger(ctx).Debug("hints: falling back to raw word", "word", word, "err", err)
		return Hint{Word: word, Guide: word, Fallback: true}
	}
	return Hint{Word: word, Guide: guide}
}

func (g *Generator) complete(ctx context.Context, word, target string) (string, error) {
	resp, err := g.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: g.systemPrompt(),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: userPrompt(word, target)}},
		Temperature:  g.temperature,
		MaxTokens:    g.llm.Capabilities().OutputBudget(defaultMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("hints: complete %q: %w", word, err)
	}
	if resp == nil {
		return "", fmt.Errorf("hints: complete %q: nil response", word)
	}
	guide := Clean(resp.Content)
	if guide == "" {
		return "", fmt.Errorf("hints: complete %q: empty guide", word)
	}
	return guide, nil
}

func (g *Generator) systemPrompt() string {
	return fmt.Sprintf(`You write pronunciation guides for %[1]s learners whose native language is %[2]s.

Rules:
- Reply with ONE line only: the guide itself.
- Split the word into syllables separated by hyphens and write the stressed syllable in CAPITALS.
- Spell each syllable the way a %[2]s speaker would read it aloud.
- Use plain ASCII letters only. No IPA, no accents, no linguistic notation.
- Do not add quotes, explanations, or any other text.

Example: "gracias" -> GRAH-see-ahs`, g.targetLanguage, g.nativeLanguage)
}

func userPrompt(word, target string) string {
	target = strings.Trim(target, `¿?¡!.,;:"'`)
	if target == "" || strings.EqualFold(target, word) {
		return fmt.Sprintf("Word: %s", word)
	}
	return fmt.Sprintf("Word: %s (as written in the phrase: %s)", word, target)
}

// Clean reduces raw model output to a single guide: the first non-empty line,
// trimmed of whitespace and surrounding quotes or backticks.
func Clean(raw string) string {
	for line := range strings.SplitSeq(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, "\"'`“”‘’«»")
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

// Explain formats hints as the pronunciation explanation shown to the learner:
// a fixed lead-in followed by one bullet per hint.
func Explain(hints []Hint) string {
	var b strings.Builder
	b.WriteString(leadIn)
	for _, h := range hints {
		b.WriteString("\n• \"" + h.Word + "\" like \"" + h.Guide + "\"")
	}
	return b.String()
}
