// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (e.g., OpenAI, Anthropic,
// or a local Ollama instance) and exposes a uniform, non-streaming completion
// call. The turn pipeline uses it for two things: synthesising phonetic hints
// for mispronounced words and generating the next step of the dialogue.
//
// Implementations must be safe for concurrent use: hint generation issues one
// completion per flagged word in parallel.
package llm

import "context"

// Role values accepted in [Message.Role].
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically from
	// the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// SystemPrompt is an optional high-priority instruction injected before the
	// conversation. Providers without a dedicated system field prepend it as a
	// "system"-role message.
	SystemPrompt string
}

// CompletionResponse is returned by [Provider.Complete].
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// ModelCapabilities describes static limits of the configured model.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int
}

// OutputBudget returns want capped at MaxOutputTokens. An unknown limit
// (zero) leaves want unchanged.
func (c ModelCapabilities) OutputBudget(want int) int {
	if c.MaxOutputTokens > 0 && want > c.MaxOutputTokens {
		return c.MaxOutputTokens
	}
	return want
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before the
	// completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing the underlying model.
	// The result is constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}
