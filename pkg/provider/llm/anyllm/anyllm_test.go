package anyllm

import (
	"testing"

	"github.com/MrWong99/phrasecoach/pkg/provider/llm"
)

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage_KnownRoles(t *testing.T) {
	for _, role := range []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		got, err := convertMessage(llm.Message{Role: role, Content: "Hola"})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", role, err)
		}
		if got.Role != role {
			t.Errorf("expected role %q, got %q", role, got.Role)
		}
		if got.ContentString() != "Hola" {
			t.Errorf("%s: expected content %q, got %q", role, "Hola", got.ContentString())
		}
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(llm.Message{Role: "tool"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_PrependsSystemPrompt(t *testing.T) {
	p := &Provider{model: "claude-3-5-haiku-latest"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Reply with JSON only.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "hola"}},
		Temperature:  0.7,
		MaxTokens:    256,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != llm.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Model != "claude-3-5-haiku-latest" {
		t.Errorf("model = %q", params.Model)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("temperature not propagated: %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("max tokens not propagated: %v", params.MaxTokens)
	}
}

func TestBuildParams_ZeroValuesLeaveDefaults(t *testing.T) {
	p := &Provider{model: "llama3.1"}
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hola"}},
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if params.Temperature != nil {
		t.Error("expected nil temperature")
	}
	if params.MaxTokens != nil {
		t.Error("expected nil max tokens")
	}
}

func TestBuildParams_EmptyRequest(t *testing.T) {
	p := &Provider{model: "llama3.1"}
	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}

// ── construction ──────────────────────────────────────────────────────────────

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty provider name")
	}
	if _, err := New("openai", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("nonexistent", "m"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

// ── modelCapabilities ─────────────────────────────────────────────────────────

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model      string
		wantWindow int
		wantOutput int
	}{
		{"gpt-4o-mini", 128_000, 16_384},
		{"gpt-4", 8_192, 4_096},
		{"claude-3-5-haiku-latest", 200_000, 8_192},
		{"claude-3-opus-20240229", 200_000, 4_096},
		{"gemini-1.5-pro", 2_097_152, 8_192},
		{"gemini-2.0-flash", 1_048_576, 8_192},
		{"llama3.1", 128_000, 4_096},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.wantWindow {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.wantWindow)
			}
			if caps.MaxOutputTokens != tt.wantOutput {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tt.wantOutput)
			}
		})
	}
}
