package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/phrasecoach/pkg/provider/llm"
)

// TestConvertMessage_System checks that system role is converted correctly.
func TestConvertMessage_System(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "system", Content: "You are helpful."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

// TestConvertMessage_User checks that user role is converted correctly.
func TestConvertMessage_User(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "user", Content: "Hola"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

// TestConvertMessage_Assistant checks that assistant role is converted.
func TestConvertMessage_Assistant(t *testing.T) {
	param, err := convertMessage(llm.Message{Role: "assistant", Content: "¿Qué tal?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
}

// TestConvertMessage_UnknownRole checks that unknown roles return an error.
func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(llm.Message{Role: "tool"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Be terse.",
		Messages:     []llm.Message{{Role: "user", Content: "Hola"}},
		Temperature:  0.3,
		MaxTokens:    40,
	})
	if err != nil {
		t.Fatalf("buildParams: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("first message should be the system prompt")
	}
	if got := params.MaxCompletionTokens.Value; got != 40 {
		t.Errorf("MaxCompletionTokens = %d, want 40", got)
	}
}

func TestBuildParams_EmptyRequest(t *testing.T) {
	p, _ := New("sk-test", "gpt-4o-mini")
	if _, err := p.buildParams(llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error for request without messages")
	}
}

func TestComplete_AgainstFakeServer(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		var body struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel = body.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop",
    "message": {"role": "assistant", "content": "OH-lah"}}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hola"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "OH-lah" {
		t.Errorf("Content = %q, want %q", resp.Content, "OH-lah")
	}
	if resp.Usage.TotalTokens != 13 {
		t.Errorf("TotalTokens = %d, want 13", resp.Usage.TotalTokens)
	}
	if gotModel != "gpt-4o-mini" {
		t.Errorf("server saw model %q", gotModel)
	}
}

func TestComplete_ServerErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1/"))
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "hola"}},
	})
	if err == nil {
		t.Fatal("expected error from failing server")
	}
}

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model      string
		wantWindow int
		wantOutput int
	}{
		{"gpt-4o-mini", 128_000, 16_384},
		{"gpt-4", 8_192, 4_096},
		{"gpt-3.5-turbo", 16_385, 4_096},
		{"o3-mini", 200_000, 100_000},
		{"something-else", 128_000, 4_096},
	}
	for _, tt := range tests {
		caps := modelCapabilities(tt.model)
		if caps.ContextWindow != tt.wantWindow || caps.MaxOutputTokens != tt.wantOutput {
			t.Errorf("%s: got %+v", tt.model, caps)
		}
	}
}
