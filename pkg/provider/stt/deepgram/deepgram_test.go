package deepgram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrWong99/phrasecoach/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.RecognitionConfig{
		SampleRateHertz:            16000,
		AudioChannelCount:          1,
		LanguageCode:               "es-ES",
		EnableAutomaticPunctuation: true,
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "es-ES", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_ModelFromConfigWins(t *testing.T) {
	p, err := New("key", WithModel("base"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, _ := p.buildURL(stt.RecognitionConfig{Model: "nova-2"})
	u, _ := url.Parse(rawURL)
	assertEqual(t, "model", "nova-2", u.Query().Get("model"))
	assertEqual(t, "sample_rate", "16000", u.Query().Get("sample_rate"))

	rawURL, _ = p.buildURL(stt.RecognitionConfig{})
	u, _ = url.Parse(rawURL)
	assertEqual(t, "model", "base", u.Query().Get("model"))
}

// ---- New() validation ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// ---- response parsing ----

func TestRecognize_ParsesChannels(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":{"channels":[
			{"alternatives":[{"transcript":"hola amigo","confidence":0.88,
				"words":[{"word":"hola","punctuated_word":"Hola","confidence":0.9},
				         {"word":"amigo","confidence":0.5}]}]},
			{"alternatives":[{"transcript":"","confidence":0}]}
		]}}`))
	}))
	defer srv.Close()

	p, _ := New("dg-key", WithEndpoint(srv.URL+"/v1/listen"))
	resp, err := p.Recognize(context.Background(), []byte("pcm"), stt.RecognitionConfig{LanguageCode: "es"})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}

	assertEqual(t, "auth", "Token dg-key", gotAuth)
	assertEqual(t, "body", "pcm", gotBody)

	if len(resp.Results) != 1 {
		t.Fatalf("got %d results, want 1 (empty channel dropped)", len(resp.Results))
	}
	alt := resp.Results[0].Alternatives[0]
	assertEqual(t, "transcript", "hola amigo", alt.Transcript)
	if len(alt.Words) != 2 {
		t.Fatalf("got %d words, want 2", len(alt.Words))
	}
	assertEqual(t, "punctuated word", "Hola", alt.Words[0].Word)
	if !alt.Words[1].HasConfidence || alt.Words[1].Confidence != 0.5 {
		t.Errorf("word 1 = %+v", alt.Words[1])
	}
}

func TestRecognize_EmptyAudio(t *testing.T) {
	p, _ := New("k")
	if _, err := p.Recognize(context.Background(), nil, stt.RecognitionConfig{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestRecognize_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, _ := New("k", WithEndpoint(srv.URL))
	_, err := p.Recognize(context.Background(), []byte{1}, stt.RecognitionConfig{})
	var ue *stt.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *stt.UpstreamError", err)
	}
	if ue.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", ue.StatusCode)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}
