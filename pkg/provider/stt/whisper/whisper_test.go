package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/phrasecoach/pkg/provider/stt"
	"github.com/MrWong99/phrasecoach/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

type formSeen struct {
	language string
	format   string
	model    string
	fileSize int64
}

// newMockServer creates a test server that responds to POST /inference with
// the given verbose JSON body. It increments *callCount on every matched
// request and stores the parsed form fields in *seen.
func newMockServer(t *testing.T, body any, callCount *atomic.Int32, seen *formSeen) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if seen != nil {
			seen.language = r.FormValue("language")
			seen.format = r.FormValue("response_format")
			seen.model = r.FormValue("model")
			if _, hdr, err := r.FormFile("file"); err == nil {
				seen.fileSize = hdr.Size
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	}))
}

// makeSpeechPCM generates a sine-wave PCM buffer at 440 Hz whose RMS is well
// above the silence threshold.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func verbose(text string, words ...any) map[string]any {
	ws := make([]map[string]any, 0, len(words)/2)
	for i := 0; i+1 < len(words); i += 2 {
		ws = append(ws, map[string]any{"word": words[i], "probability": words[i+1]})
	}
	return map[string]any{
		"text":     text,
		"segments": []map[string]any{{"text": text, "words": ws}},
	}
}

// ---- New() ------------------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	t.Parallel()
	p, err := whisper.New("http://localhost:8080",
		whisper.WithModel("small"),
		whisper.WithSilenceThreshold(0),
	)
	if err != nil || p == nil {
		t.Fatalf("New: p=%v err=%v", p, err)
	}
}

// ---- Recognize --------------------------------------------------------------

func TestRecognize_ParsesWordProbabilities(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	var seen formSeen
	srv := newMockServer(t, verbose(" Hola amigo", " Hola", 0.93, " amigo", 0.41), &calls, &seen)
	defer srv.Close()

	p, _ := whisper.New(srv.URL+"/", whisper.WithModel("small"))
	pcm := makeSpeechPCM(1600)
	resp, err := p.Recognize(context.Background(), pcm, stt.RecognitionConfig{
		LanguageCode:    "es-ES",
		SampleRateHertz: 16000,
	})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	if seen.language != "es" {
		t.Errorf("language = %q, want es", seen.language)
	}
	if seen.format != "verbose_json" {
		t.Errorf("response_format = %q", seen.format)
	}
	if seen.model != "small" {
		t.Errorf("model = %q", seen.model)
	}
	if seen.fileSize != int64(44+len(pcm)) {
		t.Errorf("wav size = %d, want %d", seen.fileSize, 44+len(pcm))
	}

	if len(resp.Results) != 1 {
		t.Fatalf("got %d results", len(resp.Results))
	}
	alt := resp.Results[0].Alternatives[0]
	if alt.Transcript != "Hola amigo" {
		t.Errorf("transcript = %q", alt.Transcript)
	}
	if len(alt.Words) != 2 || alt.Words[0].Word != "Hola" || alt.Words[1].Confidence != 0.41 {
		t.Errorf("words = %+v", alt.Words)
	}
	if want := (0.93 + 0.41) / 2; math.Abs(alt.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", alt.Confidence, want)
	}
}

func TestRecognize_SilenceSkipsServer(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newMockServer(t, verbose("should not be used"), &calls, nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	resp, err := p.Recognize(context.Background(), make([]byte, 3200), stt.RecognitionConfig{})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results for silence, got %+v", resp.Results)
	}
	if calls.Load() != 0 {
		t.Errorf("server was called %d times for silence", calls.Load())
	}
}

func TestRecognize_EmptyTextYieldsNoResults(t *testing.T) {
	t.Parallel()
	srv := newMockServer(t, verbose("   "), nil, nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	resp, err := p.Recognize(context.Background(), makeSpeechPCM(800), stt.RecognitionConfig{})
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Errorf("expected no results, got %+v", resp.Results)
	}
}

func TestRecognize_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	_, err := p.Recognize(context.Background(), makeSpeechPCM(800), stt.RecognitionConfig{})
	var ue *stt.UpstreamError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want upstream 503", err)
	}
}

func TestRecognize_EmptyAudio(t *testing.T) {
	t.Parallel()
	p, _ := whisper.New("http://localhost:1")
	if _, err := p.Recognize(context.Background(), nil, stt.RecognitionConfig{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v", err)
	}
}
