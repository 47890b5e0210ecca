package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/voicesphere/pkg/provider/tts"
)

func TestSynthesize(t *testing.T) {
	var (
		mu   sync.Mutex
		body map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3mp3bytes"))
	}))
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL), WithVoices(tts.Voices{"ar": "nova"}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := p.Synthesize(context.Background(), "marhaba", "ar")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Data) != "ID3mp3bytes" || clip.ContentType != "audio/mpeg" {
		t.Errorf("clip = %q %q", clip.Data, clip.ContentType)
	}

	mu.Lock()
	defer mu.Unlock()
	if body["voice"] != "nova" {
		t.Errorf("voice = %v, want nova", body["voice"])
	}
	if body["model"] != "tts-1" {
		t.Errorf("model = %v, want tts-1", body["model"])
	}
	if body["input"] != "marhaba" {
		t.Errorf("input = %v", body["input"])
	}
}

func TestSynthesize_DefaultVoice(t *testing.T) {
	p, _ := New("sk-test")
	if got := p.voices.For("en"); got != "alloy" {
		t.Errorf("default voice = %q, want alloy", got)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad voice","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", WithBaseURL(srv.URL))
	if _, err := p.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Fatal("expected error")
	}
}
