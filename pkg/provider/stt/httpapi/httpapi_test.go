package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/provider/stt"
)

func newServer(t *testing.T, status int, body string, got *transcribeRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if got != nil {
			_ = json.NewDecoder(r.Body).Decode(got)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTranscribe_Success(t *testing.T) {
	t.Parallel()

	var got transcribeRequest
	srv := newServer(t, http.StatusOK, `{"text":"  pizza ","language":"en"}`, &got)
	p, err := New(srv.URL + "/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	buf := audio.Buffer{Data: []byte("RIFFdata"), ContentType: audio.ContentTypeWAV}
	tr, err := p.Transcribe(context.Background(), buf, "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "pizza" || tr.Language != "en" {
		t.Errorf("transcript = %+v, want pizza/en", tr)
	}

	if got.MimeType != audio.ContentTypeWAV {
		t.Errorf("mimeType = %q", got.MimeType)
	}
	raw, err := base64.StdEncoding.DecodeString(got.Audio)
	if err != nil || string(raw) != "RIFFdata" {
		t.Errorf("audio = %q (%v), want base64 of RIFFdata", got.Audio, err)
	}
}

func TestTranscribe_EmptyTextIsNoSpeech(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusOK, `{"text":"   "}`, nil)
	p, _ := New(srv.URL)
	tr, err := p.Transcribe(context.Background(), audio.Buffer{Data: []byte{1}}, "ar")
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
	if tr.Language != "ar" {
		t.Errorf("Language = %q, want hint ar as fallback", tr.Language)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusBadGateway, `{"error":"upstream timeout"}`, nil)
	p, _ := New(srv.URL)
	_, err := p.Transcribe(context.Background(), audio.Buffer{Data: []byte{1}}, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, stt.ErrNoSpeech) {
		t.Error("server error must not be reported as ErrNoSpeech")
	}
	if !strings.Contains(err.Error(), "upstream timeout") {
		t.Errorf("error %q should carry the server message", err)
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := newServer(t, http.StatusOK, `{"text":"x"}`, nil)
	p, _ := New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, audio.Buffer{Data: []byte{1}}, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNew_EmptyURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error")
	}
}
