package deepgram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.buildURL("en")
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "detect_language", "", q.Get("detect_language"))
}

func TestBuildURL_DetectLanguageWithoutHint(t *testing.T) {
	p, _ := New("key", WithModel("base"))
	rawURL, _ := p.buildURL("")
	q, _ := url.ParseQuery(rawURL[len(deepgramEndpoint)+1:])

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "detect_language", "true", q.Get("detect_language"))
	assertEqual(t, "language", "", q.Get("language"))
}

// ---- response parsing ----

func TestParseDeepgramResponse(t *testing.T) {
	data := []byte(`{
		"metadata": {"duration": 1.5},
		"results": {"channels": [{
			"detected_language": "ar",
			"alternatives": [{"transcript": "kunafa", "confidence": 0.93}]
		}]}
	}`)
	tr, err := parseDeepgramResponse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tr.Text != "kunafa" || tr.Language != "ar" {
		t.Errorf("transcript = %+v", tr)
	}
	if tr.Confidence != 0.93 {
		t.Errorf("Confidence = %v", tr.Confidence)
	}
	if tr.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", tr.Duration)
	}
}

func TestParseDeepgramResponse_NoChannels(t *testing.T) {
	tr, err := parseDeepgramResponse([]byte(`{"results":{"channels":[]}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tr.Text != "" {
		t.Errorf("Text = %q, want empty", tr.Text)
	}
}

func TestParseDeepgramResponse_InvalidJSON(t *testing.T) {
	if _, err := parseDeepgramResponse([]byte(`{`)); err == nil {
		t.Fatal("expected error")
	}
}

// ---- end-to-end against a fake endpoint ----

func TestTranscribe(t *testing.T) {
	var gotAuth, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = io.WriteString(w, `{"results":{"channels":[{"alternatives":[{"transcript":"pizza"}]}]}}`)
	}))
	defer srv.Close()

	p, _ := New("secret", WithEndpoint(srv.URL+"/v1/listen"))
	buf := audio.Buffer{Data: []byte("wav"), ContentType: audio.ContentTypeWAV}
	tr, err := p.Transcribe(context.Background(), buf, "en")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "pizza", tr.Text)
	assertEqual(t, "language", "en", tr.Language)
	assertEqual(t, "auth", "Token secret", gotAuth)
	assertEqual(t, "content-type", audio.ContentTypeWAV, gotType)
	assertEqual(t, "body", "wav", string(gotBody))
}

func TestTranscribe_EmptyIsNoSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"results":{"channels":[{"alternatives":[{"transcript":""}]}]}}`)
	}))
	defer srv.Close()

	p, _ := New("secret", WithEndpoint(srv.URL))
	if _, err := p.Transcribe(context.Background(), audio.Buffer{Data: []byte{1}}, ""); !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}
