package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/voicesphere/pkg/audio"
	"github.com/MrWong99/voicesphere/pkg/provider/chat"
)

type capture struct {
	mu  sync.Mutex
	req chatRequest
}

func newServer(t *testing.T, status int, reply string, c *capture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			http.NotFound(w, r)
			return
		}
		if c != nil {
			c.mu.Lock()
			_ = json.NewDecoder(r.Body).Decode(&c.req)
			c.mu.Unlock()
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInterpret_Search(t *testing.T) {
	t.Parallel()

	c := &capture{}
	srv := newServer(t, http.StatusOK, `{
		"response": "Looking for pizza",
		"should_search": true,
		"search_terms": ["pizza"],
		"should_stop": false,
		"session_id": "srv-1",
		"audio": {"data": "bXAz", "content_type": "audio/mpeg"}
	}`, c)
	p, _ := New(srv.URL)

	got, err := p.Interpret(context.Background(), chat.Request{
		SessionID:    "s-1",
		Text:         "I want pizza",
		Language:     "en",
		IncludeAudio: true,
	})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if !got.ShouldSearch || got.Query() != "pizza" || got.ShouldStop {
		t.Errorf("interpretation = %+v", got)
	}
	if got.SessionID != "srv-1" {
		t.Errorf("SessionID = %q, want srv-1", got.SessionID)
	}
	if string(got.Audio.Data) != "mp3" || got.Audio.ContentType != "audio/mpeg" {
		t.Errorf("audio = %q %q", got.Audio.Data, got.Audio.ContentType)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.req.SessionID != "s-1" || c.req.Text != "I want pizza" || !c.req.IncludeAudio {
		t.Errorf("request = %+v", c.req)
	}
	if c.req.Audio != "" {
		t.Error("text request must not carry audio")
	}
}

func TestInterpret_VoiceNativeSendsAudio(t *testing.T) {
	t.Parallel()

	c := &capture{}
	srv := newServer(t, http.StatusOK, `{"response":"Goodbye","should_stop":true}`, c)
	p, _ := New(srv.URL)

	buf := &audio.Buffer{Data: []byte("wav"), ContentType: audio.ContentTypeWAV}
	got, err := p.Interpret(context.Background(), chat.Request{SessionID: "s-2", Audio: buf})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if !got.ShouldStop || got.SessionID != "s-2" {
		t.Errorf("interpretation = %+v", got)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.req.Audio != "d2F2" || c.req.AudioContentType != audio.ContentTypeWAV {
		t.Errorf("audio fields = %q %q", c.req.Audio, c.req.AudioContentType)
	}
}

func TestInterpret_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http 500", http.StatusInternalServerError, `{}`},
		{"bad json", http.StatusOK, `nope`},
		{"bad audio", http.StatusOK, `{"response":"x","audio":{"data":"%%%"}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := newServer(t, tc.status, tc.body, nil)
			p, _ := New(srv.URL)
			if _, err := p.Interpret(context.Background(), chat.Request{Text: "x"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
