package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/voicesphere/pkg/provider/llm"
)

func TestConvertMessage(t *testing.T) {
	for _, role := range []string{llm.RoleSystem, llm.RoleUser, llm.RoleAssistant} {
		t.Run(role, func(t *testing.T) {
			param, err := convertMessage(llm.Message{Role: role, Content: "x"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var set bool
			switch role {
			case llm.RoleSystem:
				set = param.OfSystem != nil
			case llm.RoleUser:
				set = param.OfUser != nil
			case llm.RoleAssistant:
				set = param.OfAssistant != nil
			}
			if !set {
				t.Errorf("role %q not mapped to its union member", role)
			}
		})
	}
}

func TestConvertMessage_UnknownRole(t *testing.T) {
	if _, err := convertMessage(llm.Message{Role: "narrator"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

func TestComplete_SendsJSONModeAndSystemPrompt(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"response\":\"hi\"}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}
		}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "reply in JSON",
		Messages:     []llm.Message{llm.UserMessage("pizza")},
		JSON:         true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != `{"response":"hi"}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 13 {
		t.Errorf("TotalTokens = %d, want 13", resp.Usage.TotalTokens)
	}

	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(msgs))
	}
	rf, _ := body["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want json_object", body["response_format"])
	}
}

func TestComplete_NoMessages(t *testing.T) {
	p, _ := New("sk-test", "gpt-4o-mini", WithBaseURL("http://127.0.0.1:1"))
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("  ")},
	})
	if !errors.Is(err, llm.ErrNoMessages) {
		t.Fatalf("err = %v, want ErrNoMessages", err)
	}
}

func completionServer(t *testing.T, choice string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"chatcmpl-2","object":"chat.completion","created":1,"model":"m",
			"choices":[`+choice+`],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_ReplyShapes(t *testing.T) {
	tests := []struct {
		name          string
		choice        string
		wantTruncated bool
		wantErr       error
		wantAnyErr    bool
	}{
		{
			name:   "complete",
			choice: `{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{}"}}`,
		},
		{
			name:          "cut off",
			choice:        `{"index":0,"finish_reason":"length","message":{"role":"assistant","content":"{\"resp"}}`,
			wantTruncated: true,
		},
		{
			name:       "refusal",
			choice:     `{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"","refusal":"no"}}`,
			wantAnyErr: true,
		},
		{
			name:    "no choices",
			choice:  ``,
			wantErr: llm.ErrEmptyResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := completionServer(t, tt.choice)
			p, err := New("sk-test", "m", WithBaseURL(srv.URL))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			resp, err := p.Complete(context.Background(), llm.CompletionRequest{
				Messages: []llm.Message{llm.UserMessage("pizza")},
			})
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
			case tt.wantAnyErr:
				if err == nil {
					t.Fatal("expected error")
				}
			default:
				if err != nil {
					t.Fatalf("Complete: %v", err)
				}
				if resp.Truncated != tt.wantTruncated {
					t.Errorf("Truncated = %v, want %v", resp.Truncated, tt.wantTruncated)
				}
			}
		})
	}
}
