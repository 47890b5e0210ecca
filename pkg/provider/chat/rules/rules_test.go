package rules

import (
	"context"
	"testing"

	"github.com/MrWong99/voicesphere/pkg/provider/chat"
)

func TestInterpret(t *testing.T) {
	p := New()
	tests := []struct {
		text       string
		wantStop   bool
		wantSearch string
	}{
		{text: "Goodbye!", wantStop: true},
		{text: "good by", wantStop: true},
		{text: "thats all", wantStop: true},
		{text: "Stop.", wantStop: true},
		{text: "pizza", wantSearch: "pizza"},
		{text: "Can I get some chicken biryani, please", wantSearch: "chicken biryani"},
		{text: "I want a burger", wantSearch: "burger"},
		{text: "show me sushi", wantSearch: "sushi"},
		{text: "stop the pizza from being cold", wantSearch: "stop the pizza from being cold"},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			got, err := p.Interpret(context.Background(), chat.Request{Text: tc.text})
			if err != nil {
				t.Fatalf("Interpret: %v", err)
			}
			if got.ShouldStop != tc.wantStop {
				t.Errorf("ShouldStop = %v, want %v", got.ShouldStop, tc.wantStop)
			}
			if tc.wantSearch != "" {
				if !got.ShouldSearch || got.Query() != tc.wantSearch {
					t.Errorf("search = %v %q, want %q", got.ShouldSearch, got.Query(), tc.wantSearch)
				}
			} else if got.ShouldSearch {
				t.Errorf("unexpected search for %q", tc.text)
			}
		})
	}
}

func TestInterpret_Greeting(t *testing.T) {
	got, _ := New().Interpret(context.Background(), chat.Request{Text: "Hello", SessionID: "s"})
	if got.ShouldSearch || got.ShouldStop || got.SpokenText == "" {
		t.Errorf("greeting interpretation = %+v", got)
	}
	if got.SessionID != "s" {
		t.Errorf("SessionID = %q", got.SessionID)
	}
}

func TestWithStopPhrases(t *testing.T) {
	p := New(WithStopPhrases([]string{"khalas"}))
	if !p.IsStopPhrase("khalas") {
		t.Error("custom phrase not matched")
	}
	if p.IsStopPhrase("goodbye") {
		t.Error("default phrases should be replaced")
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize("  That's   ALL, folks! "); got != "that's all folks" {
		t.Errorf("normalize = %q", got)
	}
}
