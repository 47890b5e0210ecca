// Package chat defines the Provider interface for interpretation backends.
//
// A chat provider decides what the assistant says in reply to an utterance
// and whether the utterance asks for a food search or ends the conversation.
// Backends range from the food-search service's own /chat endpoint to a
// general LLM prompted with a JSON reply contract, down to an offline
// rule-based interpreter.
//
// Implementations must be safe for concurrent use.
package chat

import (
	"context"
	"strings"

	"github.com/MrWong99/voicesphere/pkg/audio"
)

// Message is one prior exchange in the conversation, oldest first.
type Message struct {
	// Role is "user" or "assistant".
	Role string
	// Text is what was said.
	Text string
}

// Request is the input to one interpretation.
type Request struct {
	// SessionID identifies the conversation on the backend.
	SessionID string

	// Text is the utterance. Empty in voice-native mode.
	Text string

	// Audio carries the raw utterance in voice-native mode.
	Audio *audio.Buffer

	// Language is the requested reply language ("en", "ar", ...).
	Language string

	// IncludeAudio asks the backend to return a synthesized reply.
	IncludeAudio bool

	// History holds recent messages of this session for context. Backends
	// with server-side memory may ignore it.
	History []Message
}

// Interpretation is the backend's decision for one utterance.
type Interpretation struct {
	// SpokenText is the reply to speak. May be empty.
	SpokenText string

	// ShouldSearch asks the controller to run a search for SearchTerms.
	ShouldSearch bool

	// SearchTerms are the extracted search keywords.
	SearchTerms []string

	// ShouldStop signals the end of the conversation.
	ShouldStop bool

	// SessionID is the backend's session id, if it assigned one.
	SessionID string

	// Language is the language the backend replied in, if reported.
	Language string

	// Audio is the pre-synthesized reply, when IncludeAudio was honoured.
	Audio audio.Clip
}

// Query joins SearchTerms into one search string.
func (i Interpretation) Query() string {
	return strings.Join(strings.Fields(strings.Join(i.SearchTerms, " ")), " ")
}

// Provider is the abstraction over any interpretation backend.
type Provider interface {
	// Interpret decides the reply to req. Backend failures are returned as
	// errors; the caller never retries within a turn.
	Interpret(ctx context.Context, req Request) (Interpretation, error)
}
