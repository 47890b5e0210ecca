package llm

import (
	"errors"
	"strings"
)

// Roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrNoMessages is returned when a request has nothing to send.
	ErrNoMessages = errors.New("llm: request has no messages")

	// ErrEmptyResponse is returned when the backend answered without a choice.
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrTruncated marks a reply cut off at the token limit. Backends report
	// it through CompletionResponse.Truncated; callers that need a complete
	// JSON object wrap it into their own error.
	ErrTruncated = errors.New("llm: reply truncated at the token limit")
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// UserMessage is shorthand for a Message with RoleUser.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage is shorthand for a Message with RoleAssistant.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Normalize prepares a conversation for strict backends. Blank messages are
// dropped, consecutive messages of the same role are joined with a newline,
// and leading assistant messages are removed so the conversation opens with
// the user. Session history produces all three: failed turns leave a user
// line without a reply, and a greeting precedes the first utterance.
//
// System messages are kept where they are.
func Normalize(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		text := strings.TrimSpace(m.Content)
		if text == "" {
			continue
		}
		if m.Role == RoleAssistant && !hasUser(out) {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role && m.Role != RoleSystem {
			out[n-1].Content += "\n" + text
			continue
		}
		out = append(out, Message{Role: m.Role, Content: text})
	}
	return out
}

func hasUser(msgs []Message) bool {
	for _, m := range msgs {
		if m.Role == RoleUser {
			return true
		}
	}
	return false
}
