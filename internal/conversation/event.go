package conversation

import "github.com/MrWong99/voicesphere/pkg/provider/search"

// EventKind discriminates [Event].
type EventKind int

const (
	// EventPhase reports a phase change in Phase.
	EventPhase EventKind = iota

	// EventLevel reports the live microphone loudness in Level.
	EventLevel

	// EventMessage carries a chat line in Message.
	EventMessage

	// EventResults carries search results in Results and Query.
	EventResults
)

// MessageRole says who a chat line is from.
type MessageRole string

const (
	RoleUser  MessageRole = "user"
	RoleBot   MessageRole = "bot"
	RoleError MessageRole = "error"
)

// Message is a line for the chat transcript.
type Message struct {
	Role MessageRole
	Text string
}

// Event is published by the controller for the UI. Events are delivered in
// order on a dedicated goroutine.
type Event struct {
	Kind   EventKind
	TurnID string

	Phase   Phase
	Level   float64
	Message Message
	Query   string
	Results *search.Result

	// Err is the failure behind an error message.
	Err error
}
