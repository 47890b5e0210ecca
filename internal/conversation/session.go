package conversation

import "github.com/MrWong99/voicesphere/pkg/provider/search"

// Session is the cross-turn state of one conversation. The controller owns
// it; [Controller.Session] hands out copies.
type Session struct {
	// ID identifies the conversation in logs and history.
	ID string

	// BackendID is the session id assigned by the chat backend, if any.
	BackendID string

	// Active enables automatic re-listening after each spoken reply.
	Active bool

	// Language is the current conversation language ("en", "ar", ...).
	Language string

	// LastTopic holds the most recent search terms.
	LastTopic []string

	Location search.Location
	Filters  search.Filters

	// Greeted is set once the greeting has been played.
	Greeted bool
}

func (s Session) clone() Session {
	s.LastTopic = append([]string(nil), s.LastTopic...)
	return s
}
