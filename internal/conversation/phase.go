package conversation

// Phase is the controller's current stage. It is the single source of truth
// published to the browser.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseListening
	PhaseTranscribing
	PhaseInterpreting
	PhaseSearching
	PhaseSpeaking
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseTranscribing:
		return "transcribing"
	case PhaseInterpreting:
		return "interpreting"
	case PhaseSearching:
		return "searching"
	case PhaseSpeaking:
		return "speaking"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

