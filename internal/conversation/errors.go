package conversation

import (
	"errors"
	"fmt"
)

// Error taxonomy. Stage failures are reported as *TurnError wrapping one of
// these together with the backend's cause.
var (
	ErrPermissionDenied = errors.New("conversation: microphone permission denied")
	ErrEmptyCapture     = errors.New("conversation: no audio captured")
	ErrTranscription    = errors.New("conversation: transcription failed")
	ErrInterpretation   = errors.New("conversation: interpretation failed")
	ErrSearch           = errors.New("conversation: search failed")
	ErrPlayback         = errors.New("conversation: playback failed")
	ErrCancelled        = errors.New("conversation: turn cancelled")

	// ErrClosed is returned by operations on a closed Controller.
	ErrClosed = errors.New("conversation: controller closed")
)

// Stage names the turn stage a failure happened in.
type Stage string

const (
	StagePermission     Stage = "permission"
	StageCapture        Stage = "capture"
	StageTranscription  Stage = "transcription"
	StageInterpretation Stage = "interpretation"
	StageSearch         Stage = "search"
	StagePlayback       Stage = "playback"
)

// kind maps a stage to its taxonomy sentinel. Device failures other than a
// refused permission have none.
func (s Stage) kind() error {
	switch s {
	case StagePermission:
		return ErrPermissionDenied
	case StageTranscription:
		return ErrTranscription
	case StageInterpretation:
		return ErrInterpretation
	case StageSearch:
		return ErrSearch
	case StagePlayback:
		return ErrPlayback
	default:
		return nil
	}
}

// TurnError is a failed turn stage. errors.Is matches both the taxonomy
// sentinel of the stage and the underlying cause.
type TurnError struct {
	Stage Stage
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("conversation: %s: %v", e.Stage, e.Err)
}

// Unwrap returns the taxonomy sentinel and the cause.
func (e *TurnError) Unwrap() []error {
	if k := e.Stage.kind(); k != nil {
		return []error{k, e.Err}
	}
	return []error{e.Err}
}
