package conversation

import (
	"errors"
	"testing"
)

func TestTurnError_MatchesStageAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	tests := []struct {
		stage Stage
		want  error
	}{
		{StagePermission, ErrPermissionDenied},
		{StageTranscription, ErrTranscription},
		{StageInterpretation, ErrInterpretation},
		{StageSearch, ErrSearch},
		{StagePlayback, ErrPlayback},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			t.Parallel()
			err := error(&TurnError{Stage: tt.stage, Err: cause})
			if !errors.Is(err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.want)
			}
			if !errors.Is(err, cause) {
				t.Errorf("errors.Is(%v, cause) = false", err)
			}
			if errors.Is(err, ErrCancelled) {
				t.Error("stage failure matched ErrCancelled")
			}
		})
	}
}

func TestTurnError_CaptureHasNoSentinel(t *testing.T) {
	t.Parallel()

	err := error(&TurnError{Stage: StageCapture, Err: errors.New("device busy")})
	for _, s := range []error{ErrPermissionDenied, ErrTranscription, ErrPlayback} {
		if errors.Is(err, s) {
			t.Errorf("capture failure matched %v", s)
		}
	}
	if got, want := err.Error(), "conversation: capture: device busy"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestPhase_String(t *testing.T) {
	t.Parallel()

	want := map[Phase]string{
		PhaseIdle:         "idle",
		PhaseListening:    "listening",
		PhaseTranscribing: "transcribing",
		PhaseInterpreting: "interpreting",
		PhaseSearching:    "searching",
		PhaseSpeaking:     "speaking",
		PhaseError:        "error",
		Phase(99):         "unknown",
	}
	for p, s := range want {
		if got := p.String(); got != s {
			t.Errorf("Phase(%d).String() = %q, want %q", int(p), got, s)
		}
	}
}
