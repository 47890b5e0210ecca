package browser

import "encoding/json"

// Message types sent by the browser.
const (
	TypeHello         = "hello"
	TypeActivate      = "activate"
	TypeStop          = "stop"
	TypeEndSpeech     = "end_speech"
	TypeText          = "text"
	TypeLanguage      = "language"
	TypeFilters       = "filters"
	TypeLocation      = "location"
	TypeVoices        = "voices"
	TypeMicOpened     = "mic_opened"
	TypeMicDenied     = "mic_denied"
	TypePlaybackEnded = "playback_ended"
	TypePlaybackError = "playback_error"
	TypeSpeakEnded    = "speak_ended"
	TypeSpeakError    = "speak_error"
)

// Message types sent to the browser.
const (
	TypePhase         = "phase"
	TypeLevel         = "level"
	TypeMessage       = "message"
	TypeResults       = "results"
	TypeMicOpen       = "mic_open"
	TypeMicClose      = "mic_close"
	TypePlay          = "play"
	TypePlaybackStop  = "playback_stop"
	TypePlaybackPrime = "playback_prime"
	TypeSpeakLocal    = "speak_local"
	TypeSpeakCancel   = "speak_cancel"
)

// Codecs accepted for microphone audio.
const (
	CodecPCM  = "pcm"
	CodecOpus = "opus"
)

// Message is the JSON envelope used in both directions. Only the fields
// relevant to Type are set. Binary WebSocket messages carry microphone audio
// for the open stream and are not wrapped.
type Message struct {
	Type string `json:"type"`

	// ID correlates a request (mic_open, play, speak_local) with the
	// browser's reply.
	ID string `json:"id,omitempty"`

	// hello and mic_opened describe the microphone audio.
	Codec      string `json:"codec,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`

	Text     string  `json:"text,omitempty"`
	Language string  `json:"language,omitempty"`
	Voice    string  `json:"voice,omitempty"`
	Voices   []Voice `json:"voices,omitempty"`
	Error    string  `json:"error,omitempty"`

	Phase   string          `json:"phase,omitempty"`
	Level   *float64        `json:"level,omitempty"`
	Role    string          `json:"role,omitempty"`
	Query   string          `json:"query,omitempty"`
	Results json.RawMessage `json:"results,omitempty"`

	// Audio is base64 in JSON.
	Audio       []byte `json:"audio,omitempty"`
	ContentType string `json:"content_type,omitempty"`

	Filters  json.RawMessage `json:"filters,omitempty"`
	Location json.RawMessage `json:"location,omitempty"`
}

// isReply reports whether m answers a request sent by the server.
func (m Message) isReply() bool {
	switch m.Type {
	case TypeMicOpened, TypeMicDenied, TypePlaybackEnded, TypePlaybackError, TypeSpeakEnded, TypeSpeakError:
		return true
	}
	return false
}
