package chat

import (
	"encoding/json"
	"strings"
)

// Reply is the JSON shape shared by the /chat endpoint and the LLM reply
// contract.
type Reply struct {
	Response     string `json:"response"`
	ShouldSearch bool   `json:"should_search"`
	SearchTerms  Terms  `json:"search_terms"`
	ShouldStop   bool   `json:"should_stop"`
	SessionID    string `json:"session_id,omitempty"`
	Language     string `json:"language,omitempty"`
	Audio        *Audio `json:"audio,omitempty"`
}

// Audio is the optional synthesized reply of a Reply.
type Audio struct {
	// Data is base64 encoded.
	Data        string `json:"data"`
	ContentType string `json:"content_type"`
}

// Terms decodes search terms sent either as a JSON array or as a single
// string.
type Terms []string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Terms) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*t = list
		return nil
	}
	var one string
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	if one = strings.TrimSpace(one); one != "" {
		*t = Terms{one}
	} else {
		*t = nil
	}
	return nil
}

// Interpretation converts r without audio.
func (r Reply) Interpretation() Interpretation {
	return Interpretation{
		SpokenText:   r.Response,
		ShouldSearch: r.ShouldSearch,
		SearchTerms:  []string(r.SearchTerms),
		ShouldStop:   r.ShouldStop,
		SessionID:    r.SessionID,
		Language:     r.Language,
	}
}
