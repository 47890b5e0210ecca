package chat

import (
	"encoding/json"
	"strings"
)

// leaked is the set of fields recognised when a backend returns its own JSON
// schema serialized inside the reply text.
type leaked struct {
	Response     *string `json:"response"`
	SpokenText   *string `json:"spokenText"`
	ShouldSearch *bool   `json:"should_search"`
	SearchTerms  Terms   `json:"search_terms"`
	ShouldStop   *bool   `json:"should_stop"`
	Language     string  `json:"language"`
}

// Normalize repairs an Interpretation whose SpokenText is a serialized JSON
// reply. When SpokenText decodes to an object with a "response" (or
// "spokenText") string field, the decoded fields are merged: the inner text
// replaces SpokenText, search and stop flags are OR-ed, and decoded search
// terms fill in missing ones. Any other SpokenText is returned unchanged.
func Normalize(in Interpretation) Interpretation {
	raw := stripFences(strings.TrimSpace(in.SpokenText))
	if !strings.HasPrefix(raw, "{") {
		return in
	}
	var l leaked
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return in
	}
	text := l.Response
	if text == nil {
		text = l.SpokenText
	}
	if text == nil {
		return in
	}

	out := in
	out.SpokenText = strings.TrimSpace(*text)
	if l.ShouldSearch != nil && *l.ShouldSearch {
		out.ShouldSearch = true
	}
	if l.ShouldStop != nil && *l.ShouldStop {
		out.ShouldStop = true
	}
	if len(out.SearchTerms) == 0 && len(l.SearchTerms) > 0 {
		out.SearchTerms = []string(l.SearchTerms)
	}
	if out.Language == "" {
		out.Language = l.Language
	}
	return out
}

// stripFences removes a surrounding Markdown code fence.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
