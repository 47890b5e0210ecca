package conversation

import "fmt"

// Templates holds the assistant's own phrases. They are written in English
// and localized at runtime when the session language differs.
type Templates struct {
	Greeting         string
	Searching        string // %s is the query
	ResultsFound     string // %d is the total, %s the query
	NoResults        string // %s is the query
	GenericError     string
	PermissionDenied string
}

// DefaultTemplates are used for empty fields.
var DefaultTemplates = Templates{
	Greeting:         "Hi! What would you like to eat today?",
	Searching:        "Searching for %s",
	ResultsFound:     "Found %d results for %s",
	NoResults:        "No results found for %s. Try something else!",
	GenericError:     "Sorry, I had trouble processing that. Please try again.",
	PermissionDenied: "Microphone access was denied.",
}

func (t Templates) withDefaults() Templates {
	d := DefaultTemplates
	if t.Greeting == "" {
		t.Greeting = d.Greeting
	}
	if t.Searching == "" {
		t.Searching = d.Searching
	}
	if t.ResultsFound == "" {
		t.ResultsFound = d.ResultsFound
	}
	if t.NoResults == "" {
		t.NoResults = d.NoResults
	}
	if t.GenericError == "" {
		t.GenericError = d.GenericError
	}
	if t.PermissionDenied == "" {
		t.PermissionDenied = d.PermissionDenied
	}
	return t
}

func (t Templates) searching(query string) string {
	return fmt.Sprintf(t.Searching, query)
}

func (t Templates) summary(total int, query string) string {
	if total > 0 {
		return fmt.Sprintf(t.ResultsFound, total, query)
	}
	return fmt.Sprintf(t.NoResults, query)
}
