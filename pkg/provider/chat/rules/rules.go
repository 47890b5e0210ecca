// Package rules provides an offline chat provider.
//
// It needs no network: utterances that sound like a stop phrase end the
// conversation, greetings get a short greeting back, and everything else is
// searched for after stripping request fillers ("can I get", "please").
//
// Stop phrases are matched phonetically so that transcription slips such
// as "good by" or "thats all" still end the conversation. Each phrase is
// compared word by word with Double Metaphone codes and ranked with
// Jaro-Winkler similarity.
package rules

import (
	"context"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/voicesphere/pkg/provider/chat"
)

const defaultThreshold = 0.88

// DefaultStopPhrases end the conversation.
var DefaultStopPhrases = []string{
	"stop",
	"goodbye",
	"bye",
	"bye bye",
	"that's all",
	"that is all",
	"no thanks",
	"nothing else",
	"thank you that's all",
	"never mind",
	"cancel",
	"stop listening",
}

var greetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "salam": true, "marhaba": true,
	"good morning": true, "good evening": true,
}

// fillers are stripped from the front of an utterance, longest first.
var fillers = []string{
	"can you find me", "can you search for", "could you find me", "i would like to order",
	"i would like", "i'd like", "i want to order", "i want", "i'm looking for",
	"show me", "find me", "search for", "look for", "get me", "can i get", "can i have",
	"order", "some", "a", "an",
}

var _ chat.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithStopPhrases replaces DefaultStopPhrases.
func WithStopPhrases(phrases []string) Option {
	return func(p *Provider) {
		if len(phrases) > 0 {
			p.stopPhrases = phrases
		}
	}
}

// WithThreshold sets the minimum Jaro-Winkler score for a stop phrase match.
func WithThreshold(t float64) Option {
	return func(p *Provider) {
		if t > 0 {
			p.threshold = t
		}
	}
}

// Provider implements chat.Provider with fixed rules. It is read-only after
// construction and safe for concurrent use.
type Provider struct {
	stopPhrases []string
	threshold   float64
}

// New returns a Provider.
func New(opts ...Option) *Provider {
	p := &Provider{stopPhrases: DefaultStopPhrases, threshold: defaultThreshold}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Interpret implements chat.Provider.
func (p *Provider) Interpret(_ context.Context, req chat.Request) (chat.Interpretation, error) {
	text := normalize(req.Text)
	out := chat.Interpretation{SessionID: req.SessionID, Language: req.Language}

	switch {
	case text == "":
		out.SpokenText = "Sorry, I didn't catch that."
	case p.IsStopPhrase(text):
		out.ShouldStop = true
		out.SpokenText = "Goodbye! Enjoy your meal."
	case greetings[text]:
		out.SpokenText = "Hi! What would you like to eat?"
	default:
		out.ShouldSearch = true
		out.SearchTerms = []string{stripFillers(text)}
	}
	return out, nil
}

// IsStopPhrase reports whether the normalized utterance sounds like one of
// the configured stop phrases.
func (p *Provider) IsStopPhrase(text string) bool {
	words := strings.Fields(text)
	if len(words) == 0 || len(words) > 6 {
		return false
	}
	for _, phrase := range p.stopPhrases {
		pw := strings.Fields(normalize(phrase))
		if len(pw) != len(words) {
			continue
		}
		if strings.Join(pw, " ") == text {
			return true
		}
		if p.phraseScore(words, pw) >= p.threshold {
			return true
		}
	}
	return false
}

// phraseScore averages per-word similarity. A word pair that shares a
// Double Metaphone code scores at least the threshold.
func (p *Provider) phraseScore(a, b []string) float64 {
	var total float64
	for i := range a {
		s := matchr.JaroWinkler(a[i], b[i], false)
		if s < p.threshold && soundsAlike(a[i], b[i]) {
			s = p.threshold
		}
		total += s
	}
	return total / float64(len(a))
}

func soundsAlike(a, b string) bool {
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	if ap == "" || bp == "" {
		return false
	}
	return ap == bp || (as != "" && as == bs) || ap == bs || as == bp
}

// normalize lowercases s, drops punctuation except apostrophes and collapses
// whitespace.
func normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func stripFillers(text string) string {
	out := text
	for changed := true; changed; {
		changed = false
		for _, f := range fillers {
			if rest, ok := strings.CutPrefix(out, f+" "); ok && rest != "" {
				out = rest
				changed = true
				break
			}
		}
	}
	out = strings.TrimSuffix(out, " please")
	return strings.TrimSpace(out)
}
