// Package translate defines the Provider interface for localizing the
// assistant's own phrases (greeting, search announcements, result summaries)
// into the session language.
package translate

import (
	"context"
	"log/slog"
	"strings"
)

// Provider translates English text into a target language.
// Implementations must be safe for concurrent use.
type Provider interface {
	Translate(ctx context.Context, text, language string) (string, error)
}

// IsEnglish reports whether language names English or is unset.
func IsEnglish(language string) bool {
	l := strings.ToLower(strings.TrimSpace(language))
	return l == "" || l == "en" || strings.HasPrefix(l, "en-")
}

// Localize returns text translated into language. It never fails: English,
// a nil provider, an empty translation and any provider error all yield text
// unchanged.
func Localize(ctx context.Context, p Provider, text, language string) string {
	if p == nil || text == "" || IsEnglish(language) {
		return text
	}
	out, err := p.Translate(ctx, text, language)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("translate: falling back to source text", "language", language, "err", err)
		}
		return text
	}
	if out = strings.TrimSpace(out); out == "" {
		return text
	}
	return out
}
