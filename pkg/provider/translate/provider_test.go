package translate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voicesphere/pkg/provider/translate"
	"github.com/MrWong99/voicesphere/pkg/provider/translate/mock"
)

func TestLocalize(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		p        *mock.Provider
		language string
		want     string
		calls    int
	}{
		{"english skips provider", &mock.Provider{Result: "x"}, "en", "Searching for pizza", 0},
		{"regional english skips provider", &mock.Provider{Result: "x"}, "en-GB", "Searching for pizza", 0},
		{"translated", &mock.Provider{Result: "جاري البحث عن بيتزا"}, "ar", "جاري البحث عن بيتزا", 1},
		{"error keeps source", &mock.Provider{Err: errors.New("down")}, "ar", "Searching for pizza", 1},
		{"empty keeps source", &mock.Provider{Result: "  "}, "fr", "Searching for pizza", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := translate.Localize(ctx, tc.p, "Searching for pizza", tc.language)
			if got != tc.want {
				t.Errorf("Localize = %q, want %q", got, tc.want)
			}
			if n := tc.p.CallCount(); n != tc.calls {
				t.Errorf("calls = %d, want %d", n, tc.calls)
			}
		})
	}
}

func TestLocalize_NilProvider(t *testing.T) {
	if got := translate.Localize(context.Background(), nil, "hi", "ar"); got != "hi" {
		t.Errorf("Localize = %q", got)
	}
}
