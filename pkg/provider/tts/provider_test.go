package tts

import "testing"

func TestVoices_For(t *testing.T) {
	v := Voices{"": "default", "ar": "arabic", "en-GB": "british"}
	tests := []struct {
		lang, want string
	}{
		{"ar", "arabic"},
		{"ar-QA", "arabic"},
		{"en-GB", "british"},
		{"en-US", "default"},
		{"", "default"},
		{"fr", "default"},
	}
	for _, tc := range tests {
		if got := v.For(tc.lang); got != tc.want {
			t.Errorf("For(%q) = %q, want %q", tc.lang, got, tc.want)
		}
	}
}
