package browser

import "strings"

// Voice is one speech-synthesis voice offered by the browser.
type Voice struct {
	Name string `json:"name"`
	Lang string `json:"lang"`
}

// SelectVoice picks the voice to speak language with.
//
// Voices whose tag starts with the primary subtag of language are candidates.
// Among them an exact tag match wins, then the "xx-XX" form ("fr-FR"), then
// the first candidate. Without candidates it falls back to en-US, any
// English voice, and finally the first voice. ok is false only when voices
// is empty.
func SelectVoice(voices []Voice, language string) (v Voice, ok bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	primary, _, _ := strings.Cut(language, "-")
	if primary != "" {
		if v, ok := pick(voices, primary, language, primary+"-"+strings.ToUpper(primary)); ok {
			return v, true
		}
	}
	if v, ok := pick(voices, "en", "en-US"); ok {
		return v, true
	}
	return voices[0], true
}

// pick returns the first voice matching one of preferred tags among those
// with prefix, or the first voice with prefix.
func pick(voices []Voice, prefix string, preferred ...string) (Voice, bool) {
	var first *Voice
	for _, tag := range preferred {
		for i := range voices {
			v := &voices[i]
			if !hasLangPrefix(v.Lang, prefix) {
				continue
			}
			if first == nil {
				first = v
			}
			if tag != "" && strings.EqualFold(v.Lang, tag) {
				return *v, true
			}
		}
	}
	if first != nil {
		return *first, true
	}
	return Voice{}, false
}

func hasLangPrefix(tag, prefix string) bool {
	return len(tag) >= len(prefix) && strings.EqualFold(tag[:len(prefix)], prefix)
}
