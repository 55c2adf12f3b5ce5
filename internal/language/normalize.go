package language

import (
	"strings"
	"sync"
)

// codeAliases maps ISO 639-2/3 codes and legacy two-letter codes that
// providers still emit onto the codes in the supported table.
var codeAliases = map[string]string{
	"ara": "ar", "ces": "cs", "cze": "cs", "dan": "da", "deu": "de", "ger": "de",
	"ell": "el", "gre": "el", "eng": "en", "spa": "es", "fin": "fi", "fra": "fr",
	"fre": "fr", "hin": "hi", "hun": "hu", "ind": "id", "in": "id", "ita": "it",
	"jpn": "ja", "kor": "ko", "nld": "nl", "dut": "nl", "nor": "no", "nob": "no",
	"nb": "no", "nn": "no", "pol": "pl", "por": "pt", "ron": "ro", "rum": "ro",
	"rus": "ru", "swe": "sv", "tha": "th", "tur": "tr", "ukr": "uk", "vie": "vi",
	"zho": "zh", "chi": "zh", "cmn": "zh",
}

var (
	namesOnce   sync.Once
	codesByName map[string]string
)

// NormalizeTag lowercases a BCP 47-ish tag and joins its subtags with "-".
// Blank input or a subtag with anything but ASCII letters yields "".
func NormalizeTag(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}

	parts := strings.FieldsFunc(trimmed, func(r rune) bool { return r == '-' || r == '_' })
	for _, part := range parts {
		for _, r := range part {
			if r < 'a' || r > 'z' {
				return ""
			}
		}
	}
	return strings.Join(parts, "-")
}

// NormalizeCode reduces a provider or client language value to its primary
// subtag: "EN-us" and "eng" become "en", and an English language name such
// as "French" becomes "fr".
func NormalizeCode(raw string) string {
	if code, ok := codeForName(raw); ok {
		return code
	}

	tag := NormalizeTag(raw)
	if tag == "" {
		return ""
	}
	primary, _, _ := strings.Cut(tag, "-")
	if alias, ok := codeAliases[primary]; ok {
		return alias
	}
	return primary
}

func codeForName(raw string) (string, bool) {
	namesOnce.Do(func() {
		codesByName = make(map[string]string, len(supportedLanguages))
		for code, labels := range supportedLanguages {
			codesByName[strings.ToLower(labels.english)] = code
		}
	})
	code, ok := codesByName[strings.ToLower(strings.TrimSpace(raw))]
	return code, ok
}
