package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"

	"horse.fit/babel/internal/language"
)

// minLetters is the shortest sample lingua is asked about.
const minLetters = 6

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// Detect returns the most likely supported language of text with lingua's
// confidence in it. Short or unrecognised samples yield "".
func Detect(text string) (string, float64) {
	sample := strings.TrimSpace(text)
	if countLetters(sample) < minLetters {
		return "", 0
	}

	// Values arrive sorted by descending confidence.
	for _, value := range getDetector().ComputeLanguageConfidenceValues(sample) {
		if value.Value() <= 0 {
			break
		}
		code := strings.ToLower(value.Language().IsoCode639_1().String())
		if len(code) == 2 && language.IsSupported(code) {
			return code, value.Value()
		}
	}
	return "", 0
}

func countLetters(sample string) int {
	n := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// Models load lazily per language instead of preloading all of them.
func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			Build()
	})
	return detector
}
