package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"horse.fit/babel/internal/language"
)

const keyPrefix = "tr"

// Key derives the cache key for one translation. The text is hashed in full
// so distinct texts sharing a long prefix never collide. A non-empty context
// hint is folded into the digest because it can change the translation.
func Key(text, sourceLang, targetLang, hint string) string {
	h := sha256.New()
	h.Write([]byte(text))
	if hint = strings.TrimSpace(hint); hint != "" {
		h.Write([]byte{0})
		h.Write([]byte(hint))
	}
	return keyPrefix + ":" + keyLang(sourceLang) + ":" + keyLang(targetLang) + ":" + hex.EncodeToString(h.Sum(nil))
}

func keyLang(lang string) string {
	code := language.NormalizeCode(lang)
	if code == "" {
		return language.Auto
	}
	return code
}
