package language

import "sort"

// Auto is the source language placeholder that asks providers to detect.
const Auto = "auto"

// Option is one entry of the supported-language enumeration.
type Option struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Native string `json:"native,omitempty"`
}

type languageLabel struct {
	english string
	native  string
}

var supportedLanguages = map[string]languageLabel{
	"ar": {english: "Arabic", native: "العربية"},
	"cs": {english: "Czech", native: "Čeština"},
	"da": {english: "Danish", native: "Dansk"},
	"de": {english: "German", native: "Deutsch"},
	"el": {english: "Greek", native: "Ελληνικά"},
	"en": {english: "English", native: "English"},
	"es": {english: "Spanish", native: "Español"},
	"fi": {english: "Finnish", native: "Suomi"},
	"fr": {english: "French", native: "Français"},
	"hi": {english: "Hindi", native: "हिन्दी"},
	"hu": {english: "Hungarian", native: "Magyar"},
	"id": {english: "Indonesian", native: "Bahasa Indonesia"},
	"it": {english: "Italian", native: "Italiano"},
	"ja": {english: "Japanese", native: "日本語"},
	"ko": {english: "Korean", native: "한국어"},
	"nl": {english: "Dutch", native: "Nederlands"},
	"no": {english: "Norwegian", native: "Norsk"},
	"pl": {english: "Polish", native: "Polski"},
	"pt": {english: "Portuguese", native: "Português"},
	"ro": {english: "Romanian", native: "Română"},
	"ru": {english: "Russian", native: "Русский"},
	"sv": {english: "Swedish", native: "Svenska"},
	"th": {english: "Thai", native: "ไทย"},
	"tr": {english: "Turkish", native: "Türkçe"},
	"uk": {english: "Ukrainian", native: "Українська"},
	"vi": {english: "Vietnamese", native: "Tiếng Việt"},
	"zh": {english: "Chinese", native: "中文"},
}

// IsSupported reports whether code (normalized to its primary subtag) is a
// supported translation language.
func IsSupported(code string) bool {
	_, ok := supportedLanguages[NormalizeCode(code)]
	return ok
}

// SupportedCodes returns the supported language codes in sorted order.
func SupportedCodes() []string {
	codes := make([]string, 0, len(supportedLanguages))
	for code := range supportedLanguages {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Supported returns the enumerated code -> display name table.
func Supported() []Option {
	codes := SupportedCodes()
	options := make([]Option, 0, len(codes))
	for _, code := range codes {
		labels := supportedLanguages[code]
		options = append(options, Option{
			Code:   code,
			Label:  labels.english,
			Native: labels.native,
		})
	}
	return options
}

// EnglishName returns the English display name, falling back to the code.
func EnglishName(code string) string {
	normalized := NormalizeCode(code)
	if labels, ok := supportedLanguages[normalized]; ok {
		return labels.english
	}
	if normalized == "" {
		return code
	}
	return normalized
}
