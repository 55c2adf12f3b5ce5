package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"horse.fit/babel/internal/language"
)

const detectInstruction = "Identify the language of the following text. Reply with the ISO 639-1 code only, for example \"en\".\n\n"

// translationPrompt builds the instruction shared by the LLM adapters. The
// model is asked for a JSON object so the detected source language comes back
// alongside the translation.
func translationPrompt(req Request) string {
	var b strings.Builder
	target := language.EnglishName(req.TargetLang)
	if isAuto(req.SourceLang) {
		fmt.Fprintf(&b, "Translate the following text into %s.", target)
	} else {
		fmt.Fprintf(&b, "Translate the following text from %s into %s.", language.EnglishName(req.SourceLang), target)
	}
	if hint := strings.TrimSpace(req.Context); hint != "" {
		fmt.Fprintf(&b, " Context: %s.", hint)
	}
	b.WriteString(" Respond with a JSON object {\"translation\": string, \"source_lang\": ISO 639-1 code} and nothing else.\n\n")
	b.WriteString(req.Text)
	return b.String()
}

type llmTranslation struct {
	Translation string `json:"translation"`
	SourceLang  string `json:"source_lang"`
}

// parseLLMTranslation accepts the JSON object requested by translationPrompt,
// tolerating code fences. Plain text is taken as the translation itself.
func parseLLMTranslation(raw string) (text, sourceLang string) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var parsed llmTranslation
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return strings.TrimSpace(parsed.Translation), language.NormalizeCode(parsed.SourceLang)
		}
	}
	return strings.TrimSpace(raw), ""
}

// parseDetectedCode pulls the first token of a model reply and normalizes it.
func parseDetectedCode(raw string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(raw), func(r rune) bool {
		return r == ' ' || r == '\n' || r == '.' || r == ',' || r == '"' || r == '`'
	})
	if len(fields) == 0 {
		return ""
	}
	return language.NormalizeCode(fields[0])
}
