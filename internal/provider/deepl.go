package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"horse.fit/babel/internal/language"
)

const (
	DeepLProBaseURL  = "https://api.deepl.com"
	DeepLFreeBaseURL = "https://api-free.deepl.com"

	deeplDetectSampleRunes = 200
)

// DeepL target codes that require a regional variant.
var deeplTargetVariants = map[string]string{
	"en": "EN-US",
	"pt": "PT-PT",
}

// DeepL calls the DeepL v2 REST API.
type DeepL struct {
	apiKey  string
	baseURL string
	http    *httpClient
}

func NewDeepL(opts Options) *DeepL {
	key := strings.TrimSpace(opts.APIKey)
	fallback := DeepLProBaseURL
	if strings.HasSuffix(key, ":fx") {
		fallback = DeepLFreeBaseURL
	}
	return &DeepL{
		apiKey:  key,
		baseURL: trimBaseURL(opts.BaseURL, fallback),
		http:    newHTTPClient("deepl", opts),
	}
}

func (p *DeepL) Name() string {
	return "deepl"
}

func (p *DeepL) Translate(ctx context.Context, req Request) (*Response, error) {
	if p.apiKey == "" {
		return nil, newError(p.Name(), "translate", 0, ErrNotConfigured)
	}
	translated, detected, err := p.translate(ctx, "translate", req)
	if err != nil {
		return nil, err
	}
	return &Response{
		Text:               translated,
		DetectedSourceLang: detected,
		Characters:         characters(req.Text),
	}, nil
}

// DetectLanguage translates a short sample and reads the detected source
// language; DeepL has no standalone detection endpoint.
func (p *DeepL) DetectLanguage(ctx context.Context, text string) (string, error) {
	if p.apiKey == "" {
		return "", newError(p.Name(), "detect", 0, ErrNotConfigured)
	}
	sample := []rune(text)
	if len(sample) > deeplDetectSampleRunes {
		sample = sample[:deeplDetectSampleRunes]
	}
	_, detected, err := p.translate(ctx, "detect", Request{Text: string(sample), TargetLang: "en"})
	if err != nil {
		return "", err
	}
	if detected == "" {
		return "", newError(p.Name(), "detect", 0, fmt.Errorf("response missing detected_source_language"))
	}
	return detected, nil
}

func (p *DeepL) Ping(ctx context.Context) error {
	if p.apiKey == "" {
		return newError(p.Name(), "ping", 0, ErrNotConfigured)
	}
	return p.http.doJSON(ctx, "ping", http.MethodGet, p.baseURL+"/v2/usage", p.headers(), nil, nil)
}

func (p *DeepL) translate(ctx context.Context, op string, req Request) (string, string, error) {
	payload := deeplRequest{
		Text:       []string{req.Text},
		TargetLang: deeplTarget(req.TargetLang),
		Context:    strings.TrimSpace(req.Context),
	}
	if !isAuto(req.SourceLang) {
		payload.SourceLang = strings.ToUpper(language.NormalizeCode(req.SourceLang))
	}

	var parsed deeplResponse
	if err := p.http.doJSON(ctx, op, http.MethodPost, p.baseURL+"/v2/translate", p.headers(), payload, &parsed); err != nil {
		return "", "", err
	}
	if len(parsed.Translations) == 0 {
		return "", "", newError(p.Name(), op, 0, fmt.Errorf("response missing translations"))
	}
	first := parsed.Translations[0]
	translated := strings.TrimSpace(first.Text)
	if translated == "" {
		return "", "", newError(p.Name(), op, 0, fmt.Errorf("translation response was empty"))
	}
	return translated, language.NormalizeCode(first.DetectedSourceLanguage), nil
}

func (p *DeepL) headers() map[string]string {
	return map[string]string{"Authorization": "DeepL-Auth-Key " + p.apiKey}
}

func deeplTarget(lang string) string {
	code := language.NormalizeCode(lang)
	if variant, ok := deeplTargetVariants[code]; ok {
		return variant
	}
	return strings.ToUpper(code)
}

type deeplRequest struct {
	Text       []string `json:"text"`
	SourceLang string   `json:"source_lang,omitempty"`
	TargetLang string   `json:"target_lang"`
	Context    string   `json:"context,omitempty"`
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}
