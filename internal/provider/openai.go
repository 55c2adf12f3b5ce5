package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"
)

// OpenAI translates through an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	apiKey      string
	model       string
	endpointURL string
	modelsURL   string
	http        *httpClient
}

func NewOpenAI(opts Options) *OpenAI {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultOpenAIModel
	}
	completions := chatCompletionsURL(normalizeEndpoint(opts.BaseURL))
	return &OpenAI{
		apiKey:      strings.TrimSpace(opts.APIKey),
		model:       model,
		endpointURL: completions,
		modelsURL:   strings.TrimSuffix(completions, "/chat/completions") + "/models",
		http:        newHTTPClient("openai", opts),
	}
}

func (p *OpenAI) Name() string {
	return "openai"
}

func (p *OpenAI) ModelName() string {
	if p == nil {
		return ""
	}
	return p.model
}

func (p *OpenAI) Translate(ctx context.Context, req Request) (*Response, error) {
	if p.apiKey == "" {
		return nil, newError(p.Name(), "translate", 0, ErrNotConfigured)
	}

	content, err := p.complete(ctx, "translate", translationPrompt(req), true)
	if err != nil {
		return nil, err
	}
	translated, detected := parseLLMTranslation(content)
	if translated == "" {
		return nil, newError(p.Name(), "translate", 0, fmt.Errorf("translation response was empty"))
	}
	return &Response{
		Text:               translated,
		DetectedSourceLang: detected,
		Model:              p.model,
		Characters:         characters(req.Text),
	}, nil
}

func (p *OpenAI) DetectLanguage(ctx context.Context, text string) (string, error) {
	if p.apiKey == "" {
		return "", newError(p.Name(), "detect", 0, ErrNotConfigured)
	}
	content, err := p.complete(ctx, "detect", detectInstruction+text, false)
	if err != nil {
		return "", err
	}
	code := parseDetectedCode(content)
	if code == "" {
		return "", newError(p.Name(), "detect", 0, fmt.Errorf("unrecognised language reply %q", strings.TrimSpace(content)))
	}
	return code, nil
}

func (p *OpenAI) Ping(ctx context.Context) error {
	if p.apiKey == "" {
		return newError(p.Name(), "ping", 0, ErrNotConfigured)
	}
	return p.http.doJSON(ctx, "ping", http.MethodGet, p.modelsURL, p.headers(), nil, nil)
}

func (p *OpenAI) complete(ctx context.Context, op, prompt string, jsonResponse bool) (string, error) {
	payload := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	}
	if jsonResponse {
		payload.ResponseFormat = &chatResponseFormat{Type: "json_object"}
	}

	var parsed chatResponse
	if err := p.http.doJSON(ctx, op, http.MethodPost, p.endpointURL, p.headers(), payload, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", newError(p.Name(), op, 0, fmt.Errorf("response missing choices"))
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", newError(p.Name(), op, 0, fmt.Errorf("response was empty"))
	}
	return content, nil
}

func (p *OpenAI) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

type chatRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	Temperature    float64             `json:"temperature,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	if endpoint == "" {
		return DefaultOpenAIBaseURL
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultOpenAIBaseURL
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	if parsed.Path == "" {
		parsed.Path = "/v1"
	}
	return parsed.String()
}

func chatCompletionsURL(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || strings.TrimSpace(parsed.Host) == "" {
		return DefaultOpenAIBaseURL + "/chat/completions"
	}

	path := strings.TrimRight(parsed.Path, "/")
	switch {
	case strings.HasSuffix(path, "/chat/completions"):
		parsed.Path = path
	case strings.HasSuffix(path, "/v1"):
		parsed.Path = path + "/chat/completions"
	case path == "":
		parsed.Path = "/v1/chat/completions"
	default:
		parsed.Path = path + "/v1/chat/completions"
	}

	return parsed.String()
}
