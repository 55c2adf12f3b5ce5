package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini translates with the Gemini API through the genai SDK. The client is
// created lazily on first use.
type Gemini struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration

	once      sync.Once
	client    *genai.Client
	clientErr error
}

func NewGemini(opts Options) *Gemini {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    strings.TrimSpace(opts.BaseURL),
		model:      model,
		httpClient: opts.HTTPClient,
		limiter:    newLimiter(opts.RPS),
		timeout:    opts.timeout(),
	}
}

func (p *Gemini) Name() string {
	return "gemini"
}

func (p *Gemini) ModelName() string {
	if p == nil {
		return ""
	}
	return p.model
}

func (p *Gemini) Translate(ctx context.Context, req Request) (*Response, error) {
	content, err := p.generate(ctx, "translate", translationPrompt(req), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.2),
		ResponseMIMEType: "application/json",
	})
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

func (p *Gemini) DetectLanguage(ctx context.Context, text string) (string, error) {
	content, err := p.generate(ctx, "detect", detectInstruction+text, nil)
	if err != nil {
		return "", err
	}
	code := parseDetectedCode(content)
	if code == "" {
		return "", newError(p.Name(), "detect", 0, fmt.Errorf("unrecognised language reply %q", strings.TrimSpace(content)))
	}
	return code, nil
}

// Ping looks up the configured model.
func (p *Gemini) Ping(ctx context.Context) error {
	client, err := p.ensureClient(ctx, "ping")
	if err != nil {
		return err
	}
	callCtx, cancel, err := begin(ctx, p.Name(), "ping", p.limiter, p.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := client.Models.Get(callCtx, p.model, nil); err != nil {
		return newError(p.Name(), "ping", geminiStatus(err), err)
	}
	return nil
}

func (p *Gemini) generate(ctx context.Context, op, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	client, err := p.ensureClient(ctx, op)
	if err != nil {
		return "", err
	}
	callCtx, cancel, err := begin(ctx, p.Name(), op, p.limiter, p.timeout)
	if err != nil {
		return "", err
	}
	defer cancel()

	resp, err := client.Models.GenerateContent(callCtx, p.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", newError(p.Name(), op, geminiStatus(err), err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", newError(p.Name(), op, 0, fmt.Errorf("response was empty"))
	}
	return text, nil
}

func (p *Gemini) ensureClient(ctx context.Context, op string) (*genai.Client, error) {
	if p.apiKey == "" {
		return nil, newError(p.Name(), op, 0, ErrNotConfigured)
	}
	p.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:  p.apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		if p.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
		}
		if p.httpClient != nil {
			cfg.HTTPClient = p.httpClient
		}
		p.client, p.clientErr = genai.NewClient(ctx, cfg)
	})
	if p.clientErr != nil {
		return nil, newError(p.Name(), op, 0, fmt.Errorf("create genai client: %w", p.clientErr))
	}
	return p.client, nil
}

func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}
