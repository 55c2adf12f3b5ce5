package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultAnthropicModel = "claude-3-5-haiku-20241022"

	anthropicMaxTokens = 4096
)

// Anthropic translates with the Claude Messages API.
type Anthropic struct {
	model   string
	client  *anthropic.Client
	limiter *rate.Limiter
	timeout time.Duration
}

func NewAnthropic(opts Options) *Anthropic {
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultAnthropicModel
	}
	p := &Anthropic{
		model:   model,
		limiter: newLimiter(opts.RPS),
		timeout: opts.timeout(),
	}
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return p
	}

	var clientOpts []anthropic.ClientOption
	if baseURL := strings.TrimSpace(opts.BaseURL); baseURL != "" {
		clientOpts = append(clientOpts, anthropic.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, anthropic.WithHTTPClient(opts.HTTPClient))
	}
	p.client = anthropic.NewClient(key, clientOpts...)
	return p
}

func (p *Anthropic) Name() string {
	return "anthropic"
}

func (p *Anthropic) ModelName() string {
	if p == nil {
		return ""
	}
	return p.model
}

func (p *Anthropic) Translate(ctx context.Context, req Request) (*Response, error) {
	content, err := p.message(ctx, "translate", translationPrompt(req), anthropicMaxTokens)
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

func (p *Anthropic) DetectLanguage(ctx context.Context, text string) (string, error) {
	content, err := p.message(ctx, "detect", detectInstruction+text, 16)
	if err != nil {
		return "", err
	}
	code := parseDetectedCode(content)
	if code == "" {
		return "", newError(p.Name(), "detect", 0, fmt.Errorf("unrecognised language reply %q", strings.TrimSpace(content)))
	}
	return code, nil
}

// Ping sends a one-token message; the Messages API has no cheaper probe.
func (p *Anthropic) Ping(ctx context.Context) error {
	_, err := p.message(ctx, "ping", "ping", 1)
	return err
}

func (p *Anthropic) message(ctx context.Context, op, prompt string, maxTokens int) (string, error) {
	if p.client == nil {
		return "", newError(p.Name(), op, 0, ErrNotConfigured)
	}
	callCtx, cancel, err := begin(ctx, p.Name(), op, p.limiter, p.timeout)
	if err != nil {
		return "", err
	}
	defer cancel()

	temperature := float32(0.2)
	resp, err := p.client.CreateMessages(callCtx, anthropic.MessagesRequest{
		Model:       p.model,
		Messages:    []anthropic.Message{anthropic.NewUserTextMessage(prompt)},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return "", newError(p.Name(), op, anthropicStatus(err), err)
	}
	if op == "ping" {
		return "", nil
	}
	if len(resp.Content) == 0 {
		return "", newError(p.Name(), op, 0, fmt.Errorf("response missing content"))
	}
	text := strings.TrimSpace(resp.GetFirstContentText())
	if text == "" {
		return "", newError(p.Name(), op, 0, fmt.Errorf("response was empty"))
	}
	return text, nil
}

func anthropicStatus(err error) int {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) && apiErr.IsRateLimitErr() {
		return http.StatusTooManyRequests
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}
