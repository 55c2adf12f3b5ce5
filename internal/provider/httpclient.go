package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

const maxErrorBodyLen = 512

// httpClient is the JSON-over-HTTP plumbing shared by the REST adapters.
type httpClient struct {
	provider string
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
}

func newHTTPClient(provider string, opts Options) *httpClient {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &httpClient{
		provider: provider,
		client:   client,
		limiter:  newLimiter(opts.RPS),
		timeout:  opts.timeout(),
	}
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// begin applies the outbound limiter and the per-call timeout.
func begin(ctx context.Context, provider, op string, limiter *rate.Limiter, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, nil, newError(provider, op, 0, fmt.Errorf("wait for rate limiter: %w", err))
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	return callCtx, cancel, nil
}

func (c *httpClient) doJSON(ctx context.Context, op, method, endpoint string, headers map[string]string, payload, out any) error {
	callCtx, cancel, err := begin(ctx, c.provider, op, c.limiter, c.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return newError(c.provider, op, 0, fmt.Errorf("marshal request: %w", err))
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(callCtx, method, endpoint, body)
	if err != nil {
		return newError(c.provider, op, 0, fmt.Errorf("build request: %w", err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return newError(c.provider, op, 0, fmt.Errorf("timed out after %s: %w", c.timeout, context.DeadlineExceeded))
		}
		return newError(c.provider, op, 0, fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return newError(c.provider, op, resp.StatusCode, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(c.provider, op, resp.StatusCode, errors.New(errorMessage(respBody)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return newError(c.provider, op, 0, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

type errorPayload struct {
	Message string `json:"message"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// errorMessage extracts a message from the common {"error":{"message"}} and
// {"message"} shapes, falling back to the trimmed raw body.
func errorMessage(body []byte) string {
	var parsed errorPayload
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
			return strings.TrimSpace(parsed.Error.Message)
		}
		if msg := strings.TrimSpace(parsed.Message); msg != "" {
			return msg
		}
	}
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return "empty error response"
	}
	if len(raw) > maxErrorBodyLen {
		raw = raw[:maxErrorBodyLen]
		for !utf8.ValidString(raw) {
			raw = raw[:len(raw)-1]
		}
	}
	return raw
}

func characters(text string) int {
	return utf8.RuneCountInString(text)
}

func isAuto(lang string) bool {
	trimmed := strings.TrimSpace(lang)
	return trimmed == "" || strings.EqualFold(trimmed, autoLanguage)
}

func trimBaseURL(raw, fallback string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
