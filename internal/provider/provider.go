package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned by adapters that lack credentials.
var ErrNotConfigured = errors.New("provider is not configured")

// Provider is one external translation backend.
type Provider interface {
	Name() string
	Translate(ctx context.Context, req Request) (*Response, error)
	DetectLanguage(ctx context.Context, text string) (string, error)
	Ping(ctx context.Context) error
}

// Request describes one translation call.
type Request struct {
	Text string
	// SourceLang is an ISO 639-1 code, or empty/"auto" to let the provider detect.
	SourceLang string
	TargetLang string
	// Context is an optional hint about where the text appears.
	Context string
}

// Response contains translated text and provider metadata.
type Response struct {
	Text               string
	DetectedSourceLang string
	Model              string
	// Characters is the billable input size in runes.
	Characters int
}

// Error is the uniform adapter failure.
type Error struct {
	Provider   string
	Op         string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(provider, op string, status int, cause error) *Error {
	return &Error{Provider: provider, Op: op, StatusCode: status, Cause: cause}
}

// Retryable reports whether another attempt against the same provider could
// succeed. Client-side 4xx failures and missing credentials are permanent.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, context.Canceled) {
		return false
	}
	var perr *Error
	if errors.As(err, &perr) && perr.StatusCode != 0 {
		return perr.StatusCode == http.StatusTooManyRequests ||
			perr.StatusCode == http.StatusRequestTimeout ||
			perr.StatusCode >= 500
	}
	return true
}

// Options are shared by every adapter constructor.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// RPS caps outbound calls per second; zero or less disables throttling.
	RPS        float64
	HTTPClient *http.Client
}

const (
	DefaultTimeout = 10 * time.Second
	autoLanguage   = "auto"
)

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

type modelNamer interface {
	ModelName() string
}

// ModelName returns the configured model of p, or "" for character-priced
// providers.
func ModelName(p Provider) string {
	if named, ok := p.(modelNamer); ok {
		return named.ModelName()
	}
	return ""
}
