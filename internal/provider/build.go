package provider

import (
	"net/http"
	"strings"

	"horse.fit/babel/internal/config"
)

// BuildFromConfig constructs every adapter that has credentials and records
// the rest as skipped.
func BuildFromConfig(cfg *config.Config, client *http.Client) *Registry {
	registry := NewRegistry()
	if cfg == nil {
		return registry
	}

	base := Options{
		Timeout:    cfg.ProviderTimeout,
		RPS:        cfg.ProviderRPS,
		HTTPClient: client,
	}
	candidates := []struct {
		key   string
		build func(Options) Provider
		opts  Options
	}{
		{
			key:   cfg.OpenAIAPIKey,
			build: func(o Options) Provider { return NewOpenAI(o) },
			opts:  withCredentials(base, cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel),
		},
		{
			key:   cfg.DeepLAPIKey,
			build: func(o Options) Provider { return NewDeepL(o) },
			opts:  withCredentials(base, cfg.DeepLAPIKey, cfg.DeepLBaseURL, ""),
		},
		{
			key:   cfg.GoogleAPIKey,
			build: func(o Options) Provider { return NewGoogle(o) },
			opts:  withCredentials(base, cfg.GoogleAPIKey, cfg.GoogleBaseURL, ""),
		},
		{
			key:   cfg.AnthropicAPIKey,
			build: func(o Options) Provider { return NewAnthropic(o) },
			opts:  withCredentials(base, cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, cfg.AnthropicModel),
		},
		{
			key:   cfg.GeminiAPIKey,
			build: func(o Options) Provider { return NewGemini(o) },
			opts:  withCredentials(base, cfg.GeminiAPIKey, "", cfg.GeminiModel),
		},
	}

	for _, candidate := range candidates {
		adapter := candidate.build(candidate.opts)
		if strings.TrimSpace(candidate.key) == "" {
			registry.Skip(adapter.Name(), ErrNotConfigured)
			continue
		}
		_ = registry.Register(adapter)
	}
	return registry
}

func withCredentials(base Options, key, baseURL, model string) Options {
	base.APIKey = key
	base.BaseURL = baseURL
	base.Model = model
	return base
}
