package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// KnownProviders lists every provider name accepted in PROVIDER_PRIORITY.
var KnownProviders = []string{"openai", "deepl", "google", "anthropic", "gemini"}

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	RateLimitWindowMs      int           `envconfig:"RATE_LIMIT_WINDOW_MS" default:"60000"`
	RateLimitMax           int           `envconfig:"RATE_LIMIT_MAX" default:"60"`
	RateLimitBurst         int           `envconfig:"RATE_LIMIT_BURST" default:"10"`
	RateLimitBurstWindowMs int           `envconfig:"RATE_LIMIT_BURST_WINDOW_MS" default:"5000"`
	RateLimitSweepInterval time.Duration `envconfig:"RATE_LIMIT_SWEEP_INTERVAL" default:"1m"`

	CacheL1MaxEntries int           `envconfig:"CACHE_L1_MAX_ENTRIES" default:"10000"`
	CacheL1TTL        time.Duration `envconfig:"CACHE_L1_TTL" default:"1h"`
	CacheL2TTL        time.Duration `envconfig:"CACHE_L2_TTL" default:"168h"`
	SharedCacheURL    string        `envconfig:"SHARED_CACHE_URL" default:""`
	DBMinConns        int32         `envconfig:"DB_MIN_CONNS" default:"1"`
	DBMaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"8"`

	BudgetDaily          float64 `envconfig:"BUDGET_DAILY" default:"10"`
	BudgetMonthly        float64 `envconfig:"BUDGET_MONTHLY" default:"200"`
	BudgetAlertThreshold float64 `envconfig:"BUDGET_ALERT_THRESHOLD" default:"0.8"`
	BudgetHardFail       bool    `envconfig:"BUDGET_HARD_FAIL" default:"false"`
	CostRatesFile        string  `envconfig:"COST_RATES_FILE" default:""`

	ProviderPriority string        `envconfig:"PROVIDER_PRIORITY" default:"openai,deepl,google"`
	ProviderTimeout  time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"10s"`
	ProviderRPS      float64       `envconfig:"PROVIDER_RPS" default:"10"`

	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL    string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIModel      string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	DeepLAPIKey      string `envconfig:"DEEPL_API_KEY" default:""`
	DeepLBaseURL     string `envconfig:"DEEPL_BASE_URL" default:""`
	GoogleAPIKey     string `envconfig:"GOOGLE_API_KEY" default:""`
	GoogleBaseURL    string `envconfig:"GOOGLE_BASE_URL" default:"https://translation.googleapis.com"`
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY" default:""`
	AnthropicBaseURL string `envconfig:"ANTHROPIC_BASE_URL" default:""`
	AnthropicModel   string `envconfig:"ANTHROPIC_MODEL" default:"claude-3-5-haiku-20241022"`
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY" default:""`
	GeminiModel      string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`

	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"2"`
	RetryBaseDelay   time.Duration `envconfig:"RETRY_BASE_DELAY" default:"200ms"`
	RetryJitter      float64       `envconfig:"RETRY_JITTER" default:"0.2"`

	MaxTextLength    int           `envconfig:"TRANSLATE_MAX_TEXT_LENGTH" default:"5000"`
	BatchMaxItems    int           `envconfig:"BATCH_MAX_ITEMS" default:"100"`
	BatchConcurrency int           `envconfig:"BATCH_CONCURRENCY" default:"10"`
	BatchTimeout     time.Duration `envconfig:"BATCH_TIMEOUT" default:"60s"`

	PerfSlowThreshold        time.Duration `envconfig:"PERF_SLOW_THRESHOLD" default:"5s"`
	PerfFailureRateThreshold float64       `envconfig:"PERF_FAILURE_RATE_THRESHOLD" default:"0.10"`
	PerfWindowSize           int           `envconfig:"PERF_WINDOW_SIZE" default:"100"`
	PerfNotifyInterval       time.Duration `envconfig:"PERF_NOTIFY_INTERVAL" default:"5m"`

	DetectCacheMaxEntries int64         `envconfig:"DETECT_CACHE_MAX_ENTRIES" default:"10000"`
	DetectCacheTTL        time.Duration `envconfig:"DETECT_CACHE_TTL" default:"24h"`

	DefaultTargetLang  string `envconfig:"DEFAULT_TARGET_LANG" default:"en"`
	EnabledLanguages   string `envconfig:"ENABLED_LANGUAGES" default:""`
	AdminTokenHash     string `envconfig:"ADMIN_TOKEN_HASH" default:""`
	NotifyWebhookURL   string `envconfig:"NOTIFY_WEBHOOK_URL" default:""`
	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`

	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool `envconfig:"TRUST_PROXY" default:"false"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.RateLimitWindowMs < 1 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MS must be >= 1")
	}
	if c.RateLimitMax < 1 {
		return fmt.Errorf("RATE_LIMIT_MAX must be >= 1")
	}
	if c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if c.RateLimitBurst > 0 && c.RateLimitBurst >= c.RateLimitMax {
		return fmt.Errorf("RATE_LIMIT_BURST (%d) must be lower than RATE_LIMIT_MAX (%d)", c.RateLimitBurst, c.RateLimitMax)
	}
	if c.RateLimitBurst > 0 && c.RateLimitBurstWindowMs >= c.RateLimitWindowMs {
		return fmt.Errorf("RATE_LIMIT_BURST_WINDOW_MS must be shorter than RATE_LIMIT_WINDOW_MS")
	}
	if c.CacheL1MaxEntries < 1 {
		return fmt.Errorf("CACHE_L1_MAX_ENTRIES must be >= 1")
	}
	if c.CacheL1TTL <= 0 || c.CacheL2TTL <= 0 {
		return fmt.Errorf("CACHE_L1_TTL and CACHE_L2_TTL must be positive")
	}
	if c.CacheL1TTL >= c.CacheL2TTL {
		return fmt.Errorf("CACHE_L1_TTL (%s) must be shorter than CACHE_L2_TTL (%s)", c.CacheL1TTL, c.CacheL2TTL)
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) cannot exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.BudgetDaily < 0 || c.BudgetMonthly < 0 {
		return fmt.Errorf("BUDGET_DAILY and BUDGET_MONTHLY must be >= 0")
	}
	if c.BudgetAlertThreshold <= 0 || c.BudgetAlertThreshold > 1 {
		return fmt.Errorf("BUDGET_ALERT_THRESHOLD must be in (0, 1]")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT must be positive")
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if c.RetryJitter < 0 || c.RetryJitter > 1 {
		return fmt.Errorf("RETRY_JITTER must be in [0, 1]")
	}
	if c.MaxTextLength < 1 {
		return fmt.Errorf("TRANSLATE_MAX_TEXT_LENGTH must be >= 1")
	}
	if c.BatchMaxItems < 1 || c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_MAX_ITEMS and BATCH_CONCURRENCY must be >= 1")
	}
	if c.PerfFailureRateThreshold <= 0 || c.PerfFailureRateThreshold > 1 {
		return fmt.Errorf("PERF_FAILURE_RATE_THRESHOLD must be in (0, 1]")
	}
	if c.PerfWindowSize < 1 {
		return fmt.Errorf("PERF_WINDOW_SIZE must be >= 1")
	}
	if c.DetectCacheMaxEntries < 1 || c.DetectCacheTTL <= 0 {
		return fmt.Errorf("DETECT_CACHE_MAX_ENTRIES and DETECT_CACHE_TTL must be positive")
	}

	priority := c.ProviderPriorityList()
	if len(priority) == 0 {
		return fmt.Errorf("PROVIDER_PRIORITY must name at least one provider")
	}
	for _, name := range priority {
		if !isKnownProvider(name) {
			return fmt.Errorf("PROVIDER_PRIORITY contains unknown provider %q (known: %s)", name, strings.Join(KnownProviders, ", "))
		}
	}
	return nil
}

// ProviderPriorityList returns the normalized, de-duplicated fallback order.
func (c *Config) ProviderPriorityList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.ProviderPriority, strings.ToLower)
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins, nil)
}

// EnabledLanguagesList returns the lowercased allow-list; empty means every
// supported language.
func (c *Config) EnabledLanguagesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.EnabledLanguages, strings.ToLower)
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMs) * time.Millisecond
}

func (c *Config) RateLimitBurstWindow() time.Duration {
	return time.Duration(c.RateLimitBurstWindowMs) * time.Millisecond
}

func splitList(raw string, transform func(string) string) []string {
	parts := strings.Split(raw, ",")
	items := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if transform != nil {
			item = transform(item)
		}
		if item == "" {
			continue
		}
		if _, exists := seen[item]; exists {
			continue
		}
		seen[item] = struct{}{}
		items = append(items, item)
	}
	return items
}

func isKnownProvider(name string) bool {
	for _, known := range KnownProviders {
		if known == name {
			return true
		}
	}
	return false
}
