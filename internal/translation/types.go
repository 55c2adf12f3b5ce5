package translation

import (
	"time"

	"horse.fit/babel/internal/cache"
	"horse.fit/babel/internal/cost"
	"horse.fit/babel/internal/perf"
)

// ProviderIdentity names results produced without a provider because source
// and target languages match.
const ProviderIdentity = "identity"

// Request is one text to translate. SourceLang may be empty or "auto".
type Request struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang"`
	// Context is an optional hint forwarded to providers that accept one.
	Context string `json:"context,omitempty"`
}

type Result struct {
	ID             string `json:"id"`
	TranslatedText string `json:"translated_text"`
	Provider       string `json:"provider"`
	SourceLang     string `json:"source_lang"`
	TargetLang     string `json:"target_lang"`
	FromCache      bool   `json:"from_cache"`
	CacheTier      string `json:"cache_tier,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
}

// BatchItem is the outcome of one batch entry. Exactly one of Result and
// Error is set.
type BatchItem struct {
	Index  int     `json:"index"`
	Result *Result `json:"result,omitempty"`
	Error  string  `json:"error,omitempty"`
}

type BatchResult struct {
	ID         string      `json:"id"`
	Items      []BatchItem `json:"items"`
	Total      int         `json:"total"`
	Succeeded  int         `json:"succeeded"`
	Failed     int         `json:"failed"`
	Cached     int         `json:"cached"`
	DurationMs int64       `json:"duration_ms"`
}

type Detection struct {
	Language   string  `json:"language"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence,omitempty"`
	Cached     bool    `json:"cached"`
}

type ComponentHealth struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

type Health struct {
	Status      string            `json:"status"`
	Providers   []ComponentHealth `json:"providers"`
	SharedCache *ComponentHealth  `json:"shared_cache,omitempty"`
	CheckedAt   time.Time         `json:"checked_at"`
}

// Snapshot is the read-only reporting view across all monitors.
type Snapshot struct {
	GeneratedAt  time.Time    `json:"generated_at"`
	Providers    []string     `json:"providers"`
	Usage        cost.Usage   `json:"usage"`
	BudgetAlerts []cost.Alert `json:"budget_alerts"`
	Performance  perf.Report  `json:"performance"`
	Cache        cache.Stats  `json:"cache"`
	Clients      int          `json:"tracked_clients"`
}
