package perf

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/babel/internal/notify"
)

const (
	DefaultSlowThreshold        = 5 * time.Second
	DefaultFailureRateThreshold = 0.10
	DefaultWindowSize           = 100
	DefaultMinSamples           = 10
	DefaultMaxAlerts            = 50
	DefaultNotifyInterval       = 5 * time.Minute

	lowHitRate = 0.5

	AlertSlowRequest = "slow_request"
	AlertErrorRate   = "error_rate"

	notifyTimeout = 5 * time.Second
)

// Options configures thresholds and window sizes.
type Options struct {
	SlowThreshold        time.Duration
	FailureRateThreshold float64
	WindowSize           int
	// MinSamples is the window fill needed before failure rates alert.
	MinSamples int
	MaxAlerts  int
	// NotifyInterval is the minimum gap between notifications for one alert
	// kind and scope. Alerts inside the gap are still logged and kept.
	NotifyInterval time.Duration
}

// Alert is one structured performance alert.
type Alert struct {
	Kind      string    `json:"kind"`
	Scope     string    `json:"scope"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// ScopeStats summarises one provider or language pair.
type ScopeStats struct {
	Scope           string  `json:"scope"`
	Count           int64   `json:"count"`
	Failures        int64   `json:"failures"`
	TotalDurationMs int64   `json:"total_duration_ms"`
	WindowSamples   int     `json:"window_samples"`
	AverageMs       float64 `json:"average_ms"`
	MaxMs           int64   `json:"max_ms"`
	FailureRate     float64 `json:"failure_rate"`
}

// CacheStats summarises cache lookups seen by the monitor.
type CacheStats struct {
	Lookups int64   `json:"lookups"`
	Hits    int64   `json:"hits"`
	HitRate float64 `json:"hit_rate"`
}

// Report is the read-only performance view.
type Report struct {
	GeneratedAt     time.Time    `json:"generated_at"`
	Providers       []ScopeStats `json:"providers"`
	LanguagePairs   []ScopeStats `json:"language_pairs"`
	Cache           CacheStats   `json:"cache"`
	Alerts          []Alert      `json:"alerts"`
	Recommendations []string     `json:"recommendations"`
}

type notifyState struct {
	at         time.Time
	suppressed int
}

type sample struct {
	durationMs int64
	failed     bool
}

// series keeps cumulative counters plus a ring of the most recent samples.
type series struct {
	mu       sync.Mutex
	count    int64
	failures int64
	totalMs  int64
	window   []sample
	next     int
	filled   bool
	alerting bool
}

func (s *series) add(smp sample, size int) {
	s.count++
	s.totalMs += smp.durationMs
	if smp.failed {
		s.failures++
	}
	if s.window == nil {
		s.window = make([]sample, size)
	}
	s.window[s.next] = smp
	s.next = (s.next + 1) % len(s.window)
	if s.next == 0 {
		s.filled = true
	}
}

func (s *series) samples() []sample {
	if s.filled {
		return s.window
	}
	return s.window[:s.next]
}

func (s *series) statsLocked(scope string) ScopeStats {
	stats := ScopeStats{
		Scope:           scope,
		Count:           s.count,
		Failures:        s.failures,
		TotalDurationMs: s.totalMs,
	}
	recent := s.samples()
	stats.WindowSamples = len(recent)
	if len(recent) == 0 {
		return stats
	}
	var total int64
	var failed int
	for _, smp := range recent {
		total += smp.durationMs
		if smp.durationMs > stats.MaxMs {
			stats.MaxMs = smp.durationMs
		}
		if smp.failed {
			failed++
		}
	}
	stats.AverageMs = float64(total) / float64(len(recent))
	stats.FailureRate = float64(failed) / float64(len(recent))
	return stats
}

// Option customizes a Monitor.
type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// Monitor tracks latency and failure rates per provider and language pair.
type Monitor struct {
	opts     Options
	notifier notify.Notifier
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	providers map[string]*series
	pairs     map[string]*series

	lookups atomic.Int64
	hits    atomic.Int64

	alertsMu sync.Mutex
	alerts   []Alert
	notified map[string]*notifyState

	background sync.WaitGroup
}

// NewMonitor builds a Monitor. notifier may be nil.
func NewMonitor(opts Options, notifier notify.Notifier, logger zerolog.Logger, options ...Option) *Monitor {
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = DefaultSlowThreshold
	}
	if opts.FailureRateThreshold <= 0 {
		opts.FailureRateThreshold = DefaultFailureRateThreshold
	}
	if opts.WindowSize < 1 {
		opts.WindowSize = DefaultWindowSize
	}
	if opts.MinSamples < 1 {
		opts.MinSamples = DefaultMinSamples
	}
	if opts.MinSamples > opts.WindowSize {
		opts.MinSamples = opts.WindowSize
	}
	if opts.MaxAlerts < 1 {
		opts.MaxAlerts = DefaultMaxAlerts
	}
	if opts.NotifyInterval <= 0 {
		opts.NotifyInterval = DefaultNotifyInterval
	}
	m := &Monitor{
		opts:      opts,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		providers: make(map[string]*series),
		pairs:     make(map[string]*series),
		notified:  make(map[string]*notifyState),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// RecordOutcome records one provider attempt.
func (m *Monitor) RecordOutcome(provider string, duration time.Duration, success bool) {
	s := m.series(&m.providers, provider)
	smp := sample{durationMs: duration.Milliseconds(), failed: !success}

	s.mu.Lock()
	s.add(smp, m.opts.WindowSize)
	stats := s.statsLocked(provider)
	var rateAlert bool
	overThreshold := stats.WindowSamples >= m.opts.MinSamples && stats.FailureRate > m.opts.FailureRateThreshold
	if overThreshold && !s.alerting {
		rateAlert = true
	}
	s.alerting = overThreshold
	s.mu.Unlock()

	if duration > m.opts.SlowThreshold {
		m.raise(Alert{
			Kind:      AlertSlowRequest,
			Scope:     provider,
			Value:     float64(smp.durationMs),
			Threshold: float64(m.opts.SlowThreshold.Milliseconds()),
			Message:   fmt.Sprintf("%s request took %dms (threshold %dms)", provider, smp.durationMs, m.opts.SlowThreshold.Milliseconds()),
		})
	}
	if rateAlert {
		m.raise(Alert{
			Kind:      AlertErrorRate,
			Scope:     provider,
			Value:     stats.FailureRate,
			Threshold: m.opts.FailureRateThreshold,
			Message: fmt.Sprintf("%s failed %.0f%% of the last %d requests (threshold %.0f%%)",
				provider, stats.FailureRate*100, stats.WindowSamples, m.opts.FailureRateThreshold*100),
		})
	}
}

// RecordLanguagePair records the end-to-end duration of a served translation.
func (m *Monitor) RecordLanguagePair(source, target string, duration time.Duration) {
	scope := pairScope(source, target)
	s := m.series(&m.pairs, scope)
	s.mu.Lock()
	s.add(sample{durationMs: duration.Milliseconds()}, m.opts.WindowSize)
	s.mu.Unlock()
}

// RecordCacheLookup records whether a translation was served from cache.
func (m *Monitor) RecordCacheLookup(hit bool) {
	m.lookups.Add(1)
	if hit {
		m.hits.Add(1)
	}
}

// Report derives the summary and recommendations from current aggregates.
func (m *Monitor) Report() Report {
	report := Report{
		GeneratedAt:   m.now().UTC(),
		Providers:     m.snapshot(&m.providers),
		LanguagePairs: m.snapshot(&m.pairs),
		Cache:         m.cacheStats(),
	}

	m.alertsMu.Lock()
	report.Alerts = append([]Alert(nil), m.alerts...)
	m.alertsMu.Unlock()

	report.Recommendations = m.recommendations(report)
	return report
}

// Alerts returns the recent alert ring, oldest first.
func (m *Monitor) Alerts() []Alert {
	m.alertsMu.Lock()
	defer m.alertsMu.Unlock()
	return append([]Alert(nil), m.alerts...)
}

// Reset drops every sample and alert.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.providers = make(map[string]*series)
	m.pairs = make(map[string]*series)
	m.mu.Unlock()

	m.lookups.Store(0)
	m.hits.Store(0)

	m.alertsMu.Lock()
	m.alerts = nil
	m.notified = make(map[string]*notifyState)
	m.alertsMu.Unlock()
}

// Wait blocks until background notifications finish.
func (m *Monitor) Wait() {
	m.background.Wait()
}

func (m *Monitor) recommendations(report Report) []string {
	var out []string
	if report.Cache.Lookups >= int64(m.opts.MinSamples) && report.Cache.HitRate < lowHitRate {
		out = append(out, fmt.Sprintf("cache hit rate is %.0f%%, below 50%%: increase CACHE_L1_TTL and CACHE_L2_TTL", report.Cache.HitRate*100))
	}
	slowMs := float64(m.opts.SlowThreshold.Milliseconds())
	for _, p := range report.Providers {
		if p.WindowSamples == 0 {
			continue
		}
		if p.AverageMs > slowMs {
			out = append(out, fmt.Sprintf("provider %s averages %.0fms, above %.0fms: deprioritise it in PROVIDER_PRIORITY", p.Scope, p.AverageMs, slowMs))
		}
		if p.WindowSamples >= m.opts.MinSamples && p.FailureRate > m.opts.FailureRateThreshold {
			out = append(out, fmt.Sprintf("provider %s failed %.0f%% of recent requests: check provider health and credentials", p.Scope, p.FailureRate*100))
		}
	}
	for _, pair := range report.LanguagePairs {
		if pair.WindowSamples > 0 && pair.AverageMs > slowMs {
			out = append(out, fmt.Sprintf("language pair %s averages %.0fms: consider pre-warming the cache for it", pair.Scope, pair.AverageMs))
		}
	}
	return out
}

func (m *Monitor) cacheStats() CacheStats {
	stats := CacheStats{Lookups: m.lookups.Load(), Hits: m.hits.Load()}
	if stats.Lookups > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Lookups)
	}
	return stats
}

func (m *Monitor) snapshot(target *map[string]*series) []ScopeStats {
	m.mu.RLock()
	scopes := make(map[string]*series, len(*target))
	for name, s := range *target {
		scopes[name] = s
	}
	m.mu.RUnlock()

	out := make([]ScopeStats, 0, len(scopes))
	for name, s := range scopes {
		s.mu.Lock()
		out = append(out, s.statsLocked(name))
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Scope < out[j].Scope
	})
	return out
}

func (m *Monitor) series(target *map[string]*series, scope string) *series {
	m.mu.RLock()
	s, ok := (*target)[scope]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := (*target)[scope]; ok {
		return s
	}
	s = &series{}
	(*target)[scope] = s
	return s
}

func (m *Monitor) raise(alert Alert) {
	alert.At = m.now().UTC()

	m.alertsMu.Lock()
	m.alerts = append(m.alerts, alert)
	if overflow := len(m.alerts) - m.opts.MaxAlerts; overflow > 0 {
		m.alerts = append([]Alert(nil), m.alerts[overflow:]...)
	}
	suppressed, send := m.claimNotificationLocked(alert)
	m.alertsMu.Unlock()

	m.logger.Warn().
		Str("kind", alert.Kind).
		Str("scope", alert.Scope).
		Float64("value", alert.Value).
		Float64("threshold", alert.Threshold).
		Msg(alert.Message)

	if m.notifier == nil || !send {
		return
	}
	msg := notify.Message{
		Level: notify.LevelWarning,
		Title: fmt.Sprintf("Translation %s alert: %s", alert.Kind, alert.Scope),
		Body:  alert.Message,
		Fields: map[string]any{
			"kind":       alert.Kind,
			"scope":      alert.Scope,
			"value":      alert.Value,
			"threshold":  alert.Threshold,
			"suppressed": suppressed,
		},
	}
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := m.notifier.Notify(ctx, msg); err != nil {
			m.logger.Warn().Err(err).Str("kind", alert.Kind).Msg("performance notification failed")
		}
	}()
}

// claimNotificationLocked reports whether alert may be sent now and how many
// alerts of the same kind and scope were held back since the last one.
func (m *Monitor) claimNotificationLocked(alert Alert) (int, bool) {
	key := alert.Kind + "|" + alert.Scope
	state, ok := m.notified[key]
	if !ok {
		m.notified[key] = &notifyState{at: alert.At}
		return 0, true
	}
	if alert.At.Sub(state.at) < m.opts.NotifyInterval {
		state.suppressed++
		return 0, false
	}
	suppressed := state.suppressed
	state.at = alert.At
	state.suppressed = 0
	return suppressed, true
}

func pairScope(source, target string) string {
	if source == "" {
		source = "auto"
	}
	return source + "->" + target
}
