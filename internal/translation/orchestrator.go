package translation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"horse.fit/babel/internal/cache"
	"horse.fit/babel/internal/cost"
	"horse.fit/babel/internal/langdetect"
	"horse.fit/babel/internal/language"
	"horse.fit/babel/internal/perf"
	"horse.fit/babel/internal/provider"
	"horse.fit/babel/internal/ratelimit"
	"horse.fit/babel/internal/retry"
	"horse.fit/babel/internal/settings"
)

const (
	DefaultMaxTextLength    = 5000
	DefaultBatchMaxItems    = 100
	DefaultBatchConcurrency = 10
	DefaultBatchTimeout     = 60 * time.Second
	DefaultHealthTimeout    = 5 * time.Second
	DefaultFetchTimeout     = 2 * time.Minute
)

// Deps are the collaborators an Orchestrator coordinates. Providers, Cache,
// Limiter, Cost and Perf are required.
type Deps struct {
	Providers []provider.Provider
	Cache     *cache.Manager
	Limiter   *ratelimit.Limiter
	Cost      *cost.Monitor
	Perf      *perf.Monitor
	// Detector memoises detections; nil disables memoisation.
	Detector *langdetect.Detector
	// Settings supplies the default target and enabled languages; nil allows
	// every supported language with an "en" default.
	Settings settings.Source
	Retry    retry.Policy
	Logger   zerolog.Logger
}

type Options struct {
	MaxTextLength    int
	BatchMaxItems    int
	BatchConcurrency int
	BatchTimeout     time.Duration
	HealthTimeout    time.Duration
	// FetchTimeout bounds a shared provider round trip, which runs detached
	// from the callers waiting on it.
	FetchTimeout time.Duration
	Now          func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxTextLength < 1 {
		o.MaxTextLength = DefaultMaxTextLength
	}
	if o.BatchMaxItems < 1 {
		o.BatchMaxItems = DefaultBatchMaxItems
	}
	if o.BatchConcurrency < 1 {
		o.BatchConcurrency = DefaultBatchConcurrency
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = DefaultBatchTimeout
	}
	if o.HealthTimeout <= 0 {
		o.HealthTimeout = DefaultHealthTimeout
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Orchestrator routes translation requests through the rate limiter, the
// cache tiers and the provider chain, recording cost and performance.
type Orchestrator struct {
	providers []provider.Provider
	cache     *cache.Manager
	limiter   *ratelimit.Limiter
	cost      *cost.Monitor
	perf      *perf.Monitor
	detector  *langdetect.Detector
	settings  settings.Source
	retry     retry.Policy
	opts      Options
	logger    zerolog.Logger

	inflight singleflight.Group
	fetches  sync.WaitGroup
}

func NewOrchestrator(deps Deps, opts Options) (*Orchestrator, error) {
	if len(deps.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	for i, p := range deps.Providers {
		if p == nil {
			return nil, fmt.Errorf("provider %d is nil", i)
		}
	}
	switch {
	case deps.Cache == nil:
		return nil, fmt.Errorf("cache manager is required")
	case deps.Limiter == nil:
		return nil, fmt.Errorf("rate limiter is required")
	case deps.Cost == nil:
		return nil, fmt.Errorf("cost monitor is required")
	case deps.Perf == nil:
		return nil, fmt.Errorf("performance monitor is required")
	}

	policy := deps.Retry
	if policy.Retryable == nil {
		policy.Retryable = provider.Retryable
	}

	return &Orchestrator{
		providers: append([]provider.Provider(nil), deps.Providers...),
		cache:     deps.Cache,
		limiter:   deps.Limiter,
		cost:      deps.Cost,
		perf:      deps.Perf,
		detector:  deps.Detector,
		settings:  deps.Settings,
		retry:     policy,
		opts:      opts.withDefaults(),
		logger:    deps.Logger.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// Translate admits identity through the rate limiter and translates req.
func (o *Orchestrator) Translate(ctx context.Context, identity string, req Request) (Result, error) {
	if err := o.admit(identity); err != nil {
		return Result{}, err
	}
	return o.translate(ctx, req)
}

func (o *Orchestrator) admit(identity string) error {
	decision := o.limiter.Check(identity)
	if decision.Allowed {
		return nil
	}
	o.logger.Debug().
		Str("identifier", decision.Identifier).
		Dur("retry_after", decision.RetryAfter).
		Msg("request rate limited")
	return &RateLimitedError{
		Identifier: decision.Identifier,
		RetryAfter: decision.RetryAfter,
		Decision:   decision,
	}
}

func (o *Orchestrator) translate(ctx context.Context, req Request) (Result, error) {
	started := o.opts.Now()

	normalized, err := o.validate(ctx, req)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		ID:         uuid.NewString(),
		TargetLang: normalized.TargetLang,
	}

	if normalized.SourceLang != language.Auto && normalized.SourceLang == normalized.TargetLang {
		result.TranslatedText = normalized.Text
		result.Provider = ProviderIdentity
		result.SourceLang = normalized.SourceLang
		result.DurationMs = o.opts.Now().Sub(started).Milliseconds()
		return result, nil
	}

	lookup := cache.Lookup{
		Text:       normalized.Text,
		SourceLang: normalized.SourceLang,
		TargetLang: normalized.TargetLang,
		Context:    normalized.Context,
	}
	payload, tier, hit := o.cache.Get(ctx, lookup)
	if hit && strings.TrimSpace(payload.TranslatedText) == "" {
		// An empty cached translation is unusable; drop it and translate again.
		if err := o.cache.Delete(ctx, lookup); err != nil {
			o.logger.Warn().Err(err).Str("cache_key", lookup.Key()).Msg("failed to evict empty cache entry")
		}
		hit = false
	}
	if hit {
		o.perf.RecordCacheLookup(true)
		result.TranslatedText = payload.TranslatedText
		result.Provider = payload.Provider
		result.SourceLang = resolvedSource(payload.SourceLang, normalized.SourceLang)
		result.FromCache = true
		result.CacheTier = string(tier)
		result.DurationMs = o.opts.Now().Sub(started).Milliseconds()
		return result, nil
	}
	o.perf.RecordCacheLookup(false)

	if err := o.cost.CheckBudget(); err != nil {
		return Result{}, err
	}

	// Identical in-flight misses share one provider round trip. Each caller
	// stops waiting when its own context ends; the round trip carries on for
	// the others.
	o.fetches.Add(1)
	shared := o.inflight.DoChan(lookup.Key(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.FetchTimeout)
		defer cancel()
		return o.fetch(fetchCtx, normalized, lookup)
	})
	var outcome singleflight.Result
	select {
	case outcome = <-shared:
		o.fetches.Done()
	case <-ctx.Done():
		go func() {
			<-shared
			o.fetches.Done()
		}()
		return Result{}, ctx.Err()
	}
	if outcome.Err != nil {
		return Result{}, outcome.Err
	}
	payload = outcome.Val.(cache.Payload)

	result.TranslatedText = payload.TranslatedText
	result.Provider = payload.Provider
	result.SourceLang = resolvedSource(payload.SourceLang, normalized.SourceLang)
	result.DurationMs = o.opts.Now().Sub(started).Milliseconds()
	return result, nil
}

// fetch walks the provider chain and writes a success back to the cache.
func (o *Orchestrator) fetch(ctx context.Context, req Request, lookup cache.Lookup) (cache.Payload, error) {
	started := o.opts.Now()
	attempts := make([]AttemptError, 0, len(o.providers))

	for _, p := range o.providers {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, AttemptError{Provider: p.Name(), Err: err})
			break
		}

		resp, tries, err := o.attempt(ctx, p, req)
		if err != nil {
			attempts = append(attempts, AttemptError{Provider: p.Name(), Tries: tries, Err: err})
			o.logger.Warn().
				Err(err).
				Str("provider", p.Name()).
				Int("attempt", tries).
				Str("source_lang", req.SourceLang).
				Str("target_lang", req.TargetLang).
				Msg("provider failed; falling back")
			continue
		}

		characters := resp.Characters
		if characters <= 0 {
			characters = utf8.RuneCountInString(req.Text)
		}
		model := resp.Model
		if model == "" {
			model = provider.ModelName(p)
		}
		o.cost.TrackRequest(p.Name(), characters, model)

		payload := cache.Payload{
			TranslatedText: resp.Text,
			Provider:       p.Name(),
			SourceLang:     resolvedSource(language.NormalizeCode(resp.DetectedSourceLang), req.SourceLang),
		}
		o.perf.RecordLanguagePair(payload.SourceLang, req.TargetLang, o.opts.Now().Sub(started))
		o.cache.Set(ctx, lookup, payload)
		return payload, nil
	}

	return cache.Payload{}, &TranslationFailedError{Attempts: attempts}
}

// attempt runs one provider under the retry policy, reporting every try to
// the performance monitor.
func (o *Orchestrator) attempt(ctx context.Context, p provider.Provider, req Request) (*provider.Response, int, error) {
	var (
		resp  *provider.Response
		tries int
	)
	err := o.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		tries = attempt
		started := o.opts.Now()
		out, err := p.Translate(ctx, provider.Request{
			Text:       req.Text,
			SourceLang: req.SourceLang,
			TargetLang: req.TargetLang,
			Context:    req.Context,
		})
		if err == nil && (out == nil || strings.TrimSpace(out.Text) == "") {
			err = fmt.Errorf("%s returned an empty translation", p.Name())
		}
		o.perf.RecordOutcome(p.Name(), o.opts.Now().Sub(started), err == nil)
		if err != nil {
			o.logger.Debug().Err(err).Str("provider", p.Name()).Int("attempt", attempt).Msg("provider attempt failed")
			return err
		}
		resp = out
		return nil
	})
	return resp, tries, err
}

func (o *Orchestrator) validate(ctx context.Context, req Request) (Request, error) {
	text := req.Text
	if strings.TrimSpace(text) == "" {
		return Request{}, invalid("text", "text is required")
	}
	if n := utf8.RuneCountInString(text); n > o.opts.MaxTextLength {
		return Request{}, invalid("text", "text is %d characters; the limit is %d", n, o.opts.MaxTextLength)
	}

	site := o.siteSettings(ctx)

	target := language.NormalizeCode(req.TargetLang)
	if strings.TrimSpace(req.TargetLang) == "" {
		target = site.DefaultTargetLang
	}
	if target == "" || !language.IsSupported(target) {
		return Request{}, invalid("target_lang", "unsupported target language %q", req.TargetLang)
	}
	if !site.Allows(target) {
		return Request{}, invalid("target_lang", "target language %q is not enabled", target)
	}

	source := language.Auto
	if raw := strings.TrimSpace(req.SourceLang); raw != "" && !strings.EqualFold(raw, language.Auto) {
		source = language.NormalizeCode(raw)
		if source == "" || !language.IsSupported(source) {
			return Request{}, invalid("source_lang", "unsupported source language %q", req.SourceLang)
		}
	}

	return Request{
		Text:       text,
		SourceLang: source,
		TargetLang: target,
		Context:    strings.TrimSpace(req.Context),
	}, nil
}

func (o *Orchestrator) siteSettings(ctx context.Context) settings.Settings {
	fallback := settings.Settings{DefaultTargetLang: "en"}
	if o.settings == nil {
		return fallback
	}
	site, err := o.settings.SiteSettings(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("site settings unavailable; using defaults")
		return fallback
	}
	if site.DefaultTargetLang == "" {
		site.DefaultTargetLang = fallback.DefaultTargetLang
	}
	return site
}

// ProviderNames returns the chain in priority order.
func (o *Orchestrator) ProviderNames() []string {
	names := make([]string, 0, len(o.providers))
	for _, p := range o.providers {
		names = append(names, p.Name())
	}
	return names
}

// SupportedLanguages lists the enabled target languages.
func (o *Orchestrator) SupportedLanguages(ctx context.Context) []language.Option {
	site := o.siteSettings(ctx)
	all := language.Supported()
	out := make([]language.Option, 0, len(all))
	for _, option := range all {
		if site.Allows(option.Code) {
			out = append(out, option)
		}
	}
	return out
}

// DefaultTargetLang is the target used when a request leaves it empty.
func (o *Orchestrator) DefaultTargetLang(ctx context.Context) string {
	return o.siteSettings(ctx).DefaultTargetLang
}

// Snapshot gathers cost, performance and cache reporting.
func (o *Orchestrator) Snapshot() Snapshot {
	return Snapshot{
		GeneratedAt:  o.opts.Now().UTC(),
		Providers:    o.ProviderNames(),
		Usage:        o.cost.GetUsageStats(),
		BudgetAlerts: o.cost.GetAlerts(),
		Performance:  o.perf.Report(),
		Cache:        o.cache.Stats(),
		Clients:      o.limiter.Len(),
	}
}

// ResetStats zeroes cost, performance and cache counters. Cached entries
// are kept; use ClearCache for those.
func (o *Orchestrator) ResetStats() {
	o.cost.Reset()
	o.perf.Reset()
	o.cache.ResetStats()
	o.logger.Info().Msg("statistics reset")
}

// ClearCache empties the selected cache tiers and, for memory scopes, the
// detection memo.
func (o *Orchestrator) ClearCache(ctx context.Context, scope cache.Scope) (int, error) {
	removed, err := o.cache.Clear(ctx, scope)
	if o.detector != nil && scope != cache.ScopeShared {
		o.detector.Flush()
	}
	if err != nil {
		return removed, fmt.Errorf("clear %s cache: %w", scope, err)
	}
	o.logger.Info().Str("scope", string(scope)).Int("removed", removed).Msg("cache cleared")
	return removed, nil
}

// Wait blocks until abandoned provider round trips, background cache writes
// and notifications finish.
func (o *Orchestrator) Wait() {
	o.fetches.Wait()
	o.cache.Wait()
	o.cost.Wait()
	o.perf.Wait()
}

func resolvedSource(detected, requested string) string {
	if detected != "" && detected != language.Auto {
		return detected
	}
	if requested == "" {
		return language.Auto
	}
	return requested
}

// IsClientError reports whether err was caused by the caller rather than by
// a provider or the engine.
func IsClientError(err error) bool {
	var validation *ValidationError
	var limited *RateLimitedError
	return errors.As(err, &validation) || errors.As(err, &limited)
}
