package translation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"horse.fit/babel/internal/cache"
	"horse.fit/babel/internal/cost"
	"horse.fit/babel/internal/perf"
	"horse.fit/babel/internal/provider"
	"horse.fit/babel/internal/ratelimit"
	"horse.fit/babel/internal/retry"
	"horse.fit/babel/internal/settings"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubProvider struct {
	name      string
	translate func(ctx context.Context, req provider.Request) (*provider.Response, error)
	detect    func(ctx context.Context, text string) (string, error)
	pingErr   error

	calls       atomic.Int64
	detectCalls atomic.Int64
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Translate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	p.calls.Add(1)
	if p.translate != nil {
		return p.translate(ctx, req)
	}
	return &provider.Response{
		Text:       fmt.Sprintf("[%s:%s] %s", p.name, req.TargetLang, req.Text),
		Characters: len([]rune(req.Text)),
	}, nil
}

func (p *stubProvider) DetectLanguage(ctx context.Context, text string) (string, error) {
	p.detectCalls.Add(1)
	if p.detect != nil {
		return p.detect(ctx, text)
	}
	return "", errors.New("detection not supported")
}

func (p *stubProvider) Ping(context.Context) error { return p.pingErr }

func failing(status int) func(context.Context, provider.Request) (*provider.Response, error) {
	return func(context.Context, provider.Request) (*provider.Response, error) {
		return nil, &provider.Error{Provider: "stub", Op: "translate", StatusCode: status, Cause: errors.New("upstream failure")}
	}
}

type fixture struct {
	orch    *Orchestrator
	cache   *cache.Manager
	cost    *cost.Monitor
	perf    *perf.Monitor
	limiter *ratelimit.Limiter
}

type fixtureOptions struct {
	rateMax   int
	budget    cost.Budget
	opts      Options
	attempts  int
	settings  settings.Source
	cacheSize int
}

func newFixture(t *testing.T, providers []provider.Provider, fo fixtureOptions) *fixture {
	t.Helper()

	logger := zerolog.Nop()
	if fo.rateMax == 0 {
		fo.rateMax = 10_000
	}
	if fo.budget.Monthly == 0 && fo.budget.Daily == 0 {
		fo.budget = cost.Budget{Daily: 100, Monthly: 1000, AlertThreshold: 0.8}
	}
	if fo.attempts == 0 {
		fo.attempts = 1
	}
	if fo.cacheSize == 0 {
		fo.cacheSize = 1000
	}

	cacheManager := cache.New(cache.Options{MaxEntries: fo.cacheSize, L1TTL: time.Hour, L2TTL: 24 * time.Hour}, nil, logger)
	costMonitor := cost.NewMonitor(fo.budget, cost.DefaultRates(), cost.WithLogger(logger))
	perfMonitor := perf.NewMonitor(perf.Options{}, nil, logger)
	limiter := ratelimit.New(ratelimit.Options{Window: time.Minute, Max: fo.rateMax})

	orch, err := NewOrchestrator(Deps{
		Providers: providers,
		Cache:     cacheManager,
		Limiter:   limiter,
		Cost:      costMonitor,
		Perf:      perfMonitor,
		Settings:  fo.settings,
		Retry:     retry.Policy{MaxAttempts: fo.attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Logger:    logger,
	}, fo.opts)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	t.Cleanup(func() {
		orch.Wait()
		cacheManager.Close()
		limiter.Close()
	})

	return &fixture{orch: orch, cache: cacheManager, cost: costMonitor, perf: perfMonitor, limiter: limiter}
}

func providerStats(t *testing.T, report perf.Report, name string) perf.ScopeStats {
	t.Helper()
	for _, stats := range report.Providers {
		if stats.Scope == name {
			return stats
		}
	}
	t.Fatalf("no performance stats for provider %q in %+v", name, report.Providers)
	return perf.ScopeStats{}
}

func TestNewOrchestrator_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	if _, err := NewOrchestrator(Deps{}, Options{}); err == nil {
		t.Fatal("expected error without providers")
	}
	if _, err := NewOrchestrator(Deps{Providers: []provider.Provider{&stubProvider{name: "openai"}}}, Options{}); err == nil {
		t.Fatal("expected error without cache manager")
	}
}

func TestTranslate_SecondCallIsServedFromCache(t *testing.T) {
	t.Parallel()

	openai := &stubProvider{name: "openai"}
	f := newFixture(t, []provider.Provider{openai}, fixtureOptions{})
	ctx := context.Background()
	req := Request{Text: "Good morning", SourceLang: "en", TargetLang: "fr"}

	first, err := f.orch.Translate(ctx, "client-a", req)
	if err != nil {
		t.Fatalf("first translate: %v", err)
	}
	if first.FromCache || first.Provider != "openai" || first.ID == "" {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := f.orch.Translate(ctx, "client-a", req)
	if err != nil {
		t.Fatalf("second translate: %v", err)
	}
	if !second.FromCache || second.CacheTier != string(cache.TierMemory) {
		t.Fatalf("expected memory cache hit, got %+v", second)
	}
	if second.TranslatedText != first.TranslatedText {
		t.Fatalf("unexpected cached text: got %q want %q", second.TranslatedText, first.TranslatedText)
	}
	if second.ID == first.ID {
		t.Fatal("expected each result to carry its own id")
	}
	if got := openai.calls.Load(); got != 1 {
		t.Fatalf("unexpected provider calls: got %d want 1", got)
	}
	if usage := f.cost.GetUsageStats(); usage.Current.TotalRequests != 1 {
		t.Fatalf("cache hit must not be billed: %+v", usage.Current)
	}
}

func TestTranslate_FallsBackAndRecordsEveryAttempt(t *testing.T) {
	t.Parallel()

	openai := &stubProvider{name: "openai", translate: failing(503)}
	deepl := &stubProvider{name: "deepl"}
	f := newFixture(t, []provider.Provider{openai, deepl}, fixtureOptions{attempts: 2})

	result, err := f.orch.Translate(context.Background(), "client", Request{Text: "Hello", TargetLang: "de"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if result.Provider != "deepl" {
		t.Fatalf("unexpected provider: got %q want deepl", result.Provider)
	}
	if got := openai.calls.Load(); got != 2 {
		t.Fatalf("expected retryable failure to be retried once: got %d calls", got)
	}

	report := f.perf.Report()
	if stats := providerStats(t, report, "openai"); stats.Count != 2 || stats.Failures != 2 {
		t.Fatalf("unexpected openai stats: %+v", stats)
	}
	if stats := providerStats(t, report, "deepl"); stats.Count != 1 || stats.Failures != 0 {
		t.Fatalf("unexpected deepl stats: %+v", stats)
	}

	usage := f.cost.GetUsageStats()
	if len(usage.Current.Providers) != 1 || usage.Current.Providers[0].Provider != "deepl" {
		t.Fatalf("only the successful provider should be billed: %+v", usage.Current.Providers)
	}
}

func TestTranslate_NonRetryableFailureIsTriedOnce(t *testing.T) {
	t.Parallel()

	openai := &stubProvider{name: "openai", translate: failing(400)}
	deepl := &stubProvider{name: "deepl"}
	f := newFixture(t, []provider.Provider{openai, deepl}, fixtureOptions{attempts: 3})

	if _, err := f.orch.Translate(context.Background(), "client", Request{Text: "Hello", TargetLang: "de"}); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got := openai.calls.Load(); got != 1 {
		t.Fatalf("unexpected calls for 400 response: got %d want 1", got)
	}
}

func TestTranslate_AllProvidersFail(t *testing.T) {
	t.Parallel()

	openai := &stubProvider{name: "openai", translate: failing(500)}
	google := &stubProvider{name: "google", translate: failing(502)}
	f := newFixture(t, []provider.Provider{openai, google}, fixtureOptions{})

	_, err := f.orch.Translate(context.Background(), "client", Request{Text: "Hello", TargetLang: "es"})
	var failed *TranslationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected TranslationFailedError, got %T %v", err, err)
	}
	if len(failed.Attempts) != 2 || failed.Attempts[0].Provider != "openai" || failed.Attempts[1].Provider != "google" {
		t.Fatalf("unexpected attempts: %+v", failed.Attempts)
	}
	var providerErr *provider.Error
	if !errors.As(err, &providerErr) {
		t.Fatal("expected attempt causes to be reachable through errors.As")
	}

	report := f.perf.Report()
	if providerStats(t, report, "openai").Failures != 1 || providerStats(t, report, "google").Failures != 1 {
		t.Fatalf("expected both failures recorded: %+v", report.Providers)
	}
	if stats := f.cache.Stats(); stats.L1Size != 0 {
		t.Fatalf("failed translation must not be cached: size=%d", stats.L1Size)
	}
	if usage := f.cost.GetUsageStats(); usage.Current.TotalRequests != 0 {
		t.Fatalf("failed translation must not be billed: %+v", usage.Current)
	}
}

func TestTranslate_EmptyProviderOutputFallsBack(t *testing.T) {
	t.Parallel()

	blank := &stubProvider{name: "openai", translate: func(context.Context, provider.Request) (*provider.Response, error) {
		return &provider.Response{Text: "   "}, nil
	}}
	google := &stubProvider{name: "google"}
	f := newFixture(t, []provider.Provider{blank, google}, fixtureOptions{})

	result, err := f.orch.Translate(context.Background(), "client", Request{Text: "Hello", TargetLang: "it"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if result.Provider != "google" {
		t.Fatalf("unexpected provider: got %q want google", result.Provider)
	}
}

func TestTranslate_ValidationHappensBeforeAnyWork(t *testing.T) {
	t.Parallel()

	openai := &stubProvider{name: "openai"}
	f := newFixture(t, []provider.Provider{openai}, fixtureOptions{opts: Options{MaxTextLength: 10}})

	cases := map[string]Request{
		"empty text":         {Text: "  ", TargetLang: "fr"},
		"too long":           {Text: strings.Repeat("é", 11), TargetLang: "fr"},
		"unsupported target": {Text: "Hello", TargetLang: "xx"},
		"unsupported source": {Text: "Hello", SourceLang: "tlh", TargetLang: "fr"},
	}
	for name, req := range cases {
		_, err := f.orch.Translate(context.Background(), "client", req)
		var validation *ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("%s: expected ValidationError, got %v", name, err)
		}
		if !IsClientError(err) {
			t.Fatalf("%s: expected client error classification", name)
		}
	}

	if got := openai.calls.Load(); got != 0 {
		t.Fatalf("provider called for invalid input: %d", got)
	}
	if stats := f.cache.Stats(); stats.Lookups != 0 {
		t.Fatalf("cache consulted for invalid input: %+v", stats)
	}
	if usage := f.cost.GetUsageStats(); usage.Current.TotalCost != 0 {
		t.Fatalf("invalid input billed: %+v", usage.Current)
	}
}

func TestTranslate_TextLimitCountsRunes(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []provider.Provider{&stubProvider{name: "openai"}}, fixtureOptions{opts: Options{MaxTextLength: 5}})
	if _, err := f.orch.Translate(context.Background(), "client", Request{Text: "日本語です", TargetLang: "en"}); err != nil {
		t.Fatalf("five runes should be accepted: %v", err)
	}
}

func TestTranslate_RateLimitedBeforeProviderCall(t *testing.T) {
	t.Parallel()

	openai := &stubProvider{name: "openai"}
	f := newFixture(t, []provider.Provider{openai}, fixtureOptions{rateMax: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.orch.Translate(ctx, "1.2.3.4", Request{Text: fmt.Sprintf("text %d", i), TargetLang: "fr"}); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}

	_, err := f.orch.Translate(ctx, "1.2.3.4", Request{Text: "one more", TargetLang: "fr"})
	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("expected RateLimitedError, got %v", err)
	}
	if limited.Identifier != "1.2.3.4" || limited.RetryAfter <= 0 || limited.Decision.RetryAfterSeconds() < 1 {
		t.Fatalf("unexpected rate limit error: %+v", limited)
	}
	if got := openai.calls.Load(); got != 2 {
		t.Fatalf("unexpected provider calls: got %d want 2", got)
	}

	if _, err := f.orch.Translate(ctx, "5.6.7.8", Request{Text: "other client", TargetLang: "fr"}); err != nil {
		t.Fatalf("independent identifier rejected: %v", err)
	}
}

func TestTranslate_SameLanguageIsIdentity(t *testing.T) {
	t.Parallel()

	openai := &stubProvider{name: "openai"}
	f := newFixture(t, []provider.Provider{openai}, fixtureOptions{})

	result, err := f.orch.Translate(context.Background(), "client", Request{Text: "Bonjour", SourceLang: "fr-FR", TargetLang: "fr"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if result.Provider != ProviderIdentity || result.TranslatedText != "Bonjour" {
		t.Fatalf("unexpected identity result: %+v", result)
	}
	if openai.calls.Load() != 0 || f.cache.Stats().L1Size != 0 {
		t.Fatal("identity translation must not reach providers or the cache")
	}
}

func TestTranslate_ResolvesDetectedSourceAndDefaultTarget(t *testing.T) {
	t.Parallel()

	openai := &stubProvider{name: "openai", translate: func(_ context.Context, req provider.Request) (*provider.Response, error) {
		return &provider.Response{Text: "Hallo " + req.TargetLang, DetectedSourceLang: "EN"}, nil
	}}
	f := newFixture(t, []provider.Provider{openai}, fixtureOptions{settings: settings.NewStatic("de", nil)})

	result, err := f.orch.Translate(context.Background(), "client", Request{Text: "Hello", SourceLang: "auto"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if result.TargetLang != "de" || result.SourceLang != "en" {
		t.Fatalf("unexpected languages: %+v", result)
	}
}

func TestTranslate_RespectsEnabledLanguages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []provider.Provider{&stubProvider{name: "openai"}}, fixtureOptions{settings: settings.NewStatic("en", []string{"en", "fr"})})

	_, err := f.orch.Translate(context.Background(), "client", Request{Text: "Hello", TargetLang: "ja"})
	var validation *ValidationError
	if !errors.As(err, &validation) || validation.Field != "target_lang" {
		t.Fatalf("expected disabled target to be rejected, got %v", err)
	}
	if got := len(f.orch.SupportedLanguages(context.Background())); got != 2 {
		t.Fatalf("unexpected supported language count: got %d want 2", got)
	}
}

func TestTranslate_CostAccounting(t *testing.T) {
	t.Parallel()

	google := &stubProvider{name: "google"}
	f := newFixture(t, []provider.Provider{google}, fixtureOptions{})

	if _, err := f.orch.Translate(context.Background(), "client", Request{Text: strings.Repeat("a", 1000), TargetLang: "fr"}); err != nil {
		t.Fatalf("translate: %v", err)
	}
	usage := f.cost.GetUsageStats()
	if math.Abs(usage.Current.TotalCost-0.02) > 1e-9 {
		t.Fatalf("unexpected cost: got %v want 0.02", usage.Current.TotalCost)
	}
	if usage.Current.TotalCharacters != 1000 {
		t.Fatalf("unexpected characters: got %d want 1000", usage.Current.TotalCharacters)
	}
}

func TestTranslate_PricesByConfiguredModel(t *testing.T) {
	t.Parallel()

	llm := &namedModelProvider{stubProvider: stubProvider{name: "openai"}, model: "gpt-4o"}
	f := newFixture(t, []provider.Provider{llm}, fixtureOptions{})

	if _, err := f.orch.Translate(context.Background(), "client", Request{Text: strings.Repeat("a", 1000), TargetLang: "de"}); err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got := f.cost.GetUsageStats().Current.TotalCost; math.Abs(got-0.003125) > 1e-9 {
		t.Fatalf("unexpected cost: got %v want 0.003125", got)
	}
}

type namedModelProvider struct {
	stubProvider
	model string
}

func (p *namedModelProvider) ModelName() string { return p.model }

func TestTranslate_EmptyCachedTranslationIsReplaced(t *testing.T) {
	t.Parallel()

	deepl := &stubProvider{name: "deepl"}
	f := newFixture(t, []provider.Provider{deepl}, fixtureOptions{})
	ctx := context.Background()
	f.cache.Set(ctx, cache.Lookup{Text: "Hello", SourceLang: "auto", TargetLang: "fr"}, cache.Payload{TranslatedText: " ", Provider: "deepl"})

	first, err := f.orch.Translate(ctx, "client", Request{Text: "Hello", TargetLang: "fr"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if first.FromCache || first.TranslatedText != "[deepl:fr] Hello" {
		t.Fatalf("empty cache entry should be retranslated: %+v", first)
	}

	second, err := f.orch.Translate(ctx, "client", Request{Text: "Hello", TargetLang: "fr"})
	if err != nil {
		t.Fatalf("second translate: %v", err)
	}
	if !second.FromCache || second.TranslatedText != first.TranslatedText {
		t.Fatalf("expected the fresh translation from cache, got %+v", second)
	}
	if got := deepl.calls.Load(); got != 1 {
		t.Fatalf("unexpected provider calls: got %d want 1", got)
	}
}

func TestTranslate_HardFailBudget(t *testing.T) {
	t.Parallel()

	google := &stubProvider{name: "google"}
	f := newFixture(t, []provider.Provider{google}, fixtureOptions{
		budget: cost.Budget{Daily: 0.01, Monthly: 100, AlertThreshold: 0.8, HardFail: true},
	})
	ctx := context.Background()

	if _, err := f.orch.Translate(ctx, "client", Request{Text: strings.Repeat("b", 1000), TargetLang: "fr"}); err != nil {
		t.Fatalf("first translate: %v", err)
	}

	_, err := f.orch.Translate(ctx, "client", Request{Text: "fresh text", TargetLang: "fr"})
	var exceeded *BudgetExceededError
	if !errors.As(err, &exceeded) || exceeded.Period != cost.PeriodDaily {
		t.Fatalf("expected daily BudgetExceededError, got %v", err)
	}
	if got := google.calls.Load(); got != 1 {
		t.Fatalf("provider called after budget exhausted: %d", got)
	}

	cached, err := f.orch.Translate(ctx, "client", Request{Text: strings.Repeat("b", 1000), TargetLang: "fr"})
	if err != nil || !cached.FromCache {
		t.Fatalf("cache hits should be served over budget: result=%+v err=%v", cached, err)
	}
}

func TestTranslate_ConcurrentIdenticalRequestsShareOneCall(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var started sync.Once
	entered := make(chan struct{})
	slow := &stubProvider{name: "openai", translate: func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		started.Do(func() { close(entered) })
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &provider.Response{Text: "Hola"}, nil
	}}
	f := newFixture(t, []provider.Provider{slow}, fixtureOptions{})

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.Translate(context.Background(), "client", Request{Text: "Hello", TargetLang: "es"})
			errs <- err
		}()
	}

	<-entered
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("translate: %v", err)
		}
	}
	if got := slow.calls.Load(); got < 1 || got > callers {
		t.Fatalf("unexpected provider calls: %d", got)
	}
	if usage := f.cost.GetUsageStats(); usage.Current.TotalRequests != slow.calls.Load() {
		t.Fatalf("billing must match provider calls: billed=%d calls=%d", usage.Current.TotalRequests, slow.calls.Load())
	}
}

func TestTranslate_CancelledCallerDoesNotFailOthersWaiting(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	slow := &stubProvider{name: "openai", translate: func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		once.Do(func() { close(entered) })
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &provider.Response{Text: "Hola"}, nil
	}}
	f := newFixture(t, []provider.Provider{slow}, fixtureOptions{})
	req := Request{Text: "Hello", TargetLang: "es"}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.orch.Translate(firstCtx, "client-a", req)
		firstErr <- err
	}()
	<-entered

	type outcome struct {
		result Result
		err    error
	}
	second := make(chan outcome, 1)
	go func() {
		result, err := f.orch.Translate(context.Background(), "client-b", req)
		second <- outcome{result: result, err: err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("unexpected first caller error: got %v want %v", err, context.Canceled)
	}

	close(release)
	got := <-second
	if got.err != nil {
		t.Fatalf("second caller failed after the first one cancelled: %v", got.err)
	}
	if got.result.TranslatedText != "Hola" {
		t.Fatalf("unexpected translation: got %q want Hola", got.result.TranslatedText)
	}
	if calls := slow.calls.Load(); calls != 1 {
		t.Fatalf("unexpected provider calls: got %d want 1", calls)
	}
}

func TestTranslate_SharedCallIsBoundedByFetchTimeout(t *testing.T) {
	t.Parallel()

	hanging := &stubProvider{name: "deepl", translate: func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	f := newFixture(t, []provider.Provider{hanging}, fixtureOptions{opts: Options{FetchTimeout: 30 * time.Millisecond}})

	_, err := f.orch.Translate(context.Background(), "client", Request{Text: "Hello", TargetLang: "fr"})
	var failed *TranslationFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected TranslationFailedError, got %v", err)
	}
	if len(failed.Attempts) != 1 || !errors.Is(failed.Attempts[0].Err, context.DeadlineExceeded) {
		t.Fatalf("unexpected attempts: %+v", failed.Attempts)
	}
}

func TestResetStats(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []provider.Provider{&stubProvider{name: "deepl"}}, fixtureOptions{})
	if _, err := f.orch.Translate(context.Background(), "client", Request{Text: "Hello", TargetLang: "fr"}); err != nil {
		t.Fatalf("translate: %v", err)
	}

	f.orch.ResetStats()

	snapshot := f.orch.Snapshot()
	if snapshot.Usage.Current.TotalRequests != 0 || len(snapshot.Performance.Providers) != 0 || snapshot.Cache.Lookups != 0 {
		t.Fatalf("expected zeroed counters, got %+v", snapshot)
	}
	if snapshot.Cache.L1Size != 1 {
		t.Fatalf("reset must keep cached entries: size=%d", snapshot.Cache.L1Size)
	}

	removed, err := f.orch.ClearCache(context.Background(), cache.ScopeAll)
	if err != nil || removed != 1 {
		t.Fatalf("unexpected clear result: removed=%d err=%v", removed, err)
	}
}
