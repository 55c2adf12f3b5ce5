package translation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/babel/internal/cache"
	"horse.fit/babel/internal/cost"
	"horse.fit/babel/internal/langdetect"
	"horse.fit/babel/internal/perf"
	"horse.fit/babel/internal/provider"
	"horse.fit/babel/internal/ratelimit"
)

func newDetectingOrchestrator(t *testing.T, providers ...provider.Provider) *Orchestrator {
	t.Helper()
	return newDetectingOrchestratorWithCost(t, cost.NewMonitor(cost.Budget{Daily: 10, Monthly: 100}, cost.DefaultRates()), providers...)
}

func newDetectingOrchestratorWithCost(t *testing.T, costMonitor *cost.Monitor, providers ...provider.Provider) *Orchestrator {
	t.Helper()

	detector, err := langdetect.NewDetector(langdetect.Options{MaxEntries: 100, TTL: time.Hour})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	cacheManager := cache.New(cache.Options{}, nil, zerolog.Nop())
	limiter := ratelimit.New(ratelimit.Options{Window: time.Minute, Max: 100})
	orch, err := NewOrchestrator(Deps{
		Providers: providers,
		Cache:     cacheManager,
		Limiter:   limiter,
		Cost:      costMonitor,
		Perf:      perf.NewMonitor(perf.Options{}, nil, zerolog.Nop()),
		Detector:  detector,
		Logger:    zerolog.Nop(),
	}, Options{})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}
	t.Cleanup(func() {
		orch.Wait()
		cacheManager.Close()
		detector.Close()
	})
	return orch
}

func TestDetectLanguage_ProviderResultIsMemoised(t *testing.T) {
	t.Parallel()

	google := &stubProvider{name: "google", detect: func(context.Context, string) (string, error) {
		return "de-DE", nil
	}}
	orch := newDetectingOrchestrator(t, google)
	ctx := context.Background()

	first, err := orch.DetectLanguage(ctx, "client", "Guten Morgen zusammen")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if first.Language != "de" || first.Source != "google" || first.Cached {
		t.Fatalf("unexpected detection: %+v", first)
	}

	orch.detector.Wait()
	second, err := orch.DetectLanguage(ctx, "client", "Guten Morgen zusammen")
	if err != nil {
		t.Fatalf("second detect: %v", err)
	}
	if !second.Cached || second.Language != "de" {
		t.Fatalf("expected memoised detection, got %+v", second)
	}
	if got := google.detectCalls.Load(); got != 1 {
		t.Fatalf("unexpected provider detect calls: got %d want 1", got)
	}
}

func TestDetectLanguage_FallsBackToLocalModel(t *testing.T) {
	t.Parallel()

	broken := &stubProvider{name: "openai", detect: func(context.Context, string) (string, error) {
		return "", &provider.Error{Provider: "openai", Op: "detect", StatusCode: 503, Cause: errors.New("unavailable")}
	}}
	orch := newDetectingOrchestrator(t, broken)

	got, err := orch.DetectLanguage(context.Background(), "client", "Ceci est une phrase écrite en français, sans aucun doute.")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if got.Language != "fr" || got.Source != langdetect.SourceLocal {
		t.Fatalf("unexpected local detection: %+v", got)
	}
	if got.Confidence <= 0 {
		t.Fatalf("expected a confidence value, got %v", got.Confidence)
	}
}

func TestDetectLanguage_HardFailBudgetSkipsProviders(t *testing.T) {
	t.Parallel()

	costMonitor := cost.NewMonitor(cost.Budget{Daily: 0.01, Monthly: 100, AlertThreshold: 0.8, HardFail: true}, cost.DefaultRates())
	costMonitor.TrackRequest("google", 1000, "")
	google := &stubProvider{name: "google", detect: func(context.Context, string) (string, error) {
		return "fr", nil
	}}
	orch := newDetectingOrchestratorWithCost(t, costMonitor, google)

	got, err := orch.DetectLanguage(context.Background(), "client", "Ceci est une phrase écrite en français, sans aucun doute.")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if got.Language != "fr" || got.Source != langdetect.SourceLocal {
		t.Fatalf("unexpected detection: got %+v want local fr", got)
	}
	if calls := google.detectCalls.Load(); calls != 0 {
		t.Fatalf("provider asked to detect over budget: %d calls", calls)
	}
	if usage := costMonitor.GetUsageStats(); usage.Current.TotalRequests != 1 {
		t.Fatalf("unexpected billed requests: got %d want 1", usage.Current.TotalRequests)
	}
}

func TestDetectLanguage_RejectsEmptyText(t *testing.T) {
	t.Parallel()

	orch := newDetectingOrchestrator(t, &stubProvider{name: "google"})
	var validation *ValidationError
	if _, err := orch.DetectLanguage(context.Background(), "client", " "); !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestHealth_ReportsDegradedChain(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []provider.Provider{
		&stubProvider{name: "openai"},
		&stubProvider{name: "deepl", pingErr: errors.New("401 unauthorized")},
	}, fixtureOptions{})

	health := f.orch.Health(context.Background())
	if health.Status != StatusDegraded {
		t.Fatalf("unexpected status: got %q want %q", health.Status, StatusDegraded)
	}
	if len(health.Providers) != 2 || !health.Providers[0].Healthy || health.Providers[1].Healthy {
		t.Fatalf("unexpected provider health: %+v", health.Providers)
	}
	if health.Providers[1].Error == "" {
		t.Fatal("expected ping error to be reported")
	}
	if health.SharedCache != nil {
		t.Fatalf("expected no shared cache entry without a store: %+v", health.SharedCache)
	}
}

func TestHealth_AllDown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, []provider.Provider{&stubProvider{name: "google", pingErr: errors.New("dial tcp: refused")}}, fixtureOptions{})
	if got := f.orch.Health(context.Background()).Status; got != StatusDown {
		t.Fatalf("unexpected status: got %q want %q", got, StatusDown)
	}
}
