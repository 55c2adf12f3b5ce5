package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/babel/internal/cache"
	"horse.fit/babel/internal/cli"
	"horse.fit/babel/internal/config"
	"horse.fit/babel/internal/cost"
	"horse.fit/babel/internal/db"
	"horse.fit/babel/internal/langdetect"
	"horse.fit/babel/internal/logging"
	"horse.fit/babel/internal/notify"
	"horse.fit/babel/internal/perf"
	"horse.fit/babel/internal/provider"
	"horse.fit/babel/internal/ratelimit"
	"horse.fit/babel/internal/retry"
	"horse.fit/babel/internal/settings"
	"horse.fit/babel/internal/translation"
)

const dbConnectTimeout = 10 * time.Second

// engine bundles every long-lived component a command needs.
type engine struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool       *db.Pool
	cacheStore *db.CacheStore
	usageStore *db.UsageStore

	cache     *cache.Manager
	limiter   *ratelimit.Limiter
	cost      *cost.Monitor
	perf      *perf.Monitor
	detector  *langdetect.Detector
	providers *provider.Registry
	orch      *translation.Orchestrator
}

// loadConfig resolves the env file, configuration and logger the way every
// command does.
func loadConfig(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// openStore connects the shared store when SHARED_CACHE_URL is set. A nil
// pool means the process runs memory-only.
func openStore(cfg *config.Config, logger zerolog.Logger) (*db.Pool, error) {
	if strings.TrimSpace(cfg.SharedCacheURL) == "" {
		logger.Info().Msg("SHARED_CACHE_URL not set; running with the memory cache only")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbConnectTimeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("dialect", pool.Dialect()).Msg("shared store connected")
	return pool, nil
}

func buildEngine(cfg *config.Config, logger zerolog.Logger) (*engine, error) {
	e := &engine{cfg: cfg, logger: logger}

	pool, err := openStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect shared store: %w", err)
	}
	e.pool = pool

	var shared cache.SharedStore
	if pool != nil {
		e.cacheStore = db.NewCacheStore(pool)
		e.usageStore = db.NewUsageStore(pool)
		shared = e.cacheStore
	}

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout + time.Second}

	var notifier notify.Notifier = notify.NewLog(logging.Component(logger, "notify"))
	if url := strings.TrimSpace(cfg.NotifyWebhookURL); url != "" {
		notifier = notify.Multi{notifier, notify.NewWebhook(url, httpClient)}
	}

	rates := cost.DefaultRates()
	if path := strings.TrimSpace(cfg.CostRatesFile); path != "" {
		loaded, err := cost.LoadRates(path)
		if err != nil {
			e.close()
			return nil, fmt.Errorf("load cost rates: %w", err)
		}
		rates = loaded
	}

	e.cache = cache.New(cache.Options{
		MaxEntries: cfg.CacheL1MaxEntries,
		L1TTL:      cfg.CacheL1TTL,
		L2TTL:      cfg.CacheL2TTL,
	}, shared, logger)

	e.limiter = ratelimit.New(ratelimit.Options{
		Window:        cfg.RateLimitWindow(),
		Max:           cfg.RateLimitMax,
		BurstWindow:   cfg.RateLimitBurstWindow(),
		Burst:         cfg.RateLimitBurst,
		SweepInterval: cfg.RateLimitSweepInterval,
	}, ratelimit.WithLogger(logger))

	costOptions := []cost.Option{
		cost.WithNotifier(notifier),
		cost.WithLogger(logger),
	}
	if e.usageStore != nil {
		costOptions = append(costOptions, cost.WithSink(e.usageStore))
	}
	e.cost = cost.NewMonitor(cost.Budget{
		Daily:          cfg.BudgetDaily,
		Monthly:        cfg.BudgetMonthly,
		AlertThreshold: cfg.BudgetAlertThreshold,
		HardFail:       cfg.BudgetHardFail,
	}, rates, costOptions...)

	e.perf = perf.NewMonitor(perf.Options{
		SlowThreshold:        cfg.PerfSlowThreshold,
		FailureRateThreshold: cfg.PerfFailureRateThreshold,
		WindowSize:           cfg.PerfWindowSize,
		NotifyInterval:       cfg.PerfNotifyInterval,
	}, notifier, logger)

	detector, err := langdetect.NewDetector(langdetect.Options{
		MaxEntries: cfg.DetectCacheMaxEntries,
		TTL:        cfg.DetectCacheTTL,
	})
	if err != nil {
		e.close()
		return nil, err
	}
	e.detector = detector

	e.providers = provider.BuildFromConfig(cfg, httpClient)
	for name, reason := range e.providers.Skipped() {
		logger.Warn().Str("provider", name).Err(reason).Msg("provider disabled")
	}
	chain, err := e.providers.Chain(cfg.ProviderPriorityList())
	if err != nil {
		e.close()
		return nil, fmt.Errorf("build provider chain: %w", err)
	}

	orch, err := translation.NewOrchestrator(translation.Deps{
		Providers: chain,
		Cache:     e.cache,
		Limiter:   e.limiter,
		Cost:      e.cost,
		Perf:      e.perf,
		Detector:  e.detector,
		Settings:  settings.NewStatic(cfg.DefaultTargetLang, cfg.EnabledLanguagesList()),
		Retry: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Jitter:      cfg.RetryJitter,
		},
		Logger: logger,
	}, translation.Options{
		MaxTextLength:    cfg.MaxTextLength,
		BatchMaxItems:    cfg.BatchMaxItems,
		BatchConcurrency: cfg.BatchConcurrency,
		BatchTimeout:     cfg.BatchTimeout,
		FetchTimeout:     fetchTimeout(cfg, len(chain)),
	})
	if err != nil {
		e.close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	e.orch = orch

	logger.Info().
		Strs("providers", orch.ProviderNames()).
		Bool("shared_cache", e.cache.SharedEnabled()).
		Msg("translation engine ready")
	return e, nil
}

// close drains background work before releasing the store.
func (e *engine) close() {
	if e == nil {
		return
	}
	if e.limiter != nil {
		e.limiter.Close()
	}
	if e.cost != nil {
		e.cost.Wait()
	}
	if e.perf != nil {
		e.perf.Wait()
	}
	if e.cache != nil {
		e.cache.Close()
	}
	if e.detector != nil {
		e.detector.Close()
	}
	if e.pool != nil {
		if err := e.pool.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("close shared store")
		}
	}
}

// fetchTimeout covers every provider in the chain using all of its retries.
func fetchTimeout(cfg *config.Config, providers int) time.Duration {
	perProvider := time.Duration(cfg.RetryMaxAttempts) * (cfg.ProviderTimeout + retry.DefaultMaxDelay)
	return time.Duration(max(providers, 1)) * perProvider
}
