package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/babel/internal/cli"
	"horse.fit/babel/internal/db"
	"horse.fit/babel/internal/httpapi"
	"horse.fit/babel/internal/logging"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	host := fs.String("host", "0.0.0.0", "Host interface to bind")
	port := fs.Int("port", 8090, "HTTP port")
	readTimeout := fs.Duration("read-timeout", 10*time.Second, "HTTP read timeout")
	writeTimeout := fs.Duration("write-timeout", 90*time.Second, "HTTP write timeout")
	shutdownTimeout := fs.Duration("shutdown-timeout", 10*time.Second, "Graceful shutdown timeout")
	purgeInterval := fs.Duration("purge-interval", 15*time.Minute, "How often expired shared cache rows are deleted (0 disables)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "--port must be between 1 and 65535")
		return 2
	}
	if *purgeInterval < 0 {
		fmt.Fprintln(os.Stderr, "--purge-interval must be >= 0")
		return 2
	}

	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		return 1
	}

	eng, err := buildEngine(cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to build translation engine")
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer eng.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	eng.limiter.Start(ctx)

	var background sync.WaitGroup
	if eng.cacheStore != nil && *purgeInterval > 0 {
		background.Add(1)
		go func() {
			defer background.Done()
			purgeExpired(ctx, eng.cacheStore, *purgeInterval, logging.Component(logger, "purge"))
		}()
	}

	srv := httpapi.NewServer(eng.orch, logger, httpapi.Options{
		Host:            *host,
		Port:            *port,
		ReadTimeout:     *readTimeout,
		WriteTimeout:    *writeTimeout,
		ShutdownTimeout: *shutdownTimeout,
		AdminTokenHash:  cfg.AdminTokenHash,
		AllowedOrigins:  cfg.CORSAllowedOriginsList(),
		TrustProxy:      cfg.TrustProxy,
	})

	err = srv.Start(ctx)
	cancel()
	background.Wait()
	eng.orch.Wait()

	if err != nil {
		logger.Error().Err(err).Str("host", *host).Int("port", *port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}
	return 0
}

type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int, error)
}

var _ expiredPurger = (*db.CacheStore)(nil)

// purgeExpired deletes expired shared cache rows until ctx is done.
func purgeExpired(ctx context.Context, store expiredPurger, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Warn().Err(err).Msg("purge expired cache entries failed")
				continue
			}
			if removed > 0 {
				logger.Info().Int("removed", removed).Msg("purged expired cache entries")
			}
		}
	}
}
