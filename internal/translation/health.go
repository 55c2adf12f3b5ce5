package translation

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"horse.fit/babel/internal/cache"
)

// Health pings every provider and the shared cache concurrently.
func (o *Orchestrator) Health(ctx context.Context) Health {
	checkCtx, cancel := context.WithTimeout(ctx, o.opts.HealthTimeout)
	defer cancel()

	providers := make([]ComponentHealth, len(o.providers))
	var shared *ComponentHealth

	var group errgroup.Group
	for i, p := range o.providers {
		group.Go(func() error {
			providers[i] = o.check(p.Name(), func() error { return p.Ping(checkCtx) })
			return nil
		})
	}
	if o.cache.SharedEnabled() {
		group.Go(func() error {
			status := o.check("shared_cache", func() error { return o.cache.PingShared(checkCtx) })
			shared = &status
			return nil
		})
	}
	_ = group.Wait()

	healthy := 0
	for _, status := range providers {
		if status.Healthy {
			healthy++
		}
	}

	out := Health{
		Providers:   providers,
		SharedCache: shared,
		CheckedAt:   o.opts.Now().UTC(),
	}
	switch {
	case healthy == 0:
		out.Status = StatusDown
	case healthy < len(providers), shared != nil && !shared.Healthy:
		out.Status = StatusDegraded
	default:
		out.Status = StatusOK
	}
	return out
}

func (o *Orchestrator) check(name string, ping func() error) ComponentHealth {
	started := o.opts.Now()
	err := ping()
	status := ComponentHealth{
		Name:      name,
		Healthy:   err == nil,
		LatencyMs: o.opts.Now().Sub(started).Milliseconds(),
	}
	if err != nil {
		status.Error = err.Error()
		if !errors.Is(err, cache.ErrNoSharedStore) {
			o.logger.Warn().Err(err).Str("check", name).Msg("health check failed")
		}
	}
	return status
}
