package ratelimit

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	shardCount        = 32
	anonymousIdentity = "anonymous"

	DefaultWindow        = time.Minute
	DefaultMax           = 60
	DefaultBurstWindow   = 5 * time.Second
	DefaultBurst         = 10
	DefaultSweepInterval = time.Minute
)

// Options configures the sustained and burst windows.
type Options struct {
	Window        time.Duration
	Max           int
	BurstWindow   time.Duration
	Burst         int
	SweepInterval time.Duration
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// Decision is the outcome of one admission check.
type Decision struct {
	Identifier     string
	Allowed        bool
	Remaining      int
	ResetAt        time.Time
	BurstRemaining int
	RetryAfter     time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds; rejected decisions
// never report less than one second.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	seconds := int(math.Ceil(d.RetryAfter.Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

type record struct {
	windowCount   int
	windowResetAt time.Time
	burstCount    int
	burstResetAt  time.Time
}

type shard struct {
	mu      sync.Mutex
	records map[string]*record
}

// Limiter is a per-identifier fixed-window limiter with a burst window.
type Limiter struct {
	opts   Options
	now    func() time.Time
	logger zerolog.Logger
	shards [shardCount]*shard

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func New(opts Options, options ...Option) *Limiter {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Max < 1 {
		opts.Max = DefaultMax
	}
	if opts.BurstWindow <= 0 {
		opts.BurstWindow = DefaultBurstWindow
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}

	l := &Limiter{
		opts:   opts,
		now:    time.Now,
		logger: zerolog.Nop(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i] = &shard{records: make(map[string]*record)}
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// Check counts one request for identifier and reports whether it is admitted.
func (l *Limiter) Check(identifier string) Decision {
	identifier = normalizeIdentifier(identifier)
	now := l.now()
	s := l.shardFor(identifier)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identifier]
	if !ok {
		rec = &record{}
		s.records[identifier] = rec
	}
	if !now.Before(rec.windowResetAt) {
		rec.windowCount = 0
		rec.windowResetAt = now.Add(l.opts.Window)
	}
	if !now.Before(rec.burstResetAt) {
		rec.burstCount = 0
		rec.burstResetAt = now.Add(l.opts.BurstWindow)
	}
	rec.windowCount++
	rec.burstCount++

	windowOK := rec.windowCount <= l.opts.Max
	burstOK := l.opts.Burst <= 0 || rec.burstCount <= l.opts.Burst

	decision := Decision{
		Identifier:     identifier,
		Allowed:        windowOK && burstOK,
		Remaining:      max(0, l.opts.Max-rec.windowCount),
		ResetAt:        rec.windowResetAt,
		BurstRemaining: l.burstRemaining(rec),
	}
	if !windowOK {
		decision.RetryAfter = rec.windowResetAt.Sub(now)
	}
	if !burstOK {
		if wait := rec.burstResetAt.Sub(now); wait > decision.RetryAfter {
			decision.RetryAfter = wait
		}
	}
	return decision
}

func (l *Limiter) burstRemaining(rec *record) int {
	if l.opts.Burst <= 0 {
		return max(0, l.opts.Max-rec.windowCount)
	}
	return max(0, l.opts.Burst-rec.burstCount)
}

// Len returns the number of tracked identifiers.
func (l *Limiter) Len() int {
	total := 0
	for _, s := range l.shards {
		s.mu.Lock()
		total += len(s.records)
		s.mu.Unlock()
	}
	return total
}

// Reset forgets every identifier.
func (l *Limiter) Reset() {
	for _, s := range l.shards {
		s.mu.Lock()
		s.records = make(map[string]*record)
		s.mu.Unlock()
	}
}

// Sweep removes records whose sustained window expired more than one full
// window ago and returns how many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.opts.Window)
	removed := 0
	for _, s := range l.shards {
		s.mu.Lock()
		for id, rec := range s.records {
			if rec.windowResetAt.Before(cutoff) {
				delete(s.records, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Start launches the background sweeper. It stops when ctx is done or Close
// is called.
func (l *Limiter) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		go l.sweepLoop(ctx)
	})
}

// Close stops the sweeper and waits for it to exit.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() {
		close(l.stop)
	})
	started := true
	l.startOnce.Do(func() {
		started = false
		close(l.done)
	})
	if started {
		<-l.done
	}
}

func (l *Limiter) sweepLoop(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				l.logger.Debug().Int("removed", removed).Msg("swept stale rate limit records")
			}
		}
	}
}

func (l *Limiter) shardFor(identifier string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(identifier))
	return l.shards[h.Sum32()%shardCount]
}

func normalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return anonymousIdentity
	}
	return identifier
}
