package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxEntries   = 10000
	DefaultL1TTL        = time.Hour
	DefaultL2TTL        = 7 * 24 * time.Hour
	DefaultStoreTimeout = 2 * time.Second
	DefaultWriteTimeout = 5 * time.Second
	defaultErrorBuffer  = 64
)

// ErrNoSharedStore is returned by PingShared when the manager runs L1-only.
var ErrNoSharedStore = errors.New("shared cache store is not configured")

// Options configures both tiers.
type Options struct {
	MaxEntries   int
	L1TTL        time.Duration
	L2TTL        time.Duration
	StoreTimeout time.Duration
	WriteTimeout time.Duration
	ErrorBuffer  int
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Lookup identifies one cacheable translation.
type Lookup struct {
	Text       string
	SourceLang string
	TargetLang string
	Context    string
}

func (l Lookup) Key() string {
	return Key(l.Text, l.SourceLang, l.TargetLang, l.Context)
}

// Manager is the two-tier translation cache.
type Manager struct {
	opts   Options
	mem    *memory
	store  SharedStore
	logger zerolog.Logger
	now    func() time.Time

	l1Hits   atomic.Int64
	l1Misses atomic.Int64
	l2Hits   atomic.Int64
	l2Misses atomic.Int64
	l2Errors atomic.Int64
	lookups  atomic.Int64
	pending  atomic.Int64

	mu         sync.RWMutex
	closed     bool
	errsClosed bool
	writes     sync.WaitGroup
	errs       chan *Error
	drained    chan struct{}
	closeOnce  sync.Once
}

// New builds a Manager. A nil store runs the cache L1-only. Call Close to
// stop the background error logger.
func New(opts Options, store SharedStore, logger zerolog.Logger, options ...Option) *Manager {
	if opts.MaxEntries < 1 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.L1TTL <= 0 {
		opts.L1TTL = DefaultL1TTL
	}
	if opts.L2TTL <= 0 {
		opts.L2TTL = DefaultL2TTL
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.ErrorBuffer < 1 {
		opts.ErrorBuffer = defaultErrorBuffer
	}

	m := &Manager{
		opts:    opts,
		mem:     newMemory(opts.MaxEntries),
		store:   store,
		logger:  logger,
		now:     time.Now,
		errs:    make(chan *Error, opts.ErrorBuffer),
		drained: make(chan struct{}),
	}
	for _, option := range options {
		option(m)
	}
	go m.drainErrors()
	return m
}

// Get looks in L1, then L2. An L2 hit is copied into L1 before returning.
func (m *Manager) Get(ctx context.Context, lookup Lookup) (Payload, Tier, bool) {
	key := lookup.Key()
	m.lookups.Add(1)

	if entry, ok := m.mem.get(key, m.now()); ok {
		m.l1Hits.Add(1)
		return entry.Value, TierMemory, true
	}
	m.l1Misses.Add(1)

	if m.store == nil {
		return Payload{}, TierNone, false
	}

	storeCtx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	defer cancel()
	payload, ok, err := m.store.Get(storeCtx, key)
	if err != nil {
		m.l2Errors.Add(1)
		m.report(&Error{Tier: TierShared, Op: "get", Key: key, Cause: err})
		return Payload{}, TierNone, false
	}
	if !ok {
		m.l2Misses.Add(1)
		return Payload{}, TierNone, false
	}

	m.l2Hits.Add(1)
	m.mem.set(Entry{Key: key, Value: payload, CreatedAt: m.now(), TTL: m.opts.L1TTL})
	return payload, TierShared, true
}

// Set writes L1 synchronously and L2 on a tracked background goroutine whose
// failures are logged, never returned.
func (m *Manager) Set(ctx context.Context, lookup Lookup, payload Payload) {
	key := lookup.Key()
	now := m.now()
	m.mem.set(Entry{Key: key, Value: payload, CreatedAt: now, TTL: m.opts.L1TTL})

	if m.store == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}

	entry := Entry{Key: key, Value: payload, CreatedAt: now, TTL: m.opts.L2TTL}
	writeCtx := context.WithoutCancel(ctx)
	m.pending.Add(1)
	m.writes.Add(1)
	go func() {
		defer m.writes.Done()
		defer m.pending.Add(-1)

		storeCtx, cancel := context.WithTimeout(writeCtx, m.opts.WriteTimeout)
		defer cancel()
		if err := m.store.Set(storeCtx, entry); err != nil {
			m.l2Errors.Add(1)
			m.report(&Error{Tier: TierShared, Op: "set", Key: key, Cause: err})
		}
	}()
}

// Delete removes one translation from both tiers.
func (m *Manager) Delete(ctx context.Context, lookup Lookup) error {
	key := lookup.Key()
	m.mem.delete(key)
	if m.store == nil {
		return nil
	}
	if err := m.store.Delete(ctx, key); err != nil {
		return &Error{Tier: TierShared, Op: "delete", Key: key, Cause: err}
	}
	return nil
}

// Clear empties the tiers named by scope and returns the number of removed
// entries.
func (m *Manager) Clear(ctx context.Context, scope Scope) (int, error) {
	removed := 0
	switch scope {
	case ScopeMemory:
		return m.mem.clear(), nil
	case ScopeShared, ScopeAll:
		if scope == ScopeAll {
			removed += m.mem.clear()
		}
		if m.store == nil {
			return removed, nil
		}
		n, err := m.store.Clear(ctx)
		removed += n
		if err != nil {
			return removed, &Error{Tier: TierShared, Op: "clear", Cause: err}
		}
		return removed, nil
	default:
		return 0, fmt.Errorf("unknown cache scope %q", scope)
	}
}

// SharedEnabled reports whether an L2 store is configured.
func (m *Manager) SharedEnabled() bool {
	return m.store != nil
}

// PingShared checks L2 reachability.
func (m *Manager) PingShared(ctx context.Context) error {
	if m.store == nil {
		return ErrNoSharedStore
	}
	storeCtx, cancel := context.WithTimeout(ctx, m.opts.StoreTimeout)
	defer cancel()
	return m.store.Ping(storeCtx)
}

func (m *Manager) Stats() Stats {
	l1Hits := m.l1Hits.Load()
	l2Hits := m.l2Hits.Load()
	lookups := m.lookups.Load()

	stats := Stats{
		L1Hits:      l1Hits,
		L1Misses:    m.l1Misses.Load(),
		L1Evictions: m.mem.evictions.Load(),
		L1Expired:   m.mem.expired.Load(),
		L1Size:      m.mem.len(),
		L1MaxSize:   m.opts.MaxEntries,
		L2Enabled:   m.store != nil,
		L2Hits:      l2Hits,
		L2Misses:    m.l2Misses.Load(),
		L2Errors:    m.l2Errors.Load(),
		L2Pending:   m.pending.Load(),
		Lookups:     lookups,
	}
	if lookups > 0 {
		stats.HitRatio = float64(l1Hits+l2Hits) / float64(lookups)
	}
	return stats
}

// ResetStats zeroes hit/miss counters without touching cached entries.
func (m *Manager) ResetStats() {
	m.l1Hits.Store(0)
	m.l1Misses.Store(0)
	m.l2Hits.Store(0)
	m.l2Misses.Store(0)
	m.l2Errors.Store(0)
	m.lookups.Store(0)
	m.mem.evictions.Store(0)
	m.mem.expired.Store(0)
}

// Wait blocks until every background L2 write has finished.
func (m *Manager) Wait() {
	m.writes.Wait()
}

// Close drains background writes and stops the error logger.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		m.writes.Wait()

		m.mu.Lock()
		m.errsClosed = true
		close(m.errs)
		m.mu.Unlock()
		<-m.drained
	})
}

func (m *Manager) report(cacheErr *Error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.errsClosed {
		m.logError(cacheErr)
		return
	}
	select {
	case m.errs <- cacheErr:
	default:
		m.logError(cacheErr)
	}
}

func (m *Manager) drainErrors() {
	defer close(m.drained)
	for cacheErr := range m.errs {
		m.logError(cacheErr)
	}
}

func (m *Manager) logError(cacheErr *Error) {
	m.logger.Warn().
		Err(cacheErr.Cause).
		Str("cache_tier", string(cacheErr.Tier)).
		Str("op", cacheErr.Op).
		Str("key", cacheErr.Key).
		Msg("shared cache operation failed")
}
