package cache

import (
	"context"
	"fmt"
	"time"
)

// Payload is the cached part of a translation result.
type Payload struct {
	TranslatedText string `json:"translated_text"`
	Provider       string `json:"provider"`
	SourceLang     string `json:"source_lang"`
}

// Entry is one cached value with its insertion time and lifetime.
type Entry struct {
	Key       string
	Value     Payload
	CreatedAt time.Time
	TTL       time.Duration
}

func (e Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

func (e Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && !now.Before(e.ExpiresAt())
}

// Tier names where a lookup was satisfied.
type Tier string

const (
	TierNone   Tier = ""
	TierMemory Tier = "memory"
	TierShared Tier = "shared"
)

// Scope selects which tiers Clear empties.
type Scope string

const (
	ScopeMemory Scope = "memory"
	ScopeShared Scope = "shared"
	ScopeAll    Scope = "all"
)

// ParseScope accepts "memory", "shared" or "all".
func ParseScope(raw string) (Scope, error) {
	switch Scope(raw) {
	case ScopeMemory, ScopeShared, ScopeAll:
		return Scope(raw), nil
	default:
		return "", fmt.Errorf("unknown cache scope %q", raw)
	}
}

// SharedStore is the durable L2 tier shared between processes. Implementations
// expire entries by TTL on their own.
type SharedStore interface {
	Get(ctx context.Context, key string) (Payload, bool, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// Error describes a failed shared-store operation. The manager logs these
// and never returns them to callers.
type Error struct {
	Tier  Tier
	Op    string
	Key   string
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cache %s %s %s: %v", e.Tier, e.Op, e.Key, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	L1Hits      int64   `json:"l1_hits"`
	L1Misses    int64   `json:"l1_misses"`
	L1Evictions int64   `json:"l1_evictions"`
	L1Expired   int64   `json:"l1_expired"`
	L1Size      int     `json:"l1_size"`
	L1MaxSize   int     `json:"l1_max_size"`
	L2Enabled   bool    `json:"l2_enabled"`
	L2Hits      int64   `json:"l2_hits"`
	L2Misses    int64   `json:"l2_misses"`
	L2Errors    int64   `json:"l2_errors"`
	L2Pending   int64   `json:"l2_pending_writes"`
	HitRatio    float64 `json:"hit_ratio"`
	Lookups     int64   `json:"lookups"`
}
