package langdetect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

const (
	SourceLocal = "lingua"

	DefaultCacheEntries = 10000
	DefaultCacheTTL     = time.Hour
)

// Result is one language detection.
type Result struct {
	Language string `json:"language"`
	// Source names the provider that answered, or "lingua".
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Options sizes the memoisation cache.
type Options struct {
	MaxEntries int64
	TTL        time.Duration
}

// Detector memoises detection results and offers the local lingua fallback.
type Detector struct {
	cache *ristretto.Cache
	ttl   time.Duration
	local func(string) (string, float64)
}

func NewDetector(opts Options) (*Detector, error) {
	if opts.MaxEntries < 1 {
		opts.MaxEntries = DefaultCacheEntries
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultCacheTTL
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: opts.MaxEntries * 10,
		MaxCost:     opts.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create detection cache: %w", err)
	}
	return &Detector{
		cache: cache,
		ttl:   opts.TTL,
		local: Detect,
	}, nil
}

// Lookup returns a memoised detection for text.
func (d *Detector) Lookup(text string) (Result, bool) {
	value, ok := d.cache.Get(cacheKey(text))
	if !ok {
		return Result{}, false
	}
	result, ok := value.(Result)
	return result, ok
}

// Remember memoises result for text.
func (d *Detector) Remember(text string, result Result) {
	if result.Language == "" {
		return
	}
	d.cache.SetWithTTL(cacheKey(text), result, 1, d.ttl)
}

// DetectLocal runs lingua on text.
func (d *Detector) DetectLocal(text string) (Result, bool) {
	code, confidence := d.local(text)
	if code == "" {
		return Result{}, false
	}
	return Result{Language: code, Source: SourceLocal, Confidence: confidence}, true
}

// Wait blocks until buffered Remember calls are applied.
func (d *Detector) Wait() {
	d.cache.Wait()
}

// Flush drops every memoised detection.
func (d *Detector) Flush() {
	d.cache.Clear()
}

// Close stops the cache's background goroutines.
func (d *Detector) Close() {
	d.cache.Close()
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
