package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"horse.fit/babel/internal/cache"
)

// CacheStore is the shared translation cache tier backed by
// translation_cache_entries.
type CacheStore struct {
	pool *Pool
}

var _ cache.SharedStore = (*CacheStore)(nil)

func NewCacheStore(pool *Pool) *CacheStore {
	return &CacheStore{pool: pool}
}

// Get returns the cached payload. Expired rows read as a miss and are removed.
func (s *CacheStore) Get(ctx context.Context, key string) (cache.Payload, bool, error) {
	gdb, err := s.db(ctx)
	if err != nil {
		return cache.Payload{}, false, err
	}

	var row TranslationCacheEntry
	err = gdb.Where("cache_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cache.Payload{}, false, nil
	}
	if err != nil {
		return cache.Payload{}, false, fmt.Errorf("query cache entry: %w", err)
	}

	now := s.pool.now().UTC()
	if !now.Before(row.ExpiresAt) {
		if err := gdb.Where("cache_key = ? AND expires_at <= ?", key, now).
			Delete(&TranslationCacheEntry{}).Error; err != nil {
			return cache.Payload{}, false, fmt.Errorf("delete expired cache entry: %w", err)
		}
		return cache.Payload{}, false, nil
	}

	return cache.Payload{
		TranslatedText: row.TranslatedText,
		Provider:       row.Provider,
		SourceLang:     row.SourceLang,
	}, true, nil
}

func (s *CacheStore) Set(ctx context.Context, entry cache.Entry) error {
	gdb, err := s.db(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(entry.Key) == "" {
		return fmt.Errorf("cache key is required")
	}
	if entry.TTL <= 0 {
		return fmt.Errorf("cache entry ttl must be positive")
	}

	createdAt := entry.CreatedAt.UTC()
	if entry.CreatedAt.IsZero() {
		createdAt = s.pool.now().UTC()
	}
	row := TranslationCacheEntry{
		CacheKey:       entry.Key,
		TranslatedText: entry.Value.TranslatedText,
		Provider:       entry.Value.Provider,
		SourceLang:     entry.Value.SourceLang,
		CreatedAt:      createdAt,
		ExpiresAt:      createdAt.Add(entry.TTL),
	}

	err = gdb.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"translated_text",
			"provider",
			"source_lang",
			"created_at",
			"expires_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (s *CacheStore) Delete(ctx context.Context, key string) error {
	gdb, err := s.db(ctx)
	if err != nil {
		return err
	}
	if err := gdb.Where("cache_key = ?", key).Delete(&TranslationCacheEntry{}).Error; err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry and reports how many rows were deleted.
func (s *CacheStore) Clear(ctx context.Context) (int, error) {
	gdb, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	result := gdb.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&TranslationCacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("clear cache entries: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// PurgeExpired deletes rows whose expiry has passed.
func (s *CacheStore) PurgeExpired(ctx context.Context) (int, error) {
	gdb, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	result := gdb.Where("expires_at <= ?", s.pool.now().UTC()).Delete(&TranslationCacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge expired cache entries: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// Count returns the number of stored rows, expired ones included.
func (s *CacheStore) Count(ctx context.Context) (int64, error) {
	gdb, err := s.db(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := gdb.Model(&TranslationCacheEntry{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return count, nil
}

func (s *CacheStore) Ping(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("cache store is nil")
	}
	return s.pool.Ping(ctx)
}

func (s *CacheStore) db(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.pool == nil || s.pool.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	return s.pool.gdb.WithContext(ctx), nil
}
