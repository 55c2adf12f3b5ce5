package db

import "time"

// TranslationCacheEntry is one row of the shared L2 translation cache.
type TranslationCacheEntry struct {
	CacheKey       string    `gorm:"column:cache_key;primaryKey;size:160"`
	TranslatedText string    `gorm:"column:translated_text;not null"`
	Provider       string    `gorm:"column:provider;size:32;not null"`
	SourceLang     string    `gorm:"column:source_lang;size:16;not null;default:''"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	ExpiresAt      time.Time `gorm:"column:expires_at;not null"`
}

func (TranslationCacheEntry) TableName() string { return "translation_cache_entries" }

// ProviderUsage accumulates per-day provider usage across processes. Rows are
// only ever incremented in place.
type ProviderUsage struct {
	Period     string    `gorm:"column:period;primaryKey;size:10"`
	Provider   string    `gorm:"column:provider;primaryKey;size:32"`
	Characters int64     `gorm:"column:characters;not null;default:0"`
	Requests   int64     `gorm:"column:requests;not null;default:0"`
	CostNanos  int64     `gorm:"column:cost_nanos;not null;default:0"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (ProviderUsage) TableName() string { return "provider_usage" }

func autoMigrateModels() []any {
	return []any{
		&TranslationCacheEntry{},
		&ProviderUsage{},
	}
}
