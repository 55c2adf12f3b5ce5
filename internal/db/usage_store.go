package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"horse.fit/babel/internal/cost"
)

const usagePeriodLayout = "2006-01-02"

// UsageStore persists per-day provider usage so several processes can share
// one ledger.
type UsageStore struct {
	pool *Pool
}

var _ cost.UsageSink = (*UsageStore)(nil)

func NewUsageStore(pool *Pool) *UsageStore {
	return &UsageStore{pool: pool}
}

// RecordUsage adds rec to the row for its day and provider.
func (s *UsageStore) RecordUsage(ctx context.Context, rec cost.UsageRecord) error {
	if s == nil || s.pool == nil || s.pool.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	provider := strings.ToLower(strings.TrimSpace(rec.Provider))
	if provider == "" {
		return fmt.Errorf("usage provider is required")
	}
	day := rec.Day
	if day.IsZero() {
		day = s.pool.now()
	}

	row := ProviderUsage{
		Period:     day.UTC().Format(usagePeriodLayout),
		Provider:   provider,
		Characters: rec.Characters,
		Requests:   rec.Requests,
		CostNanos:  rec.CostNanos,
		UpdatedAt:  s.pool.now().UTC(),
	}

	err := s.pool.gdb.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "period"}, {Name: "provider"}},
		DoUpdates: clause.Assignments(map[string]any{
			"characters": gorm.Expr("provider_usage.characters + excluded.characters"),
			"requests":   gorm.Expr("provider_usage.requests + excluded.requests"),
			"cost_nanos": gorm.Expr("provider_usage.cost_nanos + excluded.cost_nanos"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert provider usage: %w", err)
	}
	return nil
}

// UsageTotal aggregates stored usage for one provider over a date range.
type UsageTotal struct {
	Provider   string
	Characters int64
	Requests   int64
	CostNanos  int64
}

// Totals sums usage per provider for days in [from, to], both inclusive.
func (s *UsageStore) Totals(ctx context.Context, from, to time.Time) ([]UsageTotal, error) {
	if s == nil || s.pool == nil || s.pool.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	var totals []UsageTotal
	err := s.pool.gdb.WithContext(ctx).
		Model(&ProviderUsage{}).
		Select("provider, SUM(characters) AS characters, SUM(requests) AS requests, SUM(cost_nanos) AS cost_nanos").
		Where("period >= ? AND period <= ?", from.UTC().Format(usagePeriodLayout), to.UTC().Format(usagePeriodLayout)).
		Group("provider").
		Order("provider ASC").
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("query provider usage totals: %w", err)
	}
	return totals, nil
}

// Delete removes every stored usage row.
func (s *UsageStore) Delete(ctx context.Context) (int, error) {
	if s == nil || s.pool == nil || s.pool.gdb == nil {
		return 0, fmt.Errorf("database pool is not initialized")
	}
	result := s.pool.gdb.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&ProviderUsage{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete provider usage: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}
