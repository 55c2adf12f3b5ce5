package cost

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/babel/internal/notify"
)

const (
	nanosPerDollar = 1e9

	infoFraction     = 0.8
	warningFraction  = 0.9
	criticalFraction = 1.0

	PeriodDaily   = "daily"
	PeriodMonthly = "monthly"

	defaultSinkTimeout = 5 * time.Second
)

// Budget holds the spend ceilings compared against usage.
type Budget struct {
	Daily   float64
	Monthly float64
	// AlertThreshold is the fraction of a ceiling at which informational
	// alerts start.
	AlertThreshold float64
	HardFail       bool
}

// ProviderUsage is the accumulated usage of one provider.
type ProviderUsage struct {
	Provider   string  `json:"provider"`
	Characters int64   `json:"characters"`
	Requests   int64   `json:"requests"`
	Cost       float64 `json:"cost"`
}

// Totals are the counters since the last reset.
type Totals struct {
	TotalCost       float64         `json:"total_cost"`
	TotalCharacters int64           `json:"total_characters"`
	TotalRequests   int64           `json:"total_requests"`
	Providers       []ProviderUsage `json:"providers"`
}

// PeriodUsage is spend within the current day or month.
type PeriodUsage struct {
	Period  string  `json:"period"`
	Key     string  `json:"key"`
	Cost    float64 `json:"cost"`
	Limit   float64 `json:"limit"`
	Percent float64 `json:"percent"`
}

// Usage is the reporting snapshot.
type Usage struct {
	Current Totals      `json:"current"`
	Daily   PeriodUsage `json:"daily"`
	Monthly PeriodUsage `json:"monthly"`
	Since   time.Time   `json:"since"`
}

// Alert is a computed budget alert.
type Alert struct {
	Level   notify.Level `json:"level"`
	Period  string       `json:"period"`
	Spent   float64      `json:"spent"`
	Limit   float64      `json:"limit"`
	Percent float64      `json:"percent"`
	Message string       `json:"message"`
}

// UsageRecord is one increment handed to a UsageSink.
type UsageRecord struct {
	Day        time.Time
	Provider   string
	Characters int64
	Requests   int64
	CostNanos  int64
}

// UsageSink persists increments for cross-process accounting.
type UsageSink interface {
	RecordUsage(ctx context.Context, rec UsageRecord) error
}

// Option customizes a Monitor.
type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(m *Monitor) {
		m.notifier = n
	}
}

func WithSink(sink UsageSink) Option {
	return func(m *Monitor) {
		m.sink = sink
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Monitor) {
		m.logger = logger
	}
}

type providerCounters struct {
	characters atomic.Int64
	requests   atomic.Int64
	nanos      atomic.Int64
}

type periodCounters struct {
	day     string
	month   string
	daily   atomic.Int64
	monthly atomic.Int64
}

// Monitor accounts provider spend against daily and monthly budgets. Counters
// are atomic; period counters roll over at UTC day and month boundaries.
type Monitor struct {
	budget   Budget
	rates    RateTable
	now      func() time.Time
	notifier notify.Notifier
	sink     UsageSink
	logger   zerolog.Logger

	providers  sync.Map
	characters atomic.Int64
	requests   atomic.Int64
	nanos      atomic.Int64
	period     atomic.Pointer[periodCounters]
	since      atomic.Pointer[time.Time]

	notifiedMu sync.Mutex
	notified   map[string]struct{}
	unpriced   sync.Map

	background sync.WaitGroup
}

func NewMonitor(budget Budget, rates RateTable, options ...Option) *Monitor {
	if budget.AlertThreshold <= 0 || budget.AlertThreshold > 1 {
		budget.AlertThreshold = infoFraction
	}
	if rates.Providers == nil {
		rates = DefaultRates()
	}
	m := &Monitor{
		budget:   budget,
		rates:    rates,
		now:      time.Now,
		logger:   zerolog.Nop(),
		notified: make(map[string]struct{}),
	}
	for _, option := range options {
		option(m)
	}
	now := m.now().UTC()
	m.period.Store(newPeriod(now))
	m.since.Store(&now)
	return m
}

// TrackRequest records one successful provider call and returns its cost in
// USD.
func (m *Monitor) TrackRequest(provider string, characters int, model string) float64 {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if characters < 0 {
		characters = 0
	}
	cost, priced := m.rates.Cost(provider, model, characters)
	if !priced {
		if _, seen := m.unpriced.LoadOrStore(provider, struct{}{}); !seen {
			m.logger.Warn().Str("provider", provider).Msg("no cost rate for provider; usage is tracked at zero cost")
		}
	}
	nanos := int64(math.Round(cost * nanosPerDollar))

	counters := m.counters(provider)
	counters.characters.Add(int64(characters))
	counters.requests.Add(1)
	counters.nanos.Add(nanos)
	m.characters.Add(int64(characters))
	m.requests.Add(1)
	m.nanos.Add(nanos)

	now := m.now().UTC()
	period := m.currentPeriod(now)
	period.daily.Add(nanos)
	period.monthly.Add(nanos)

	m.persist(UsageRecord{
		Day:        startOfDay(now),
		Provider:   provider,
		Characters: int64(characters),
		Requests:   1,
		CostNanos:  nanos,
	})
	m.notifyNewAlerts(period)
	return cost
}

// GetUsageStats returns totals since the last reset and current period spend.
func (m *Monitor) GetUsageStats() Usage {
	period := m.currentPeriod(m.now().UTC())

	var providers []ProviderUsage
	m.providers.Range(func(key, value any) bool {
		counters := value.(*providerCounters)
		providers = append(providers, ProviderUsage{
			Provider:   key.(string),
			Characters: counters.characters.Load(),
			Requests:   counters.requests.Load(),
			Cost:       dollars(counters.nanos.Load()),
		})
		return true
	})
	sort.Slice(providers, func(i, j int) bool {
		return providers[i].Provider < providers[j].Provider
	})

	return Usage{
		Current: Totals{
			TotalCost:       dollars(m.nanos.Load()),
			TotalCharacters: m.characters.Load(),
			TotalRequests:   m.requests.Load(),
			Providers:       providers,
		},
		Daily:   periodUsage(PeriodDaily, period.day, period.daily.Load(), m.budget.Daily),
		Monthly: periodUsage(PeriodMonthly, period.month, period.monthly.Load(), m.budget.Monthly),
		Since:   *m.since.Load(),
	}
}

// GetAlerts derives alerts from the current counters. Each period yields at
// most one alert, at its highest crossed tier.
func (m *Monitor) GetAlerts() []Alert {
	return m.alerts(m.currentPeriod(m.now().UTC()))
}

// CheckBudget rejects new spend once a ceiling is reached, but only when the
// budget is configured to hard-fail.
func (m *Monitor) CheckBudget() error {
	if !m.budget.HardFail {
		return nil
	}
	period := m.currentPeriod(m.now().UTC())
	if spent := dollars(period.monthly.Load()); m.budget.Monthly > 0 && spent >= m.budget.Monthly {
		return &BudgetExceededError{Period: PeriodMonthly, Spent: spent, Limit: m.budget.Monthly}
	}
	if spent := dollars(period.daily.Load()); m.budget.Daily > 0 && spent >= m.budget.Daily {
		return &BudgetExceededError{Period: PeriodDaily, Spent: spent, Limit: m.budget.Daily}
	}
	return nil
}

// Reset zeroes every counter and restarts the accounting period.
func (m *Monitor) Reset() {
	m.providers.Range(func(key, _ any) bool {
		m.providers.Delete(key)
		return true
	})
	m.characters.Store(0)
	m.requests.Store(0)
	m.nanos.Store(0)

	now := m.now().UTC()
	m.period.Store(newPeriod(now))
	m.since.Store(&now)

	m.notifiedMu.Lock()
	m.notified = make(map[string]struct{})
	m.notifiedMu.Unlock()
}

// Budget returns the configured ceilings.
func (m *Monitor) Budget() Budget {
	return m.budget
}

// Wait blocks until background notifications and sink writes finish.
func (m *Monitor) Wait() {
	m.background.Wait()
}

func (m *Monitor) alerts(period *periodCounters) []Alert {
	alerts := make([]Alert, 0, 2)
	if alert, ok := m.alertFor(PeriodMonthly, dollars(period.monthly.Load()), m.budget.Monthly); ok {
		alerts = append(alerts, alert)
	}
	if alert, ok := m.alertFor(PeriodDaily, dollars(period.daily.Load()), m.budget.Daily); ok {
		alerts = append(alerts, alert)
	}
	return alerts
}

func (m *Monitor) alertFor(period string, spent, limit float64) (Alert, bool) {
	if limit <= 0 {
		return Alert{}, false
	}
	fraction := spent / limit
	var level notify.Level
	switch {
	case fraction >= criticalFraction:
		level = notify.LevelCritical
	case fraction >= warningFraction:
		level = notify.LevelWarning
	case fraction >= m.budget.AlertThreshold:
		level = notify.LevelInfo
	default:
		return Alert{}, false
	}
	percent := fraction * 100
	return Alert{
		Level:   level,
		Period:  period,
		Spent:   spent,
		Limit:   limit,
		Percent: percent,
		Message: fmt.Sprintf("%s translation spend at %.1f%% of budget ($%.2f of $%.2f)", period, percent, spent, limit),
	}, true
}

func (m *Monitor) notifyNewAlerts(period *periodCounters) {
	if m.notifier == nil {
		return
	}
	for _, alert := range m.alerts(period) {
		periodKey := period.month
		if alert.Period == PeriodDaily {
			periodKey = period.day
		}
		key := alert.Period + ":" + periodKey + ":" + string(alert.Level)

		m.notifiedMu.Lock()
		_, sent := m.notified[key]
		if !sent {
			m.notified[key] = struct{}{}
		}
		m.notifiedMu.Unlock()
		if sent {
			continue
		}

		msg := notify.Message{
			Level: alert.Level,
			Title: fmt.Sprintf("Translation budget %s (%s)", alert.Level, alert.Period),
			Body:  alert.Message,
			Fields: map[string]any{
				"period":  alert.Period,
				"spent":   alert.Spent,
				"limit":   alert.Limit,
				"percent": alert.Percent,
			},
		}
		m.goBackground(func(ctx context.Context) {
			if err := m.notifier.Notify(ctx, msg); err != nil {
				m.logger.Warn().Err(err).Str("period", alert.Period).Msg("budget notification failed")
			}
		})
	}
}

func (m *Monitor) persist(rec UsageRecord) {
	if m.sink == nil {
		return
	}
	m.goBackground(func(ctx context.Context) {
		if err := m.sink.RecordUsage(ctx, rec); err != nil {
			m.logger.Warn().Err(err).Str("provider", rec.Provider).Msg("persist provider usage failed")
		}
	})
}

func (m *Monitor) goBackground(fn func(ctx context.Context)) {
	m.background.Add(1)
	go func() {
		defer m.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), defaultSinkTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (m *Monitor) counters(provider string) *providerCounters {
	if existing, ok := m.providers.Load(provider); ok {
		return existing.(*providerCounters)
	}
	actual, _ := m.providers.LoadOrStore(provider, &providerCounters{})
	return actual.(*providerCounters)
}

// currentPeriod returns the counters for now, rolling them over when the day
// or month changed. A day rollover within the same month keeps monthly spend.
func (m *Monitor) currentPeriod(now time.Time) *periodCounters {
	for {
		current := m.period.Load()
		day, month := dayKey(now), monthKey(now)
		if current.day == day {
			return current
		}
		next := &periodCounters{day: day, month: month}
		if current.month == month {
			next.monthly.Store(current.monthly.Load())
		}
		if m.period.CompareAndSwap(current, next) {
			return next
		}
	}
}

func newPeriod(now time.Time) *periodCounters {
	return &periodCounters{day: dayKey(now), month: monthKey(now)}
}

func periodUsage(period, key string, nanos int64, limit float64) PeriodUsage {
	usage := PeriodUsage{Period: period, Key: key, Cost: dollars(nanos), Limit: limit}
	if limit > 0 {
		usage.Percent = usage.Cost / limit * 100
	}
	return usage
}

func dollars(nanos int64) float64 {
	return float64(nanos) / nanosPerDollar
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}
