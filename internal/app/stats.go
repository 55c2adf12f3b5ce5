package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"horse.fit/babel/internal/cli"
	"horse.fit/babel/internal/db"
)

type usageRow struct {
	Provider   string  `json:"provider"`
	Characters int64   `json:"characters"`
	Requests   int64   `json:"requests"`
	Cost       float64 `json:"cost"`
}

type statsReport struct {
	From         string     `json:"from"`
	To           string     `json:"to"`
	Providers    []usageRow `json:"providers"`
	Total        usageRow   `json:"total"`
	CacheEntries int64      `json:"cache_entries"`
}

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	now := time.Now().UTC()
	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	from := fs.String("from", monthStart(now).Format("2006-01-02"), "First UTC day to include (YYYY-MM-DD)")
	to := fs.String("to", now.Format("2006-01-02"), "Last UTC day to include (YYYY-MM-DD)")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	reset := fs.Bool("reset", false, "Delete all persisted usage instead of reporting it")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}
	fromDay, toDay, err := parseUTCDateRange(*from, *to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid range: %v\n", err)
		return 2
	}

	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		return 1
	}

	pool, err := openStore(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to shared store: %v\n", err)
		return 1
	}
	if pool == nil {
		fmt.Fprintln(os.Stderr, "stats reads persisted usage; set SHARED_CACHE_URL")
		return 1
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *reset {
		removed, err := resetUsage(ctx, pool)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to reset usage: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Deleted %d usage rows\n", removed)
		return 0
	}

	report, err := collectStats(ctx, pool, fromDay, toDay)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(report.Providers)+1)
	for _, row := range append(report.Providers, report.Total) {
		rows = append(rows, []string{
			row.Provider,
			strconv.FormatInt(row.Characters, 10),
			strconv.FormatInt(row.Requests, 10),
			fmt.Sprintf("$%.4f", row.Cost),
		})
	}
	if err := writeTable([]string{"provider", "characters", "requests", "cost"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render usage table: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout)
	if err := writeTable([]string{"metric", "value"}, [][]string{
		{"range", report.From + " .. " + report.To},
		{"shared_cache_entries", strconv.FormatInt(report.CacheEntries, 10)},
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render cache table: %v\n", err)
		return 1
	}
	return 0
}

func collectStats(ctx context.Context, pool *db.Pool, from, to time.Time) (statsReport, error) {
	totals, err := db.NewUsageStore(pool).Totals(ctx, from, to)
	if err != nil {
		return statsReport{}, err
	}
	entries, err := db.NewCacheStore(pool).Count(ctx)
	if err != nil {
		return statsReport{}, err
	}

	report := statsReport{
		From:         from.Format("2006-01-02"),
		To:           to.Format("2006-01-02"),
		Providers:    make([]usageRow, 0, len(totals)),
		Total:        usageRow{Provider: "TOTAL"},
		CacheEntries: entries,
	}
	for _, total := range totals {
		row := usageRow{
			Provider:   total.Provider,
			Characters: total.Characters,
			Requests:   total.Requests,
			Cost:       float64(total.CostNanos) / 1e9,
		}
		report.Providers = append(report.Providers, row)
		report.Total.Characters += row.Characters
		report.Total.Requests += row.Requests
		report.Total.Cost += row.Cost
	}
	return report, nil
}

// resetUsage wipes persisted usage; cached translations are kept.
func resetUsage(ctx context.Context, pool *db.Pool) (int, error) {
	return db.NewUsageStore(pool).Delete(ctx)
}
