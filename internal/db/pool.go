package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"horse.fit/babel/internal/config"
)

// Options configures a Pool independently of the env config.
type Options struct {
	URL         string
	MinConns    int32
	MaxConns    int32
	LogLevel    string
	Environment string
	Now         func() time.Time
}

// Pool wraps the gorm handle backing the shared cache tier and usage counters.
type Pool struct {
	gdb     *gorm.DB
	sqlDB   *sql.DB
	dialect string
	now     func() time.Time
}

// NewPool opens SHARED_CACHE_URL. Callers check cfg.SharedCacheURL first;
// an empty URL is an error here.
func NewPool(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	return Open(ctx, Options{
		URL:         cfg.SharedCacheURL,
		MinConns:    cfg.DBMinConns,
		MaxConns:    cfg.DBMaxConns,
		LogLevel:    cfg.LogLevel,
		Environment: cfg.Environment,
	})
}

func Open(ctx context.Context, opts Options) (*Pool, error) {
	dialector, dialect, err := openDialector(opts.URL)
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logLevel := resolveGormLogLevel(opts.LogLevel, opts.Environment)

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get gorm sql db: %w", err)
	}

	maxOpen := int(opts.MaxConns)
	if maxOpen <= 0 {
		maxOpen = 8
	}
	if dialect == dialectSQLite {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY.
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(max(1, min(int(opts.MinConns), maxOpen)))
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pool := &Pool{
		gdb:     gdb,
		sqlDB:   sqlDB,
		dialect: dialect,
		now:     now,
	}
	if err := pool.autoMigrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto-migrate schema: %w", err)
	}

	return pool, nil
}

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

// openDialector maps postgres:// URLs to the postgres driver and sqlite://
// or file: URLs to the sqlite driver.
func openDialector(raw string) (gorm.Dialector, string, error) {
	url := strings.TrimSpace(raw)
	lower := strings.ToLower(url)
	switch {
	case url == "":
		return nil, "", fmt.Errorf("shared cache url is empty")
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return postgres.Open(url), dialectPostgres, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return sqlite.Open(url[len("sqlite://"):]), dialectSQLite, nil
	case strings.HasPrefix(lower, "file:"):
		return sqlite.Open(url), dialectSQLite, nil
	default:
		return nil, "", fmt.Errorf("unsupported shared cache url scheme in %q (want postgres://, sqlite:// or file:)", redact(url))
	}
}

func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.sqlDB == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	return p.sqlDB.PingContext(ctx)
}

func (p *Pool) Close() error {
	if p == nil || p.sqlDB == nil {
		return nil
	}
	return p.sqlDB.Close()
}

func (p *Pool) DB() *sql.DB {
	if p == nil {
		return nil
	}
	return p.sqlDB
}

func (p *Pool) GORM() *gorm.DB {
	if p == nil {
		return nil
	}
	return p.gdb
}

// Dialect returns "postgres" or "sqlite".
func (p *Pool) Dialect() string {
	if p == nil {
		return ""
	}
	return p.dialect
}

func redact(url string) string {
	if at := strings.LastIndex(url, "@"); at >= 0 {
		if scheme := strings.Index(url, "://"); scheme >= 0 && scheme < at {
			return url[:scheme+3] + "***" + url[at:]
		}
	}
	return url
}

func resolveGormLogLevel(appLogLevel, environment string) logger.LogLevel {
	level := strings.ToLower(strings.TrimSpace(appLogLevel))
	switch level {
	case "trace", "debug":
		return logger.Info
	case "warn", "warning", "info", "":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		if strings.EqualFold(strings.TrimSpace(environment), "local") {
			return logger.Warn
		}
		return logger.Error
	}
}
