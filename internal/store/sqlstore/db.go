// Package sqlstore implements store.Store on a relational database through
// GORM. SQLite (pure Go driver, no CGO) is the default; MySQL is supported
// for shared deployments. Ids come from the table's auto-increment column,
// which the database allocates under its own write lock.
package sqlstore

import (
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-dm-backend/internal/domain"
	"github.com/tbourn/go-dm-backend/internal/store"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Options tune how the database is opened.
type Options struct {
	// Clock stamps new messages. Defaults to store.SystemClock.
	Clock store.Clock
	// LogLevel for GORM's own logger. Defaults to logger.Warn.
	LogLevel logger.LogLevel
	// Tracing registers the OpenTelemetry GORM plugin.
	Tracing bool
}

// sqlitePragmas are appended to every SQLite DSN so they apply to each
// pooled connection, not only the first.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

// SQLiteDSN turns a file path into a DSN carrying the standard PRAGMAs.
func SQLiteDSN(path string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

// Open connects to the database, applies pool settings and migrates the
// schema. For SQLite dsn is a file path; for MySQL it is a go-sql-driver DSN
// and must include parseTime=true.
func Open(driver, dsn string, opts Options) (*Store, error) {
	var dial gorm.Dialector
	switch driver {
	case DriverSQLite:
		// Fail early if the parent directory does not exist instead of
		// surfacing sqlite's "out of memory (14)".
		if dir := filepath.Dir(dsn); dir != "." {
			if _, err := os.Stat(dir); err != nil {
				return nil, store.Unavailable("sqlite open", err)
			}
		}
		dial = sqlite.Open(SQLiteDSN(dsn))
	case DriverMySQL:
		if strings.TrimSpace(dsn) == "" {
			return nil, errors.New("mysql: empty dsn")
		}
		dial = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	lvl := opts.LogLevel
	if lvl == 0 {
		lvl = logger.Warn
	}
	gormLog := logger.New(
		stdlog.New(log.With().Str("component", "gorm").Logger(), "", 0),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  lvl,
			IgnoreRecordNotFoundError: true,
		},
	)
	db, err := gorm.Open(dial, &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, store.Unavailable(driver+" open", err)
	}

	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("gorm tracing: %w", err)
		}
	}

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, store.Unavailable(driver+" migrate", err)
	}
	return New(db, driver, opts.Clock), nil
}

// AutoMigrate creates or updates the tables the store needs.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Message{},
		&domain.Idempotency{},
	)
}
