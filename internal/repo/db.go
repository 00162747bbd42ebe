// Package repo implements the data persistence layer for the news archive,
// backed by GORM. This file contains connection bootstrapping for the two
// supported endpoints (a local SQLite file via the pure-Go driver, or a
// postgres:// URL), schema migrations, and the process-wide Manager.
package repo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/news-archive/internal/config"
	"github.com/tbourn/news-archive/internal/domain"
)

// sqlitePragmas are applied to every pooled connection through the DSN.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"busy_timeout(5000)",
}

// Open connects to the endpoint described by cfg, verifies it with a ping,
// and applies the schema. A failure at any step is returned unchanged to the
// caller; nothing is retried.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		endpoint = config.DefaultDatabaseURL
	}

	var (
		db  *gorm.DB
		err error
	)
	if isPostgresURL(endpoint) {
		var dsn string
		if dsn, err = postgresDSN(endpoint, cfg.CAFile); err != nil {
			return nil, err
		}
		db, err = gorm.Open(postgres.Open(dsn), gormConfig(cfg))
	} else {
		db, err = openSQLite(endpoint, gormConfig(cfg))
	}
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	maxOpen := cfg.MaxOpenConns
	if maxOpen < 1 {
		maxOpen = 10
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if cfg.Tracing {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("install tracing plugin: %w", err)
		}
	}

	if err := AutoMigrate(db.WithContext(ctx)); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database at path with the archive's
// PRAGMAs and pool settings. It does not migrate.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := openSQLite(path, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

func openSQLite(path string, gcfg *gorm.Config) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	file := path
	if i := strings.IndexByte(file, '?'); i >= 0 {
		file = file[:i]
	}
	file = strings.TrimPrefix(file, "file:")
	if dir := filepath.Dir(file); dir != "." && !strings.Contains(path, "mode=memory") {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}
	return gorm.Open(sqlite.Open(sqliteDSN(path)), gcfg)
}

// sqliteDSN appends the connection PRAGMAs to path.
func sqliteDSN(path string) string {
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

func isPostgresURL(endpoint string) bool {
	lower := strings.ToLower(endpoint)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

// postgresDSN attaches the trusted-root bundle to a postgres URL. When a CA
// file is given and the URL has no sslmode, verify-full is used.
func postgresDSN(raw, caFile string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if caFile == "" {
		return u.String(), nil
	}
	q := u.Query()
	q.Set("sslrootcert", caFile)
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "verify-full")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func gormConfig(cfg config.DatabaseConfig) *gorm.Config {
	level := logger.Silent
	if cfg.Debug {
		level = logger.Info
	}
	return &gorm.Config{Logger: logger.Default.LogMode(level)}
}

// AutoMigrate creates or updates the archive tables and their indexes.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.RawNewsRecord{},
		&domain.TopicSnapshot{},
		&domain.LearningMaterial{},
	)
}

// OpenFunc opens a database handle; Manager uses Open unless overridden.
type OpenFunc func(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error)

// Manager hands out one shared *gorm.DB per process. The first successful
// Client call opens the connection; later calls reuse it. A failed attempt
// is reported to its caller and not remembered, so the next call tries again.
type Manager struct {
	cfg  config.DatabaseConfig
	open OpenFunc

	mu sync.Mutex
	db *gorm.DB
}

// NewManager returns a Manager for cfg. open may be nil.
func NewManager(cfg config.DatabaseConfig, open OpenFunc) *Manager {
	if open == nil {
		open = Open
	}
	return &Manager{cfg: cfg, open: open}
}

// Client returns the shared handle, establishing it on first use.
func (m *Manager) Client(ctx context.Context) (*gorm.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return m.db, nil
	}
	db, err := m.open(ctx, m.cfg)
	if err != nil {
		return nil, err
	}
	m.db = db
	return db, nil
}

// Close releases the shared handle, if one was opened.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db == nil {
		return nil
	}
	sqlDB, err := m.db.DB()
	m.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound.
var ErrNotFound = gorm.ErrRecordNotFound

// IsDuplicate reports whether err is a unique-constraint violation. Drivers
// that do not translate errors are matched on their message.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite: "UNIQUE constraint failed"; Postgres: "duplicate key value violates unique constraint"
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
