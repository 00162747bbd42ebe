package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/news-archive/internal/config"
	"github.com/tbourn/news-archive/internal/domain"
)

// newTestDB opens a private in-memory database with the archive schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Unique DB per test to avoid schema leaking across tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "archive.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmasAndPool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	var (
		journalMode string
		syncVal     int
		fkOn        int
		busyMS      int
	)
	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}
	if err := db.Raw("PRAGMA synchronous;").Row().Scan(&syncVal); err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	// NORMAL == 1
	if syncVal != 1 {
		t.Fatalf("expected synchronous=1 (NORMAL), got %d", syncVal)
	}
	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}
	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}

	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}
}

func TestOpen_SQLitePathMigratesSchema(t *testing.T) {
	cfg := config.DatabaseConfig{URL: filepath.Join(t.TempDir(), "archive.db"), MaxOpenConns: 3}

	db, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	m := db.Migrator()
	for _, tbl := range []any{&domain.RawNewsRecord{}, &domain.TopicSnapshot{}, &domain.LearningMaterial{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&domain.RawNewsRecord{}, "ux_origin_news_link") {
		t.Fatalf("expected unique link index")
	}
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 3 {
		t.Fatalf("expected MaxOpenConnections=3, got %d", stats.MaxOpenConnections)
	}
}

func TestOpen_UnreachableEndpointFails(t *testing.T) {
	cfg := config.DatabaseConfig{URL: filepath.Join(t.TempDir(), "missing", "archive.db")}
	if db, err := Open(context.Background(), cfg); err == nil || db != nil {
		t.Fatalf("expected connection failure, got db=%v err=%v", db, err)
	}
}

func TestPostgresDSN(t *testing.T) {
	cases := []struct {
		name, raw, ca string
		want          map[string]string
	}{
		{"no ca leaves url alone", "postgres://u:p@db:5432/news?sslmode=disable", "", map[string]string{"sslmode": "disable"}},
		{"ca adds root cert and verify-full", "postgres://u@db/news", "/etc/ca.pem", map[string]string{"sslrootcert": "/etc/ca.pem", "sslmode": "verify-full"}},
		{"explicit sslmode wins", "postgresql://u@db/news?sslmode=require", "/etc/ca.pem", map[string]string{"sslrootcert": "/etc/ca.pem", "sslmode": "require"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := postgresDSN(tc.raw, tc.ca)
			if err != nil {
				t.Fatalf("postgresDSN: %v", err)
			}
			for k, v := range tc.want {
				if !strings.Contains(got, k+"="+strings.ReplaceAll(v, "/", "%2F")) {
					t.Fatalf("dsn %q missing %s=%s", got, k, v)
				}
			}
		})
	}

	if _, err := postgresDSN("postgres://u@db:bad port/x", "ca.pem"); err == nil {
		t.Fatalf("expected parse error for malformed url")
	}
}

func TestIsPostgresURL(t *testing.T) {
	for in, want := range map[string]bool{
		"postgres://db/news":   true,
		"POSTGRESQL://db/news": true,
		"news_archive.db":      false,
		"file:x?mode=memory":   false,
		"/var/lib/archive.db":  false,
	} {
		if got := isPostgresURL(in); got != want {
			t.Fatalf("isPostgresURL(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestSQLiteDSN_AppendsPragmas(t *testing.T) {
	got := sqliteDSN("archive.db")
	if !strings.HasPrefix(got, "archive.db?_pragma=journal_mode(WAL)&") {
		t.Fatalf("unexpected dsn: %s", got)
	}
	got = sqliteDSN("file:x?mode=memory")
	if !strings.HasPrefix(got, "file:x?mode=memory&_pragma=") || strings.Count(got, "?") != 1 {
		t.Fatalf("unexpected dsn: %s", got)
	}
}

func TestManager_MemoizesFirstSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	var calls int32
	open := func(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
		atomic.AddInt32(&calls, 1)
		return OpenSQLite(cfg.URL)
	}
	m := NewManager(config.DatabaseConfig{URL: path}, open)
	t.Cleanup(func() { _ = m.Close() })

	var wg sync.WaitGroup
	handles := make([]*gorm.DB, 8)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			db, err := m.Client(context.Background())
			if err != nil {
				t.Errorf("Client: %v", err)
				return
			}
			handles[i] = db
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one open, got %d", got)
	}
	for i, h := range handles {
		if h == nil || h != handles[0] {
			t.Fatalf("handle %d differs from the first", i)
		}
	}
}

func TestManager_ErrorIsNotMemoized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	boom := errors.New("connection refused")
	var calls int
	open := func(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return OpenSQLite(cfg.URL)
	}
	m := NewManager(config.DatabaseConfig{URL: path}, open)
	t.Cleanup(func() { _ = m.Close() })

	if _, err := m.Client(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected first call to fail with %v, got %v", boom, err)
	}
	if calls != 1 {
		t.Fatalf("manager must not retry internally, got %d calls", calls)
	}
	db, err := m.Client(context.Background())
	if err != nil || db == nil {
		t.Fatalf("second call should connect, got db=%v err=%v", db, err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 open calls, got %d", calls)
	}
}

func TestManager_CloseWithoutClient(t *testing.T) {
	m := NewManager(config.DatabaseConfig{}, nil)
	if err := m.Close(); err != nil {
		t.Fatalf("Close on unused manager: %v", err)
	}
}

func TestIsDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if IsDuplicate(nil) {
		t.Fatalf("nil is not a duplicate")
	}
	if err := CreateMaterial(ctx, db, &domain.LearningMaterial{ID: "m1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := CreateMaterial(ctx, db, &domain.LearningMaterial{ID: "m1"})
	if !IsDuplicate(err) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if !IsDuplicate(gorm.ErrDuplicatedKey) {
		t.Fatalf("gorm.ErrDuplicatedKey should be a duplicate")
	}
	if IsDuplicate(errors.New("disk I/O error")) {
		t.Fatalf("unrelated error reported as duplicate")
	}
}

// Compile-time guards to ensure signature stability.
var (
	_ func(string) (*gorm.DB, error) = OpenSQLite
	_ OpenFunc                       = Open
)
