// Package store persists seen postings, notification records and match
// results. SQLite is the default backend; postgres:// DSNs use pgx.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/spigell/jobhound/internal/store/migrations"
)

const (
	DefaultDSN = "jobhound.db"

	driverSQLite   = "sqlite"
	driverPostgres = "pgx"

	sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
)

var (
	// ErrNotificationExists is returned when a notification for the job was
	// already recorded.
	ErrNotificationExists = errors.New("notification already recorded")
	ErrNotFound           = errors.New("not found")
)

func init() {
	sqlx.BindDriver(driverSQLite, sqlx.QUESTION)
}

type Store struct {
	db     *sqlx.DB
	driver string
	logger *zap.Logger
	now    func() time.Time
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	driver, source := parseDSN(dsn)

	db, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if driver == driverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{db: db, driver: driver, logger: logger, now: time.Now}

	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Debug("store opened", zap.String("driver", driver))

	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Driver() string {
	return s.driver
}

// parseDSN maps a configured DSN to a driver name and a driver-specific
// data source. Bare paths and sqlite:// URLs use SQLite.
func parseDSN(dsn string) (string, string) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = DefaultDSN
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres, dsn
	}

	path := strings.TrimPrefix(dsn, "sqlite://")
	if strings.Contains(path, "_pragma=") {
		return driverSQLite, path
	}
	if strings.Contains(path, "?") {
		return driverSQLite, path + "&" + sqlitePragmas
	}
	return driverSQLite, path + "?" + sqlitePragmas
}

// Migrate applies embedded migrations newer than the recorded version.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.GetContext(ctx, &current, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, s.db.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}

		s.logger.Info("applied migration", zap.String("migration", name))
	}

	return nil
}
