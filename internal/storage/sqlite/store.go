package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/migration"
	"github.com/julianstephens/habitsync/internal/storage"
	"github.com/julianstephens/habitsync/migrations"
)

const dsnPragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

type Store struct {
	path string
	db   *sql.DB
	opts storage.Options
}

func NewStore(path string, opts ...storage.Option) *Store {
	return &Store{
		path: path,
		opts: storage.NewOptions(opts...),
	}
}

func (s *Store) Init(ctx context.Context) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if err := s.open(); err != nil {
		return err
	}

	if err := s.runMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return storage.Unavailable("load", fmt.Errorf("storage not initialized at %s, run 'habitsync init' first", s.path))
	}

	if err := s.open(); err != nil {
		return err
	}

	return s.migrationRunner().ValidateVersion(ctx)
}

func (s *Store) open() error {
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite", s.path+dsnPragmas)
	if err != nil {
		return storage.Unavailable("open database", err)
	}
	// A single connection keeps transactions from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s.db = db
	return nil
}

func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Store) Location() string {
	return s.path
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// GetDB returns the underlying database connection, or nil before Init/Load.
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// MigrationStatus reports the schema version against the embedded migrations.
func (s *Store) MigrationStatus(ctx context.Context) (migration.Status, error) {
	if s.db == nil {
		return migration.Status{}, storage.ErrNotLoaded
	}
	return s.migrationRunner().Status(ctx)
}

func (s *Store) migrationRunner() *migration.Runner {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		// The embedded directory is fixed at build time.
		panic(fmt.Sprintf("missing embedded sqlite migrations: %v", err))
	}
	return migration.NewRunner(s.db, subFS)
}

func (s *Store) runMigrations(ctx context.Context) error {
	_, err := s.migrationRunner().ApplyMigrations(ctx, func(msg string) {
		logger.Info(msg, "store", "sqlite")
	})
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, storage.ErrNotLoaded
	}
	return s.db, nil
}
