package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/migration"
	"github.com/julianstephens/habitsync/internal/storage"
	"github.com/julianstephens/habitsync/migrations"
)

type Store struct {
	connStr string
	db      *sql.DB
	opts    storage.Options
}

var (
	ErrInvalidConnectionString = errors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = errors.New("connection string must not contain a password")
)

func New(connStr string, opts ...storage.Option) *Store {
	s := &Store{
		connStr: connStr,
		opts:    storage.NewOptions(opts...),
	}
	s.ensureSearchPath()
	return s
}

// IsConnString reports whether s looks like a PostgreSQL URL rather than a file path.
func IsConnString(s string) bool {
	return strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")
}

func (s *Store) ensureSearchPath() {
	if IsConnString(s.connStr) {
		u, err := url.Parse(s.connStr)
		if err != nil {
			logger.Warn("Failed to parse Postgres connection string", "error", err)
			return
		}
		q := u.Query()
		if q.Get("search_path") == "" {
			q.Set("search_path", constants.AppName)
			u.RawQuery = q.Encode()
			s.connStr = u.String()
		}
	} else if !hasSearchPathParam(s.connStr) {
		s.connStr = strings.TrimSpace(s.connStr) + " search_path=" + constants.AppName
	}
}

// hasSearchPathParam returns true if the given DSN-style connection string
// contains a search_path parameter key (case-insensitive).
func hasSearchPathParam(connStr string) bool {
	return hasDSNKey(connStr, "search_path")
}

// hasSSLMode checks if the connection string contains an sslmode parameter key (case-insensitive).
// It supports both URL-style and DSN-style connection strings.
func hasSSLMode(connStr string) bool {
	if u, err := url.Parse(connStr); err == nil && u.Scheme != "" {
		for key := range u.Query() {
			if strings.EqualFold(key, "sslmode") {
				return true
			}
		}
	}
	return hasDSNKey(connStr, "sslmode")
}

func hasDSNKey(connStr, key string) bool {
	for _, part := range strings.Fields(connStr) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if strings.EqualFold(kv[0], key) {
			return true
		}
	}
	return false
}

// ValidateConnString checks that connStr is a valid PostgreSQL connection
// string (URI or DSN) and that it does not carry a password.
func ValidateConnString(connStr string) (bool, error) {
	if strings.TrimSpace(connStr) == "" {
		return false, fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}

	if _, err := pq.NewConnector(connStr); err != nil {
		return false, fmt.Errorf("%w: invalid connection string format: %v", ErrInvalidConnectionString, err)
	}

	if IsConnString(connStr) {
		parsedURL, err := url.Parse(connStr)
		if err != nil {
			return false, fmt.Errorf("%w: failed to parse connection URL: %v", ErrInvalidConnectionString, err)
		}
		if _, isSet := parsedURL.User.Password(); isSet {
			return false, ErrEmbeddedCredentials
		}
		if parsedURL.Host == "" && parsedURL.User == nil && (parsedURL.Path == "" || parsedURL.Path == "/") {
			return false, fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
		}
	} else {
		for _, pair := range strings.Fields(connStr) {
			parts := strings.SplitN(pair, "=", 2)
			if len(parts) == 2 && strings.ToLower(strings.TrimSpace(parts[0])) == "password" {
				return false, ErrEmbeddedCredentials
			}
		}
	}

	return true, nil
}

func (s *Store) Init(ctx context.Context) error {
	db, err := s.openDB()
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+constants.AppName); err != nil {
		db.Close()
		return storage.Unavailable("create schema", err)
	}
	s.db = db

	if err := s.ping(ctx); err != nil {
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

	db, err := s.openDB()
	if err != nil {
		return err
	}
	s.db = db

	if err := s.ping(ctx); err != nil {
		return err
	}
	return s.migrationRunner().ValidateVersion(ctx)
}

func (s *Store) openDB() (*sql.DB, error) {
	db, err := sql.Open("postgres", s.connStr)
	if err != nil {
		return nil, storage.Unavailable("open database", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func (s *Store) ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		if strings.Contains(err.Error(), "SSL is not enabled on the server") && !hasSSLMode(s.connStr) {
			return storage.Unavailable("connect", fmt.Errorf("%w (hint: try adding ?sslmode=disable to your connection string)", err))
		}
		return storage.Unavailable("connect", err)
	}
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

// Location returns a non-sensitive identifier instead of the connection string.
func (s *Store) Location() string {
	if IsConnString(s.connStr) {
		if u, err := url.Parse(s.connStr); err == nil {
			return fmt.Sprintf("postgresql://%s%s", u.Host, u.Path)
		}
	}
	return "postgresql"
}

// MigrationStatus reports the schema version against the embedded migrations.
func (s *Store) MigrationStatus(ctx context.Context) (migration.Status, error) {
	if s.db == nil {
		return migration.Status{}, storage.ErrNotLoaded
	}
	return s.migrationRunner().Status(ctx)
}

func (s *Store) migrationRunner() *migration.Runner {
	subFS, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		panic(fmt.Sprintf("missing embedded postgres migrations: %v", err))
	}
	return migration.NewRunner(s.db, subFS)
}

func (s *Store) runMigrations(ctx context.Context) error {
	_, err := s.migrationRunner().ApplyMigrations(ctx, func(msg string) {
		logger.Info(msg, "store", "postgres")
	})
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, storage.ErrNotLoaded
	}
	return s.db, nil
}
