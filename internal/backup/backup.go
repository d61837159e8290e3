package backup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/logger"
)

// ErrNoDatabase is returned when the local database file does not exist yet.
var ErrNoDatabase = errors.New("local database does not exist")

var timestampFormats = []string{"20060102-1504", "20060102-150405"}

type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

func (i Info) Name() string {
	return filepath.Base(i.Path)
}

// Manager snapshots the local SQLite habit cache into <dir>/backups and
// keeps at most constants.MaxBackups of them.
type Manager struct {
	dbPath    string
	backupDir string
	keep      int
	now       func() time.Time
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRetention overrides how many snapshots Create keeps.
func WithRetention(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.keep = n
		}
	}
}

func NewManager(dbPath string, opts ...Option) *Manager {
	m := &Manager{
		dbPath:    dbPath,
		backupDir: filepath.Join(filepath.Dir(dbPath), constants.BackupDirName),
		keep:      constants.MaxBackups,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Dir() string {
	return m.backupDir
}

// Create snapshots the database and prunes old snapshots.
func (m *Manager) Create(ctx context.Context) (Info, error) {
	info, err := m.create(ctx)
	if err != nil {
		return Info{}, err
	}
	if err := m.rotate(); err != nil {
		logger.Warn("Failed to rotate old backups", "error", err)
	}
	return info, nil
}

func (m *Manager) create(ctx context.Context) (Info, error) {
	if _, err := os.Stat(m.dbPath); errors.Is(err, os.ErrNotExist) {
		return Info{}, fmt.Errorf("%w: %s", ErrNoDatabase, m.dbPath)
	}
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return Info{}, fmt.Errorf("failed to create backup directory: %w", err)
	}

	path, err := m.nextPath()
	if err != nil {
		return Info{}, err
	}
	if err := m.vacuumInto(ctx, path); err != nil {
		return Info{}, fmt.Errorf("failed to backup database: %w", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	logger.Info("Backup created", "path", path)
	return Info{Path: path, Timestamp: m.now(), Size: st.Size()}, nil
}

// nextPath picks a free file name, falling back to second precision and
// then a counter when several backups land in the same minute.
func (m *Manager) nextPath() (string, error) {
	now := m.now()
	for _, format := range timestampFormats {
		path := m.fileName(now.Format(format))
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
	}
	stamp := now.Format(timestampFormats[1])
	for i := 1; i <= 100; i++ {
		path := m.fileName(fmt.Sprintf("%s-%d", stamp, i))
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
	}
	return "", errors.New("failed to generate unique backup filename")
}

func (m *Manager) fileName(stamp string) string {
	return filepath.Join(m.backupDir, constants.BackupFilePrefix+stamp+constants.BackupFileSuffix)
}

func (m *Manager) vacuumInto(ctx context.Context, dest string) error {
	db, err := sql.Open("sqlite", m.dbPath+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	if err := verify(ctx, db); err != nil {
		return fmt.Errorf("source database appears to be corrupted: %w", err)
	}
	_, err = db.ExecContext(ctx, "VACUUM INTO ?", dest)
	return err
}

// List returns the snapshots in the backup directory, newest first. Files
// whose names do not carry a backup timestamp are ignored.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.backupDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		st, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(m.backupDir, entry.Name()),
			Timestamp: ts,
			Size:      st.Size(),
		})
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].Path > backups[j].Path
		}
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

func parseName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, constants.BackupFilePrefix) || !strings.HasSuffix(name, constants.BackupFileSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, constants.BackupFilePrefix), constants.BackupFileSuffix)

	// Drop a trailing collision counter (YYYYMMDD-HHMMSS-N)
	if parts := strings.Split(stamp, "-"); len(parts) == 3 {
		stamp = parts[0] + "-" + parts[1]
	}
	for _, format := range timestampFormats {
		if ts, err := time.ParseInLocation(format, stamp, time.Local); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func (m *Manager) rotate() error {
	backups, err := m.List()
	if err != nil {
		return err
	}
	for i := m.keep; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].Path, err)
		}
	}
	return nil
}

// Restore replaces the database with the snapshot at path. The current
// database is snapshotted first (without rotation) and that snapshot is
// returned. Callers must close any open handle to the database beforehand.
func (m *Manager) Restore(ctx context.Context, path string) (*Info, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("backup file does not exist: %s", path)
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("backup file is corrupted or invalid: %w", err)
	}
	err = verify(ctx, db)
	db.Close()
	if err != nil {
		return nil, fmt.Errorf("backup file is corrupted or invalid: %w", err)
	}

	var safety *Info
	if _, err := os.Stat(m.dbPath); err == nil {
		info, err := m.create(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to backup current database before restore: %w", err)
		}
		safety = &info
	}

	tmp := m.dbPath + ".restore.tmp"
	if err := copyFile(path, tmp); err != nil {
		return safety, fmt.Errorf("failed to copy backup file: %w", err)
	}
	if err := os.Rename(tmp, m.dbPath); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			logger.Warn("Failed to remove temporary restore file", "path", tmp, "error", rmErr)
		}
		return safety, fmt.Errorf("failed to restore database: %w", err)
	}

	logger.Info("Database restored", "from", path)
	return safety, nil
}

func verify(ctx context.Context, db *sql.DB) error {
	var count int
	return db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&count)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
