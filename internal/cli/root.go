package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/julianstephens/habitsync/internal/backup"
	"github.com/julianstephens/habitsync/internal/config"
	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/storage"
	"github.com/julianstephens/habitsync/internal/storage/jsonfile"
	"github.com/julianstephens/habitsync/internal/storage/postgres"
	"github.com/julianstephens/habitsync/internal/storage/sqlite"
)

// ErrNoRemote is returned by commands that need a remote store when none
// is configured.
var ErrNoRemote = errors.New("no remote store configured (use 'habitsync remote set' or HABITSYNC_REMOTE)")

// Secrets is the keyring entry holding the remote connection string.
type Secrets interface {
	Get() (string, error)
	Set(connStr string) error
	Delete() error
	IsAvailable() bool
}

// Context is shared by every command.
type Context struct {
	Ctx        context.Context
	Config     config.Config
	ConfigPath string
	Store      storage.Provider
	Secrets    Secrets
	Location   *time.Location
	Now        func() time.Time
	Out        io.Writer

	// Interactive enables huh prompts. Disabled in tests and when stdin is
	// not a terminal.
	Interactive bool

	// OpenRemote overrides how the remote store is built. Nil means
	// PostgreSQL from the resolved connection string.
	OpenRemote func(connStr string) storage.Provider
}

// NewLocalStore picks the local backend from the path: a .json suffix
// selects the JSON document file, anything else SQLite.
func NewLocalStore(path string, opts ...storage.Option) storage.Provider {
	path = config.ExpandPath(path)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return jsonfile.NewStore(path, opts...)
	}
	return sqlite.NewStore(path, opts...)
}

func (c *Context) runCtx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) now() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	if c.Now == nil {
		return time.Now().In(loc)
	}
	return c.Now().In(loc)
}

// Today is the current calendar day in the configured timezone.
func (c *Context) Today() models.EpochDay {
	return models.EpochDayOf(c.now())
}

func (c *Context) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Context) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out(), format, args...)
}

func (c *Context) println(args ...interface{}) {
	fmt.Fprintln(c.out(), args...)
}

func (c *Context) storeOptions() []storage.Option {
	opts := []storage.Option{storage.WithLocation(c.Location)}
	if c.Now != nil {
		opts = append(opts, storage.WithClock(c.Now))
	}
	return opts
}

// Remote resolves the connection string and loads the remote store. The
// caller closes it.
func (c *Context) Remote() (storage.Provider, config.Source, error) {
	var secrets config.SecretStore
	if c.Secrets != nil {
		secrets = c.Secrets
	}
	connStr, src, err := c.Config.ResolveRemote(secrets)
	if err != nil {
		return nil, src, err
	}
	if connStr == "" {
		return nil, src, ErrNoRemote
	}

	store := c.newRemote(connStr)
	if err := store.Load(c.runCtx()); err != nil {
		return nil, src, fmt.Errorf("failed to load remote store: %w", err)
	}
	logger.Debug("Remote store loaded", "source", src, "location", store.Location())
	return store, src, nil
}

func (c *Context) newRemote(connStr string) storage.Provider {
	if c.OpenRemote != nil {
		return c.OpenRemote(connStr)
	}
	return postgres.New(connStr, c.storeOptions()...)
}

// BackupManager returns the snapshot manager for the local database, or
// nil when the local store is not SQLite.
func (c *Context) BackupManager() *backup.Manager {
	s, ok := c.Store.(*sqlite.Store)
	if !ok {
		return nil
	}
	return backup.NewManager(s.Path())
}

// PerformAutomaticBackup creates a snapshot and only logs failures.
func (c *Context) PerformAutomaticBackup() {
	mgr := c.BackupManager()
	if mgr == nil {
		logger.Debug("Automatic backup skipped", "store", c.Store.Location())
		return
	}
	if _, err := mgr.Create(c.runCtx()); err != nil {
		logger.Warn("Automatic backup failed", "error", err)
	}
}

// Journal returns the local sync journal if the backend keeps one.
func (c *Context) Journal() (storage.SyncJournal, bool) {
	j, ok := c.Store.(storage.SyncJournal)
	return j, ok
}

// FindHabit resolves ref as a habit ID, falling back to a case-insensitive
// title match among active habits.
func (c *Context) FindHabit(ref string) (models.HabitRecord, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return models.HabitRecord{}, errors.New("habit ID or title is required")
	}

	h, err := c.Store.Get(c.runCtx(), c.Config.UserID, ref)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.HabitRecord{}, err
	}

	habits, err := c.Store.GetAll(c.runCtx(), c.Config.UserID)
	if err != nil {
		return models.HabitRecord{}, err
	}
	var matches []models.HabitRecord
	for _, h := range habits {
		if !h.IsDeleted() && strings.EqualFold(h.Title, ref) {
			matches = append(matches, h)
		}
	}
	switch len(matches) {
	case 0:
		return models.HabitRecord{}, fmt.Errorf("habit %q: %w", ref, storage.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return models.HabitRecord{}, fmt.Errorf("title %q matches %d habits, use the ID instead", ref, len(matches))
	}
}
