package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/storage"
)

const fileVersion = 1

// file is the on-disk image: user id -> habit id -> document
type file struct {
	Version  int                                        `json:"version"`
	Users    map[string]map[string]storage.HabitDocument `json:"users"`
	SyncRuns map[string]storage.SyncRun                 `json:"sync_runs,omitempty"`
}

// Store keeps habits in a single JSON document file. Writes go to a
// temporary file that is renamed over the original.
type Store struct {
	path string
	opts storage.Options

	mu   sync.Mutex
	data *file
}

func NewStore(path string, opts ...storage.Option) *Store {
	return &Store{
		path: path,
		opts: storage.NewOptions(opts...),
	}
}

func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if _, err := os.Stat(s.path); err == nil {
		// Already initialized; just load it.
		return s.loadLocked()
	}

	s.data = newFile()
	return s.saveLocked()
}

func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data != nil {
		return nil
	}
	return s.loadLocked()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

func (s *Store) Location() string {
	return s.path
}

func newFile() *file {
	return &file{
		Version:  fileVersion,
		Users:    make(map[string]map[string]storage.HabitDocument),
		SyncRuns: make(map[string]storage.SyncRun),
	}
}

func (s *Store) loadLocked() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return storage.Unavailable("load", fmt.Errorf("storage not initialized at %s, run 'habitsync init' first", s.path))
		}
		return storage.Unavailable("read storage file", err)
	}

	data := newFile()
	if err := json.Unmarshal(raw, data); err != nil {
		return fmt.Errorf("failed to parse storage file: %w", err)
	}
	if data.Version != fileVersion {
		return fmt.Errorf("unsupported storage file version %d", data.Version)
	}
	if data.Users == nil {
		data.Users = make(map[string]map[string]storage.HabitDocument)
	}
	if data.SyncRuns == nil {
		data.SyncRuns = make(map[string]storage.SyncRun)
	}

	s.data = data
	return nil
}

func (s *Store) saveLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize storage: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return storage.Unavailable("create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set storage permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}

func (s *Store) GetAll(ctx context.Context, userID string) ([]models.HabitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return nil, storage.ErrNotLoaded
	}

	docs := s.data.Users[userID]
	habits := make([]models.HabitRecord, 0, len(docs))
	for id, doc := range docs {
		h, err := doc.Record()
		if err != nil {
			return nil, fmt.Errorf("failed to decode habit %s: %w", id, err)
		}
		habits = append(habits, h)
	}

	sort.Slice(habits, func(i, j int) bool {
		if habits[i].CreatedAt != habits[j].CreatedAt {
			return habits[i].CreatedAt < habits[j].CreatedAt
		}
		return habits[i].ID < habits[j].ID
	})
	return habits, nil
}

func (s *Store) Get(ctx context.Context, userID, habitID string) (models.HabitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return models.HabitRecord{}, storage.ErrNotLoaded
	}
	return s.getLocked(userID, habitID)
}

func (s *Store) getLocked(userID, habitID string) (models.HabitRecord, error) {
	doc, ok := s.data.Users[userID][habitID]
	if !ok {
		return models.HabitRecord{}, fmt.Errorf("%w: %s", storage.ErrNotFound, habitID)
	}
	return doc.Record()
}

func (s *Store) Upsert(ctx context.Context, record models.HabitRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return storage.ErrNotLoaded
	}
	return s.putLocked(record)
}

// putLocked writes the record and persists the file, restoring the
// previous document if the save fails.
func (s *Store) putLocked(record models.HabitRecord) error {
	docs, ok := s.data.Users[record.UserID]
	if !ok {
		docs = make(map[string]storage.HabitDocument)
		s.data.Users[record.UserID] = docs
	}

	prev, existed := docs[record.ID]
	docs[record.ID] = storage.ToDocument(record)

	if err := s.saveLocked(); err != nil {
		if existed {
			docs[record.ID] = prev
		} else {
			delete(docs, record.ID)
		}
		return err
	}
	return nil
}

func (s *Store) MarkCompletedToday(ctx context.Context, userID, habitID string) error {
	today := s.opts.Today()
	return s.mutate(userID, habitID, func(h *models.HabitRecord) bool {
		if !h.MarkCompleted(today) {
			return false
		}
		h.Touch(s.opts.Now())
		return true
	})
}

func (s *Store) Delete(ctx context.Context, userID, habitID string) error {
	return s.mutate(userID, habitID, func(h *models.HabitRecord) bool {
		return h.MarkDeleted(s.opts.Now())
	})
}

func (s *Store) Restore(ctx context.Context, userID, habitID string) error {
	return s.mutate(userID, habitID, func(h *models.HabitRecord) bool {
		return h.Restore(s.opts.Now())
	})
}

func (s *Store) mutate(userID, habitID string, fn func(*models.HabitRecord) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return storage.ErrNotLoaded
	}

	h, err := s.getLocked(userID, habitID)
	if err != nil {
		return err
	}
	if !fn(&h) {
		return nil
	}
	return s.putLocked(h)
}

func (s *Store) RecordSyncRun(ctx context.Context, run storage.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return storage.ErrNotLoaded
	}

	prev, existed := s.data.SyncRuns[run.UserID]
	s.data.SyncRuns[run.UserID] = run
	if err := s.saveLocked(); err != nil {
		if existed {
			s.data.SyncRuns[run.UserID] = prev
		} else {
			delete(s.data.SyncRuns, run.UserID)
		}
		return err
	}
	return nil
}

func (s *Store) LastSyncRun(ctx context.Context, userID string) (storage.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return storage.SyncRun{}, storage.ErrNotLoaded
	}
	run, ok := s.data.SyncRuns[userID]
	if !ok {
		return storage.SyncRun{}, fmt.Errorf("%w: no sync runs for user %s", storage.ErrNotFound, userID)
	}
	return run, nil
}
