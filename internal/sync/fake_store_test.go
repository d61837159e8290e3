package sync

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/storage"
)

// memStore is an in-memory HabitStore with failure injection.
type memStore struct {
	mu      gosync.Mutex
	habits  map[string]models.HabitRecord
	now     time.Time
	upserts []string

	getAllErr error
	upsertErr map[string]error
	// beforeGetAll and afterUpsert run outside the lock when set.
	beforeGetAll func()
	afterUpsert  func(id string)
}

func newMemStore(records ...models.HabitRecord) *memStore {
	s := &memStore{
		habits:    make(map[string]models.HabitRecord),
		upsertErr: make(map[string]error),
		now:       time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	for _, r := range records {
		s.habits[key(r.UserID, r.ID)] = r.Clone()
	}
	return s
}

func key(userID, habitID string) string {
	return userID + "/" + habitID
}

func (s *memStore) GetAll(_ context.Context, userID string) ([]models.HabitRecord, error) {
	if s.beforeGetAll != nil {
		s.beforeGetAll()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getAllErr != nil {
		return nil, s.getAllErr
	}
	var out []models.HabitRecord
	for _, h := range s.habits {
		if h.UserID == userID {
			out = append(out, h.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) Get(_ context.Context, userID, habitID string) (models.HabitRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.habits[key(userID, habitID)]
	if !ok {
		return models.HabitRecord{}, fmt.Errorf("%w: %s", storage.ErrNotFound, habitID)
	}
	return h.Clone(), nil
}

func (s *memStore) Upsert(_ context.Context, record models.HabitRecord) error {
	s.mu.Lock()
	if err := s.upsertErr[record.ID]; err != nil {
		s.mu.Unlock()
		return err
	}
	if err := record.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.habits[key(record.UserID, record.ID)] = record.Clone()
	s.upserts = append(s.upserts, record.ID)
	s.mu.Unlock()

	if s.afterUpsert != nil {
		s.afterUpsert(record.ID)
	}
	return nil
}

func (s *memStore) MarkCompletedToday(ctx context.Context, userID, habitID string) error {
	return s.mutate(userID, habitID, func(h *models.HabitRecord) bool {
		if !h.MarkCompleted(models.EpochDayOf(s.now)) {
			return false
		}
		h.Touch(s.now)
		return true
	})
}

func (s *memStore) Delete(_ context.Context, userID, habitID string) error {
	return s.mutate(userID, habitID, func(h *models.HabitRecord) bool {
		return h.MarkDeleted(s.now)
	})
}

func (s *memStore) Restore(_ context.Context, userID, habitID string) error {
	return s.mutate(userID, habitID, func(h *models.HabitRecord) bool {
		return h.Restore(s.now)
	})
}

func (s *memStore) mutate(userID, habitID string, fn func(*models.HabitRecord) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.habits[key(userID, habitID)]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, habitID)
	}
	if fn(&h) {
		s.habits[key(userID, habitID)] = h
	}
	return nil
}

func (s *memStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts)
}

func (s *memStore) snapshot(userID string) []models.HabitRecord {
	out, _ := s.GetAll(context.Background(), userID)
	return out
}
