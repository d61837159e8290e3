package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/storage"
)

// TestStore_Integration tests the remote store against a real database.
// Set POSTGRES_TEST_URL to run it, for example:
// POSTGRES_TEST_URL="postgres://habitsync@localhost:5432/habitsync_test?sslmode=disable"
func TestStore_Integration(t *testing.T) {
	connStr := os.Getenv("POSTGRES_TEST_URL")
	if connStr == "" {
		t.Skip("POSTGRES_TEST_URL not set, skipping PostgreSQL integration test")
	}

	ctx := context.Background()
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	store := New(connStr,
		storage.WithClock(func() time.Time { return now }),
		storage.WithLocation(time.UTC),
	)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	// Unique user per run keeps reruns independent
	userID := "it-" + uuid.New().String()

	habit := models.HabitRecord{
		ID:             uuid.New().String(),
		UserID:         userID,
		Title:          "Meditate",
		Recurrence:     models.RecurrenceDaily,
		ReminderTime:   "06:00",
		CreatedAt:      1000,
		UpdatedAt:      1000,
		CompletedDates: []models.EpochDay{20000},
	}

	t.Run("Upsert and GetAll", func(t *testing.T) {
		if err := store.Upsert(ctx, habit); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		habits, err := store.GetAll(ctx, userID)
		if err != nil {
			t.Fatalf("GetAll failed: %v", err)
		}
		if len(habits) != 1 || !habits[0].Equal(habit) {
			t.Errorf("unexpected habits: %+v", habits)
		}
	})

	t.Run("MarkCompletedToday", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if err := store.MarkCompletedToday(ctx, userID, habit.ID); err != nil {
				t.Fatalf("MarkCompletedToday failed: %v", err)
			}
		}
		got, err := store.Get(ctx, userID, habit.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(got.CompletedDates) != 2 || !got.HasCompleted(models.EpochDayOf(now)) {
			t.Errorf("expected original day plus today, got %v", got.CompletedDates)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := store.Delete(ctx, userID, habit.ID); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		got, err := store.Get(ctx, userID, habit.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !got.IsDeleted() {
			t.Error("expected tombstone after delete")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := store.Get(ctx, userID, "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
