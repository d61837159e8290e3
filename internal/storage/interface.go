package storage

import (
	"context"

	"github.com/julianstephens/habitsync/internal/models"
)

// HabitStore is the per-user habit collection consumed by the reconciler
// and the CLI. GetAll includes tombstoned records so deletes can propagate.
type HabitStore interface {
	GetAll(ctx context.Context, userID string) ([]models.HabitRecord, error)
	Get(ctx context.Context, userID, habitID string) (models.HabitRecord, error)
	// Upsert inserts or wholesale-replaces a record by (UserID, ID).
	Upsert(ctx context.Context, record models.HabitRecord) error
	// MarkCompletedToday adds today's day to the habit's completions.
	// It is a no-op if the day is already recorded.
	MarkCompletedToday(ctx context.Context, userID, habitID string) error
	Delete(ctx context.Context, userID, habitID string) error
	Restore(ctx context.Context, userID, habitID string) error
}

type Provider interface {
	HabitStore

	// Lifecycle
	Init(ctx context.Context) error
	Load(ctx context.Context) error
	Close() error

	// Location returns a non-sensitive description of where the data lives
	Location() string
}

// SyncJournal records the outcome of reconciliation passes.
type SyncJournal interface {
	RecordSyncRun(ctx context.Context, run SyncRun) error
	// LastSyncRun returns ErrNotFound when the user has never synced.
	LastSyncRun(ctx context.Context, userID string) (SyncRun, error)
}
