package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/storage"
)

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const habitColumns = `user_id, id, title, recurrence, reminder_time, created_at, updated_at, deleted_at`

func (s *Store) GetAll(ctx context.Context, userID string) ([]models.HabitRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	habits, err := queryHabits(ctx, db, `
		SELECT `+habitColumns+`
		FROM habits WHERE user_id = ?
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, storage.Unavailable("read habits", err)
	}

	days, err := queryCompletions(ctx, db, `
		SELECT habit_id, day FROM habit_completions
		WHERE user_id = ? ORDER BY habit_id, day`, userID)
	if err != nil {
		return nil, storage.Unavailable("read completions", err)
	}

	for i := range habits {
		habits[i].CompletedDates = days[habits[i].ID]
	}
	return habits, nil
}

func (s *Store) Get(ctx context.Context, userID, habitID string) (models.HabitRecord, error) {
	db, err := s.conn()
	if err != nil {
		return models.HabitRecord{}, err
	}
	return getHabit(ctx, db, userID, habitID)
}

func (s *Store) Upsert(ctx context.Context, record models.HabitRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return writeHabit(ctx, tx, record)
	})
}

func (s *Store) MarkCompletedToday(ctx context.Context, userID, habitID string) error {
	today := s.opts.Today()
	return s.mutate(ctx, userID, habitID, func(h *models.HabitRecord) bool {
		if !h.MarkCompleted(today) {
			return false
		}
		h.Touch(s.opts.Now())
		return true
	})
}

func (s *Store) Delete(ctx context.Context, userID, habitID string) error {
	return s.mutate(ctx, userID, habitID, func(h *models.HabitRecord) bool {
		return h.MarkDeleted(s.opts.Now())
	})
}

func (s *Store) Restore(ctx context.Context, userID, habitID string) error {
	return s.mutate(ctx, userID, habitID, func(h *models.HabitRecord) bool {
		return h.Restore(s.opts.Now())
	})
}

// mutate loads a habit, applies fn and writes it back inside one
// transaction. Nothing is written when fn reports no change.
func (s *Store) mutate(ctx context.Context, userID, habitID string, fn func(*models.HabitRecord) bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		h, err := getHabit(ctx, tx, userID, habitID)
		if err != nil {
			return err
		}
		if !fn(&h) {
			return nil
		}
		return writeHabit(ctx, tx, h)
	})
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unavailable("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func getHabit(ctx context.Context, q queryer, userID, habitID string) (models.HabitRecord, error) {
	habits, err := queryHabits(ctx, q, `
		SELECT `+habitColumns+`
		FROM habits WHERE user_id = ? AND id = ?`, userID, habitID)
	if err != nil {
		return models.HabitRecord{}, storage.Unavailable("read habit", err)
	}
	if len(habits) == 0 {
		return models.HabitRecord{}, fmt.Errorf("%w: %s", storage.ErrNotFound, habitID)
	}

	days, err := queryCompletions(ctx, q, `
		SELECT habit_id, day FROM habit_completions
		WHERE user_id = ? AND habit_id = ? ORDER BY day`, userID, habitID)
	if err != nil {
		return models.HabitRecord{}, storage.Unavailable("read completions", err)
	}

	h := habits[0]
	h.CompletedDates = days[h.ID]
	return h, nil
}

func writeHabit(ctx context.Context, q queryer, h models.HabitRecord) error {
	var deletedAt sql.NullInt64
	if h.DeletedAt != nil {
		deletedAt = sql.NullInt64{Int64: *h.DeletedAt, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO habits (`+habitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			title = excluded.title,
			recurrence = excluded.recurrence,
			reminder_time = excluded.reminder_time,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at`,
		h.UserID, h.ID, h.Title, string(h.Recurrence), h.ReminderTime,
		h.CreatedAt, h.UpdatedAt, deletedAt)
	if err != nil {
		return fmt.Errorf("failed to write habit %s: %w", h.ID, err)
	}

	if _, err := q.ExecContext(ctx, `
		DELETE FROM habit_completions WHERE user_id = ? AND habit_id = ?`,
		h.UserID, h.ID); err != nil {
		return fmt.Errorf("failed to clear completions for habit %s: %w", h.ID, err)
	}

	for _, day := range models.NormalizeDays(h.CompletedDates) {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO habit_completions (user_id, habit_id, day) VALUES (?, ?, ?)`,
			h.UserID, h.ID, int64(day)); err != nil {
			return fmt.Errorf("failed to write completion %s for habit %s: %w", day, h.ID, err)
		}
	}
	return nil
}

func queryHabits(ctx context.Context, q queryer, query string, args ...any) ([]models.HabitRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var habits []models.HabitRecord
	for rows.Next() {
		var h models.HabitRecord
		var recurrence string
		var deletedAt sql.NullInt64

		err := rows.Scan(&h.UserID, &h.ID, &h.Title, &recurrence, &h.ReminderTime,
			&h.CreatedAt, &h.UpdatedAt, &deletedAt)
		if err != nil {
			return nil, err
		}

		h.Recurrence = models.Recurrence(recurrence)
		if deletedAt.Valid {
			ts := deletedAt.Int64
			h.DeletedAt = &ts
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return habits, nil
}

func queryCompletions(ctx context.Context, q queryer, query string, args ...any) (map[string][]models.EpochDay, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make(map[string][]models.EpochDay)
	for rows.Next() {
		var habitID string
		var day int64
		if err := rows.Scan(&habitID, &day); err != nil {
			return nil, err
		}
		days[habitID] = append(days[habitID], models.EpochDay(day))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return days, nil
}
