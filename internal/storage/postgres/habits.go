package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/storage"
)

// Habits are stored as JSONB documents under (user_id, habit_id). The
// updated_at column mirrors the document field for indexing only.

func (s *Store) GetAll(ctx context.Context, userID string) ([]models.HabitRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT habit_id, doc FROM habit_documents
		WHERE user_id = $1
		ORDER BY habit_id`, userID)
	if err != nil {
		return nil, storage.Unavailable("read habit documents", err)
	}
	defer rows.Close()

	var habits []models.HabitRecord
	for rows.Next() {
		var habitID string
		var doc []byte
		if err := rows.Scan(&habitID, &doc); err != nil {
			return nil, storage.Unavailable("scan habit document", err)
		}

		h, err := storage.DecodeDocument(doc)
		if err != nil {
			return nil, fmt.Errorf("corrupt remote document %s/%s: %w", userID, habitID, err)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable("read habit documents", err)
	}
	return habits, nil
}

func (s *Store) Get(ctx context.Context, userID, habitID string) (models.HabitRecord, error) {
	db, err := s.conn()
	if err != nil {
		return models.HabitRecord{}, err
	}
	return getDocument(db.QueryRowContext(ctx, `
		SELECT doc FROM habit_documents
		WHERE user_id = $1 AND habit_id = $2`, userID, habitID), habitID)
}

func (s *Store) Upsert(ctx context.Context, record models.HabitRecord) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	doc, err := storage.EncodeDocument(record)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO habit_documents (user_id, habit_id, doc, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, habit_id) DO UPDATE SET
			doc = EXCLUDED.doc,
			updated_at = EXCLUDED.updated_at`,
		record.UserID, record.ID, string(doc), record.Version())
	if err != nil {
		return fmt.Errorf("failed to write habit document %s: %w", record.ID, err)
	}
	return nil
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

// mutate performs a read-modify-write of one document under a row lock.
func (s *Store) mutate(ctx context.Context, userID, habitID string, fn func(*models.HabitRecord) bool) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storage.Unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	h, err := getDocument(tx.QueryRowContext(ctx, `
		SELECT doc FROM habit_documents
		WHERE user_id = $1 AND habit_id = $2
		FOR UPDATE`, userID, habitID), habitID)
	if err != nil {
		return err
	}

	if !fn(&h) {
		return nil
	}

	doc, err := storage.EncodeDocument(h)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE habit_documents SET doc = $3, updated_at = $4
		WHERE user_id = $1 AND habit_id = $2`,
		userID, habitID, string(doc), h.Version()); err != nil {
		return fmt.Errorf("failed to update habit document %s: %w", habitID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func getDocument(row *sql.Row, habitID string) (models.HabitRecord, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.HabitRecord{}, fmt.Errorf("%w: %s", storage.ErrNotFound, habitID)
		}
		return models.HabitRecord{}, storage.Unavailable("read habit document", err)
	}
	return storage.DecodeDocument(doc)
}
