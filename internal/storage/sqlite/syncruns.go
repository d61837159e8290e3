package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/habitsync/internal/storage"
)

func (s *Store) RecordSyncRun(ctx context.Context, run storage.SyncRun) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO sync_runs (user_id, started_at, finished_at, local_writes, remote_writes, failures, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.UserID, run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(),
		run.LocalWrites, run.RemoteWrites, run.Failures, run.Error)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

func (s *Store) LastSyncRun(ctx context.Context, userID string) (storage.SyncRun, error) {
	db, err := s.conn()
	if err != nil {
		return storage.SyncRun{}, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT user_id, started_at, finished_at, local_writes, remote_writes, failures, error
		FROM sync_runs WHERE user_id = ?
		ORDER BY finished_at DESC, id DESC LIMIT 1`, userID)

	var run storage.SyncRun
	var startedAt, finishedAt int64
	err = row.Scan(&run.UserID, &startedAt, &finishedAt,
		&run.LocalWrites, &run.RemoteWrites, &run.Failures, &run.Error)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SyncRun{}, fmt.Errorf("%w: no sync runs for user %s", storage.ErrNotFound, userID)
		}
		return storage.SyncRun{}, storage.Unavailable("read sync runs", err)
	}

	run.StartedAt = time.UnixMilli(startedAt)
	run.FinishedAt = time.UnixMilli(finishedAt)
	return run, nil
}
