package cli

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/storage"
)

func remoteHabit(t *testing.T, env *testEnv, title string, days ...models.EpochDay) models.HabitRecord {
	t.Helper()
	h, err := models.NewHabit("u1", title, models.RecurrenceDaily, "", testNow.Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("NewHabit failed: %v", err)
	}
	h.CompletedDates = days
	if err := env.remote.Upsert(context.Background(), h); err != nil {
		t.Fatalf("remote Upsert failed: %v", err)
	}
	return h
}

func TestSyncCmd(t *testing.T) {
	env := setupTestContext(t).withRemote()
	today := models.EpochDayOf(testNow)
	run := env.addHabit(t, "Run", today)
	swim := remoteHabit(t, env, "Swim", today-1)

	if err := (&SyncCmd{}).Run(env.ctx); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	local, err := env.ctx.Store.GetAll(context.Background(), "u1")
	if err != nil {
		t.Fatalf("local GetAll failed: %v", err)
	}
	remote, err := env.remote.GetAll(context.Background(), "u1")
	if err != nil {
		t.Fatalf("remote GetAll failed: %v", err)
	}
	if diff := cmp.Diff(local, remote); diff != "" {
		t.Errorf("stores differ after sync (-local +remote):\n%s", diff)
	}
	if len(local) != 2 {
		t.Fatalf("expected 2 habits on each side, got %d", len(local))
	}
	for _, id := range []string{run.ID, swim.ID} {
		if _, err := env.remote.Get(context.Background(), "u1", id); err != nil {
			t.Errorf("habit %s missing remotely: %v", id, err)
		}
	}

	out := env.out.String()
	if !strings.Contains(out, "Sync complete") || !strings.Contains(out, "1/1") {
		t.Errorf("unexpected summary:\n%s", out)
	}

	journal, _ := env.ctx.Journal()
	last, err := journal.LastSyncRun(context.Background(), "u1")
	if err != nil {
		t.Fatalf("LastSyncRun failed: %v", err)
	}
	if !last.Succeeded() || last.LocalWrites != 1 || last.RemoteWrites != 1 {
		t.Errorf("unexpected journal entry %+v", last)
	}

	backups, err := env.ctx.BackupManager().List()
	if err != nil {
		t.Fatalf("List backups failed: %v", err)
	}
	if len(backups) != 1 {
		t.Errorf("expected an automatic backup before sync, got %d", len(backups))
	}

	// A second pass has nothing to do
	env.out.Reset()
	if err := (&SyncCmd{NoBackup: true}).Run(env.ctx); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if !strings.Contains(env.out.String(), "Already in sync") {
		t.Errorf("expected already-in-sync summary:\n%s", env.out.String())
	}
}

func TestSyncCmd_DryRun(t *testing.T) {
	env := setupTestContext(t).withRemote()
	env.addHabit(t, "Run")
	remoteHabit(t, env, "Swim")

	if err := (&SyncCmd{DryRun: true}).Run(env.ctx); err != nil {
		t.Fatalf("dry run failed: %v", err)
	}

	out := env.out.String()
	if !strings.Contains(out, "Run") || !strings.Contains(out, "Swim") {
		t.Errorf("expected both planned writes in output:\n%s", out)
	}

	local, _ := env.ctx.Store.GetAll(context.Background(), "u1")
	remote, _ := env.remote.GetAll(context.Background(), "u1")
	if len(local) != 1 || len(remote) != 1 {
		t.Errorf("dry run wrote records: local=%d remote=%d", len(local), len(remote))
	}

	journal, _ := env.ctx.Journal()
	if _, err := journal.LastSyncRun(context.Background(), "u1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("dry run should not be journaled, got %v", err)
	}
}

func TestSyncCmd_NoRemote(t *testing.T) {
	env := setupTestContext(t)
	if err := (&SyncCmd{}).Run(env.ctx); !errors.Is(err, ErrNoRemote) {
		t.Errorf("expected ErrNoRemote, got %v", err)
	}
}

func TestSyncCmd_RemoteUnavailable(t *testing.T) {
	env := setupTestContext(t).withRemote()
	env.ctx.OpenRemote = func(string) storage.Provider { return brokenStore{nopCloser{env.remote}} }

	err := (&SyncCmd{NoBackup: true}).Run(env.ctx)
	if !errors.Is(err, storage.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

// brokenStore fails every read.
type brokenStore struct {
	nopCloser
}

func (brokenStore) GetAll(context.Context, string) ([]models.HabitRecord, error) {
	return nil, errors.New("connection refused")
}
