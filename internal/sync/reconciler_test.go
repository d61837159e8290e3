package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/storage"
)

func TestReconcileNewerVersionWins(t *testing.T) {
	ctx := context.Background()
	local := newMemStore(withTitle(habit("h1", 100, 100), "Old title"))
	remote := newMemStore(withTitle(habit("h1", 200, 200), "New title"))

	if _, err := New(local, remote).Reconcile(ctx, "u1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	for name, store := range map[string]*memStore{"local": local, "remote": remote} {
		got := store.snapshot("u1")
		if len(got) != 1 || got[0].CreatedAt != 200 || got[0].Title != "New title" {
			t.Errorf("%s store holds %+v, want the newer record", name, got)
		}
	}
}

func TestReconcileCopiesOneSidedRecords(t *testing.T) {
	ctx := context.Background()
	local := newMemStore(habit("only-local", 10, 10, 1))
	remote := newMemStore(habit("only-remote", 20, 20, 2))

	res, err := New(local, remote).Reconcile(ctx, "u1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.AppliedLocal != 1 || res.AppliedRemote != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if diff := cmp.Diff(local.snapshot("u1"), remote.snapshot("u1")); diff != "" {
		t.Errorf("stores diverge after reconcile (-local +remote):\n%s", diff)
	}
}

func TestReconcileTieRemoteWins(t *testing.T) {
	ctx := context.Background()
	local := newMemStore(withTitle(habit("h1", 100, 0), "Local variant"))
	remoteRecord := withTitle(habit("h1", 100, 0), "Remote variant")
	remoteRecord.Recurrence = models.RecurrenceWeekly
	remote := newMemStore(remoteRecord)

	if _, err := New(local, remote).Reconcile(ctx, "u1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	for name, store := range map[string]*memStore{"local": local, "remote": remote} {
		got := store.snapshot("u1")
		if len(got) != 1 || !got[0].Equal(remoteRecord) {
			t.Errorf("%s store holds %+v, want remote variant", name, got)
		}
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	local := newMemStore(habit("a", 100, 300, 1), habit("b", 50, 50))
	remote := newMemStore(habit("a", 100, 200, 2), habit("c", 70, 70, 3))
	r := New(local, remote)

	if _, err := r.Reconcile(ctx, "u1"); err != nil {
		t.Fatalf("first Reconcile failed: %v", err)
	}
	localWrites, remoteWrites := local.writes(), remote.writes()

	res, err := r.Reconcile(ctx, "u1")
	if err != nil {
		t.Fatalf("second Reconcile failed: %v", err)
	}
	if res.PlannedLocal != 0 || res.PlannedRemote != 0 {
		t.Errorf("second pass planned writes: %+v", res)
	}
	if local.writes() != localWrites || remote.writes() != remoteWrites {
		t.Error("second pass issued writes")
	}
}

func TestMarkCompletedTodayThenReconcile(t *testing.T) {
	ctx := context.Background()
	local := newMemStore(habit("h1", 100, 100))
	remote := newMemStore(habit("h1", 100, 100))

	for i := 0; i < 2; i++ {
		if err := local.MarkCompletedToday(ctx, "u1", "h1"); err != nil {
			t.Fatalf("MarkCompletedToday failed: %v", err)
		}
	}
	if _, err := New(local, remote).Reconcile(ctx, "u1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	got, err := remote.Get(ctx, "u1", "h1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	want := []models.EpochDay{models.EpochDayOf(local.now)}
	if diff := cmp.Diff(want, got.CompletedDates); diff != "" {
		t.Errorf("remote completions mismatch (-want +got):\n%s", diff)
	}
}

// Same creation time on both sides, each with completions the other lacks.
// Neither device may lose its completion.
func TestReconcileUnionsCompletionsOnTie(t *testing.T) {
	ctx := context.Background()
	const d1, d2 = models.EpochDay(20000), models.EpochDay(20001)
	local := newMemStore(habit("A", 100, 0, d1))
	remote := newMemStore(habit("A", 100, 0, d1, d2))

	if _, err := New(local, remote).Reconcile(ctx, "u1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	want := []models.EpochDay{d1, d2}
	for name, store := range map[string]*memStore{"local": local, "remote": remote} {
		got, err := store.Get(ctx, "u1", "A")
		if err != nil {
			t.Fatalf("%s Get failed: %v", name, err)
		}
		if diff := cmp.Diff(want, got.CompletedDates); diff != "" {
			t.Errorf("%s completions mismatch (-want +got):\n%s", name, diff)
		}
	}

	// Losing side's completion survives too.
	local = newMemStore(habit("A", 100, 0, d1, d2))
	remote = newMemStore(habit("A", 100, 0, d1))
	if _, err := New(local, remote).Reconcile(ctx, "u1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	got, _ := remote.Get(ctx, "u1", "A")
	if diff := cmp.Diff(want, got.CompletedDates); diff != "" {
		t.Errorf("remote completions mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileEndToEnd(t *testing.T) {
	ctx := context.Background()
	h1 := models.HabitRecord{ID: "h1", UserID: "u1", Title: "Run", Recurrence: models.RecurrenceDaily, CreatedAt: 100}
	local := newMemStore(h1)
	remote := newMemStore()

	res, err := New(local, remote).Reconcile(ctx, "u1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	got, err := remote.Get(ctx, "u1", "h1")
	if err != nil {
		t.Fatalf("remote missing h1: %v", err)
	}
	if got.CreatedAt != 100 || !got.Equal(h1) {
		t.Errorf("remote h1 = %+v, want %+v", got, h1)
	}
	if local.writes() != 0 || res.AppliedLocal != 0 {
		t.Errorf("local store should be unchanged, got %d writes", local.writes())
	}
	if diff := cmp.Diff([]models.HabitRecord{h1}, local.snapshot("u1")); diff != "" {
		t.Errorf("local store changed (-want +got):\n%s", diff)
	}
}

func TestReconcileReadFailureAborts(t *testing.T) {
	tests := []struct {
		name      string
		failLocal bool
	}{
		{name: "remote unreachable", failLocal: false},
		{name: "local unreadable", failLocal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := newMemStore(habit("l", 1, 1))
			remote := newMemStore(habit("r", 1, 1))
			readErr := errors.New("connection refused")
			if tt.failLocal {
				local.getAllErr = readErr
			} else {
				remote.getAllErr = readErr
			}

			_, err := New(local, remote).Reconcile(context.Background(), "u1")
			if !errors.Is(err, storage.ErrStoreUnavailable) {
				t.Errorf("expected ErrStoreUnavailable, got %v", err)
			}
			if local.writes() != 0 || remote.writes() != 0 {
				t.Error("no writes may happen after a failed read")
			}
		})
	}
}

func TestReconcileRemoteReadHappensFirst(t *testing.T) {
	var order []string
	local := newMemStore()
	remote := newMemStore()
	local.beforeGetAll = func() { order = append(order, "local") }
	remote.beforeGetAll = func() { order = append(order, "remote") }

	if _, err := New(local, remote).Reconcile(context.Background(), "u1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if diff := cmp.Diff([]string{"remote", "local"}, order); diff != "" {
		t.Errorf("read order mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileContinuesPastWriteFailures(t *testing.T) {
	ctx := context.Background()
	local := newMemStore(habit("a", 1, 1), habit("b", 1, 1), habit("c", 1, 1))
	remote := newMemStore()
	writeErr := errors.New("quota exceeded")
	remote.upsertErr["b"] = writeErr

	res, err := New(local, remote).Reconcile(ctx, "u1")
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("expected ErrWriteFailure, got %v", err)
	}
	if !errors.Is(err, writeErr) {
		t.Errorf("expected underlying write error to be reachable, got %v", err)
	}

	var syncErr *SyncError
	if !errors.As(err, &syncErr) || len(syncErr.Failures) != 1 {
		t.Fatalf("expected one SyncError failure, got %v", err)
	}
	want := WriteFailure{Side: SideRemote, HabitID: "b", Err: writeErr}
	if diff := cmp.Diff(want, res.Failures[0], cmp.Comparer(func(a, b error) bool { return a == b })); diff != "" {
		t.Errorf("failure mismatch (-want +got):\n%s", diff)
	}
	if res.AppliedRemote != 2 {
		t.Errorf("AppliedRemote = %d, want 2", res.AppliedRemote)
	}
	if diff := cmp.Diff([]string{"a", "c"}, ids(remote.snapshot("u1"))); diff != "" {
		t.Errorf("remote contents mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcileCancellationReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := newMemStore(habit("a", 1, 1), habit("b", 1, 1), habit("c", 1, 1))
	remote := newMemStore()
	remote.afterUpsert = func(id string) {
		if id == "a" {
			cancel()
		}
	}

	res, err := New(local, remote).Reconcile(ctx, "u1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.PlannedRemote != 3 || res.AppliedRemote != 1 {
		t.Errorf("unexpected partial result %+v", res)
	}
	if remote.writes() != 1 {
		t.Errorf("expected exactly one remote write, got %d", remote.writes())
	}
}

func TestReconcileSerializesSameUser(t *testing.T) {
	local := newMemStore(habit("a", 1, 1))
	remote := newMemStore()

	var active, maxActive int32
	remote.beforeGetAll = func() {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	local.beforeGetAll = func() { atomic.AddInt32(&active, -1) }

	r := New(local, remote)
	var wg gosync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Reconcile(context.Background(), "u1"); err != nil {
				t.Errorf("Reconcile failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("expected passes for one user to run one at a time, saw %d concurrent", maxActive)
	}
	if remote.writes() != 1 {
		t.Errorf("expected a single remote write across serialized passes, got %d", remote.writes())
	}
}

func TestPreviewDoesNotWrite(t *testing.T) {
	local := newMemStore(habit("a", 1, 1))
	remote := newMemStore(habit("b", 1, 1))

	plan, err := New(local, remote).Preview(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	if len(plan.LocalWrites) != 1 || len(plan.RemoteWrites) != 1 {
		t.Errorf("unexpected plan %+v", plan)
	}
	if local.writes() != 0 || remote.writes() != 0 {
		t.Error("Preview must not write")
	}
}

func TestResultDuration(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	local := newMemStore()
	remote := newMemStore()
	remote.beforeGetAll = func() { clock = clock.Add(2 * time.Second) }

	res, err := New(local, remote, WithClock(func() time.Time { return clock })).Reconcile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", res.Duration)
	}
}
