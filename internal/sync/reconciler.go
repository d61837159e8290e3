package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/storage"
)

// ErrWriteFailure is matched by the error returned from a pass in which at
// least one upsert failed.
var ErrWriteFailure = errors.New("habit write failed")

// Side names the store a write was aimed at
type Side string

const (
	SideLocal  Side = "local"
	SideRemote Side = "remote"
)

type WriteFailure struct {
	Side    Side
	HabitID string
	Err     error
}

func (f WriteFailure) Error() string {
	return fmt.Sprintf("%s write of habit %s: %v", f.Side, f.HabitID, f.Err)
}

func (f WriteFailure) Unwrap() error {
	return f.Err
}

// SyncError reports the writes that failed during a pass. Successful writes
// from the same pass are not rolled back.
type SyncError struct {
	Failures []WriteFailure
}

func (e *SyncError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("%d habit write(s) failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *SyncError) Is(target error) bool {
	return target == ErrWriteFailure
}

func (e *SyncError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Result summarizes one reconciliation pass
type Result struct {
	UserID        string
	PlannedLocal  int
	PlannedRemote int
	AppliedLocal  int
	AppliedRemote int
	Failures      []WriteFailure
	Duration      time.Duration
}

// Writes returns the number of upserts that succeeded.
func (r Result) Writes() int {
	return r.AppliedLocal + r.AppliedRemote
}

// Reconciler applies sync plans to a pair of stores.
type Reconciler struct {
	local  storage.HabitStore
	remote storage.HabitStore
	now    func() time.Time

	mu    gosync.Mutex
	users map[string]*gosync.Mutex
}

type Option func(*Reconciler)

// WithClock overrides the clock used to time passes.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

func New(local, remote storage.HabitStore, opts ...Option) *Reconciler {
	r := &Reconciler{
		local:  local,
		remote: remote,
		now:    time.Now,
		users:  make(map[string]*gosync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Preview reads both stores and returns the plan without writing anything.
func (r *Reconciler) Preview(ctx context.Context, userID string) (Plan, error) {
	unlock := r.lockUser(userID)
	defer unlock()
	return r.plan(ctx, userID)
}

// Reconcile runs one pass for userID. Remote is read before local, and a
// failed read aborts the pass before any write. Each planned record is
// upserted on its own; failures are collected and the pass continues.
// Cancellation is honoured between writes and yields the partial Result.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (Result, error) {
	unlock := r.lockUser(userID)
	defer unlock()

	start := r.now()
	res := Result{UserID: userID}

	plan, err := r.plan(ctx, userID)
	if err != nil {
		res.Duration = r.now().Sub(start)
		return res, err
	}
	res.PlannedLocal = len(plan.LocalWrites)
	res.PlannedRemote = len(plan.RemoteWrites)

	log := logger.With("user", userID)
	if log != nil {
		log.Debug("Reconcile planned", "local_writes", res.PlannedLocal, "remote_writes", res.PlannedRemote)
	}

	if err := r.apply(ctx, SideLocal, r.local, plan.LocalWrites, &res, &res.AppliedLocal); err != nil {
		res.Duration = r.now().Sub(start)
		return res, err
	}
	if err := r.apply(ctx, SideRemote, r.remote, plan.RemoteWrites, &res, &res.AppliedRemote); err != nil {
		res.Duration = r.now().Sub(start)
		return res, err
	}

	res.Duration = r.now().Sub(start)
	if len(res.Failures) > 0 {
		return res, &SyncError{Failures: res.Failures}
	}
	return res, nil
}

func (r *Reconciler) plan(ctx context.Context, userID string) (Plan, error) {
	remote, err := r.remote.GetAll(ctx, userID)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read remote habits: %w", storage.Unavailable("read remote", err))
	}
	local, err := r.local.GetAll(ctx, userID)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read local habits: %w", storage.Unavailable("read local", err))
	}
	return BuildPlan(userID, local, remote), nil
}

func (r *Reconciler) apply(ctx context.Context, side Side, store storage.HabitStore, writes []models.HabitRecord, res *Result, applied *int) error {
	for _, h := range writes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := store.Upsert(ctx, h); err != nil {
			logger.Warn("Habit write failed", "side", side, "habit", h.ID, "error", err)
			res.Failures = append(res.Failures, WriteFailure{Side: side, HabitID: h.ID, Err: err})
			continue
		}
		*applied++
	}
	return nil
}

func (r *Reconciler) lockUser(userID string) func() {
	r.mu.Lock()
	m, ok := r.users[userID]
	if !ok {
		m = &gosync.Mutex{}
		r.users[userID] = m
	}
	r.mu.Unlock()

	m.Lock()
	return m.Unlock
}
