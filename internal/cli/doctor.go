package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/habitsync/internal/migration"
	"github.com/julianstephens/habitsync/internal/storage"
	"github.com/julianstephens/habitsync/internal/validation"
)

type checkLevel int

const (
	levelFail checkLevel = iota
	levelWarn
)

// errSkipped marks a check that could not run because an earlier one failed.
var errSkipped = errors.New("skipped")

type check struct {
	name  string
	level checkLevel
	run   func(ctx *Context) error
}

type DoctorCmd struct {
	Offline bool `help:"Skip the remote store checks."`
}

func (cmd *DoctorCmd) Run(ctx *Context) error {
	ctx.println("Running diagnostics...")
	ctx.println()

	localOK := true
	checks := []check{
		{name: "Local store reachable", run: func(ctx *Context) error {
			err := checkStoreReachable(ctx.runCtx(), ctx.Store, ctx.Config.UserID)
			localOK = err == nil
			return err
		}},
		{name: "Local schema", run: func(ctx *Context) error {
			if !localOK {
				return errSkipped
			}
			return checkSchema(ctx.runCtx(), ctx.Store)
		}},
		{name: "Data validation", run: func(ctx *Context) error {
			if !localOK {
				return errSkipped
			}
			return checkValidation(ctx)
		}},
		{name: "Backups present", level: levelWarn, run: checkBackupsPresent},
		{name: "Clock/timezone", run: checkClockTimezone},
		{name: "OS keyring", level: levelWarn, run: checkKeyring},
		{name: "Last sync", level: levelWarn, run: checkLastSync},
	}
	if !cmd.Offline {
		checks = append(checks, check{name: "Remote store", run: checkRemote})
	}

	hasError := false
	for _, c := range checks {
		err := c.run(ctx)
		switch {
		case err == nil:
			ctx.printf("%s %s: OK\n", okStyle.Render("✓"), c.name)
		case errors.Is(err, errSkipped):
			ctx.printf("%s %s: SKIPPED\n", mutedStyle.Render("⊘"), c.name)
		case c.level == levelWarn:
			ctx.printf("%s %s: WARNING\n", warnStyle.Render("⚠"), c.name)
			ctx.printf("   %v\n", err)
		default:
			ctx.printf("%s %s: FAIL\n", errStyle.Render("❌"), c.name)
			ctx.printf("   Error: %v\n", indent(err.Error()))
			hasError = true
		}
	}

	ctx.println()
	if hasError {
		ctx.println("Diagnostics completed with errors.")
		return errors.New("one or more health checks failed")
	}
	ctx.println("All diagnostics passed!")
	return nil
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n   ")
}

func checkStoreReachable(ctx context.Context, store storage.HabitStore, userID string) error {
	if _, err := store.GetAll(ctx, userID); err != nil {
		return fmt.Errorf("failed to read habits: %w", err)
	}
	return nil
}

type migrationReporter interface {
	MigrationStatus(ctx context.Context) (migration.Status, error)
}

func checkSchema(ctx context.Context, store storage.Provider) error {
	mr, ok := store.(migrationReporter)
	if !ok {
		// The JSON file carries no schema version
		return nil
	}
	st, err := mr.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if st.Current > st.Latest {
		return fmt.Errorf("schema version (%d) is newer than supported version (%d)", st.Current, st.Latest)
	}
	if !st.UpToDate() {
		return fmt.Errorf("migrations incomplete: current version %d, latest version %d", st.Current, st.Latest)
	}
	return nil
}

func checkValidation(ctx *Context) error {
	habits, err := ctx.Store.GetAll(ctx.runCtx(), ctx.Config.UserID)
	if err != nil {
		return err
	}
	res := validation.Validate(habits, ctx.Today())
	if res.HasConflicts() {
		return errors.New(res.FormatReport())
	}
	return nil
}

func checkBackupsPresent(ctx *Context) error {
	mgr := ctx.BackupManager()
	if mgr == nil {
		return errSkipped
	}
	backups, err := mgr.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		return errors.New("no backups found, consider creating one with 'habitsync backup create'")
	}
	return nil
}

func checkClockTimezone(ctx *Context) error {
	now := ctx.now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

func checkKeyring(ctx *Context) error {
	if ctx.Secrets == nil || !ctx.Secrets.IsAvailable() {
		return errors.New("OS keyring is not available; use HABITSYNC_REMOTE for the remote connection")
	}
	return nil
}

func checkLastSync(ctx *Context) error {
	journal, ok := ctx.Journal()
	if !ok {
		return errSkipped
	}
	run, err := journal.LastSyncRun(ctx.runCtx(), ctx.Config.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return errors.New("never synced")
	}
	if err != nil {
		return err
	}
	if !run.Succeeded() {
		return fmt.Errorf("last sync at %s had %d failed writes: %s",
			run.FinishedAt.In(ctx.now().Location()).Format("2006-01-02 15:04"), run.Failures, run.Error)
	}
	return nil
}

func checkRemote(ctx *Context) error {
	remote, src, err := ctx.Remote()
	if errors.Is(err, ErrNoRemote) {
		return errSkipped
	}
	if err != nil {
		return err
	}
	defer remote.Close()

	if err := checkStoreReachable(ctx.runCtx(), remote, ctx.Config.UserID); err != nil {
		return fmt.Errorf("%s (from %s): %w", remote.Location(), src, err)
	}
	if err := checkSchema(ctx.runCtx(), remote); err != nil {
		return fmt.Errorf("%s (from %s): %w", remote.Location(), src, err)
	}
	return nil
}
