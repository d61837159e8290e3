package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/storage"
	syncer "github.com/julianstephens/habitsync/internal/sync"
)

type SyncCmd struct {
	DryRun   bool `help:"Show the planned writes without applying them."`
	NoBackup bool `help:"Skip the automatic local backup before writing."`
}

func (c *SyncCmd) Run(ctx *Context) error {
	remote, src, err := ctx.Remote()
	if err != nil {
		return err
	}
	defer remote.Close()
	logger.Info("Sync started", "user", ctx.Config.UserID, "remote", remote.Location(), "source", src)

	rec := syncer.New(ctx.Store, remote, syncer.WithClock(ctx.Now))

	if c.DryRun {
		plan, err := rec.Preview(ctx.runCtx(), ctx.Config.UserID)
		if err != nil {
			return err
		}
		ctx.println(renderPlan(plan))
		return nil
	}

	if !c.NoBackup {
		ctx.PerformAutomaticBackup()
	}

	res, err := runSync(ctx, rec)
	ctx.println(renderResult(res, remote.Location(), err))
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	return nil
}

// runSync runs one pass and records it in the local journal.
func runSync(ctx *Context, rec *syncer.Reconciler) (syncer.Result, error) {
	started := ctx.now()
	res, err := rec.Reconcile(ctx.runCtx(), ctx.Config.UserID)

	run := storage.SyncRun{
		UserID:       ctx.Config.UserID,
		StartedAt:    started.UTC(),
		FinishedAt:   started.Add(res.Duration).UTC(),
		LocalWrites:  res.AppliedLocal,
		RemoteWrites: res.AppliedRemote,
		Failures:     len(res.Failures),
	}
	if err != nil {
		run.Error = err.Error()
		logger.Error("Sync failed", "user", ctx.Config.UserID, "error", err)
	} else {
		logger.Info("Sync finished", "user", ctx.Config.UserID, "writes", res.Writes(), "duration", res.Duration)
	}

	// A pass that never reached the stores is not worth journaling
	if errors.Is(err, storage.ErrStoreUnavailable) && res.Writes() == 0 {
		return res, err
	}
	if journal, ok := ctx.Journal(); ok {
		if jerr := journal.RecordSyncRun(ctx.runCtx(), run); jerr != nil {
			logger.Warn("Failed to record sync run", "error", jerr)
		}
	}
	return res, err
}

func renderPlan(plan syncer.Plan) string {
	if plan.Empty() {
		return okStyle.Render("✓ Local and remote are in sync")
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Planned writes (dry run)"))
	b.WriteString("\n")
	writePlanned(&b, "local", plan.LocalWrites)
	writePlanned(&b, "remote", plan.RemoteWrites)
	return strings.TrimRight(b.String(), "\n")
}

func writePlanned(b *strings.Builder, side string, writes []models.HabitRecord) {
	for _, h := range writes {
		state := ""
		if h.IsDeleted() {
			state = mutedStyle.Render(" (deleted)")
		}
		fmt.Fprintf(b, "  → %-6s %s %s%s\n", side, shortID(h.ID), h.Title, state)
	}
}

func renderResult(res syncer.Result, remote string, err error) string {
	lines := []string{
		headerStyle.Render("Sync summary"),
		fmt.Sprintf("Remote:        %s", remote),
		fmt.Sprintf("Local writes:  %d/%d", res.AppliedLocal, res.PlannedLocal),
		fmt.Sprintf("Remote writes: %d/%d", res.AppliedRemote, res.PlannedRemote),
		fmt.Sprintf("Duration:      %s", res.Duration.Round(time.Millisecond)),
	}
	for _, f := range res.Failures {
		lines = append(lines, errStyle.Render(fmt.Sprintf("✗ %s", f.Error())))
	}
	switch {
	case err == nil && res.Writes() == 0:
		lines = append(lines, okStyle.Render("✓ Already in sync"))
	case err == nil:
		lines = append(lines, okStyle.Render("✓ Sync complete"))
	case len(res.Failures) == 0:
		lines = append(lines, errStyle.Render("✗ "+err.Error()))
	}
	return summaryStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
