package cli

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/notifier"
	"github.com/julianstephens/habitsync/internal/reminder"
	syncer "github.com/julianstephens/habitsync/internal/sync"
)

// WatchCmd keeps reminders scheduled and syncs on an interval until the
// process is interrupted.
type WatchCmd struct {
	Interval time.Duration `help:"Sync interval. Defaults to sync_interval from the config."`
	Once     bool          `help:"Run a single sync and reminder refresh, then exit."`

	Notifier reminder.Notifier `kong:"-"`

	mu        gosync.Mutex
	scheduler *reminder.Scheduler
}

func (c *WatchCmd) Run(ctx *Context) error {
	interval := c.Interval
	if interval == 0 {
		interval = ctx.Config.SyncInterval
	}
	if interval < constants.MinSyncInterval {
		return fmt.Errorf("interval must be at least %s, got %s", constants.MinSyncInterval, interval)
	}

	n := c.Notifier
	if n == nil {
		n = notifier.Fallback{Primary: notifier.NewTray(), Secondary: notifier.Log{}}
	}
	c.scheduler = reminder.New(ctx.Location, n, func(jobCtx context.Context, userID, habitID string) (models.HabitRecord, error) {
		return ctx.Store.Get(jobCtx, userID, habitID)
	})

	runCtx := ctx.runCtx()
	c.tick(runCtx, ctx)
	if c.Once {
		return nil
	}

	if err := c.scheduler.AddInterval(interval, func(jobCtx context.Context) {
		c.tick(jobCtx, ctx)
	}); err != nil {
		return err
	}

	ctx.printf("Watching habits for %s (sync every %s). Press Ctrl+C to stop.\n", ctx.Config.UserID, interval)
	c.scheduler.Start(runCtx)
	<-runCtx.Done()
	c.scheduler.Stop()
	ctx.println("Stopped.")
	return nil
}

// tick syncs with the remote when one is configured and then reschedules
// reminders from the local store. Overlapping ticks are skipped.
func (c *WatchCmd) tick(jobCtx context.Context, ctx *Context) {
	if !c.mu.TryLock() {
		logger.Debug("Previous watch tick still running, skipping")
		return
	}
	defer c.mu.Unlock()

	tickCtx := *ctx
	tickCtx.Ctx = jobCtx

	remote, _, err := tickCtx.Remote()
	switch {
	case errors.Is(err, ErrNoRemote):
		logger.Debug("No remote configured, skipping sync")
	case err != nil:
		logger.Warn("Remote unavailable, skipping sync", "error", err)
	default:
		res, err := runSync(&tickCtx, syncer.New(ctx.Store, remote, syncer.WithClock(ctx.Now)))
		if err == nil && res.Writes() > 0 {
			ctx.printf("Synced %d local and %d remote writes\n", res.AppliedLocal, res.AppliedRemote)
		}
		if cerr := remote.Close(); cerr != nil {
			logger.Warn("Failed to close remote store", "error", cerr)
		}
	}

	habits, err := ctx.Store.GetAll(jobCtx, ctx.Config.UserID)
	if err != nil {
		logger.Error("Failed to load habits for reminders", "error", err)
		return
	}
	n, err := c.scheduler.Sync(jobCtx, habits)
	if err != nil {
		logger.Error("Failed to schedule reminders", "error", err)
		return
	}
	logger.Debug("Reminders refreshed", "count", n)
}
