package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/storage"
	"github.com/julianstephens/habitsync/internal/streak"
)

type HabitCmd struct {
	Add     HabitAddCmd     `cmd:"" help:"Add a new habit."`
	List    HabitListCmd    `cmd:"" help:"List habits with their streaks."`
	Done    HabitDoneCmd    `cmd:"" help:"Mark a habit as done today."`
	Edit    HabitEditCmd    `cmd:"" help:"Edit a habit."`
	Delete  HabitDeleteCmd  `cmd:"" help:"Delete a habit (soft delete)."`
	Restore HabitRestoreCmd `cmd:"" help:"Restore a deleted habit."`
	Stats   HabitStatsCmd   `cmd:"" help:"Show streak statistics for a habit."`
}

type HabitAddCmd struct {
	Title      string `arg:"" optional:"" help:"Habit title. Prompts when omitted."`
	Recurrence string `help:"daily, weekly or monthly." default:"daily" enum:"daily,weekly,monthly"`
	Reminder   string `help:"Reminder time of day (HH:MM)."`
}

func (c *HabitAddCmd) Run(ctx *Context) error {
	title, recurrence, reminder := c.Title, c.Recurrence, c.Reminder
	if strings.TrimSpace(title) == "" {
		if !ctx.Interactive {
			return errors.New("habit title is required")
		}
		if err := habitForm(&title, &recurrence, &reminder).Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				ctx.println("Cancelled.")
				return nil
			}
			return err
		}
	}

	rec, err := models.ParseRecurrence(recurrence)
	if err != nil {
		return err
	}
	if err := ensureUniqueTitle(ctx, title, ""); err != nil {
		return err
	}

	h, err := models.NewHabit(ctx.Config.UserID, title, rec, reminder, ctx.now())
	if err != nil {
		return err
	}
	if err := ctx.Store.Upsert(ctx.runCtx(), h); err != nil {
		return fmt.Errorf("failed to add habit: %w", err)
	}

	ctx.printf("✓ Added habit %q (%s)\n", h.Title, shortID(h.ID))
	return nil
}

func habitForm(title, recurrence, reminder *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(title).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("title cannot be empty")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Recurrence").
				Options(
					huh.NewOption("Daily", string(models.RecurrenceDaily)),
					huh.NewOption("Weekly", string(models.RecurrenceWeekly)),
					huh.NewOption("Monthly", string(models.RecurrenceMonthly)),
				).
				Value(recurrence),
			huh.NewInput().
				Title("Reminder (HH:MM)").
				Description("Leave empty for no reminder").
				Value(reminder).
				Validate(func(s string) error {
					if s == "" || models.ValidReminderTime(s) {
						return nil
					}
					return errors.New("reminder must be HH:MM")
				}),
		),
	)
}

func ensureUniqueTitle(ctx *Context, title, exceptID string) error {
	habits, err := ctx.Store.GetAll(ctx.runCtx(), ctx.Config.UserID)
	if err != nil {
		return err
	}
	title = strings.TrimSpace(title)
	for _, h := range habits {
		if h.ID != exceptID && !h.IsDeleted() && strings.EqualFold(h.Title, title) {
			return fmt.Errorf("habit with title %q already exists", title)
		}
	}
	return nil
}

type HabitListCmd struct {
	Deleted bool `help:"Include deleted habits."`
}

func (c *HabitListCmd) Run(ctx *Context) error {
	habits, err := ctx.Store.GetAll(ctx.runCtx(), ctx.Config.UserID)
	if err != nil {
		return err
	}

	today := ctx.Today()
	t := newTable("ID", "Title", "Recurrence", "Reminder", "Streak", "Status")
	rows := 0
	for _, h := range habits {
		if h.IsDeleted() && !c.Deleted {
			continue
		}
		stats := streak.Compute(h, today)

		status := warnStyle.Render("pending")
		switch {
		case h.IsDeleted():
			status = mutedStyle.Render("deleted")
		case streak.DoneInPeriod(h, today):
			status = okStyle.Render("done")
		}
		reminder := h.ReminderTime
		if reminder == "" {
			reminder = mutedStyle.Render("-")
		}

		t.Row(shortID(h.ID), h.Title, string(h.Recurrence), reminder,
			fmt.Sprintf("%d %s", stats.Current, plural(stats.Unit, stats.Current)), status)
		rows++
	}

	if rows == 0 {
		ctx.println("No habits found.")
		return nil
	}
	ctx.println(t.Render())
	return nil
}

func plural(unit string, n int) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

type HabitDoneCmd struct {
	Habit string `arg:"" help:"Habit ID or title."`
	Date  string `help:"Backfill a past day (YYYY-MM-DD) instead of today."`
}

func (c *HabitDoneCmd) Run(ctx *Context) error {
	h, err := ctx.FindHabit(c.Habit)
	if err != nil {
		return err
	}
	if h.IsDeleted() {
		return fmt.Errorf("habit %q is deleted (restore it first)", h.Title)
	}

	today := ctx.Today()
	if c.Date == "" {
		if h.HasCompleted(today) {
			ctx.printf("Habit %q is already done for %s\n", h.Title, today)
			return nil
		}
		if err := ctx.Store.MarkCompletedToday(ctx.runCtx(), h.UserID, h.ID); err != nil {
			return fmt.Errorf("failed to mark habit done: %w", err)
		}
		ctx.printf("✓ Marked %q done for %s\n", h.Title, today)
		return nil
	}

	day, err := models.ParseDay(c.Date)
	if err != nil {
		return err
	}
	if day > today {
		return fmt.Errorf("cannot mark %s done: date is in the future", day)
	}
	if !h.MarkCompleted(day) {
		ctx.printf("Habit %q is already done for %s\n", h.Title, day)
		return nil
	}
	h.Touch(ctx.now())
	if err := ctx.Store.Upsert(ctx.runCtx(), h); err != nil {
		return fmt.Errorf("failed to mark habit done: %w", err)
	}
	ctx.printf("✓ Marked %q done for %s\n", h.Title, day)
	return nil
}

type HabitEditCmd struct {
	ID            string  `arg:"" help:"Habit ID or title."`
	Title         *string `help:"New title."`
	Recurrence    *string `help:"New recurrence (daily, weekly or monthly)."`
	Reminder      *string `help:"New reminder time (HH:MM)." xor:"reminder"`
	ClearReminder bool    `help:"Remove the reminder." xor:"reminder"`
}

func (c *HabitEditCmd) Run(ctx *Context) error {
	h, err := ctx.FindHabit(c.ID)
	if err != nil {
		return err
	}
	if h.IsDeleted() {
		return fmt.Errorf("habit %q is deleted (restore it first)", h.Title)
	}

	before := h.Clone()
	if c.Title != nil {
		if err := ensureUniqueTitle(ctx, *c.Title, h.ID); err != nil {
			return err
		}
		h.Title = strings.TrimSpace(*c.Title)
	}
	if c.Recurrence != nil {
		rec, err := models.ParseRecurrence(*c.Recurrence)
		if err != nil {
			return err
		}
		h.Recurrence = rec
	}
	if c.Reminder != nil {
		h.ReminderTime = strings.TrimSpace(*c.Reminder)
	}
	if c.ClearReminder {
		h.ReminderTime = ""
	}

	if h.Equal(before) {
		ctx.println("No changes.")
		return nil
	}
	h.Touch(ctx.now())
	if err := h.Validate(); err != nil {
		return err
	}
	if err := ctx.Store.Upsert(ctx.runCtx(), h); err != nil {
		return fmt.Errorf("failed to update habit: %w", err)
	}
	ctx.printf("✓ Updated habit %q\n", h.Title)
	return nil
}

type HabitDeleteCmd struct {
	ID  string `arg:"" help:"Habit ID or title."`
	Yes bool   `short:"y" help:"Skip the confirmation prompt."`
}

func (c *HabitDeleteCmd) Run(ctx *Context) error {
	h, err := ctx.FindHabit(c.ID)
	if err != nil {
		return err
	}
	if h.IsDeleted() {
		ctx.printf("Habit %q is already deleted\n", h.Title)
		return nil
	}

	if !c.Yes {
		if !ctx.Interactive {
			return errors.New("refusing to delete without confirmation (pass --yes)")
		}
		confirmed := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Delete habit %q?", h.Title)).
			Description("The habit can be restored with 'habitsync habit restore'.").
			Value(&confirmed).
			Run()
		if err != nil && !errors.Is(err, huh.ErrUserAborted) {
			return err
		}
		if !confirmed {
			ctx.println("Cancelled.")
			return nil
		}
	}

	if err := ctx.Store.Delete(ctx.runCtx(), h.UserID, h.ID); err != nil {
		return fmt.Errorf("failed to delete habit: %w", err)
	}
	ctx.printf("✓ Deleted habit %q\n", h.Title)
	return nil
}

type HabitRestoreCmd struct {
	ID string `arg:"" help:"Habit ID."`
}

func (c *HabitRestoreCmd) Run(ctx *Context) error {
	h, err := ctx.Store.Get(ctx.runCtx(), ctx.Config.UserID, c.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("habit %s not found", c.ID)
	}
	if err != nil {
		return err
	}
	if !h.IsDeleted() {
		ctx.printf("Habit %q is not deleted\n", h.Title)
		return nil
	}
	if err := ensureUniqueTitle(ctx, h.Title, h.ID); err != nil {
		return fmt.Errorf("cannot restore: %w", err)
	}

	if err := ctx.Store.Restore(ctx.runCtx(), h.UserID, h.ID); err != nil {
		return fmt.Errorf("failed to restore habit: %w", err)
	}
	ctx.printf("✓ Restored habit %q\n", h.Title)
	return nil
}

type HabitStatsCmd struct {
	ID     string `arg:"" help:"Habit ID or title."`
	Window int    `help:"Days to compute the completion rate over." default:"30"`
}

func (c *HabitStatsCmd) Run(ctx *Context) error {
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	h, err := ctx.FindHabit(c.ID)
	if err != nil {
		return err
	}

	today := ctx.Today()
	stats := streak.Compute(h, today)
	last := mutedStyle.Render("never")
	if stats.LastCompleted != nil {
		last = stats.LastCompleted.String()
	}

	t := newTable("", h.Title)
	t.Row("Recurrence", string(h.Recurrence))
	t.Row("Current streak", fmt.Sprintf("%d %s", stats.Current, plural(stats.Unit, stats.Current)))
	t.Row("Longest streak", fmt.Sprintf("%d %s", stats.Longest, plural(stats.Unit, stats.Longest)))
	t.Row("Completions", fmt.Sprintf("%d", stats.Total))
	t.Row("Last completed", last)
	t.Row(fmt.Sprintf("Last %d days", c.Window), fmt.Sprintf("%.0f%%", streak.CompletionRate(h, today, c.Window)*100))
	ctx.println(t.Render())
	return nil
}
