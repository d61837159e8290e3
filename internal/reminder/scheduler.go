package reminder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/models"
	"github.com/julianstephens/habitsync/internal/streak"
)

// Reminder is a due notification for one habit
type Reminder struct {
	UserID  string
	HabitID string
	Title   string
	At      time.Time
}

type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// Lookup fetches the current state of a habit when its reminder fires.
type Lookup func(ctx context.Context, userID, habitID string) (models.HabitRecord, error)

// Scheduler registers one cron entry per habit reminder plus any periodic
// jobs, all evaluated in a single location.
type Scheduler struct {
	cron     *cron.Cron
	loc      *time.Location
	notifier Notifier
	lookup   Lookup
	now      func() time.Time

	mu      gosync.Mutex
	ctx     context.Context
	entries map[string]cron.EntryID
}

func New(loc *time.Location, notifier Notifier, lookup Lookup) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		loc:      loc,
		notifier: notifier,
		lookup:   lookup,
		now:      time.Now,
		ctx:      context.Background(),
		entries:  make(map[string]cron.EntryID),
	}
}

// Start runs the cron loop. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Sync replaces the registered reminders with one entry per active habit
// that has a reminder time. It returns the number of entries registered.
func (s *Scheduler) Sync(ctx context.Context, habits []models.HabitRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}

	for _, h := range habits {
		if err := ctx.Err(); err != nil {
			return len(s.entries), err
		}
		if h.IsDeleted() || h.ReminderTime == "" {
			continue
		}

		spec, err := Spec(h, s.loc)
		if err != nil {
			logger.Warn("Skipping reminder", "habit", h.ID, "error", err)
			continue
		}

		userID, habitID := h.UserID, h.ID
		entry, err := s.cron.AddFunc(spec, func() {
			s.mu.Lock()
			jobCtx := s.ctx
			s.mu.Unlock()
			if _, err := s.Fire(jobCtx, userID, habitID); err != nil {
				logger.Error("Reminder failed", "habit", habitID, "error", err)
			}
		})
		if err != nil {
			return len(s.entries), fmt.Errorf("failed to schedule reminder for habit %s: %w", h.ID, err)
		}
		s.entries[h.ID] = entry
	}

	logger.Debug("Reminders scheduled", "count", len(s.entries))
	return len(s.entries), nil
}

// AddInterval registers job to run every interval.
func (s *Scheduler) AddInterval(interval time.Duration, job func(ctx context.Context)) error {
	if interval < time.Second {
		return fmt.Errorf("interval must be at least one second, got %s", interval)
	}
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", int(interval.Seconds())), func() {
		s.mu.Lock()
		jobCtx := s.ctx
		s.mu.Unlock()
		job(jobCtx)
	})
	return err
}

// Fire notifies for one habit unless it is deleted, not due today, or
// already done for the current period. It reports whether a notification
// was sent.
func (s *Scheduler) Fire(ctx context.Context, userID, habitID string) (bool, error) {
	h, err := s.lookup(ctx, userID, habitID)
	if err != nil {
		return false, err
	}

	now := s.now().In(s.loc)
	if h.IsDeleted() || !DueOn(h, now) || streak.DoneInPeriod(h, models.EpochDayOf(now)) {
		return false, nil
	}

	if err := s.notifier.Notify(ctx, Reminder{
		UserID:  h.UserID,
		HabitID: h.ID,
		Title:   h.Title,
		At:      now,
	}); err != nil {
		return false, fmt.Errorf("failed to notify for habit %s: %w", h.ID, err)
	}
	return true, nil
}

// Spec builds the cron spec (with seconds) for a habit's reminder. Weekly
// habits fire on the weekday they were created. Monthly habits fire daily
// and are filtered by DueOn, since cron cannot clamp to a month's last day.
func Spec(h models.HabitRecord, loc *time.Location) (string, error) {
	hour, minute, err := parseClock(h.ReminderTime)
	if err != nil {
		return "", err
	}
	switch h.Recurrence {
	case models.RecurrenceWeekly:
		created := time.UnixMilli(h.CreatedAt).In(loc)
		return fmt.Sprintf("0 %d %d * * %d", minute, hour, int(created.Weekday())), nil
	default:
		return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
	}
}

// DueOn reports whether h's reminder applies on the calendar day of t.
func DueOn(h models.HabitRecord, t time.Time) bool {
	created := time.UnixMilli(h.CreatedAt).In(t.Location())
	switch h.Recurrence {
	case models.RecurrenceWeekly:
		return t.Weekday() == created.Weekday()
	case models.RecurrenceMonthly:
		year, month, day := t.Date()
		due := created.Day()
		if last := daysInMonth(month, year); due > last {
			due = last
		}
		return day == due
	default:
		return true
	}
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

func daysInMonth(month time.Month, year int) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
