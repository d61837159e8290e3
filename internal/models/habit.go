package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitsync/internal/constants"
)

// Recurrence is the cadence a habit is expected to be completed on
type Recurrence string

const (
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
)

// ErrInvalidHabit is wrapped by every validation failure
var ErrInvalidHabit = errors.New("invalid habit")

// ParseRecurrence parses a recurrence name, case-insensitive
func ParseRecurrence(s string) (Recurrence, error) {
	r := Recurrence(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown recurrence %q (expected daily, weekly or monthly)", s)
	}
	return r, nil
}

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
		return true
	}
	return false
}

// EpochDay is a calendar day counted from 1970-01-01
type EpochDay int64

const secondsPerDay = 24 * 60 * 60

// EpochDayOf returns the epoch day of t's calendar date in t's own location.
func EpochDayOf(t time.Time) EpochDay {
	y, m, d := t.Date()
	return EpochDay(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay)
}

// ParseDay parses a YYYY-MM-DD date into an epoch day.
func ParseDay(s string) (EpochDay, error) {
	t, err := time.Parse(constants.DateFormat, s)
	if err != nil {
		return 0, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return EpochDayOf(t), nil
}

// Time returns local midnight of the day in loc.
func (d EpochDay) Time(loc *time.Location) time.Time {
	u := time.Unix(int64(d)*secondsPerDay, 0).UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)
}

func (d EpochDay) String() string {
	return d.Time(time.UTC).Format(constants.DateFormat)
}

// HabitRecord is a recurring activity tracked per calendar day.
//
// CreatedAt and UpdatedAt are epoch milliseconds. UpdatedAt is bumped on
// every mutation and is the recency signal used when reconciling copies of
// the same habit held by different stores.
type HabitRecord struct {
	ID             string
	UserID         string
	Title          string
	Recurrence     Recurrence
	ReminderTime   string
	CreatedAt      int64
	UpdatedAt      int64
	DeletedAt      *int64
	CompletedDates []EpochDay
}

// NewHabit creates a validated habit with a fresh identifier.
func NewHabit(userID, title string, recurrence Recurrence, reminder string, now time.Time) (HabitRecord, error) {
	ms := now.UnixMilli()
	h := HabitRecord{
		ID:           uuid.New().String(),
		UserID:       userID,
		Title:        strings.TrimSpace(title),
		Recurrence:   recurrence,
		ReminderTime: strings.TrimSpace(reminder),
		CreatedAt:    ms,
		UpdatedAt:    ms,
	}
	if err := h.Validate(); err != nil {
		return HabitRecord{}, err
	}
	return h, nil
}

// Version returns the recency signal for conflict resolution. Records
// written before UpdatedAt existed fall back to CreatedAt.
func (h HabitRecord) Version() int64 {
	if h.UpdatedAt == 0 {
		return h.CreatedAt
	}
	return h.UpdatedAt
}

func (h HabitRecord) IsDeleted() bool {
	return h.DeletedAt != nil
}

// Touch bumps UpdatedAt to now, never moving it backwards.
func (h *HabitRecord) Touch(now time.Time) {
	ms := now.UnixMilli()
	if ms <= h.Version() {
		ms = h.Version() + 1
	}
	h.UpdatedAt = ms
}

// MarkDeleted sets the tombstone. It reports false if the habit was already deleted.
func (h *HabitRecord) MarkDeleted(now time.Time) bool {
	if h.IsDeleted() {
		return false
	}
	h.Touch(now)
	ts := h.UpdatedAt
	h.DeletedAt = &ts
	return true
}

// Restore clears the tombstone. It reports false if the habit was not deleted.
func (h *HabitRecord) Restore(now time.Time) bool {
	if !h.IsDeleted() {
		return false
	}
	h.DeletedAt = nil
	h.Touch(now)
	return true
}

// HasCompleted reports whether day is in CompletedDates.
func (h HabitRecord) HasCompleted(day EpochDay) bool {
	_, found := slices.BinarySearch(h.CompletedDates, day)
	return found
}

// MarkCompleted adds day to CompletedDates. It reports false when the day
// was already present, leaving the record untouched.
func (h *HabitRecord) MarkCompleted(day EpochDay) bool {
	i, found := slices.BinarySearch(h.CompletedDates, day)
	if found {
		return false
	}
	h.CompletedDates = slices.Insert(h.CompletedDates, i, day)
	return true
}

// Clone returns a deep copy.
func (h HabitRecord) Clone() HabitRecord {
	c := h
	c.CompletedDates = slices.Clone(h.CompletedDates)
	if h.DeletedAt != nil {
		ts := *h.DeletedAt
		c.DeletedAt = &ts
	}
	return c
}

// Equal compares every field, treating CompletedDates as a set.
func (h HabitRecord) Equal(o HabitRecord) bool {
	if h.ID != o.ID || h.UserID != o.UserID || h.Title != o.Title ||
		h.Recurrence != o.Recurrence || h.ReminderTime != o.ReminderTime ||
		h.CreatedAt != o.CreatedAt || h.UpdatedAt != o.UpdatedAt {
		return false
	}
	if (h.DeletedAt == nil) != (o.DeletedAt == nil) {
		return false
	}
	if h.DeletedAt != nil && *h.DeletedAt != *o.DeletedAt {
		return false
	}
	return slices.Equal(NormalizeDays(h.CompletedDates), NormalizeDays(o.CompletedDates))
}

// Validate checks the record invariants and normalizes CompletedDates in place.
func (h *HabitRecord) Validate() error {
	switch {
	case strings.TrimSpace(h.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidHabit)
	case strings.TrimSpace(h.UserID) == "":
		return fmt.Errorf("%w: user id is required for habit %s", ErrInvalidHabit, h.ID)
	case strings.TrimSpace(h.Title) == "":
		return fmt.Errorf("%w: title is required for habit %s", ErrInvalidHabit, h.ID)
	case !h.Recurrence.Valid():
		return fmt.Errorf("%w: unknown recurrence %q for habit %s", ErrInvalidHabit, h.Recurrence, h.ID)
	case h.CreatedAt < 0 || h.UpdatedAt < 0:
		return fmt.Errorf("%w: negative timestamp for habit %s", ErrInvalidHabit, h.ID)
	case h.UpdatedAt != 0 && h.UpdatedAt < h.CreatedAt:
		return fmt.Errorf("%w: updated_at precedes created_at for habit %s", ErrInvalidHabit, h.ID)
	}
	if h.ReminderTime != "" && !ValidReminderTime(h.ReminderTime) {
		return fmt.Errorf("%w: invalid reminder time %q for habit %s (expected HH:MM)", ErrInvalidHabit, h.ReminderTime, h.ID)
	}
	h.CompletedDates = NormalizeDays(h.CompletedDates)
	return nil
}

// ValidReminderTime reports whether s is a zero-padded HH:MM time of day.
func ValidReminderTime(s string) bool {
	if len(s) != len(constants.TimeFormat) {
		return false
	}
	_, err := time.Parse(constants.TimeFormat, s)
	return err == nil
}

// NormalizeDays returns a sorted copy of days with duplicates removed.
func NormalizeDays(days []EpochDay) []EpochDay {
	if len(days) == 0 {
		return nil
	}
	out := slices.Clone(days)
	slices.Sort(out)
	return slices.Compact(out)
}

// UnionDays returns the normalized union of two day sets.
func UnionDays(a, b []EpochDay) []EpochDay {
	out := make([]EpochDay, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return NormalizeDays(out)
}
