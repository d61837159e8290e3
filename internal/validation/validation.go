package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/julianstephens/habitsync/internal/models"
)

// ConflictType represents the type of validation conflict
type ConflictType string

const (
	ConflictInvalidHabit     ConflictType = "invalid_habit"
	ConflictDuplicateID      ConflictType = "duplicate_habit_id"
	ConflictDuplicateTitle   ConflictType = "duplicate_habit_title"
	ConflictFutureCompletion ConflictType = "future_completion"
)

type Conflict struct {
	Type        ConflictType
	Description string
	HabitIDs    []string
}

type Result struct {
	Conflicts []Conflict
}

func (r Result) HasConflicts() bool {
	return len(r.Conflicts) > 0
}

// FormatReport returns a human-readable report of all conflicts
func (r Result) FormatReport() string {
	if !r.HasConflicts() {
		return "No conflicts detected."
	}
	var b strings.Builder
	b.WriteString("Conflicts detected:\n")
	for _, c := range r.Conflicts {
		fmt.Fprintf(&b, "- %s\n", c.Description)
	}
	return b.String()
}

// Validate checks one user's habit set. Tombstoned habits are only checked
// for record validity and ID clashes; they may share a title with an
// active habit. Completions dated after today are reported.
func Validate(habits []models.HabitRecord, today models.EpochDay) Result {
	var res Result

	byID := make(map[string]int)
	titles := make(map[string][]string)
	for _, h := range habits {
		byID[h.ID]++

		check := h.Clone()
		if err := check.Validate(); err != nil {
			res.Conflicts = append(res.Conflicts, Conflict{
				Type:        ConflictInvalidHabit,
				Description: err.Error(),
				HabitIDs:    []string{h.ID},
			})
			continue
		}

		if n := len(check.CompletedDates); n > 0 && check.CompletedDates[n-1] > today {
			res.Conflicts = append(res.Conflicts, Conflict{
				Type:        ConflictFutureCompletion,
				Description: fmt.Sprintf("Habit %q has a completion dated %s, after today", h.Title, check.CompletedDates[n-1]),
				HabitIDs:    []string{h.ID},
			})
		}

		if !h.IsDeleted() {
			key := strings.ToLower(strings.TrimSpace(h.Title))
			titles[key] = append(titles[key], h.ID)
		}
	}

	for _, id := range sortedKeys(byID) {
		if n := byID[id]; n > 1 {
			res.Conflicts = append(res.Conflicts, Conflict{
				Type:        ConflictDuplicateID,
				Description: fmt.Sprintf("Habit ID %s appears %d times", id, n),
				HabitIDs:    []string{id},
			})
		}
	}

	for _, title := range sortedKeys(titles) {
		if ids := titles[title]; len(ids) > 1 {
			sort.Strings(ids)
			res.Conflicts = append(res.Conflicts, Conflict{
				Type:        ConflictDuplicateTitle,
				Description: fmt.Sprintf("Duplicate habit title: %q (IDs: %s)", title, strings.Join(ids, ", ")),
				HabitIDs:    ids,
			})
		}
	}
	return res
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
