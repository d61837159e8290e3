package streak

import (
	"time"

	"github.com/julianstephens/habitsync/internal/models"
)

// Stats summarizes a habit's completion history as of a given day.
type Stats struct {
	Current       int
	Longest       int
	Total         int
	LastCompleted *models.EpochDay
	// Unit is the period a streak is counted in: day, week or month.
	Unit string
}

// Period maps a day to the index of the recurrence period containing it.
// Consecutive periods have consecutive indices.
func Period(r models.Recurrence, day models.EpochDay) int64 {
	switch r {
	case models.RecurrenceWeekly:
		// 1970-01-01 was a Thursday; shift so weeks start on Monday.
		return floorDiv(int64(day)+3, 7)
	case models.RecurrenceMonthly:
		t := day.Time(time.UTC)
		return int64(t.Year())*12 + int64(t.Month()) - 1
	default:
		return int64(day)
	}
}

func unit(r models.Recurrence) string {
	switch r {
	case models.RecurrenceWeekly:
		return "week"
	case models.RecurrenceMonthly:
		return "month"
	default:
		return "day"
	}
}

// Compute derives streak statistics for h as of today. The current streak
// survives while today's period is still open, as long as the previous
// period was completed. Completions after today are ignored.
func Compute(h models.HabitRecord, today models.EpochDay) Stats {
	stats := Stats{Unit: unit(h.Recurrence)}

	days := models.NormalizeDays(h.CompletedDates)
	var periods []int64
	for _, d := range days {
		if d > today {
			break
		}
		stats.Total++
		last := d
		stats.LastCompleted = &last

		p := Period(h.Recurrence, d)
		if n := len(periods); n == 0 || periods[n-1] != p {
			periods = append(periods, p)
		}
	}
	if len(periods) == 0 {
		return stats
	}

	run := 0
	for i, p := range periods {
		if i > 0 && periods[i-1] == p-1 {
			run++
		} else {
			run = 1
		}
		if run > stats.Longest {
			stats.Longest = run
		}
	}

	cur := Period(h.Recurrence, today)
	lastPeriod := periods[len(periods)-1]
	if lastPeriod == cur || lastPeriod == cur-1 {
		stats.Current = run
	}
	return stats
}

// DoneInPeriod reports whether h has a completion in the period containing today.
func DoneInPeriod(h models.HabitRecord, today models.EpochDay) bool {
	cur := Period(h.Recurrence, today)
	days := models.NormalizeDays(h.CompletedDates)
	for i := len(days) - 1; i >= 0; i-- {
		d := days[i]
		if d > today {
			continue
		}
		p := Period(h.Recurrence, d)
		if p == cur {
			return true
		}
		if p < cur {
			return false
		}
	}
	return false
}

// CompletionRate is the share of the last window days, today included,
// that have a completion.
func CompletionRate(h models.HabitRecord, today models.EpochDay, window int) float64 {
	if window <= 0 {
		return 0
	}
	from := today - models.EpochDay(window) + 1
	done := 0
	for _, d := range models.NormalizeDays(h.CompletedDates) {
		if d >= from && d <= today {
			done++
		}
	}
	return float64(done) / float64(window)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
