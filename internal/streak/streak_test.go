package streak

import (
	"testing"

	"github.com/julianstephens/habitsync/internal/models"
)

func day(t *testing.T, s string) models.EpochDay {
	t.Helper()
	d, err := models.ParseDay(s)
	if err != nil {
		t.Fatalf("bad test date %q: %v", s, err)
	}
	return d
}

func days(t *testing.T, ss ...string) []models.EpochDay {
	t.Helper()
	out := make([]models.EpochDay, len(ss))
	for i, s := range ss {
		out[i] = day(t, s)
	}
	return out
}

func TestPeriodWeekStartsMonday(t *testing.T) {
	sunday := day(t, "2025-06-15")
	monday := day(t, "2025-06-16")
	nextSunday := day(t, "2025-06-22")

	if Period(models.RecurrenceWeekly, sunday) == Period(models.RecurrenceWeekly, monday) {
		t.Error("Sunday and the following Monday must be in different weeks")
	}
	if Period(models.RecurrenceWeekly, monday) != Period(models.RecurrenceWeekly, nextSunday) {
		t.Error("Monday through Sunday must share a week")
	}
	if Period(models.RecurrenceWeekly, monday) != Period(models.RecurrenceWeekly, sunday)+1 {
		t.Error("consecutive weeks must have consecutive indices")
	}
}

func TestPeriodMonthsAreConsecutiveAcrossYears(t *testing.T) {
	dec := Period(models.RecurrenceMonthly, day(t, "2024-12-31"))
	jan := Period(models.RecurrenceMonthly, day(t, "2025-01-01"))
	if jan != dec+1 {
		t.Errorf("expected January after December, got %d then %d", dec, jan)
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name        string
		recurrence  models.Recurrence
		completed   []string
		today       string
		wantCurrent int
		wantLongest int
		wantTotal   int
	}{
		{
			name:       "no completions",
			recurrence: models.RecurrenceDaily,
			today:      "2025-06-15",
		},
		{
			name:        "daily streak through today",
			recurrence:  models.RecurrenceDaily,
			completed:   []string{"2025-06-13", "2025-06-14", "2025-06-15"},
			today:       "2025-06-15",
			wantCurrent: 3, wantLongest: 3, wantTotal: 3,
		},
		{
			name:        "daily streak alive until today is over",
			recurrence:  models.RecurrenceDaily,
			completed:   []string{"2025-06-13", "2025-06-14"},
			today:       "2025-06-15",
			wantCurrent: 2, wantLongest: 2, wantTotal: 2,
		},
		{
			name:        "daily streak broken",
			recurrence:  models.RecurrenceDaily,
			completed:   []string{"2025-06-01", "2025-06-02", "2025-06-03", "2025-06-13"},
			today:       "2025-06-15",
			wantCurrent: 0, wantLongest: 3, wantTotal: 4,
		},
		{
			name:        "weekly counts weeks with any completion",
			recurrence:  models.RecurrenceWeekly,
			completed:   []string{"2025-06-02", "2025-06-04", "2025-06-10", "2025-06-16"},
			today:       "2025-06-18",
			wantCurrent: 3, wantLongest: 3, wantTotal: 4,
		},
		{
			name:        "monthly across year boundary",
			recurrence:  models.RecurrenceMonthly,
			completed:   []string{"2024-11-30", "2024-12-01", "2025-01-20"},
			today:       "2025-02-10",
			wantCurrent: 3, wantLongest: 3, wantTotal: 3,
		},
		{
			name:        "future completions ignored",
			recurrence:  models.RecurrenceDaily,
			completed:   []string{"2025-06-15", "2025-06-20"},
			today:       "2025-06-15",
			wantCurrent: 1, wantLongest: 1, wantTotal: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := models.HabitRecord{Recurrence: tt.recurrence, CompletedDates: days(t, tt.completed...)}
			got := Compute(h, day(t, tt.today))

			if got.Current != tt.wantCurrent || got.Longest != tt.wantLongest || got.Total != tt.wantTotal {
				t.Errorf("Compute() = current %d longest %d total %d, want %d %d %d",
					got.Current, got.Longest, got.Total, tt.wantCurrent, tt.wantLongest, tt.wantTotal)
			}
			if tt.wantTotal == 0 && got.LastCompleted != nil {
				t.Errorf("LastCompleted = %v, want nil", *got.LastCompleted)
			}
		})
	}
}

func TestComputeLastCompletedAndUnit(t *testing.T) {
	h := models.HabitRecord{
		Recurrence:     models.RecurrenceWeekly,
		CompletedDates: days(t, "2025-06-02", "2025-06-10"),
	}
	got := Compute(h, day(t, "2025-06-12"))
	if got.LastCompleted == nil || *got.LastCompleted != day(t, "2025-06-10") {
		t.Errorf("LastCompleted = %v, want 2025-06-10", got.LastCompleted)
	}
	if got.Unit != "week" {
		t.Errorf("Unit = %q, want week", got.Unit)
	}
}

func TestDoneInPeriod(t *testing.T) {
	tests := []struct {
		name       string
		recurrence models.Recurrence
		completed  []string
		today      string
		want       bool
	}{
		{name: "daily done today", recurrence: models.RecurrenceDaily, completed: []string{"2025-06-15"}, today: "2025-06-15", want: true},
		{name: "daily done yesterday", recurrence: models.RecurrenceDaily, completed: []string{"2025-06-14"}, today: "2025-06-15", want: false},
		{name: "weekly done on monday", recurrence: models.RecurrenceWeekly, completed: []string{"2025-06-16"}, today: "2025-06-20", want: true},
		{name: "weekly done last week", recurrence: models.RecurrenceWeekly, completed: []string{"2025-06-15"}, today: "2025-06-16", want: false},
		{name: "monthly done earlier this month", recurrence: models.RecurrenceMonthly, completed: []string{"2025-06-01"}, today: "2025-06-30", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := models.HabitRecord{Recurrence: tt.recurrence, CompletedDates: days(t, tt.completed...)}
			if got := DoneInPeriod(h, day(t, tt.today)); got != tt.want {
				t.Errorf("DoneInPeriod() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompletionRate(t *testing.T) {
	h := models.HabitRecord{
		Recurrence:     models.RecurrenceDaily,
		CompletedDates: days(t, "2025-06-01", "2025-06-08", "2025-06-09", "2025-06-10"),
	}
	today := day(t, "2025-06-10")

	if got := CompletionRate(h, today, 4); got != 0.75 {
		t.Errorf("CompletionRate(4) = %v, want 0.75", got)
	}
	if got := CompletionRate(h, today, 0); got != 0 {
		t.Errorf("CompletionRate(0) = %v, want 0", got)
	}
}
