package sync

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/julianstephens/habitsync/internal/models"
)

func habit(id string, createdAt, updatedAt int64, days ...models.EpochDay) models.HabitRecord {
	return models.HabitRecord{
		ID:             id,
		UserID:         "u1",
		Title:          "Habit " + id,
		Recurrence:     models.RecurrenceDaily,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		CompletedDates: days,
	}
}

func ids(records []models.HabitRecord) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name      string
		local     models.HabitRecord
		remote    models.HabitRecord
		wantTitle string
		wantDays  []models.EpochDay
	}{
		{
			name:      "newer local wins scalars",
			local:     withTitle(habit("a", 100, 300, 1), "local"),
			remote:    withTitle(habit("a", 100, 200, 2), "remote"),
			wantTitle: "local",
			wantDays:  []models.EpochDay{1, 2},
		},
		{
			name:      "newer remote wins scalars",
			local:     withTitle(habit("a", 100, 200), "local"),
			remote:    withTitle(habit("a", 100, 300), "remote"),
			wantTitle: "remote",
		},
		{
			name:      "tie goes to remote",
			local:     withTitle(habit("a", 100, 0, 1), "local"),
			remote:    withTitle(habit("a", 100, 0, 1, 2), "remote"),
			wantTitle: "remote",
			wantDays:  []models.EpochDay{1, 2},
		},
		{
			name:      "created_at used when updated_at missing",
			local:     withTitle(habit("a", 500, 0), "local"),
			remote:    withTitle(habit("a", 400, 0), "remote"),
			wantTitle: "local",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.local, tt.remote)
			if got.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", got.Title, tt.wantTitle)
			}
			if diff := cmp.Diff(tt.wantDays, got.CompletedDates); diff != "" {
				t.Errorf("CompletedDates mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func withTitle(h models.HabitRecord, title string) models.HabitRecord {
	h.Title = title
	return h
}

func TestBuildPlanOneSided(t *testing.T) {
	local := []models.HabitRecord{habit("l1", 100, 100)}
	remote := []models.HabitRecord{habit("r1", 200, 200, 3)}

	plan := BuildPlan("u1", local, remote)

	if diff := cmp.Diff([]models.HabitRecord{remote[0]}, plan.LocalWrites); diff != "" {
		t.Errorf("LocalWrites mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]models.HabitRecord{local[0]}, plan.RemoteWrites); diff != "" {
		t.Errorf("RemoteWrites mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanSkipsIdenticalRecords(t *testing.T) {
	h := habit("a", 100, 150, 1, 2)
	plan := BuildPlan("u1", []models.HabitRecord{h}, []models.HabitRecord{h.Clone()})
	if !plan.Empty() {
		t.Errorf("expected empty plan, got %+v", plan)
	}
}

func TestBuildPlanWritesOnlyDifferingSide(t *testing.T) {
	local := habit("a", 100, 100, 1)
	remote := habit("a", 100, 200, 1)

	plan := BuildPlan("u1", []models.HabitRecord{local}, []models.HabitRecord{remote})

	if len(plan.RemoteWrites) != 0 {
		t.Errorf("remote already holds the merged record, got writes %v", ids(plan.RemoteWrites))
	}
	if len(plan.LocalWrites) != 1 || !plan.LocalWrites[0].Equal(remote) {
		t.Errorf("expected remote record written locally, got %+v", plan.LocalWrites)
	}
}

func TestBuildPlanIgnoresOtherUsers(t *testing.T) {
	other := habit("x", 100, 100)
	other.UserID = "u2"

	plan := BuildPlan("u1", []models.HabitRecord{other}, nil)
	if !plan.Empty() {
		t.Errorf("records of other users must be ignored, got %+v", plan)
	}
}

func TestBuildPlanCollapsesDuplicates(t *testing.T) {
	older := withTitle(habit("a", 100, 100), "older")
	newer := withTitle(habit("a", 100, 300), "newer")

	plan := BuildPlan("u1", []models.HabitRecord{older, newer}, nil)
	if len(plan.RemoteWrites) != 1 || plan.RemoteWrites[0].Title != "newer" {
		t.Errorf("expected newest duplicate to win, got %+v", plan.RemoteWrites)
	}
}

func TestBuildPlanSortedByID(t *testing.T) {
	local := []models.HabitRecord{habit("c", 1, 1), habit("a", 1, 1), habit("b", 1, 1)}
	plan := BuildPlan("u1", local, nil)

	if diff := cmp.Diff([]string{"a", "b", "c"}, ids(plan.RemoteWrites)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPlanPropagatesTombstone(t *testing.T) {
	deletedAt := int64(400)
	local := habit("a", 100, 400)
	local.DeletedAt = &deletedAt
	remote := habit("a", 100, 200, 7)

	plan := BuildPlan("u1", []models.HabitRecord{local}, []models.HabitRecord{remote})
	if len(plan.RemoteWrites) != 1 || !plan.RemoteWrites[0].IsDeleted() {
		t.Fatalf("expected tombstone pushed to remote, got %+v", plan.RemoteWrites)
	}
	if !plan.RemoteWrites[0].HasCompleted(7) {
		t.Error("tombstone merge must keep remote completions")
	}
}

func TestBuildPlanOnOwnOutputIsNoop(t *testing.T) {
	local := []models.HabitRecord{habit("a", 100, 300, 1), habit("b", 100, 100), habit("c", 50, 0, 4)}
	remote := []models.HabitRecord{habit("a", 100, 200, 2), habit("c", 50, 0, 5), habit("d", 10, 10)}

	plan := BuildPlan("u1", local, remote)
	nextLocal := apply(local, plan.LocalWrites)
	nextRemote := apply(remote, plan.RemoteWrites)

	if again := BuildPlan("u1", nextLocal, nextRemote); !again.Empty() {
		t.Errorf("second plan should be empty, got local=%v remote=%v", ids(again.LocalWrites), ids(again.RemoteWrites))
	}
}

func apply(records, writes []models.HabitRecord) []models.HabitRecord {
	byID := make(map[string]models.HabitRecord)
	for _, r := range records {
		byID[r.ID] = r
	}
	for _, w := range writes {
		byID[w.ID] = w
	}
	out := make([]models.HabitRecord, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	return out
}
