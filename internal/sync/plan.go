// Package sync reconciles a user's local habit cache with the remote habit
// collection shared across devices.
//
// Scalar fields resolve last-write-wins on HabitRecord.Version, with the
// remote copy winning ties. CompletedDates is grow-only and merges as a set
// union, so a completion recorded on either side is never lost.
package sync

import (
	"sort"

	"github.com/julianstephens/habitsync/internal/models"
)

// Plan is the set of upserts that brings both stores to the merged state.
type Plan struct {
	LocalWrites  []models.HabitRecord
	RemoteWrites []models.HabitRecord
}

func (p Plan) Empty() bool {
	return len(p.LocalWrites) == 0 && len(p.RemoteWrites) == 0
}

// Merge resolves two copies of the same habit. The copy with the strictly
// greater version supplies every scalar field; remote wins a tie. The
// completion sets are unioned.
func Merge(local, remote models.HabitRecord) models.HabitRecord {
	winner, loser := remote, local
	if local.Version() > remote.Version() {
		winner, loser = local, remote
	}
	merged := winner.Clone()
	merged.CompletedDates = models.UnionDays(winner.CompletedDates, loser.CompletedDates)
	return merged
}

// BuildPlan computes the writes needed to reconcile local and remote for
// userID. It does no I/O. Records owned by other users are ignored, and
// within one side duplicate IDs collapse to the highest version.
func BuildPlan(userID string, local, remote []models.HabitRecord) Plan {
	localByID := index(userID, local)
	remoteByID := index(userID, remote)

	ids := make([]string, 0, len(localByID)+len(remoteByID))
	for id := range localByID {
		ids = append(ids, id)
	}
	for id := range remoteByID {
		if _, ok := localByID[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var plan Plan
	for _, id := range ids {
		l, inLocal := localByID[id]
		r, inRemote := remoteByID[id]

		switch {
		case !inRemote:
			plan.RemoteWrites = append(plan.RemoteWrites, l.Clone())
		case !inLocal:
			plan.LocalWrites = append(plan.LocalWrites, r.Clone())
		default:
			merged := Merge(l, r)
			if !merged.Equal(l) {
				plan.LocalWrites = append(plan.LocalWrites, merged)
			}
			if !merged.Equal(r) {
				plan.RemoteWrites = append(plan.RemoteWrites, merged.Clone())
			}
		}
	}
	return plan
}

func index(userID string, records []models.HabitRecord) map[string]models.HabitRecord {
	out := make(map[string]models.HabitRecord, len(records))
	for _, r := range records {
		if r.UserID != userID {
			continue
		}
		if cur, ok := out[r.ID]; ok && cur.Version() >= r.Version() {
			continue
		}
		out[r.ID] = r
	}
	return out
}
