package domain

import (
	"maps"
	"time"
)

// MergeSnapshot folds a freshly fetched snapshot into the previous record of a repository and
// returns the updated record. prev is nil on the repository's first observation.
//
// prev is never modified; the caller is responsible for storing the returned record.
func MergeSnapshot(prev *RepoStatRecord, snap Snapshot, today time.Time) *RepoStatRecord {
	day := today.UTC().Format(DateLayout)

	if prev == nil {
		return &RepoStatRecord{
			Stars:      snap.Stars,
			Clones:     snap.Clones,
			Views:      snap.Views,
			LastStars:  snap.Stars,
			LastClones: snap.Clones,
			LastViews:  snap.Views,
			History: map[string]DayStats{
				day: {Stars: snap.Stars, Clones: snap.Clones, Views: snap.Views},
			},
		}
	}

	delta := DayStats{
		Stars:  clampedDelta(snap.Stars, prev.LastStars),
		Clones: clampedDelta(snap.Clones, prev.LastClones),
		Views:  clampedDelta(snap.Views, prev.LastViews),
	}

	history := make(map[string]DayStats, len(prev.History)+1)
	maps.Copy(history, prev.History)
	// A second run on the same day replaces that day's entry.
	history[day] = delta

	return &RepoStatRecord{
		Stars:      prev.Stars + delta.Stars,
		Clones:     prev.Clones + delta.Clones,
		Views:      prev.Views + delta.Views,
		LastStars:  snap.Stars,
		LastClones: snap.Clones,
		LastViews:  snap.Views,
		History:    history,
	}
}

// clampedDelta returns current-last, or 0 when the upstream counter went down.
func clampedDelta(current, last int) int {
	return max(0, current-last)
}
