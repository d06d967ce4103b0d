// Package domain contains the core data structures and domain logic for the application.
package domain

import "encoding/json"

// DateLayout is the calendar date format used as the key of a record's history.
const DateLayout = "2006-01-02"

// DayStats holds the counters recorded for a single calendar day.
// For the first recorded day these are the absolute values, afterwards they are deltas.
type DayStats struct {
	Stars  int `json:"stars"`
	Clones int `json:"clones"`
	Views  int `json:"views"`
}

// Snapshot is the triple of absolute counters fetched for a repository in one run.
type Snapshot struct {
	Stars  int
	Clones int
	Views  int
}

// RepoStatRecord is the persisted, cumulative view of a single repository.
// It is the core domain entity of this application.
type RepoStatRecord struct {
	Stars      int                 `json:"stars"`
	Clones     int                 `json:"clones"`
	Views      int                 `json:"views"`
	LastStars  int                 `json:"last_stars"`
	LastClones int                 `json:"last_clones"`
	LastViews  int                 `json:"last_views"`
	History    map[string]DayStats `json:"history"`
}

// UnmarshalJSON reads a record permissively. Documents written before the last_* baselines
// existed fall back to the cumulative counters, so the next delta is not counted twice.
func (r *RepoStatRecord) UnmarshalJSON(data []byte) error {
	type plain RepoStatRecord
	var raw struct {
		plain
		LastStars  *int `json:"last_stars"`
		LastClones *int `json:"last_clones"`
		LastViews  *int `json:"last_views"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = RepoStatRecord(raw.plain)
	r.LastStars = valueOr(raw.LastStars, r.Stars)
	r.LastClones = valueOr(raw.LastClones, r.Clones)
	r.LastViews = valueOr(raw.LastViews, r.Views)
	if r.History == nil {
		r.History = map[string]DayStats{}
	}
	return nil
}

func valueOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}

// StatsHistory maps a repository identifier (owner/name) to its record.
// It is the whole persisted document.
type StatsHistory map[string]*RepoStatRecord

// LanguageEdge is a single language entry of a repository, as reported by GitHub.
type LanguageEdge struct {
	Name  string
	Color string
	Size  int
}

// Repository is a repository discovered for the account, before any filter is applied.
type Repository struct {
	NameWithOwner string
	IsFork        bool
	// Owned is false for repositories the user only contributed to.
	Owned      bool
	Stargazers int
	Forks      int
	Languages  []LanguageEdge
}

// LanguageStat is the aggregated usage of one language across the account.
type LanguageStat struct {
	Name        string
	Color       string
	Size        int
	Occurrences int
	// Proportion is a percentage in the range [0, 100].
	Proportion float64
}
