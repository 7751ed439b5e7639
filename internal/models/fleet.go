package models

import (
	"strings"
	"time"
)

// FleetResult is the outcome of one fleet run. Projects has the same length
// and order as the tracked project list it was built from.
type FleetResult struct {
	RunID       string          `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Projects    []ProjectRecord `json:"projects"`
}

// Find returns the record whose Name or Repo matches key. Repos compare
// case-insensitively, as GitHub does.
func (f FleetResult) Find(key string) (ProjectRecord, bool) {
	for _, p := range f.Projects {
		if p.Name == key || strings.EqualFold(p.Repo, key) {
			return p, true
		}
	}
	return ProjectRecord{}, false
}

// Degraded returns the number of degraded records.
func (f FleetResult) Degraded() int {
	n := 0
	for _, p := range f.Projects {
		if p.Degraded() {
			n++
		}
	}
	return n
}

// Filter narrows a fleet listing. The zero value matches every project.
type Filter struct {
	Stale       bool // only projects with stale branches
	Unpublished bool // only projects with tag/publication gaps
}

// Match reports whether r passes the filter.
func (f Filter) Match(r ProjectRecord) bool {
	if f.Stale && r.StaleBranches() == 0 {
		return false
	}
	if f.Unpublished && !r.HasVersionGaps() {
		return false
	}
	return true
}

// Select returns the records matching f, in fleet order.
func (f FleetResult) Select(filter Filter) []ProjectRecord {
	out := make([]ProjectRecord, 0, len(f.Projects))
	for _, p := range f.Projects {
		if filter.Match(p) {
			out = append(out, p)
		}
	}
	return out
}
