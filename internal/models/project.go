package models

import "time"

// TrackedProject is one fleet entry: a repository plus an optional published manifest.
// Identity is Repo.
type TrackedProject struct {
	Name      string `json:"name" yaml:"name"`
	Repo      string `json:"repo" yaml:"repo"`
	Published string `json:"published,omitempty" yaml:"published,omitempty"`
}

// ProjectRecord is the consolidated publication-health view of a single project.
type ProjectRecord struct {
	Name                string              `json:"name"`
	Repo                string              `json:"repo"`
	WebURL              string              `json:"web_url,omitempty"`
	DefaultBranch       string              `json:"default_branch,omitempty"`
	LastDefaultCommitAt *time.Time          `json:"last_default_commit_at,omitempty"`
	Branches            []ClassifiedBranch  `json:"branches"`
	Versions            []ReconciledVersion `json:"versions"`
	PublishedVersions   []PublishedVersion  `json:"published_versions"`
}

// DegradedRecord returns the identity-only record used when a project's
// data sources could not be reached.
func DegradedRecord(p TrackedProject) ProjectRecord {
	return ProjectRecord{
		Name:              p.Name,
		Repo:              p.Repo,
		Branches:          []ClassifiedBranch{},
		Versions:          []ReconciledVersion{},
		PublishedVersions: []PublishedVersion{},
	}
}

// Degraded reports whether the record carries identity fields only.
func (r ProjectRecord) Degraded() bool {
	return r.WebURL == "" && r.DefaultBranch == "" && r.LastDefaultCommitAt == nil
}

// StaleBranches returns the number of stale branches.
func (r ProjectRecord) StaleBranches() int {
	n := 0
	for _, b := range r.Branches {
		if b.IsStale {
			n++
		}
	}
	return n
}

// Unpublished returns the tagged versions that have no published URL.
func (r ProjectRecord) Unpublished() []ReconciledVersion {
	var out []ReconciledVersion
	for _, v := range r.Versions {
		if v.HasTag && v.PublishedURL == nil {
			out = append(out, v)
		}
	}
	return out
}

// Untagged returns the published versions that have no matching tag.
func (r ProjectRecord) Untagged() []ReconciledVersion {
	var out []ReconciledVersion
	for _, v := range r.Versions {
		if !v.HasTag && v.PublishedURL != nil {
			out = append(out, v)
		}
	}
	return out
}

// HasVersionGaps reports whether any version is tagged but unpublished, or published but untagged.
func (r ProjectRecord) HasVersionGaps() bool {
	for _, v := range r.Versions {
		if v.HasTag != (v.PublishedURL != nil) {
			return true
		}
	}
	return false
}
