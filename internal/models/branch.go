package models

import "time"

// PagesBranch is the GitHub Pages publishing branch. It is never reported.
const PagesBranch = "gh-pages"

// StaleAfterDays is the freshness threshold for non-default branches.
const StaleAfterDays = 90

// BranchRef is a branch name and the commit time of its head.
type BranchRef struct {
	Name        string    `json:"name"`
	CommittedAt time.Time `json:"committed_at"`
}

// ClassifiedBranch is a BranchRef annotated with freshness.
type ClassifiedBranch struct {
	BranchRef
	DaysSinceCommit int  `json:"days_since_commit"`
	IsDefault       bool `json:"is_default"`
	IsStale         bool `json:"is_stale"`
}
