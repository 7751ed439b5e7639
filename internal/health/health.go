package health

import (
	"time"

	"github.com/joescharf/igwatch/internal/models"
)

const day = 24 * time.Hour

// ClassifyBranches annotates each branch with its age in whole days and
// whether it is the default or a stale branch. The gh-pages branch is dropped.
func ClassifyBranches(branches []models.BranchRef, defaultBranch string, now time.Time) []models.ClassifiedBranch {
	out := make([]models.ClassifiedBranch, 0, len(branches))
	for _, b := range branches {
		if b.Name == models.PagesBranch {
			continue
		}
		days := daysSince(b.CommittedAt, now)
		isDefault := b.Name == defaultBranch
		out = append(out, models.ClassifiedBranch{
			BranchRef:       b,
			DaysSinceCommit: days,
			IsDefault:       isDefault,
			IsStale:         !isDefault && days > models.StaleAfterDays,
		})
	}
	return out
}

// daysSince returns floor((now - t) / 24h), clamped at zero for commits in the future.
func daysSince(t, now time.Time) int {
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return int(d / day)
}
