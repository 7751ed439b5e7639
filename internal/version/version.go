// Package version normalizes version identifiers and reconciles tag versions
// against a project's published manifest.
package version

import (
	"strings"

	"github.com/joescharf/igwatch/internal/models"
)

// Normalize trims whitespace and strips a single leading "v".
func Normalize(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "v")
}

// IsSentinel reports whether raw is one of the "current" placeholders that
// never identify a real version.
func IsSentinel(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "current", "vcurrent":
		return true
	}
	return false
}

// FromTags converts raw tag names into version identifiers, dropping empty
// names and sentinels. Order is preserved.
func FromTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || IsSentinel(t) {
			continue
		}
		if v := Normalize(t); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Reconcile merges tag versions and published entries into one list with
// exactly one entry per distinct identifier. Tag-discovered identifiers come
// first, followed by published-only identifiers, each in first-seen order.
func Reconcile(tags []string, published []models.PublishedVersion) []models.ReconciledVersion {
	tagged := make(map[string]bool, len(tags))
	urls := make(map[string]string, len(published))
	var order []string
	seen := make(map[string]bool, len(tags)+len(published))

	add := func(v string) {
		if v == "" || IsSentinel(v) || seen[v] {
			return
		}
		seen[v] = true
		order = append(order, v)
	}

	for _, t := range tags {
		tagged[t] = true
		add(t)
	}
	for _, p := range published {
		if _, ok := urls[p.Version]; !ok {
			urls[p.Version] = p.URL
		}
		add(p.Version)
	}

	out := make([]models.ReconciledVersion, 0, len(order))
	for _, v := range order {
		rv := models.ReconciledVersion{Version: v, HasTag: tagged[v]}
		if u, ok := urls[v]; ok {
			rv.PublishedURL = &u
		}
		out = append(out, rv)
	}
	return out
}
