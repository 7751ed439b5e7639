package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func sampleRecord() ProjectRecord {
	committed := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	return ProjectRecord{
		Name:                "ANC",
		Repo:                "who/smart-anc",
		WebURL:              "https://github.com/who/smart-anc",
		DefaultBranch:       "main",
		LastDefaultCommitAt: &committed,
		Branches: []ClassifiedBranch{
			{BranchRef: BranchRef{Name: "main"}, IsDefault: true},
			{BranchRef: BranchRef{Name: "old"}, DaysSinceCommit: 120, IsStale: true},
		},
		Versions: []ReconciledVersion{
			{Version: "1.0.0", HasTag: true, PublishedURL: strPtr("u1")},
			{Version: "2.0.0", HasTag: true},
			{Version: "0.9.0", PublishedURL: strPtr("u0")},
		},
		PublishedVersions: []PublishedVersion{},
	}
}

func TestDegradedRecord(t *testing.T) {
	r := DegradedRecord(TrackedProject{Name: "Alpha", Repo: "o/alpha", Published: "https://x"})

	assert.True(t, r.Degraded())
	assert.Equal(t, "Alpha", r.Name)
	assert.Equal(t, "o/alpha", r.Repo)
	assert.NotNil(t, r.Branches)
	assert.NotNil(t, r.Versions)
	assert.NotNil(t, r.PublishedVersions)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Alpha","repo":"o/alpha","branches":[],"versions":[],"published_versions":[]}`, string(data))
}

func TestProjectRecordHelpers(t *testing.T) {
	r := sampleRecord()

	assert.False(t, r.Degraded())
	assert.Equal(t, 1, r.StaleBranches())
	require.Len(t, r.Unpublished(), 1)
	assert.Equal(t, "2.0.0", r.Unpublished()[0].Version)
	require.Len(t, r.Untagged(), 1)
	assert.Equal(t, "0.9.0", r.Untagged()[0].Version)
	assert.True(t, r.HasVersionGaps())

	r.Versions = r.Versions[:1]
	assert.False(t, r.HasVersionGaps())
}

func TestReconciledVersionJSON(t *testing.T) {
	data, err := json.Marshal(ReconciledVersion{Version: "1.0.0", HasTag: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.0.0","has_tag":true,"published_url":null}`, string(data))
}

func TestFleetResult(t *testing.T) {
	healthy := sampleRecord()
	quiet := sampleRecord()
	quiet.Name, quiet.Repo = "DAK", "who/smart-dak"
	quiet.Branches = quiet.Branches[:1]
	quiet.Versions = quiet.Versions[:1]
	degraded := DegradedRecord(TrackedProject{Name: "Alpha", Repo: "o/alpha"})

	f := FleetResult{Projects: []ProjectRecord{degraded, healthy, quiet}}

	assert.Equal(t, 1, f.Degraded())

	got, ok := f.Find("who/smart-dak")
	require.True(t, ok)
	assert.Equal(t, "DAK", got.Name)
	got, ok = f.Find("ANC")
	require.True(t, ok)
	assert.Equal(t, "who/smart-anc", got.Repo)
	_, ok = f.Find("WHO/Smart-ANC")
	assert.True(t, ok, "repo match ignores case")
	_, ok = f.Find("missing")
	assert.False(t, ok)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"Alpha", "ANC", "DAK"}},
		{"stale", Filter{Stale: true}, []string{"ANC"}},
		{"unpublished", Filter{Unpublished: true}, []string{"ANC"}},
		{"both", Filter{Stale: true, Unpublished: true}, []string{"ANC"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var names []string
			for _, p := range f.Select(tt.filter) {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}
