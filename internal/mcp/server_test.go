package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/igwatch/internal/models"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockFleet implements FleetSource for testing.
type mockFleet struct {
	result models.FleetResult
	err    error
	calls  int
}

func (m *mockFleet) Fleet(_ context.Context) (models.FleetResult, error) {
	m.calls++
	if m.err != nil {
		return models.FleetResult{}, m.err
	}
	return m.result, nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func strPtr(s string) *string { return &s }

// newTestServer creates a Server backed by a seeded mock fleet.
func newTestServer(t *testing.T) (*Server, *mockFleet) {
	t.Helper()

	committed := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	mf := &mockFleet{result: models.FleetResult{
		RunID:       "01J0TESTRUN",
		GeneratedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Projects: []models.ProjectRecord{
			models.DegradedRecord(models.TrackedProject{Name: "Alpha", Repo: "o/alpha"}),
			{
				Name:                "ANC",
				Repo:                "who/smart-anc",
				WebURL:              "https://github.com/who/smart-anc",
				DefaultBranch:       "main",
				LastDefaultCommitAt: &committed,
				Branches: []models.ClassifiedBranch{
					{BranchRef: models.BranchRef{Name: "main", CommittedAt: committed}, DaysSinceCommit: 12, IsDefault: true},
					{BranchRef: models.BranchRef{Name: "old-draft"}, DaysSinceCommit: 400, IsStale: true},
				},
				Versions: []models.ReconciledVersion{
					{Version: "1.0.0", HasTag: true, PublishedURL: strPtr("https://smart.who.int/anc/1.0.0")},
					{Version: "2.0.0", HasTag: true},
					{Version: "0.9.0", PublishedURL: strPtr("https://smart.who.int/anc/0.9.0")},
				},
				PublishedVersions: []models.PublishedVersion{},
			},
			{
				Name:                "DAK",
				Repo:                "who/smart-dak",
				WebURL:              "https://github.com/who/smart-dak",
				DefaultBranch:       "master",
				LastDefaultCommitAt: &committed,
				Branches: []models.ClassifiedBranch{
					{BranchRef: models.BranchRef{Name: "master", CommittedAt: committed}, DaysSinceCommit: 12, IsDefault: true},
				},
				Versions: []models.ReconciledVersion{
					{Version: "1.0.0", HasTag: true, PublishedURL: strPtr("https://smart.who.int/dak/1.0.0")},
				},
				PublishedVersions: []models.PublishedVersion{},
			},
		},
	}}

	srv := NewServer(mf, "test")
	require.NotNil(t, srv)
	return srv, mf
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

// ---------------------------------------------------------------------------
// Tests: MCPServer registration
// ---------------------------------------------------------------------------

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t)
	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv, "MCPServer() should return non-nil")
}

// ---------------------------------------------------------------------------
// Tests: igw_fleet_status
// ---------------------------------------------------------------------------

type fleetStatusOut struct {
	RunID    string           `json:"run_id"`
	Total    int              `json:"total"`
	Degraded int              `json:"degraded"`
	Projects []projectSummary `json:"projects"`
}

func TestHandleFleetStatus(t *testing.T) {
	srv, mf := newTestServer(t)

	result, err := srv.handleFleetStatus(context.Background(), callToolReq("igw_fleet_status", nil))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
	assert.Equal(t, 1, mf.calls)

	var out fleetStatusOut
	resultJSON(t, result, &out)
	assert.Equal(t, "01J0TESTRUN", out.RunID)
	assert.Equal(t, 3, out.Total)
	assert.Equal(t, 1, out.Degraded)
	require.Len(t, out.Projects, 3)

	alpha := out.Projects[0]
	assert.Equal(t, "Alpha", alpha.Name)
	assert.False(t, alpha.Reachable)
	assert.Nil(t, alpha.LastCommitAt)

	anc := out.Projects[1]
	assert.True(t, anc.Reachable)
	assert.Equal(t, "main", anc.DefaultBranch)
	require.NotNil(t, anc.LastCommitAt)
	assert.Equal(t, "2025-05-20T10:00:00Z", *anc.LastCommitAt)
	assert.Equal(t, 2, anc.Branches)
	assert.Equal(t, 1, anc.StaleBranches)
	assert.Equal(t, 3, anc.Versions)
	assert.Equal(t, 1, anc.Unpublished)
	assert.Equal(t, 1, anc.PublishedOnly)
}

func TestHandleFleetStatus_Filters(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{"stale", map[string]any{"stale": true}, []string{"ANC"}},
		{"unpublished", map[string]any{"unpublished": true}, []string{"ANC"}},
		{"no filter", map[string]any{"stale": false}, []string{"Alpha", "ANC", "DAK"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t)
			result, err := srv.handleFleetStatus(context.Background(), callToolReq("igw_fleet_status", tt.args))
			require.NoError(t, err)
			assert.False(t, result.IsError)

			var out fleetStatusOut
			resultJSON(t, result, &out)
			var names []string
			for _, p := range out.Projects {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, 3, out.Total, "total counts the whole fleet")
		})
	}
}

func TestHandleFleetStatus_SourceError(t *testing.T) {
	srv, mf := newTestServer(t)
	mf.err = fmt.Errorf("project list unavailable")

	result, err := srv.handleFleetStatus(context.Background(), callToolReq("igw_fleet_status", nil))
	require.NoError(t, err, "handler should not return Go error; should wrap in result")
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "project list unavailable")
}

// ---------------------------------------------------------------------------
// Tests: igw_project_status
// ---------------------------------------------------------------------------

func TestHandleProjectStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, key := range []string{"ANC", "who/smart-anc"} {
		t.Run(key, func(t *testing.T) {
			result, err := srv.handleProjectStatus(context.Background(), callToolReq("igw_project_status", map[string]any{"project": key}))
			require.NoError(t, err)
			assert.False(t, result.IsError)

			var rec models.ProjectRecord
			resultJSON(t, result, &rec)
			assert.Equal(t, "ANC", rec.Name)
			assert.Equal(t, "who/smart-anc", rec.Repo)
			assert.Len(t, rec.Branches, 2)
			require.Len(t, rec.Versions, 3)
			assert.Nil(t, rec.Versions[1].PublishedURL)
		})
	}
}

func TestHandleProjectStatus_Degraded(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleProjectStatus(context.Background(), callToolReq("igw_project_status", map[string]any{"project": "Alpha"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"name":"Alpha","repo":"o/alpha","branches":[],"versions":[],"published_versions":[]}`, resultText(t, result))
}

func TestHandleProjectStatus_Errors(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleProjectStatus(ctx, callToolReq("igw_project_status", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "missing required parameter")

	result, err = srv.handleProjectStatus(ctx, callToolReq("igw_project_status", map[string]any{"project": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "project not found: nope")
}

// ---------------------------------------------------------------------------
// Tests: igw_version_gaps
// ---------------------------------------------------------------------------

func TestHandleVersionGaps(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleVersionGaps(context.Background(), callToolReq("igw_version_gaps", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var gaps []versionGap
	resultJSON(t, result, &gaps)
	require.Len(t, gaps, 1)
	assert.Equal(t, "ANC", gaps[0].Name)
	assert.Equal(t, []string{"2.0.0"}, gaps[0].Unpublished)
	assert.Equal(t, []string{"0.9.0"}, gaps[0].PublishedOnly)
}

func TestHandleVersionGaps_SingleProject(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	result, err := srv.handleVersionGaps(ctx, callToolReq("igw_version_gaps", map[string]any{"project": "DAK"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "[]", resultText(t, result))

	result, err = srv.handleVersionGaps(ctx, callToolReq("igw_version_gaps", map[string]any{"project": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
