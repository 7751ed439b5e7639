package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/igwatch/internal/models"
)

// FleetSource produces a fresh fleet result on demand.
type FleetSource interface {
	Fleet(ctx context.Context) (models.FleetResult, error)
}

// Server exposes fleet publication health as MCP tools.
type Server struct {
	fleet   FleetSource
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(fleet FleetSource, version string) *Server {
	return &Server{fleet: fleet, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("igwatch", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.fleetStatusTool())
	srv.AddTool(s.projectStatusTool())
	srv.AddTool(s.versionGapsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// projectSummary is the compact per-project row returned by igw_fleet_status.
type projectSummary struct {
	Name          string  `json:"name"`
	Repo          string  `json:"repo"`
	Reachable     bool    `json:"reachable"`
	DefaultBranch string  `json:"default_branch,omitempty"`
	LastCommitAt  *string `json:"last_commit_at,omitempty"`
	Branches      int     `json:"branches"`
	StaleBranches int     `json:"stale_branches"`
	Versions      int     `json:"versions"`
	Unpublished   int     `json:"unpublished"`
	PublishedOnly int     `json:"published_only"`
}

func summarize(p models.ProjectRecord) projectSummary {
	out := projectSummary{
		Name:          p.Name,
		Repo:          p.Repo,
		Reachable:     !p.Degraded(),
		DefaultBranch: p.DefaultBranch,
		Branches:      len(p.Branches),
		StaleBranches: p.StaleBranches(),
		Versions:      len(p.Versions),
		Unpublished:   len(p.Unpublished()),
		PublishedOnly: len(p.Untagged()),
	}
	if p.LastDefaultCommitAt != nil {
		ts := p.LastDefaultCommitAt.Format(time.RFC3339)
		out.LastCommitAt = &ts
	}
	return out
}

// igw_fleet_status
func (s *Server) fleetStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("igw_fleet_status",
		mcp.WithDescription("Refresh every tracked Implementation Guide and return one summary row per project: reachability, default branch, last commit, branch and stale-branch counts, and counts of tagged-but-unpublished and published-but-untagged versions."),
		mcp.WithBoolean("stale", mcp.Description("Only include projects with stale branches")),
		mcp.WithBoolean("unpublished", mcp.Description("Only include projects whose tags and published versions disagree")),
	)
	return tool, s.handleFleetStatus
}

func (s *Server) handleFleetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fleet, err := s.fleet.Fleet(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to refresh fleet: %v", err)), nil
	}

	filter := models.Filter{
		Stale:       request.GetBool("stale", false),
		Unpublished: request.GetBool("unpublished", false),
	}
	selected := fleet.Select(filter)

	rows := make([]projectSummary, len(selected))
	for i, p := range selected {
		rows[i] = summarize(p)
	}

	result := map[string]any{
		"run_id":       fleet.RunID,
		"generated_at": fleet.GeneratedAt,
		"total":        len(fleet.Projects),
		"degraded":     fleet.Degraded(),
		"projects":     rows,
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal fleet: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// igw_project_status
func (s *Server) projectStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("igw_project_status",
		mcp.WithDescription("Get the full publication-health record for one project: classified branches, reconciled versions, and the raw published manifest. Resolves the project by name or owner/repo."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name or owner/repo")),
	)
	return tool, s.handleProjectStatus
}

func (s *Server) handleProjectStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectName, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	fleet, err := s.fleet.Fleet(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to refresh fleet: %v", err)), nil
	}

	p, ok := fleet.Find(projectName)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("project not found: %s", projectName)), nil
	}

	data, err := json.Marshal(p)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal project: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// versionGap lists the mismatches between tags and publications for one project.
type versionGap struct {
	Name          string   `json:"name"`
	Repo          string   `json:"repo"`
	Unpublished   []string `json:"unpublished"`
	PublishedOnly []string `json:"published_only"`
}

// igw_version_gaps
func (s *Server) versionGapsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("igw_version_gaps",
		mcp.WithDescription("List versions that are tagged but not published, or published without a matching tag. Only projects with at least one gap are returned."),
		mcp.WithString("project", mcp.Description("Restrict to one project (name or owner/repo)")),
	)
	return tool, s.handleVersionGaps
}

func (s *Server) handleVersionGaps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fleet, err := s.fleet.Fleet(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to refresh fleet: %v", err)), nil
	}

	projects := fleet.Projects
	if name := request.GetString("project", ""); name != "" {
		p, ok := fleet.Find(name)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("project not found: %s", name)), nil
		}
		projects = []models.ProjectRecord{p}
	}

	gaps := []versionGap{}
	for _, p := range projects {
		if !p.HasVersionGaps() {
			continue
		}
		gaps = append(gaps, versionGap{
			Name:          p.Name,
			Repo:          p.Repo,
			Unpublished:   versionNames(p.Unpublished()),
			PublishedOnly: versionNames(p.Untagged()),
		})
	}

	data, err := json.Marshal(gaps)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal gaps: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func versionNames(vs []models.ReconciledVersion) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Version
	}
	return out
}
