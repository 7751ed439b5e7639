package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/igwatch/internal/llm"
	"github.com/joescharf/igwatch/internal/models"
)

var (
	reportFormat    string
	exportType      string
	reportSummarize bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export fleet data as JSON, CSV, or Markdown",
	Long:  "Refresh the fleet and export projects, branches, or versions in various formats.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fleet, err := runFleet(cmd.Context())
		if err != nil {
			return err
		}
		return exportFleet(ui.Out, fleet, exportType, reportFormat)
	},
}

func init() {
	exportCmd.Flags().StringVar(&reportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportType, "type", "projects", "Data type: projects, branches, versions")
	rootCmd.AddCommand(exportCmd)
}

// exportFleet writes one view of fleet to w.
func exportFleet(w io.Writer, fleet models.FleetResult, kind, format string) error {
	var (
		title   string
		headers []string
		rows    [][]string
		raw     any
	)

	switch kind {
	case "projects":
		title, headers, rows = "Projects", projectHeaders, projectRows(fleet)
		raw = fleet
	case "branches":
		title, headers, rows = "Branches", branchHeaders, branchRows(fleet)
	case "versions":
		title, headers, rows = "Versions", versionHeaders, versionRows(fleet)
	default:
		return fmt.Errorf("unknown export type: %s (use: projects, branches, versions)", kind)
	}

	switch format {
	case "json":
		if raw == nil {
			raw = rowsToObjects(headers, rows)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(raw)
	case "csv":
		cw := csv.NewWriter(w)
		_ = cw.Write(headers)
		for _, r := range rows {
			_ = cw.Write(r)
		}
		cw.Flush()
		return cw.Error()
	case "markdown":
		fmt.Fprintf(w, "# %s\n\n", title)
		writeMarkdownTable(w, headers, rows)
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

var (
	projectHeaders = []string{"name", "repo", "default_branch", "last_commit", "branches", "stale", "tags", "unpublished", "untagged", "reachable"}
	branchHeaders  = []string{"project", "branch", "committed", "days", "default", "stale"}
	versionHeaders = []string{"project", "version", "tagged", "published_url"}
)

func projectRows(fleet models.FleetResult) [][]string {
	rows := make([][]string, 0, len(fleet.Projects))
	for _, p := range fleet.Projects {
		last := ""
		if p.LastDefaultCommitAt != nil {
			last = p.LastDefaultCommitAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{
			p.Name,
			p.Repo,
			p.DefaultBranch,
			last,
			strconv.Itoa(len(p.Branches)),
			strconv.Itoa(p.StaleBranches()),
			strconv.Itoa(countTagged(p.Versions)),
			strconv.Itoa(len(p.Unpublished())),
			strconv.Itoa(len(p.Untagged())),
			strconv.FormatBool(!p.Degraded()),
		})
	}
	return rows
}

func branchRows(fleet models.FleetResult) [][]string {
	var rows [][]string
	for _, p := range fleet.Projects {
		for _, b := range p.Branches {
			rows = append(rows, []string{
				p.Name,
				b.Name,
				b.CommittedAt.UTC().Format(time.RFC3339),
				strconv.Itoa(b.DaysSinceCommit),
				strconv.FormatBool(b.IsDefault),
				strconv.FormatBool(b.IsStale),
			})
		}
	}
	return rows
}

func versionRows(fleet models.FleetResult) [][]string {
	var rows [][]string
	for _, p := range fleet.Projects {
		for _, v := range p.Versions {
			url := ""
			if v.PublishedURL != nil {
				url = *v.PublishedURL
			}
			rows = append(rows, []string{p.Name, v.Version, strconv.FormatBool(v.HasTag), url})
		}
	}
	return rows
}

func rowsToObjects(headers []string, rows [][]string) []map[string]string {
	out := make([]map[string]string, len(rows))
	for i, r := range rows {
		m := make(map[string]string, len(headers))
		for j, h := range headers {
			m[h] = r[j]
		}
		out[i] = m
	}
	return out
}

func writeMarkdownTable(w io.Writer, headers []string, rows [][]string) {
	fmt.Fprintf(w, "| %s |\n", strings.Join(headers, " | "))
	seps := make([]string, len(headers))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(seps, " | "))
	for _, r := range rows {
		fmt.Fprintf(w, "| %s |\n", strings.Join(r, " | "))
	}
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a markdown publication-health report",
	Long: `Refresh the fleet and print a markdown report of unreachable projects,
stale branches, and tag/publication gaps.

With --summarize, an overview and suggested actions written by Claude are
prepended. Requires anthropic.api_key (or IGW_ANTHROPIC_API_KEY).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fleet, err := runFleet(cmd.Context())
		if err != nil {
			return err
		}

		var summary *llm.Summary
		if reportSummarize {
			apiKey := viper.GetString("anthropic.api_key")
			if apiKey == "" {
				return fmt.Errorf("anthropic.api_key is not set (set IGW_ANTHROPIC_API_KEY or add it to the config file)")
			}
			client := llm.NewClient(apiKey, viper.GetString("anthropic.model"))
			ui.VerboseLog("Summarizing %d projects with %s", len(fleet.Projects), viper.GetString("anthropic.model"))
			summary, err = client.Summarize(cmd.Context(), fleet)
			if err != nil {
				return fmt.Errorf("summarize fleet: %w", err)
			}
		}

		writeReport(ui.Out, fleet, summary)
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportSummarize, "summarize", false, "Prepend an LLM-written overview and suggested actions")
	rootCmd.AddCommand(reportCmd)
}

func writeReport(w io.Writer, fleet models.FleetResult, summary *llm.Summary) {
	fmt.Fprintln(w, "# IG Fleet Publication Health")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Generated %s (run %s). %d projects, %d unreachable.\n\n",
		fleet.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), fleet.RunID, len(fleet.Projects), fleet.Degraded())

	if summary != nil {
		fmt.Fprintln(w, "## Summary")
		fmt.Fprintln(w)
		fmt.Fprintln(w, summary.Overview)
		fmt.Fprintln(w)
		if len(summary.Actions) > 0 {
			fmt.Fprintln(w, "### Suggested actions")
			fmt.Fprintln(w)
			for _, a := range summary.Actions {
				fmt.Fprintf(w, "- **%s**: %s (%s)\n", a.Project, a.Action, a.Reason)
			}
			fmt.Fprintln(w)
		}
	}

	for _, p := range fleet.Projects {
		fmt.Fprintf(w, "## %s\n", p.Name)
		fmt.Fprintf(w, "- Repo: %s\n", p.Repo)
		if p.Degraded() {
			fmt.Fprintln(w, "- Status: unreachable")
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintf(w, "- Default branch: %s\n", p.DefaultBranch)

		var stale []string
		for _, b := range p.Branches {
			if b.IsStale {
				stale = append(stale, fmt.Sprintf("%s (%dd)", b.Name, b.DaysSinceCommit))
			}
		}
		if len(stale) > 0 {
			fmt.Fprintf(w, "- Stale branches: %s\n", strings.Join(stale, ", "))
		}
		if v := joinVersions(p.Unpublished()); v != "" {
			fmt.Fprintf(w, "- Tagged, not published: %s\n", v)
		}
		if v := joinVersions(p.Untagged()); v != "" {
			fmt.Fprintf(w, "- Published, no tag: %s\n", v)
		}
		if len(stale) == 0 && !p.HasVersionGaps() {
			fmt.Fprintln(w, "- All clear")
		}
		fmt.Fprintln(w)
	}
}

func joinVersions(vs []models.ReconciledVersion) string {
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = v.Version
	}
	return strings.Join(names, ", ")
}
