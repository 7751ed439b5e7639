package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joescharf/igwatch/internal/models"
	"github.com/joescharf/igwatch/internal/output"
)

var (
	statusStale       bool
	statusUnpublished bool
)

var statusCmd = &cobra.Command{
	Use:   "status [project]",
	Short: "Show fleet publication-health dashboard",
	Long: `Refresh every tracked Implementation Guide and show a summary table.

Without arguments, shows one row per project. With a project name (or
owner/repo), shows its branches and reconciled versions in detail.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return statusProjectRun(cmd.Context(), args[0])
		}
		return statusOverviewRun(cmd.Context())
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusStale, "stale", false, "Show only projects with stale branches")
	statusCmd.Flags().BoolVar(&statusUnpublished, "unpublished", false, "Show only projects whose tags and published versions disagree")
	rootCmd.AddCommand(statusCmd)
}

func statusOverviewRun(ctx context.Context) error {
	fleet, err := runFleet(ctx)
	if err != nil {
		return err
	}

	if len(fleet.Projects) == 0 {
		ui.Info("No projects tracked. Add entries under 'igs' in your project list.")
		return nil
	}

	rows := fleet.Select(models.Filter{Stale: statusStale, Unpublished: statusUnpublished})
	renderFleetTable(rows)

	if n := fleet.Degraded(); n > 0 {
		ui.Warning("%d of %d projects could not be reached", n, len(fleet.Projects))
	}
	ui.VerboseLog("run %s at %s", fleet.RunID, fleet.GeneratedAt.Format(time.RFC3339))
	return nil
}

func renderFleetTable(rows []models.ProjectRecord) {
	table := ui.Table([]string{"Project", "Default", "Last Commit", "Branches", "Stale", "Tags", "Unpublished", "Untagged"})

	for _, p := range rows {
		if p.Degraded() {
			table.Append([]string{output.Cyan(p.Name), output.Red("unreachable"), "-", "-", "-", "-", "-", "-"})
			continue
		}

		activity := "n/a"
		if p.LastDefaultCommitAt != nil {
			activity = timeAgo(*p.LastDefaultCommitAt)
		}
		table.Append([]string{
			output.Cyan(p.Name),
			p.DefaultBranch,
			activity,
			fmt.Sprintf("%d", len(p.Branches)),
			output.StaleColor(p.StaleBranches()),
			fmt.Sprintf("%d", countTagged(p.Versions)),
			output.GapColor(len(p.Unpublished())),
			output.GapColor(len(p.Untagged())),
		})
	}

	table.Render()
}

func statusProjectRun(ctx context.Context, key string) error {
	fleet, err := runFleet(ctx)
	if err != nil {
		return err
	}

	p, ok := fleet.Find(key)
	if !ok {
		return fmt.Errorf("project not found: %s", key)
	}
	renderProjectDetail(p)
	return nil
}

func renderProjectDetail(p models.ProjectRecord) {
	fmt.Fprintf(ui.Out, "%s\n", output.Cyan(p.Name))
	fmt.Fprintf(ui.Out, "  Repo:       %s\n", p.Repo)

	if p.Degraded() {
		ui.Warning("repository metadata could not be fetched")
		return
	}

	fmt.Fprintf(ui.Out, "  URL:        %s\n", p.WebURL)
	fmt.Fprintf(ui.Out, "  Default:    %s\n", p.DefaultBranch)
	if p.LastDefaultCommitAt != nil {
		fmt.Fprintf(ui.Out, "  Last commit: %s (%s)\n", p.LastDefaultCommitAt.Format("2006-01-02"), timeAgo(*p.LastDefaultCommitAt))
	}
	fmt.Fprintf(ui.Out, "  Published:  %d versions\n", len(p.PublishedVersions))

	if len(p.Branches) > 0 {
		fmt.Fprintln(ui.Out)
		table := ui.Table([]string{"Branch", "Age", "Default", "Stale"})
		for _, b := range p.Branches {
			table.Append([]string{
				b.Name,
				output.AgeColor(b.DaysSinceCommit, models.StaleAfterDays),
				yesNo(b.IsDefault),
				yesNo(b.IsStale),
			})
		}
		table.Render()
	}

	if len(p.Versions) > 0 {
		fmt.Fprintln(ui.Out)
		table := ui.Table([]string{"Version", "Tag", "Published", "URL"})
		for _, v := range p.Versions {
			url := "-"
			if v.PublishedURL != nil {
				url = *v.PublishedURL
			}
			table.Append([]string{
				v.Version,
				output.Mark(v.HasTag),
				output.Mark(v.PublishedURL != nil),
				url,
			})
		}
		table.Render()
	}
}

func countTagged(vs []models.ReconciledVersion) int {
	n := 0
	for _, v := range vs {
		if v.HasTag {
			n++
		}
	}
	return n
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1d ago"
		}
		return fmt.Sprintf("%dd ago", days)
	}
}
