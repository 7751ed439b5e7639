package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/igwatch/internal/output"
	"github.com/joescharf/igwatch/internal/proxy"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List tracked projects without refreshing",
	Long:  "Print the configured project list and the /proxy path each published manifest resolves to.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return projectsRun(cmd)
	},
}

func init() {
	rootCmd.AddCommand(projectsCmd)
}

func projectsRun(cmd *cobra.Command) error {
	projects, err := loadProjects(cmd.Context())
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		ui.Info("Project list is empty.")
		return nil
	}

	table := ui.Table([]string{"Project", "Repo", "Manifest"})
	for _, p := range projects {
		manifest := "-"
		if p.Published != "" {
			path, ok := proxy.Resolve(p.Published)
			if ok {
				manifest = path
			} else {
				manifest = output.Yellow(path + " (unknown host)")
			}
		}
		table.Append([]string{output.Cyan(p.Name), p.Repo, manifest})
	}
	return table.Render()
}
