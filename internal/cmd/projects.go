package cmd

import (
	"github.com/spf13/cobra"

	"github.com/padillasconcrete/siteapi/internal/output"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Review portfolio projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects with their photo counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		projects, err := db.ListProjects(cmd.Context())
		if err != nil {
			return err
		}

		return writeListing(cmd, "projects", func(f output.Formatter) (string, error) {
			return f.FormatProjects(projects)
		})
	},
}

func init() {
	addOutputFlags(projectsListCmd, "table|json|markdown")

	projectsCmd.AddCommand(projectsListCmd)
	rootCmd.AddCommand(projectsCmd)
}
