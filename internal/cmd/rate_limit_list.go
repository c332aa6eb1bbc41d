package cmd

import (
	"github.com/spf13/cobra"

	"github.com/padillasconcrete/siteapi/internal/output"
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored attempt logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		query := attemptQuery(cmd)
		if query.Key == "" && query.Prefix == "" {
			query.All = true
		}

		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		logs, err := db.ListAttemptLogs(cmd.Context(), query)
		if err != nil {
			return err
		}

		return writeListing(cmd, "rate-limit.list", func(f output.Formatter) (string, error) {
			return f.FormatAttemptLogs(logs)
		})
	},
}

func init() {
	addOutputFlags(rateLimitListCmd, "table|json|markdown")
	addAttemptQueryFlags(rateLimitListCmd, "List")
}
