package cmd

import (
	"strings"

	"github.com/padillasconcrete/siteapi/internal/core/store"
	"github.com/spf13/cobra"
)

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Manage persisted contact attempt logs",
	Long: `Inspect and clear the sliding-window attempt logs kept by the contact
rate limiter. Keys have the form <storage_key>:<client ip>.

Only the database attempt store is listed; Redis keys expire on their own.`,
}

// attemptQuery builds a store query from the shared --all/--key/--prefix
// flags.
func attemptQuery(cmd *cobra.Command) store.AttemptQuery {
	all, _ := cmd.Flags().GetBool("all")
	key, _ := cmd.Flags().GetString("key")
	prefix, _ := cmd.Flags().GetString("prefix")
	return store.AttemptQuery{
		All:    all,
		Key:    strings.TrimSpace(key),
		Prefix: strings.TrimSpace(prefix),
	}
}

func addAttemptQueryFlags(cmd *cobra.Command, verb string) {
	cmd.Flags().Bool("all", false, verb+" all attempt logs")
	cmd.Flags().String("key", "", verb+" a single attempt log (exact key)")
	cmd.Flags().String("prefix", "", verb+" attempt logs with matching key prefix")
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rateLimitCmd.AddCommand(rateLimitResetCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
