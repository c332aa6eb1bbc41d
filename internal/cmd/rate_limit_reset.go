package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/padillasconcrete/siteapi/internal/output"
)

var (
	rateLimitResetYes    bool
	rateLimitResetDryRun bool
)

// resetResult describes one reset run. Keys is only filled for dry runs.
type resetResult struct {
	Matched int      `json:"matched"`
	Deleted int64    `json:"deleted"`
	DryRun  bool     `json:"dry_run"`
	Keys    []string `json:"keys,omitempty"`
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear stored attempt logs",
	Long: `Delete contact form attempt logs so a locked-out visitor (or a test
client) can submit again. Select logs with --key, --prefix or --all.

Use --dry-run to see which keys would be removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := readOutputTarget(cmd, "rate-limit.reset")
		if err != nil {
			return err
		}
		if target.format != output.FormatJSON && target.format != output.FormatTable {
			return fmt.Errorf("rate-limit reset supports table or json output, not %s", target.format)
		}

		query := attemptQuery(cmd)
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !rateLimitResetYes && !rateLimitResetDryRun {
			return errors.New("refusing to clear every attempt log without --yes (or preview with --dry-run)")
		}

		ctx := cmd.Context()
		db, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		var result resetResult
		if rateLimitResetDryRun {
			logs, err := db.ListAttemptLogs(ctx, query)
			if err != nil {
				return err
			}
			result.DryRun = true
			result.Matched = len(logs)
			for _, l := range logs {
				result.Keys = append(result.Keys, l.Key)
			}
		} else {
			if result.Matched, err = db.CountAttemptLogs(ctx, query); err != nil {
				return err
			}
			if result.Deleted, err = db.ResetAttemptLogs(ctx, query); err != nil {
				return err
			}
		}

		var buf strings.Builder
		if err := writeResetResult(target.format, &buf, result); err != nil {
			return err
		}
		return target.write(buf.String())
	},
}

func writeResetResult(format output.Format, w io.Writer, result resetResult) error {
	if format == output.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if !result.DryRun {
		_, err := fmt.Fprintf(w, "Deleted %d/%d attempt log(s)\n", result.Deleted, result.Matched)
		return err
	}

	if _, err := fmt.Fprintf(w, "Would delete %d attempt log(s)\n", result.Matched); err != nil {
		return err
	}
	for _, key := range result.Keys {
		if _, err := fmt.Fprintf(w, "  %s\n", key); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	addOutputFlags(rateLimitResetCmd, "table|json")
	addAttemptQueryFlags(rateLimitResetCmd, "Reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm clearing every attempt log")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "List matching keys without deleting")
}
