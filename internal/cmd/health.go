package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/padillasconcrete/siteapi/internal/errors"
	"github.com/padillasconcrete/siteapi/internal/i18n"
	"github.com/padillasconcrete/siteapi/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long: `Verify the binary can start: version info, logger, configuration and
the database. Exits non-zero on the first failed check.`,
	Run: func(cmd *cobra.Command, args []string) {
		if observability.CLILogger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		logger := observability.CLILogger
		logger.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		logger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		logger.Info("✅ Version information available")

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration invalid", errwrap.WrapConfigInvalid(cmd.Context(), err, "configuration invalid"))
			return
		}
		logger.Info("✅ Configuration valid")

		if i18n.Translate(cfg.Contact.DefaultLanguage, "contact.form.success") == "contact.form.success" {
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Message catalog missing", errwrap.NewConfigInvalidError("message catalog missing"))
			return
		}
		logger.Info("✅ Message catalog loaded", zap.String("language", cfg.Contact.DefaultLanguage))

		db, err := openStoreWith(cmd.Context(), cfg)
		if err != nil {
			ExitWithCode(logger, foundry.ExitFileNotFound, "Database unavailable", errwrap.WrapDatabaseError(cmd.Context(), err, "database unavailable"))
			return
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup
		if err := db.CheckHealth(cmd.Context()); err != nil {
			ExitWithCode(logger, foundry.ExitFileNotFound, "Database unhealthy", errwrap.WrapDatabaseError(cmd.Context(), err, "database unhealthy"))
			return
		}
		logger.Info("✅ Database reachable")

		logger.Info("")
		logger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
