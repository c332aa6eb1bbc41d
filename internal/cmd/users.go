package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/padillasconcrete/siteapi/internal/auth"
	"github.com/padillasconcrete/siteapi/internal/core"
	"github.com/padillasconcrete/siteapi/internal/output"
)

var (
	userUsername   string
	userPassword   string
	userRole       string
	userMustChange bool
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage admin API accounts",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	Long: `Create an admin API account directly in the database.

The first account on a fresh install is always created as an admin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		username := strings.TrimSpace(userUsername)
		if len(username) < 3 {
			return errors.New("--username must be at least 3 characters")
		}
		role := core.Role(strings.ToLower(strings.TrimSpace(userRole)))
		if !role.Valid() {
			return fmt.Errorf("--role must be one of: %s %s", core.RoleUser, core.RoleAdmin)
		}

		db, cfg, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		existing, err := db.CountUsers(cmd.Context())
		if err != nil {
			return err
		}
		if existing == 0 {
			role = core.RoleAdmin
		}

		hash, err := auth.HashPassword(userPassword, cfg.Auth.BcryptCost)
		if err != nil {
			return err
		}

		user := &core.User{
			ID:                 uuid.NewString(),
			Username:           username,
			PasswordHash:       hash,
			Role:               role,
			MustChangePassword: userMustChange,
		}
		if err := db.CreateUser(cmd.Context(), user); err != nil {
			return fmt.Errorf("create user %q: %w", username, err)
		}

		_, err = fmt.Fprintf(os.Stdout, "Created %s %s (%s)\n", user.Role, user.Username, user.ID)
		return err
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		users, err := db.ListUsers(cmd.Context())
		if err != nil {
			return err
		}

		return writeListing(cmd, "users", func(f output.Formatter) (string, error) {
			return f.FormatUsers(users)
		})
	},
}

func init() {
	usersCreateCmd.Flags().StringVar(&userUsername, "username", "", "Login name (case-insensitive, unique)")
	usersCreateCmd.Flags().StringVar(&userPassword, "password", "", "Initial password (at least 6 characters)")
	usersCreateCmd.Flags().StringVar(&userRole, "role", string(core.RoleAdmin), "Role: user|admin")
	usersCreateCmd.Flags().BoolVar(&userMustChange, "must-change-password", true, "Require a password change on first login")
	_ = usersCreateCmd.MarkFlagRequired("username")
	_ = usersCreateCmd.MarkFlagRequired("password")

	addOutputFlags(usersListCmd, "table|json|markdown")

	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersListCmd)
	rootCmd.AddCommand(usersCmd)
}
