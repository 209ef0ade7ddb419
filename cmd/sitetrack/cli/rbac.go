package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/sitetrack/internal/platform/db"
	"github.com/odyssey-erp/sitetrack/internal/rbac"
)

func newRBACCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rbac",
		Short: "Manage role grants stored in Postgres",
	}

	withStore := func(run func(cmd *cobra.Command, store *rbac.Store, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime()
			if err != nil {
				return err
			}
			pool, err := db.New(cmd.Context(), cfg.PGDSN, db.Options{MaxConns: 2, ApplicationName: "sitetrack-cli"})
			if err != nil {
				return err
			}
			defer pool.Close()
			return run(cmd, rbac.NewStore(pool), args)
		}
	}

	listCmd := &cobra.Command{
		Use:   "permissions",
		Short: "List known permissions",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, store *rbac.Store, _ []string) error {
			perms, err := store.ListPermissions(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, p := range perms {
				fmt.Fprintf(w, "%s\t%s\n", p.Name, p.Description)
			}
			return w.Flush()
		}),
	}

	grantCmd := &cobra.Command{
		Use:   "grant <role> <permission>...",
		Short: "Grant permissions to a role",
		Args:  cobra.MinimumNArgs(2),
		RunE: withStore(func(cmd *cobra.Command, store *rbac.Store, args []string) error {
			if err := store.GrantRole(cmd.Context(), args[0], args[1:]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %d permission(s) to %s\n", len(args)-1, args[0])
			return nil
		}),
	}

	cmd.AddCommand(listCmd, grantCmd)
	return cmd
}
