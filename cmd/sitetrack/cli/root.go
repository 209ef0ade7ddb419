// Package cli implements the sitetrack command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/sitetrack/internal/app"
)

// NewRootCommand builds the root sitetrack command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "sitetrack",
		Short:         "Procurement order service for construction sites",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newJobsCmd())
	root.AddCommand(newRBACCmd())
	return root
}

// Execute runs the CLI with ctx as the base context of every command.
func Execute(ctx context.Context) error {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func loadRuntime() (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
