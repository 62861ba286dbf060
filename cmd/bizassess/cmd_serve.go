package main

import (
	"context"
	"fmt"

	"github.com/paulexconde/bizassess/internal/app"
	"github.com/spf13/cobra"
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Serve(ctx)
			})
		},
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Migrate(ctx)
			})
		},
	}

	failOnFindings bool

	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Check the published-version invariants of every survey",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Integrity.Audit(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, report); err != nil {
					return err
				}
				if failOnFindings && report.Errors() > 0 {
					return fmt.Errorf("audit found %d errors", report.Errors())
				}
				return nil
			})
		},
	}
)

func init() {
	auditCmd.Flags().BoolVar(&failOnFindings, "fail", false, "exit non-zero when error findings are reported")
}
