package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
)

// newReconcileCmd brings the index in line with the document store once and
// exits. It opens the same store and index as the server, so run it while
// the server is stopped; a running server exposes POST /admin/reconcile.
func newReconcileCmd(load func() (*config.Config, error)) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Re-index stored documents missing from the index and drop stale entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := newApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			report, err := a.svc.Reconcile(ctx)
			if err != nil {
				return err
			}
			if a.runner != nil {
				if err := a.runner.Wait(ctx); err != nil {
					return fmt.Errorf("waiting for index tasks: %w", err)
				}
			}
			slog.Info("reconcile applied", "reindexed", len(report.Reindexed), "removed", len(report.Removed))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "give up after this long")
	return cmd
}
