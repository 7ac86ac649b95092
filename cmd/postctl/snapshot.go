package main

import (
	"fmt"
	"time"

	"github.com/DukeRupert/postpilot/internal/storage"
	"github.com/DukeRupert/postpilot/internal/worker"
	"github.com/spf13/cobra"
)

func newSnapshotCmd(app func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Monthly usage snapshots",
	}

	var (
		month     string
		overwrite bool
	)
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Queue a usage export for a month",
		Long:  `Queue an export_usage job. The server's worker writes usage/YYYY-MM.csv to object storage.`,
		Args:  cobra.NoArgs,
		Example: `  postctl snapshot export --month 2026-09
  postctl snapshot export --month 2026-09 --overwrite`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			m, err := snapshotMonth(a, month)
			if err != nil {
				return err
			}
			job, err := worker.EnqueueExportUsage(cmd.Context(), a.queue, m, overwrite, worker.WithPriority(worker.PriorityHigh))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Queued job %s for %s\n", job.ID, storage.UsageSnapshotKey(m))
			return nil
		},
	}
	exportCmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (defaults to last month)")
	exportCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing snapshot")

	var (
		urlMonth string
		expires  time.Duration
	)
	urlCmd := &cobra.Command{
		Use:   "url",
		Short: "Print a download link for a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			m, err := snapshotMonth(a, urlMonth)
			if err != nil {
				return err
			}
			key := storage.UsageSnapshotKey(m)
			exists, err := a.storage.Exists(cmd.Context(), key)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("no snapshot at %s", key)
			}
			link, err := a.storage.URL(cmd.Context(), key, expires)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, link)
			return nil
		},
	}
	urlCmd.Flags().StringVar(&urlMonth, "month", "", "month as YYYY-MM (defaults to last month)")
	urlCmd.Flags().DurationVar(&expires, "expires", 15*time.Minute, "lifetime of presigned links")

	cmd.AddCommand(exportCmd, urlCmd)
	return cmd
}

func snapshotMonth(a *app, month string) (time.Time, error) {
	if month == "" {
		return worker.PreviousCycle(a.now()), nil
	}
	return storage.ParseSnapshotMonth(month)
}
