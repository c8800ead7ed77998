package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/dashboard-news/internal/config"
	"github.com/Sternrassler/dashboard-news/pkg/ledger"
	"github.com/Sternrassler/dashboard-news/pkg/logging"
	"github.com/spf13/cobra"
)

func newDashboardsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboards",
		Short: "List dashboards in [Dashboards] format",
		Long: `List every dashboard visible to the credential as "<id> = <title>" lines
that can be pasted into the [Dashboards] section of the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logging.NewLogger("cli")

			cfg, err := config.Load(opts.v)
			if err != nil {
				return err
			}

			rdb := connectRedis(ctx, cfg.Redis, logger)
			if rdb != nil {
				defer rdb.Close()
			}
			sumo, err := newClient(ctx, cfg, rdb)
			if err != nil {
				return err
			}
			defer sumo.Close()

			dashboards, err := sumo.ListDashboards(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range dashboards {
				fmt.Fprintf(out, "%s = %s\n", d.ID, d.Title)
			}
			return nil
		},
	}
}

func newLastRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "last-run",
		Short: "Show the outcome of the last run recorded in Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := logging.NewLogger("cli")

			cfg, err := config.Load(opts.v)
			if err != nil {
				return err
			}
			rdb := connectRedis(ctx, cfg.Redis, logger)
			if rdb == nil {
				return errors.New("last-run needs a reachable REDIS_ADDR")
			}
			defer rdb.Close()

			summary, records, err := ledger.NewRedisStore(rdb, logging.NewLogger("ledger")).LastRun(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s finished %s (%s): %d ok, %d failed\n",
				summary.RunID, summary.FinishedAt.Format("2006/01/02, 15:04:05"),
				summary.Duration().Round(time.Second), summary.Succeeded, summary.Failed)
			for _, rec := range records {
				if rec.Succeeded() {
					fmt.Fprintf(out, "OK     %s: %d page(s)\n", rec.DashboardID, len(rec.Images))
					continue
				}
				fmt.Fprintf(out, "FAILED %s [%s]: %s\n", rec.DashboardID, rec.Stage, rec.Reason)
			}
			return nil
		},
	}
}
