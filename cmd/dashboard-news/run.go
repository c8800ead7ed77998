package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/dashboard-news/internal/config"
	"github.com/Sternrassler/dashboard-news/pkg/batch"
	"github.com/Sternrassler/dashboard-news/pkg/cache"
	"github.com/Sternrassler/dashboard-news/pkg/client"
	"github.com/Sternrassler/dashboard-news/pkg/ledger"
	"github.com/Sternrassler/dashboard-news/pkg/logging"
	"github.com/Sternrassler/dashboard-news/pkg/metrics"
	"github.com/Sternrassler/dashboard-news/pkg/publish"
	"github.com/Sternrassler/dashboard-news/pkg/raster"
	"github.com/Sternrassler/dashboard-news/pkg/report"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// redisPingTimeout bounds the connection check at startup.
const redisPingTimeout = 2 * time.Second

// errPartialFailure is returned with --fail-on-error when a dashboard failed.
var errPartialFailure = errors.New("one or more dashboards failed")

func newRunCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Export the configured dashboards and assemble the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}
	addRunFlags(cmd, opts)
	return cmd
}

func runExport(cmd *cobra.Command, opts *options) error {
	ctx := cmd.Context()
	logger := logging.NewLogger("cli")

	cfg, err := config.Load(opts.v)
	if err != nil {
		return err
	}
	if err := cfg.RequireDashboards(); err != nil {
		return err
	}

	if opts.metricsAddr != "" {
		srv, err := metrics.Listen(opts.metricsAddr, logger)
		if err != nil {
			return err
		}
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := srv.Serve(metricsCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
		defer func() {
			stopMetrics()
			<-done
		}()
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

	var store ledger.Store = ledger.NewMemory()
	if rdb != nil {
		store = ledger.NewRedisStore(rdb, logging.NewLogger("ledger"))
	}

	bcfg := cfg.BatchConfig()
	bcfg.Ledger = store
	pdf := raster.NewPdftoppm("", cfg.DPI, cfg.ImageWidth)
	if cfg.Format == client.FormatPdf && !pdf.Available() {
		logger.Warn().Str("binary", pdf.Binary).Msg("pdftoppm not found, PDF conversion will fail")
	}
	rasterizer := raster.ForFormat(cfg.Format, pdf, cfg.ImageWidth)

	orch, err := batch.New(sumo, rasterizer, bcfg)
	if err != nil {
		return err
	}
	result, err := orch.Run(ctx, cfg.Dashboards)
	if err != nil {
		return err
	}

	reportPath, err := report.NewAssembler(cfg.OutputFile).Assemble(result.ReportItems(), cfg.OutputDir)
	if err != nil {
		return err
	}

	if cfg.Publish.Enabled() {
		publisher, err := publish.NewMinIO(cfg.Publish.Target())
		if err != nil {
			return err
		}
		object, err := publisher.Publish(ctx, reportPath)
		if err != nil {
			return err
		}
		logger.Info().Str("bucket", publisher.Bucket()).Str("object", object).Msg("Report uploaded")
	}

	printRun(cmd.OutOrStdout(), result, reportPath)

	if opts.failOnError && len(result.Failed()) > 0 {
		return fmt.Errorf("%w: %d of %d", errPartialFailure, len(result.Failed()), len(result.Entries))
	}
	return nil
}

// printRun writes one status line per dashboard and the report path.
func printRun(w io.Writer, result *batch.RunResult, reportPath string) {
	for _, e := range result.Entries {
		if e.Succeeded() {
			fmt.Fprintf(w, "OK     %s (%s): %d page(s)\n", e.Ref.ID, e.Ref.Title(), len(e.Images))
			continue
		}
		fmt.Fprintf(w, "FAILED %s (%s) [%s]: Job: %s Status: %s: %s\n",
			e.Ref.ID, e.Ref.Title(), e.Stage, e.JobID, e.Status, e.Reason)
	}
	fmt.Fprintf(w, "Report: %s\n", reportPath)
}

// connectRedis returns a client when Redis is configured and reachable.
// Without Redis the run keeps its ledger in memory and discovers the endpoint
// every time.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) *redis.Client {
	if !cfg.Enabled() {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, continuing without it")
		_ = rdb.Close()
		return nil
	}
	logger.Debug().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return rdb
}

// newClient builds the API client, caching the discovered endpoint in Redis
// when available.
func newClient(ctx context.Context, cfg *config.Config, rdb *redis.Client) (*client.Client, error) {
	ccfg := cfg.ClientConfig()
	if rdb != nil {
		ccfg.EndpointCache = cache.NewEndpointStore(cache.NewManager(rdb))
	}
	return client.New(ctx, ccfg)
}
