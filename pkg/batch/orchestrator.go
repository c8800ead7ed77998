package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/dashboard-news/pkg/client"
	"github.com/Sternrassler/dashboard-news/pkg/ledger"
	"github.com/Sternrassler/dashboard-news/pkg/raster"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	entriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dashboard_news_entries_total",
		Help: "Total dashboards processed by final stage and outcome",
	}, []string{"stage", "outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dashboard_news_run_duration_seconds",
		Help:    "Duration of a whole batch run in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
)

// MaxConcurrency caps parallel export jobs.
const MaxConcurrency = 16

var validate = validator.New()

var (
	// ErrDuplicateDashboard is returned when a dashboard id is listed twice.
	ErrDuplicateDashboard = errors.New("duplicate dashboard id")

	// ErrUnsafeDashboardID marks an entry whose id cannot be used as a file
	// name inside the export directory.
	ErrUnsafeDashboardID = errors.New("dashboard id is not a plain file name")
)

// Exporter runs one export job to completion. *client.Client satisfies it.
type Exporter interface {
	RunExport(ctx context.Context, def client.JobDefinition, budget client.PollBudget) (*client.ExportResult, error)
}

// Config holds orchestrator settings.
type Config struct {
	// ExportDir receives artifacts and page images.
	ExportDir string `validate:"required"`

	// Format requested from the export API (default Pdf).
	Format client.ExportFormat `validate:"omitempty,oneof=Pdf Png"`

	// Timezone rendered into dashboards (default America/Los_Angeles).
	Timezone string

	Budget client.PollBudget `validate:"-"`

	// Concurrency is the number of export jobs in flight. 0 and 1 mean
	// strictly sequential.
	Concurrency int `validate:"gte=0,lte=16"`

	// Ledger persists entries and the run summary (optional).
	Ledger ledger.Store `validate:"-"`

	// Logger overrides the component logger.
	Logger *zerolog.Logger `validate:"-"`
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithRunID replaces the run id generator.
func WithRunID(fn func() string) Option {
	return func(o *Orchestrator) { o.newRunID = fn }
}

// WithClock replaces the clock used for timestamps.
func WithClock(fn func() time.Time) Option {
	return func(o *Orchestrator) { o.now = fn }
}

// Orchestrator runs export batches.
type Orchestrator struct {
	exporter   Exporter
	rasterizer raster.Rasterizer
	cfg        Config
	logger     zerolog.Logger
	newRunID   func() string
	now        func() time.Time
}

// New creates an orchestrator. A nil rasterizer disables the convert pass.
func New(exporter Exporter, rasterizer raster.Rasterizer, cfg Config, opts ...Option) (*Orchestrator, error) {
	if exporter == nil {
		return nil, errors.New("batch: exporter is required")
	}
	if cfg.Format == "" {
		cfg.Format = client.FormatPdf
	}
	if cfg.Timezone == "" {
		cfg.Timezone = client.DefaultTimezone
	}
	if cfg.Budget == (client.PollBudget{}) {
		cfg.Budget = client.DefaultPollBudget()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid batch config: %w", err)
	}
	if err := cfg.Budget.Validate(); err != nil {
		return nil, err
	}

	logger := log.With().Str("component", "batch").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	o := &Orchestrator{
		exporter:   exporter,
		rasterizer: rasterizer,
		cfg:        cfg,
		logger:     logger,
		newRunID:   uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Run exports, then converts, every dashboard in refs. Per dashboard failures
// are recorded in the result; an error is only returned for unusable input.
func (o *Orchestrator) Run(ctx context.Context, refs []DashboardRef) (*RunResult, error) {
	if err := checkRefs(refs); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(o.cfg.ExportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	result := &RunResult{
		RunID:     o.newRunID(),
		StartedAt: o.now(),
		Entries:   make([]Entry, len(refs)),
	}
	for i, ref := range refs {
		result.Entries[i] = Entry{Ref: ref, Stage: StageExport}
	}

	logger := o.logger.With().Str("run", result.RunID).Logger()
	logger.Info().
		Int("dashboards", len(refs)).
		Str("format", string(o.cfg.Format)).
		Int("concurrency", o.cfg.Concurrency).
		Dur("max_wait", o.cfg.Budget.MaxWait()).
		Msg("Starting export run")

	o.exportAll(ctx, logger, result.Entries)
	o.convertAll(ctx, logger, result.Entries)

	result.FinishedAt = o.now()
	runDuration.Observe(result.Duration().Seconds())

	for _, e := range result.Entries {
		entriesTotal.WithLabelValues(string(e.Stage), string(e.Outcome)).Inc()
	}
	o.persist(ctx, logger, result)

	summary := result.Summary()
	logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Dur("duration", result.Duration()).
		Msg("Export run complete")

	return result, nil
}

// exportAll runs the export pass. With a limit of 1 each Go call blocks until
// the previous export returned, so jobs start in input order.
func (o *Orchestrator) exportAll(ctx context.Context, logger zerolog.Logger, entries []Entry) {
	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)

	for i := range entries {
		entry := &entries[i]
		g.Go(func() error {
			o.export(ctx, logger, entry)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) export(ctx context.Context, logger zerolog.Logger, entry *Entry) {
	id := entry.Ref.ID
	logger = logger.With().Str("dashboard", id).Logger()
	logger.Info().Str("label", entry.Ref.Title()).Msg("Exporting dashboard")

	if !safeFileName(id) {
		entry.fail(StageExport, fmt.Sprintf("invalid dashboard id %q", id), ErrUnsafeDashboardID)
		logger.Error().Msg("Dashboard id is not a plain file name, skipping")
		return
	}

	def := client.NewJobDefinition(id, o.cfg.Format, o.cfg.Timezone)
	res, err := o.exporter.RunExport(ctx, def, o.cfg.Budget)
	if res != nil {
		entry.JobID = res.JobID
		entry.Status = res.Status
		entry.Attempts = res.Poll.Attempts
	}

	switch {
	case err != nil:
		entry.fail(StageExport, client.Reason(err), err)
		logger.Error().
			Err(err).
			Str("job", string(entry.JobID)).
			Msg("Export failed")
		return

	case res == nil:
		entry.fail(StageExport, "exporter returned no result", nil)
		return

	case !res.Status.IsSuccess():
		entry.fail(StageExport, fmt.Sprintf("job %s status %s after %d attempts", res.JobID, res.Status, res.Poll.Attempts), client.ErrPollExhausted)
		logger.Warn().
			Str("job", string(res.JobID)).
			Str("status", res.Status.String()).
			Int("attempts", res.Poll.Attempts).
			Msg("Export job did not succeed")
		return

	case len(res.Bytes) == 0:
		entry.fail(StageExport, fmt.Sprintf("job %s returned no content", res.JobID), nil)
		logger.Warn().Str("job", string(res.JobID)).Msg("Export job returned no content")
		return
	}

	path := filepath.Join(o.cfg.ExportDir, id+"."+o.cfg.Format.Extension())
	if err := os.WriteFile(path, res.Bytes, 0o644); err != nil {
		entry.fail(StageExport, fmt.Sprintf("write artifact: %v", err), err)
		logger.Error().Err(err).Str("path", path).Msg("Failed to write artifact")
		return
	}

	entry.ArtifactPath = path
	entry.Outcome = OutcomeSuccess
	logger.Info().
		Str("job", string(res.JobID)).
		Str("path", path).
		Int("bytes", len(res.Bytes)).
		Int("attempts", res.Poll.Attempts).
		Msg("Dashboard exported")
}

// convertAll runs the convert pass sequentially over exported artifacts.
func (o *Orchestrator) convertAll(ctx context.Context, logger zerolog.Logger, entries []Entry) {
	if o.rasterizer == nil {
		return
	}
	ext := "." + o.cfg.Format.Extension()

	for i := range entries {
		entry := &entries[i]
		if !entry.Succeeded() || filepath.Ext(entry.ArtifactPath) != ext {
			continue
		}
		entry.Stage = StageConvert

		images, err := o.rasterizer.Rasterize(ctx, entry.ArtifactPath, o.cfg.ExportDir, entry.Ref.ID)
		if err != nil {
			entry.fail(StageConvert, err.Error(), err)
			logger.Error().
				Err(err).
				Str("dashboard", entry.Ref.ID).
				Str("path", entry.ArtifactPath).
				Msg("Conversion failed")
			continue
		}
		if len(images) == 0 {
			entry.fail(StageConvert, "no page images produced", nil)
			continue
		}

		entry.Images = images
		logger.Debug().
			Str("dashboard", entry.Ref.ID).
			Int("pages", len(images)).
			Msg("Dashboard converted")
	}
}

// persist writes entries and the summary to the ledger. Ledger failures are
// logged only.
func (o *Orchestrator) persist(ctx context.Context, logger zerolog.Logger, result *RunResult) {
	if o.cfg.Ledger == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	for _, e := range result.Entries {
		if err := o.cfg.Ledger.Record(ctx, result.RunID, e.record(result.FinishedAt)); err != nil {
			logger.Warn().Err(err).Str("dashboard", e.Ref.ID).Msg("Failed to record entry")
		}
	}
	if err := o.cfg.Ledger.Finish(ctx, result.Summary()); err != nil {
		logger.Warn().Err(err).Msg("Failed to record run summary")
	}
}

func checkRefs(refs []DashboardRef) error {
	seen := make(map[string]struct{}, len(refs))
	for i, ref := range refs {
		if ref.ID == "" {
			return fmt.Errorf("dashboard %d: empty id", i)
		}
		if _, dup := seen[ref.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateDashboard, ref.ID)
		}
		seen[ref.ID] = struct{}{}
	}
	return nil
}

// safeFileName reports whether id stays inside a directory when used as a
// file name stem.
func safeFileName(id string) bool {
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return false
	}
	return filepath.Base(id) == id
}
