package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for export jobs.
var (
	exportPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_export_polls_total",
		Help: "Total export job status observations by status",
	}, []string{"status"})

	exportJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sumo_export_jobs_total",
		Help: "Total export jobs by outcome (success, exhausted, error)",
	}, []string{"outcome"})

	exportWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sumo_export_wait_seconds",
		Help:    "Time spent waiting between export job status checks",
		Buckets: []float64{0, 2, 5, 10, 20, 30, 60, 120},
	})
)

const reportJobsPath = "/dashboards/reportJobs"

// DefaultTimezone is used when a job definition names none.
const DefaultTimezone = "America/Los_Angeles"

// ExportFormat is the document format requested from the export job.
type ExportFormat string

const (
	FormatPdf ExportFormat = "Pdf"
	FormatPng ExportFormat = "Png"
)

// Extension returns the file extension for artifacts of this format.
func (f ExportFormat) Extension() string {
	return strings.ToLower(string(f))
}

// ParseExportFormat accepts "pdf"/"png" in any case. An empty string yields FormatPdf.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pdf":
		return FormatPdf, nil
	case "png":
		return FormatPng, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// JobDefinition describes one dashboard export request.
type JobDefinition struct {
	DashboardID string
	Format      ExportFormat
	Timezone    string
}

// NewJobDefinition fills in the default format and timezone.
func NewJobDefinition(dashboardID string, format ExportFormat, timezone string) JobDefinition {
	if format == "" {
		format = FormatPdf
	}
	if timezone == "" {
		timezone = DefaultTimezone
	}
	return JobDefinition{DashboardID: dashboardID, Format: format, Timezone: timezone}
}

type reportAction struct {
	ActionType string `json:"actionType"`
}

type reportTemplate struct {
	TemplateType string `json:"templateType"`
	ID           string `json:"id"`
}

type reportJobRequest struct {
	Action       reportAction   `json:"action"`
	ExportFormat ExportFormat   `json:"exportFormat"`
	Timezone     string         `json:"timezone"`
	Template     reportTemplate `json:"template"`
}

// payload returns the wire form of the definition.
func (d JobDefinition) payload() reportJobRequest {
	return reportJobRequest{
		Action:       reportAction{ActionType: "DirectDownloadReportAction"},
		ExportFormat: d.Format,
		Timezone:     d.Timezone,
		Template:     reportTemplate{TemplateType: "DashboardTemplate", ID: d.DashboardID},
	}
}

// JobID identifies a submitted export job.
type JobID string

// JobStatus is the server reported state of an export job.
type JobStatus string

const (
	StatusSuccess    JobStatus = "Success"
	StatusInProgress JobStatus = "InProgress"
	StatusFailed     JobStatus = "Failed"

	// StatusUnknown means no status has been observed yet.
	StatusUnknown JobStatus = ""
)

// IsSuccess reports whether the job finished and its result can be fetched.
func (s JobStatus) IsSuccess() bool {
	return s == StatusSuccess
}

// String returns the status, or "Unknown" when none was observed.
func (s JobStatus) String() string {
	if s == StatusUnknown {
		return "Unknown"
	}
	return string(s)
}

// ExportResult is the outcome of one export job.
type ExportResult struct {
	DashboardID string
	JobID       JobID
	Status      JobStatus
	ContentType string
	Bytes       []byte
	Poll        PollResult
}

// Succeeded reports whether the job reached Success and delivered a payload.
func (r *ExportResult) Succeeded() bool {
	return r != nil && r.Status.IsSuccess() && len(r.Bytes) > 0
}

// SubmitExport starts an export job. Submission is not retried.
func (c *Client) SubmitExport(ctx context.Context, def JobDefinition) (JobID, error) {
	if def.DashboardID == "" {
		return "", fmt.Errorf("dashboard id is required")
	}
	def = NewJobDefinition(def.DashboardID, def.Format, def.Timezone)

	resp, err := c.Post(ctx, reportJobsPath, def.payload())
	if err != nil {
		return "", err
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return "", fmt.Errorf("submit export for %s: %w", def.DashboardID, err)
	}
	if body.ID == "" {
		return "", fmt.Errorf("submit export for %s: %w", def.DashboardID, ErrNoJobID)
	}

	c.logger.Debug().
		Str("dashboard", def.DashboardID).
		Str("job", body.ID).
		Str("format", string(def.Format)).
		Msg("Submitted export job")

	return JobID(body.ID), nil
}

// ExportStatus reads the current status of a job.
func (c *Client) ExportStatus(ctx context.Context, id JobID) (JobStatus, error) {
	resp, err := c.Get(ctx, jobPath(id, "status"))
	if err != nil {
		return StatusUnknown, err
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := resp.DecodeJSON(&body); err != nil {
		return StatusUnknown, fmt.Errorf("status of job %s: %w", id, err)
	}
	return JobStatus(body.Status), nil
}

// FetchExport downloads the rendered document of a finished job.
func (c *Client) FetchExport(ctx context.Context, id JobID) (*ExportResult, error) {
	resp, err := c.GetFile(ctx, jobPath(id, "result"))
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		JobID:       id,
		ContentType: resp.ContentType(),
		Bytes:       resp.Body,
	}, nil
}

// RunExport submits a job, polls it within budget and fetches the result
// only when the job reached Success. An exhausted budget is not an error: the
// result carries the last observed status and no bytes. When an error is
// returned after submission the partial result is returned alongside it.
func (c *Client) RunExport(ctx context.Context, def JobDefinition, budget PollBudget) (*ExportResult, error) {
	id, err := c.SubmitExport(ctx, def)
	if err != nil {
		exportJobsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result := &ExportResult{DashboardID: def.DashboardID, JobID: id}

	poll, err := c.PollExport(ctx, id, budget)
	result.Status = poll.Status
	result.Poll = poll
	if err != nil {
		exportJobsTotal.WithLabelValues("error").Inc()
		return result, err
	}

	if !poll.Status.IsSuccess() {
		exportJobsTotal.WithLabelValues("exhausted").Inc()
		c.logger.Warn().
			Str("dashboard", def.DashboardID).
			Str("job", string(id)).
			Str("status", poll.Status.String()).
			Int("attempts", poll.Attempts).
			Msgf("Job unsuccessful after %d attempts", poll.Attempts)
		return result, nil
	}

	fetched, err := c.FetchExport(ctx, id)
	if err != nil {
		exportJobsTotal.WithLabelValues("error").Inc()
		return result, err
	}
	result.ContentType = fetched.ContentType
	result.Bytes = fetched.Bytes

	exportJobsTotal.WithLabelValues("success").Inc()
	c.logger.Debug().
		Str("dashboard", def.DashboardID).
		Str("job", string(id)).
		Int("bytes", len(result.Bytes)).
		Msg("Fetched export result")

	return result, nil
}

func jobPath(id JobID, leaf string) string {
	return reportJobsPath + "/" + url.PathEscape(string(id)) + "/" + leaf
}
