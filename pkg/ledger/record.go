// Package ledger persists the per-dashboard outcome of every run so the
// result of the last run can be inspected after the process exits.
package ledger

import (
	"time"

	"github.com/Sternrassler/dashboard-news/pkg/cache"
)

// DefaultTTL is how long run records are kept.
const DefaultTTL = 7 * 24 * time.Hour

// Outcomes recorded per dashboard.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Record is the stored outcome of one dashboard within a run.
type Record struct {
	DashboardID  string    `json:"dashboard_id"`
	Label        string    `json:"label"`
	Outcome      string    `json:"outcome"`
	Stage        string    `json:"stage"`
	JobID        string    `json:"job_id,omitempty"`
	Status       string    `json:"status,omitempty"`
	Attempts     int       `json:"attempts"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	Images       []string  `json:"images,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Succeeded reports whether the dashboard made it through every stage.
func (r Record) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Summary describes a whole run.
type Summary struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`

	// Order lists dashboard ids in input order.
	Order []string `json:"order"`
}

// Duration returns the wall time of the run.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// runKey is the hash holding one field per dashboard of a run.
func runKey(runID string) string {
	return cache.Key{Namespace: "run", Parts: []string{runID}}.String()
}

// summaryKey holds the JSON summary of a run.
func summaryKey(runID string) string {
	return cache.Key{Namespace: "run", Parts: []string{runID, "summary"}}.String()
}

// lastRunKey holds the id of the most recently finished run.
func lastRunKey() string {
	return cache.Key{Namespace: "last_run"}.String()
}
