package batch

import (
	"time"

	"github.com/Sternrassler/dashboard-news/pkg/client"
	"github.com/Sternrassler/dashboard-news/pkg/ledger"
	"github.com/Sternrassler/dashboard-news/pkg/report"
)

// Stage names the pass an entry last went through.
type Stage string

const (
	StageExport  Stage = "export"
	StageConvert Stage = "convert"
)

// Outcome of one dashboard.
type Outcome string

const (
	OutcomeSuccess Outcome = ledger.OutcomeSuccess
	OutcomeFailed  Outcome = ledger.OutcomeFailed
)

// DashboardRef names a dashboard and the label used for it in the report.
type DashboardRef struct {
	ID    string
	Label string
}

// Title returns the label, falling back to the id.
func (r DashboardRef) Title() string {
	if r.Label == "" {
		return r.ID
	}
	return r.Label
}

// Entry is the outcome of one dashboard in a run.
type Entry struct {
	Ref     DashboardRef
	Outcome Outcome
	Stage   Stage

	JobID    client.JobID
	Status   client.JobStatus
	Attempts int

	// ArtifactPath is the exported document, set once it was written.
	ArtifactPath string

	// Images are the page images in page order.
	Images []string

	// Reason describes a failure. Err holds the underlying error when there
	// was one; an exhausted poll budget has a reason but no error.
	Reason string
	Err    error
}

// Succeeded reports whether the dashboard went through every stage.
func (e Entry) Succeeded() bool {
	return e.Outcome == OutcomeSuccess
}

func (e *Entry) fail(stage Stage, reason string, err error) {
	e.Outcome = OutcomeFailed
	e.Stage = stage
	e.Reason = reason
	e.Err = err
}

func (e Entry) record(at time.Time) ledger.Record {
	return ledger.Record{
		DashboardID:  e.Ref.ID,
		Label:        e.Ref.Label,
		Outcome:      string(e.Outcome),
		Stage:        string(e.Stage),
		JobID:        string(e.JobID),
		Status:       string(e.Status),
		Attempts:     e.Attempts,
		ArtifactPath: e.ArtifactPath,
		Images:       e.Images,
		Reason:       e.Reason,
		RecordedAt:   at,
	}
}

// RunResult holds every entry of a run in input order.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Entries    []Entry
}

// Succeeded returns the successful entries in input order.
func (r *RunResult) Succeeded() []Entry {
	return r.filter(OutcomeSuccess)
}

// Failed returns the failed entries in input order.
func (r *RunResult) Failed() []Entry {
	return r.filter(OutcomeFailed)
}

func (r *RunResult) filter(outcome Outcome) []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Outcome == outcome {
			out = append(out, e)
		}
	}
	return out
}

// Images maps each successful dashboard id to the page images it produced.
func (r *RunResult) Images() map[string][]string {
	images := make(map[string][]string)
	for _, e := range r.Entries {
		if e.Succeeded() {
			images[e.Ref.ID] = e.Images
		}
	}
	return images
}

// ReportItems returns one report section per successful dashboard, in input
// order.
func (r *RunResult) ReportItems() []report.Item {
	var items []report.Item
	for _, e := range r.Entries {
		if !e.Succeeded() {
			continue
		}
		items = append(items, report.Item{
			DashboardID: e.Ref.ID,
			Label:       e.Ref.Title(),
			Images:      e.Images,
		})
	}
	return items
}

// Summary condenses the run for the ledger.
func (r *RunResult) Summary() ledger.Summary {
	s := ledger.Summary{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Total:      len(r.Entries),
		Order:      make([]string, 0, len(r.Entries)),
	}
	for _, e := range r.Entries {
		s.Order = append(s.Order, e.Ref.ID)
		if e.Succeeded() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

// Duration returns the wall time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
