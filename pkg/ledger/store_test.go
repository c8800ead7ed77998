package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func sampleRun() (Summary, []Record) {
	started := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	records := []Record{
		{DashboardID: "d1", Label: "Ingest", Outcome: OutcomeSuccess, Stage: "convert", JobID: "j1", Status: "Success", Attempts: 3, Images: []string{"/x/d1.0.jpg"}},
		{DashboardID: "d2", Label: "Errors", Outcome: OutcomeFailed, Stage: "export", JobID: "j2", Status: "InProgress", Attempts: 3, Reason: "job j2 status InProgress after 3 attempts"},
		{DashboardID: "d3", Label: "Logins", Outcome: OutcomeFailed, Stage: "export", Reason: "internal error"},
	}
	summary := Summary{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(42 * time.Second),
		Total:      3,
		Succeeded:  1,
		Failed:     2,
		Order:      []string{"d1", "d2", "d3"},
	}
	return summary, records
}

func TestMemory_LastRun(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if _, _, err := store.LastRun(ctx); !errors.Is(err, ErrNoRun) {
		t.Fatalf("LastRun() on empty store error = %v, want ErrNoRun", err)
	}

	summary, records := sampleRun()
	// Record out of order; LastRun must restore input order.
	for _, i := range []int{2, 0, 1} {
		if err := store.Record(ctx, summary.RunID, records[i]); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := store.Finish(ctx, summary); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	got, recs, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun() error = %v", err)
	}
	if got.RunID != "run-1" || got.Duration() != 42*time.Second {
		t.Errorf("summary = %+v", got)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}
	for i, id := range summary.Order {
		if recs[i].DashboardID != id {
			t.Errorf("records[%d] = %s, want %s", i, recs[i].DashboardID, id)
		}
	}
	if !recs[0].Succeeded() || recs[1].Succeeded() {
		t.Error("Succeeded() mismatch")
	}
}

func TestMemory_RecordReplaces(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	store.Record(ctx, "r", Record{DashboardID: "d1", Outcome: OutcomeSuccess, Stage: "export"})
	store.Record(ctx, "r", Record{DashboardID: "d1", Outcome: OutcomeFailed, Stage: "convert", Reason: "bad pdf"})
	store.Finish(ctx, Summary{RunID: "r", Order: []string{"d1"}})

	_, recs, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun() error = %v", err)
	}
	if len(recs) != 1 || recs[0].Stage != "convert" {
		t.Errorf("records = %+v, want the later convert record", recs)
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{runKey("abc"), "dashboard-news:run:abc"},
		{summaryKey("abc"), "dashboard-news:run:abc:summary"},
		{lastRunKey(), "dashboard-news:last_run"},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}
}
