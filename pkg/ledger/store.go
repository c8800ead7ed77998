package ledger

import (
	"context"
	"errors"
	"sync"
)

// ErrNoRun is returned when no finished run is stored.
var ErrNoRun = errors.New("no run recorded")

// Store persists run records.
type Store interface {
	Record(ctx context.Context, runID string, rec Record) error
	Finish(ctx context.Context, summary Summary) error
	LastRun(ctx context.Context) (*Summary, []Record, error)
}

// Memory is an in-process Store used when no Redis is configured.
type Memory struct {
	mu      sync.Mutex
	records map[string]map[string]Record
	runs    map[string]Summary
	last    string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]map[string]Record),
		runs:    make(map[string]Summary),
	}
}

// Record stores rec under runID, replacing an earlier record of the same dashboard.
func (m *Memory) Record(_ context.Context, runID string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.records[runID]
	if !ok {
		run = make(map[string]Record)
		m.records[runID] = run
	}
	run[rec.DashboardID] = rec
	return nil
}

// Finish stores the summary and marks the run as the last one.
func (m *Memory) Finish(_ context.Context, summary Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs[summary.RunID] = summary
	m.last = summary.RunID
	return nil
}

// LastRun returns the last finished run with its records in input order.
func (m *Memory) LastRun(_ context.Context) (*Summary, []Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last == "" {
		return nil, nil, ErrNoRun
	}
	summary := m.runs[m.last]
	return &summary, ordered(summary.Order, m.records[m.last]), nil
}

// ordered returns records in the given id order; ids without a record are skipped.
func ordered(order []string, byID map[string]Record) []Record {
	records := make([]Record, 0, len(order))
	for _, id := range order {
		if rec, ok := byID[id]; ok {
			records = append(records, rec)
		}
	}
	return records
}
