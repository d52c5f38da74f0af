// Package dlq records stage jobs whose retry budget is exhausted, for
// operational inspection. State is process-lifetime only: the durable
// record of a dead-lettered run is PipelineRun.status=failed.
package dlq

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

// DefaultMaxEntries bounds the in-memory store; oldest entries are
// evicted first.
const DefaultMaxEntries = 512

// Entry is one terminally-failed stage job.
type Entry struct {
	Stage         model.Stage `json:"stage"`
	PipelineRunID string      `json:"pipeline_run_id"`
	FirmID        string      `json:"firm_id"`
	MatterID      string      `json:"matter_id"`
	DocumentID    string      `json:"document_id"`
	JobID         string      `json:"job_id"`
	AttemptsMade  int         `json:"attempts_made"`
	Error         string      `json:"error"`
	FailedAt      time.Time   `json:"failed_at"`
}

// Monitor is a bounded in-memory dead-letter store.
type Monitor struct {
	mu         sync.Mutex
	maxEntries int
	entries    []Entry
	counts     map[model.Stage]int
	seen       map[string]bool // jobID|attempts, for duplicate delivery
}

// NewMonitor creates a Monitor holding at most maxEntries entries
// (DefaultMaxEntries when <= 0).
func NewMonitor(maxEntries int) *Monitor {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Monitor{
		maxEntries: maxEntries,
		counts:     make(map[model.Stage]int),
		seen:       make(map[string]bool),
	}
}

// Record observes a stage failure. Failures with attempts still remaining
// are transient and ignored. An exhausted failure is recorded exactly
// once per (job, attempt) even under duplicate delivery.
func (m *Monitor) Record(entry Entry, maxAttempts int) {
	if entry.AttemptsMade < maxAttempts {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s|%d", entry.JobID, entry.AttemptsMade)
	if m.seen[key] {
		return
	}
	m.seen[key] = true

	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	m.entries = append(m.entries, entry)
	m.counts[entry.Stage]++

	if len(m.entries) > m.maxEntries {
		evicted := m.entries[0]
		m.entries = append([]Entry(nil), m.entries[1:]...)
		delete(m.seen, fmt.Sprintf("%s|%d", evicted.JobID, evicted.AttemptsMade))
	}

	zap.L().Error("dlq: job dead-lettered",
		zap.String("stage", string(entry.Stage)),
		zap.String("run_id", entry.PipelineRunID),
		zap.String("job_id", entry.JobID),
		zap.Int("attempts", entry.AttemptsMade),
		zap.String("error", entry.Error),
	)
}

// Entries returns recorded entries, optionally filtered by stage
// (empty stage means all). The returned slice is a copy.
func (m *Monitor) Entries(stage model.Stage) []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if stage != "" && e.Stage != stage {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Summary returns the count of dead-lettered jobs per stage.
func (m *Monitor) Summary() map[model.Stage]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[model.Stage]int, len(m.counts))
	for stage, n := range m.counts {
		out[stage] = n
	}
	return out
}

// Clear removes entries, optionally only for one stage (empty stage
// clears all). Returns the number removed. Per-stage counters reset with
// the entries they counted.
func (m *Monitor) Clear(stage model.Stage) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if stage == "" {
		removed := len(m.entries)
		m.entries = nil
		m.counts = make(map[model.Stage]int)
		m.seen = make(map[string]bool)
		return removed
	}

	var kept []Entry
	removed := 0
	for _, e := range m.entries {
		if e.Stage == stage {
			removed++
			delete(m.seen, fmt.Sprintf("%s|%d", e.JobID, e.AttemptsMade))
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	delete(m.counts, stage)
	return removed
}
