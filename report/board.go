// Package report renders scenario results to the console and keeps the
// latest result of each scenario for the report server.
package report

import (
	"sort"
	"sync"
	"time"

	llmr "github.com/aws-samples/llmresilience"
)

// Entry is the published result of one scenario run.
type Entry struct {
	Scenario     string            `json:"scenario"`
	RunID        string            `json:"run_id"`
	StartedAt    time.Time         `json:"started_at"`
	Elapsed      time.Duration     `json:"elapsed"`
	Report       llmr.Report       `json:"report"`
	Distribution []llmr.LabelShare `json:"distribution,omitempty"`
	Flags        map[string]bool   `json:"flags,omitempty"`

	// Fatal counts calls that failed for a reason retrying cannot fix.
	Fatal int `json:"fatal,omitempty"`
}

// AllFatal reports whether every call of the run failed fatally.
func (e Entry) AllFatal() bool {
	return e.Report.Overall.Total > 0 && e.Fatal == e.Report.Overall.Total
}

// NewEntry builds an entry from a batch and its report.
func NewEntry(scenario string, b llmr.Batch, r llmr.Report) Entry {
	e := Entry{
		Scenario:  scenario,
		RunID:     b.RunID,
		StartedAt: b.StartedAt,
		Elapsed:   b.Elapsed(),
		Report:    r,
	}
	for _, o := range b.Outcomes {
		if llmr.IsFatal(o.Err) {
			e.Fatal++
		}
	}
	return e
}

// Board keeps the latest entry per scenario. It is safe for concurrent use.
type Board struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{entries: make(map[string]Entry)}
}

// Publish replaces the scenario's latest entry.
func (b *Board) Publish(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[e.Scenario] = e
}

// Latest returns the latest entry of a scenario.
func (b *Board) Latest(scenario string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[scenario]
	return e, ok
}

// All returns the latest entry of every scenario, sorted by scenario.
func (b *Board) All() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scenario < out[j].Scenario })
	return out
}
