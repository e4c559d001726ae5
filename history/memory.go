// Package history provides RunStore implementations for cumulative
// statistics across repeated runs.
package history

import (
	"context"
	"sync"

	llmr "github.com/aws-samples/llmresilience"
)

// MemoryStore is an in-process RunStore. Recording the same run id twice is
// a no-op.
type MemoryStore struct {
	mu     sync.RWMutex
	totals map[string]*llmr.Totals
	seen   map[string]bool
}

var _ llmr.RunStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		totals: make(map[string]*llmr.Totals),
		seen:   make(map[string]bool),
	}
}

func (s *MemoryStore) Record(_ context.Context, run llmr.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.RunID != "" {
		if s.seen[run.RunID] {
			return nil
		}
		s.seen[run.RunID] = true
	}

	t, ok := s.totals[run.Scenario]
	if !ok {
		nt := llmr.NewTotals(run.Scenario)
		t = &nt
		s.totals[run.Scenario] = t
	}
	t.Add(run)
	return nil
}

func (s *MemoryStore) Totals(_ context.Context, scenario string) (llmr.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.totals[scenario]
	if !ok {
		return llmr.NewTotals(scenario), nil
	}
	out := llmr.NewTotals(scenario)
	out.Runs = t.Runs
	out.Overall = t.Overall
	for k, v := range t.Groups {
		out.Groups[k] = v
	}
	for k, v := range t.Labels {
		out.Labels[k] = v
	}
	for k, v := range t.Flags {
		out.Flags[k] = v
	}
	return out, nil
}
