package llmresilience

import (
	"context"
	"time"
)

// RunStore records completed runs so repeated (loop mode) runs can report
// cumulative statistics.
type RunStore interface {
	// Record adds one run to the scenario's history.
	Record(ctx context.Context, run RunRecord) error

	// Totals returns the cumulative statistics of a scenario.
	Totals(ctx context.Context, scenario string) (Totals, error)
}

// RunRecord is the persisted digest of one run.
type RunRecord struct {
	RunID     string            `json:"run_id"`
	Scenario  string            `json:"scenario"`
	StartedAt time.Time         `json:"started_at"`
	Elapsed   time.Duration     `json:"elapsed"`
	Overall   Counts            `json:"overall"`
	Groups    map[string]Counts `json:"groups,omitempty"`
	Labels    map[string]int    `json:"labels,omitempty"`

	// Flags marks scenario specific verdicts, e.g. "isolation_effective".
	Flags map[string]bool `json:"flags,omitempty"`
}

// Counts is the status breakdown persisted per run and per group.
type Counts struct {
	Success     int `json:"success"`
	Failed      int `json:"failed"`
	RateLimited int `json:"rate_limited"`
}

// Total returns the number of calls.
func (c Counts) Total() int { return c.Success + c.Failed + c.RateLimited }

// SuccessPct returns the success percentage.
func (c Counts) SuccessPct() float64 { return Percent(c.Success, c.Total()) }

func (c *Counts) add(o Counts) {
	c.Success += o.Success
	c.Failed += o.Failed
	c.RateLimited += o.RateLimited
}

func countsOf(s Summary) Counts {
	return Counts{Success: s.Success, Failed: s.Failed, RateLimited: s.RateLimited}
}

// NewRunRecord digests a batch and its report.
func NewRunRecord(scenario string, b Batch, r Report, flags map[string]bool) RunRecord {
	rec := RunRecord{
		RunID:     b.RunID,
		Scenario:  scenario,
		StartedAt: b.StartedAt,
		Elapsed:   b.Elapsed(),
		Overall:   countsOf(r.Overall),
		Groups:    make(map[string]Counts, len(r.Groups)),
		Labels:    make(map[string]int, len(r.Labels)),
		Flags:     flags,
	}
	for g, s := range r.Groups {
		rec.Groups[g] = countsOf(s)
	}
	for l, s := range r.Labels {
		rec.Labels[l] = s.Total
	}
	return rec
}

// Totals is the cumulative view over a scenario's runs.
type Totals struct {
	Scenario string            `json:"scenario"`
	Runs     int               `json:"runs"`
	Overall  Counts            `json:"overall"`
	Groups   map[string]Counts `json:"groups"`
	Labels   map[string]int    `json:"labels"`
	Flags    map[string]int    `json:"flags"`
}

// NewTotals returns empty totals for a scenario.
func NewTotals(scenario string) Totals {
	return Totals{
		Scenario: scenario,
		Groups:   make(map[string]Counts),
		Labels:   make(map[string]int),
		Flags:    make(map[string]int),
	}
}

// Add folds one run into the totals.
func (t *Totals) Add(r RunRecord) {
	t.Runs++
	t.Overall.add(r.Overall)
	for g, c := range r.Groups {
		cur := t.Groups[g]
		cur.add(c)
		t.Groups[g] = cur
	}
	for l, n := range r.Labels {
		t.Labels[l] += n
	}
	for f, set := range r.Flags {
		if set {
			t.Flags[f]++
		}
	}
}

// FlagPct returns the percentage of runs where flag was set.
func (t Totals) FlagPct(flag string) float64 {
	return Percent(t.Flags[flag], t.Runs)
}

// LabelShares returns the cumulative label distribution.
func (t Totals) LabelShares() []LabelShare {
	return DistributionShares(t.Labels)
}
