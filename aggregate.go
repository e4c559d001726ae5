package llmresilience

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// LatencyPolicy selects which outcomes count towards latency statistics.
type LatencyPolicy string

const (
	// LatencySuccessOnly averages successful calls only.
	LatencySuccessOnly LatencyPolicy = "success-only"
	// LatencyAll averages every call, including failed and rate-limited ones.
	LatencyAll LatencyPolicy = "all"
)

// Valid reports whether p is a known policy.
func (p LatencyPolicy) Valid() bool {
	return p == LatencySuccessOnly || p == LatencyAll
}

func (p LatencyPolicy) includes(s Status) bool {
	if p == LatencyAll {
		return true
	}
	return s == StatusSuccess
}

// Summary holds statistics for one grouping key.
type Summary struct {
	Key string `json:"key"`

	Total       int     `json:"total"`
	Success     int     `json:"success"`
	Failed      int     `json:"failed"`
	RateLimited int     `json:"rate_limited"`
	SuccessPct  float64 `json:"success_pct"`

	// Latency statistics over the outcomes selected by the latency policy.
	Timed      int           `json:"timed"`
	AvgLatency time.Duration `json:"avg_latency"`
	MinLatency time.Duration `json:"min_latency"`
	MaxLatency time.Duration `json:"max_latency"`
	P50Latency time.Duration `json:"p50_latency"`
	P95Latency time.Duration `json:"p95_latency"`

	Attributed int          `json:"attributed"`
	Labels     []LabelShare `json:"labels,omitempty"`
}

// LabelShare is the share of one attributed label.
type LabelShare struct {
	Label string  `json:"label"`
	Count int     `json:"count"`
	Pct   float64 `json:"pct"`
}

// Share returns the share for label, or a zero value.
func (s Summary) Share(label string) LabelShare {
	for _, l := range s.Labels {
		if l.Label == label {
			return l
		}
	}
	return LabelShare{Label: label}
}

// Report is the aggregation of a collection of outcomes.
type Report struct {
	Policy  LatencyPolicy      `json:"policy"`
	Overall Summary            `json:"overall"`
	Groups  map[string]Summary `json:"groups"`
	Labels  map[string]Summary `json:"labels"`
}

// OverallKey is the Table key of the overall summary.
const OverallKey = "overall"

// Table flattens the report into a single mapping from grouping key to
// statistics. Group keys are prefixed "group:" and label keys "label:".
func (r Report) Table() map[string]Summary {
	t := make(map[string]Summary, 1+len(r.Groups)+len(r.Labels))
	t[OverallKey] = r.Overall
	for k, s := range r.Groups {
		t["group:"+k] = s
	}
	for k, s := range r.Labels {
		t["label:"+k] = s
	}
	return t
}

// GroupNames returns the group keys sorted.
func (r Report) GroupNames() []string { return sortedKeys(r.Groups) }

// LabelNames returns the label keys sorted.
func (r Report) LabelNames() []string { return sortedKeys(r.Labels) }

// AggregateOption configures Aggregate.
type AggregateOption func(*aggregator)

type aggregator struct {
	policy LatencyPolicy
}

// WithLatencyPolicy sets the latency policy (default LatencySuccessOnly).
func WithLatencyPolicy(p LatencyPolicy) AggregateOption {
	return func(a *aggregator) {
		if p.Valid() {
			a.policy = p
		}
	}
}

// Aggregate folds outcomes into a Report. It is pure: the result does not
// depend on the order of outcomes.
func Aggregate(outcomes []Outcome, opts ...AggregateOption) Report {
	a := &aggregator{policy: LatencySuccessOnly}
	for _, opt := range opts {
		opt(a)
	}

	byGroup := make(map[string][]Outcome)
	byLabel := make(map[string][]Outcome)
	for _, o := range outcomes {
		byGroup[o.Group] = append(byGroup[o.Group], o)
		if o.Attributed() {
			byLabel[o.Label] = append(byLabel[o.Label], o)
		}
	}

	r := Report{
		Policy:  a.policy,
		Overall: Summarize(OverallKey, outcomes, a.policy),
		Groups:  make(map[string]Summary, len(byGroup)),
		Labels:  make(map[string]Summary, len(byLabel)),
	}
	for g, members := range byGroup {
		r.Groups[g] = Summarize(g, members, a.policy)
	}
	for l, members := range byLabel {
		r.Labels[l] = Summarize(l, members, a.policy)
	}
	return r
}

// Summarize computes the statistics for one set of outcomes.
func Summarize(key string, outcomes []Outcome, policy LatencyPolicy) Summary {
	s := Summary{Key: key, Total: len(outcomes)}

	var timed []time.Duration
	labels := make(map[string]int)
	for _, o := range outcomes {
		switch o.Status {
		case StatusSuccess:
			s.Success++
		case StatusRateLimited:
			s.RateLimited++
		default:
			s.Failed++
		}
		if policy.includes(o.Status) {
			timed = append(timed, o.Duration)
		}
		if o.Attributed() {
			s.Attributed++
			labels[o.Label]++
		}
	}

	s.SuccessPct = Percent(s.Success, s.Total)
	s.Timed = len(timed)
	if len(timed) > 0 {
		sort.Slice(timed, func(i, j int) bool { return timed[i] < timed[j] })
		var sum time.Duration
		for _, d := range timed {
			sum += d
		}
		s.AvgLatency = sum / time.Duration(len(timed))
		s.MinLatency = timed[0]
		s.MaxLatency = timed[len(timed)-1]
		s.P50Latency = percentile(timed, 50)
		s.P95Latency = percentile(timed, 95)
	}

	for _, l := range sortedKeys(labels) {
		s.Labels = append(s.Labels, LabelShare{
			Label: l,
			Count: labels[l],
			Pct:   Percent(labels[l], s.Attributed),
		})
	}
	return s
}

// Percent returns n/total*100 rounded to one decimal; 0 when total is 0.
func Percent(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}

// FormatPct renders a percentage the way reports print it.
func FormatPct(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}

// percentile uses the nearest-rank method on sorted durations.
func percentile(sorted []time.Duration, p int) time.Duration {
	rank := int(math.Ceil(float64(p) / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
