package llmresilience

import (
	"context"
	"time"
)

// Resolver answers which region or model served invocations in a time window.
type Resolver interface {
	Resolve(ctx context.Context, q AttributionQuery) ([]Attribution, error)
}

// AttributionQuery selects the invocations of one run.
type AttributionQuery struct {
	Start   time.Time
	End     time.Time
	ModelID string
}

// Attribution is one matched invocation.
type Attribution struct {
	RequestID string
	Label     string
	Timestamp time.Time
}

// Enrich returns copies of outcomes labelled from attributions, joined on the
// backend request id. Outcomes that already carry a label or have no match
// are returned unchanged.
func Enrich(outcomes []Outcome, attrs []Attribution) []Outcome {
	byID := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if a.RequestID != "" && a.Label != "" {
			byID[a.RequestID] = a.Label
		}
	}

	out := make([]Outcome, len(outcomes))
	for i, o := range outcomes {
		if !o.Attributed() && o.BackendRequestID != "" {
			if l, ok := byID[o.BackendRequestID]; ok {
				o = o.WithLabel(l)
			}
		}
		out[i] = o
	}
	return out
}

// Distribution counts attributions per label.
func Distribution(attrs []Attribution) map[string]int {
	d := make(map[string]int)
	for _, a := range attrs {
		if a.Label != "" {
			d[a.Label]++
		}
	}
	return d
}

// DistributionShares turns a label histogram into sorted shares.
func DistributionShares(dist map[string]int) []LabelShare {
	total := 0
	for _, n := range dist {
		total += n
	}
	shares := make([]LabelShare, 0, len(dist))
	for _, l := range sortedKeys(dist) {
		shares = append(shares, LabelShare{Label: l, Count: dist[l], Pct: Percent(dist[l], total)})
	}
	return shares
}

// DefaultAttributionSchedule waits for invocation logs to propagate: one
// minute before the first query, then 30 seconds between retries.
var DefaultAttributionSchedule = []time.Duration{
	60 * time.Second,
	30 * time.Second,
	30 * time.Second,
	30 * time.Second,
	30 * time.Second,
}

// AttemptFunc is notified after each attribution attempt.
type AttemptFunc func(attempt int, found, expected int, err error)

// AwaitAttribution queries the resolver on the given schedule until it
// returns expected invocations. It returns the last successful result, which
// may be partial, and the last error if no attempt succeeded.
func AwaitAttribution(ctx context.Context, r Resolver, q AttributionQuery, expected int, schedule []time.Duration, notify AttemptFunc) ([]Attribution, error) {
	var (
		best    []Attribution
		lastErr error
		ok      bool
	)
	for i, wait := range schedule {
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				if ok {
					return best, nil
				}
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		attrs, err := r.Resolve(ctx, q)
		if notify != nil {
			notify(i+1, len(attrs), expected, err)
		}
		if err != nil {
			lastErr = err
			continue
		}
		ok = true
		best = attrs
		if len(attrs) >= expected {
			break
		}
	}
	if !ok {
		return nil, lastErr
	}
	return best, nil
}
