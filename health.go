package llmresilience

import (
	"sync"
	"time"
)

const (
	healthThrottleThreshold = 3
	healthThrottleWindow    = time.Minute
	healthCooldown          = 30 * time.Second
)

// HealthState is the observed capacity state of a target group.
type HealthState string

const (
	HealthHealthy    HealthState = "healthy"
	HealthThrottled  HealthState = "throttled"
	HealthRecovering HealthState = "recovering"
)

// HealthTracker follows per-group throttling the way a circuit breaker
// would: a group is throttled once it collects healthThrottleThreshold
// rate-limited outcomes inside healthThrottleWindow, recovering after
// healthCooldown, and healthy again on its first success while recovering.
// Successes never interrupt a burst that is still being counted, so the
// verdict does not depend on the order outcomes arrive in.
//
// It implements Meter, so it can observe a dispatch directly.
type HealthTracker struct {
	mu     sync.Mutex
	groups map[string]*groupHealth
	now    func() time.Time
}

type groupHealth struct {
	state       HealthState
	throttles   []time.Time // sliding window of rate-limited outcomes
	throttledAt time.Time
}

var _ Meter = (*HealthTracker)(nil)

// NewHealthTracker creates a new HealthTracker.
func NewHealthTracker() *HealthTracker {
	return &HealthTracker{
		groups: make(map[string]*groupHealth),
		now:    time.Now,
	}
}

// State returns the current state of a group. Unknown groups are healthy.
func (h *HealthTracker) State(group string) HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()

	gh, ok := h.groups[group]
	if !ok {
		return HealthHealthy
	}
	h.cool(gh)
	return gh.state
}

// Snapshot returns the state of every group seen so far.
func (h *HealthTracker) Snapshot() map[string]HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]HealthState, len(h.groups))
	for g, gh := range h.groups {
		h.cool(gh)
		out[g] = gh.state
	}
	return out
}

// Throttled returns the sorted names of groups currently throttled.
func (h *HealthTracker) Throttled() []string {
	snap := h.Snapshot()
	var out []string
	for _, g := range sortedKeys(snap) {
		if snap[g] == HealthThrottled {
			out = append(out, g)
		}
	}
	return out
}

// RecordSuccess closes a recovering group.
func (h *HealthTracker) RecordSuccess(group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	gh := h.getOrCreate(group)
	h.cool(gh)
	if gh.state == HealthRecovering {
		gh.state = HealthHealthy
		gh.throttles = gh.throttles[:0]
	}
}

// RecordThrottle records a rate-limited call for a group.
func (h *HealthTracker) RecordThrottle(group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	gh := h.getOrCreate(group)
	if gh.state == HealthThrottled {
		return
	}

	now := h.now()
	cutoff := now.Add(-healthThrottleWindow)
	valid := gh.throttles[:0]
	for _, t := range gh.throttles {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	gh.throttles = append(valid, now)

	if len(gh.throttles) >= healthThrottleThreshold {
		gh.state = HealthThrottled
		gh.throttledAt = now
	}
}

func (h *HealthTracker) OnDispatch(DispatchEvent) {}

// OnOutcome feeds resolved calls into the tracker. Plain failures say nothing
// about capacity and are ignored.
func (h *HealthTracker) OnOutcome(e OutcomeEvent) {
	switch e.Outcome.Status {
	case StatusSuccess:
		h.RecordSuccess(e.Outcome.Group)
	case StatusRateLimited:
		h.RecordThrottle(e.Outcome.Group)
	}
}

// cool moves a throttled group to recovering once the cooldown elapsed.
// Must be called with lock held.
func (h *HealthTracker) cool(gh *groupHealth) {
	if gh.state == HealthThrottled && h.now().Sub(gh.throttledAt) >= healthCooldown {
		gh.state = HealthRecovering
	}
}

func (h *HealthTracker) getOrCreate(group string) *groupHealth {
	gh, ok := h.groups[group]
	if !ok {
		gh = &groupHealth{state: HealthHealthy}
		h.groups[group] = gh
	}
	return gh
}
