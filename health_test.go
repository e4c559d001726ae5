package llmresilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestTracker(now *time.Time) *HealthTracker {
	h := NewHealthTracker()
	h.now = func() time.Time { return *now }
	return h
}

func TestHealthTracker_ThrottlesAfterThreshold(t *testing.T) {
	now := time.Unix(0, 0)
	h := newTestTracker(&now)

	assert.Equal(t, HealthHealthy, h.State("acc-1"))

	h.RecordThrottle("acc-1")
	h.RecordThrottle("acc-1")
	assert.Equal(t, HealthHealthy, h.State("acc-1"))

	h.RecordThrottle("acc-1")
	assert.Equal(t, HealthThrottled, h.State("acc-1"))
	assert.Equal(t, []string{"acc-1"}, h.Throttled())
}

func TestHealthTracker_WindowExpires(t *testing.T) {
	now := time.Unix(0, 0)
	h := newTestTracker(&now)

	h.RecordThrottle("acc-1")
	h.RecordThrottle("acc-1")
	now = now.Add(2 * healthThrottleWindow)
	h.RecordThrottle("acc-1")

	assert.Equal(t, HealthHealthy, h.State("acc-1"))
}

func TestHealthTracker_Recovery(t *testing.T) {
	now := time.Unix(0, 0)
	h := newTestTracker(&now)

	for i := 0; i < healthThrottleThreshold; i++ {
		h.RecordThrottle("acc-1")
	}
	now = now.Add(healthCooldown)
	assert.Equal(t, HealthRecovering, h.State("acc-1"))

	h.RecordSuccess("acc-1")
	assert.Equal(t, HealthHealthy, h.State("acc-1"))
	assert.Empty(t, h.Throttled())
}

func TestHealthTracker_SuccessDoesNotResetBurst(t *testing.T) {
	now := time.Unix(0, 0)
	h := newTestTracker(&now)

	h.RecordThrottle("acc-1")
	h.RecordSuccess("acc-1")
	h.RecordThrottle("acc-1")
	h.RecordThrottle("acc-1")
	assert.Equal(t, HealthThrottled, h.State("acc-1"))

	h.RecordSuccess("acc-1")
	assert.Equal(t, HealthThrottled, h.State("acc-1"))
}

func TestHealthTracker_ObservesOutcomes(t *testing.T) {
	h := NewHealthTracker()

	for i := 0; i < 3; i++ {
		h.OnOutcome(OutcomeEvent{Outcome: Outcome{Group: "A", Status: StatusRateLimited}})
		h.OnOutcome(OutcomeEvent{Outcome: Outcome{Group: "B", Status: StatusFailed}})
	}
	h.OnOutcome(OutcomeEvent{Outcome: Outcome{Group: "C", Status: StatusSuccess}})

	assert.Equal(t, map[string]HealthState{
		"A": HealthThrottled,
		"C": HealthHealthy,
	}, h.Snapshot())
}
