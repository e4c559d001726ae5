package llmresilience

import "time"

// Meter observes dispatch events for monitoring/logging.
type Meter interface {
	// OnDispatch is called when a call is submitted to the backend.
	OnDispatch(event DispatchEvent)

	// OnOutcome is called once the call resolved.
	OnOutcome(event OutcomeEvent)
}

// DispatchEvent describes a submitted call.
type DispatchEvent struct {
	RunID     string
	RequestID string
	Group     string
	Seq       int
	Model     string
	At        time.Time
}

// OutcomeEvent describes a resolved call.
type OutcomeEvent struct {
	RunID   string
	Outcome Outcome
}

// MultiMeter fans events out to several meters in order.
type MultiMeter []Meter

var _ Meter = MultiMeter(nil)

func (m MultiMeter) OnDispatch(e DispatchEvent) {
	for _, mm := range m {
		mm.OnDispatch(e)
	}
}

func (m MultiMeter) OnOutcome(e OutcomeEvent) {
	for _, mm := range m {
		mm.OnOutcome(e)
	}
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (noopMeter) OnDispatch(DispatchEvent) {}
func (noopMeter) OnOutcome(OutcomeEvent)   {}
