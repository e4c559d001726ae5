package meter

import llmr "github.com/aws-samples/llmresilience"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ llmr.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnDispatch(llmr.DispatchEvent) {}
func (m *NoopMeter) OnOutcome(llmr.OutcomeEvent)   {}
