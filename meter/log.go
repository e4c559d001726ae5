package meter

import (
	"go.uber.org/zap"

	llmr "github.com/aws-samples/llmresilience"
)

// LogMeter logs dispatch events using zap.
type LogMeter struct {
	Logger *zap.SugaredLogger
}

var _ llmr.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, the global sugared logger is used.
func NewLogMeter(logger *zap.SugaredLogger) *LogMeter {
	if logger == nil {
		logger = zap.S()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnDispatch(e llmr.DispatchEvent) {
	m.Logger.Debugw("dispatch",
		"run", e.RunID,
		"request", e.RequestID,
		"group", e.Group,
		"seq", e.Seq,
		"model", e.Model,
	)
}

func (m *LogMeter) OnOutcome(e llmr.OutcomeEvent) {
	o := e.Outcome
	switch o.Status {
	case llmr.StatusSuccess:
		m.Logger.Infow("outcome",
			"run", e.RunID,
			"group", o.Group,
			"seq", o.Seq,
			"status", o.Status,
			"label", o.Label,
			"duration_ms", o.Duration.Milliseconds(),
			"prompt_tokens", o.Usage.PromptTokens,
			"completion_tokens", o.Usage.CompletionTokens,
		)
	default:
		m.Logger.Warnw("outcome",
			"run", e.RunID,
			"group", o.Group,
			"seq", o.Seq,
			"status", o.Status,
			"duration_ms", o.Duration.Milliseconds(),
			"error", o.ErrorDetail(),
		)
	}
}
